package aggregator

import (
	"encoding/json"
	"io/ioutil"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/feedmaster/feedmaster/model"
)

// Location is one entry of the geo-hashtag mapping.
type Location struct {
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

// GeoMap maps a normalized hashtag token to a location. External collaborator
// data, consumed read-only.
type GeoMap map[string]Location

var tagNormalizer = regexp.MustCompile(`[^a-z0-9]`)

// LoadGeoMap reads the geo-hashtag mapping file. Keys are normalized on load
// so lookups only need the normalized form.
func LoadGeoMap(path string) (GeoMap, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read geo hashtag mapping")
	}
	raw := map[string]Location{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode geo hashtag mapping")
	}
	m := make(GeoMap, len(raw))
	for tag, loc := range raw {
		m[normalizeTag(tag)] = loc
	}
	return m, nil
}

func normalizeTag(tag string) string {
	return tagNormalizer.ReplaceAllString(strings.ToLower(tag), "")
}

// Infer resolves a post's hashtags to a single best location, most specific
// first. When hashtags name more than one distinct city the post is
// ambiguous and no location is inferred at all.
func (m GeoMap) Infer(hashtags []string) *Location {
	if len(m) == 0 || len(hashtags) == 0 {
		return nil
	}

	inferred := Location{}
	distinctCities := map[string]bool{}

	for _, tag := range hashtags {
		loc, ok := m[normalizeTag(tag)]
		if !ok {
			continue
		}
		if loc.City != "" {
			distinctCities[loc.City] = true
		}
		switch {
		case loc.City != "" && inferred.City == "":
			inferred = loc
		case inferred.City == "" && loc.Region != "" && inferred.Region == "":
			inferred.Region = loc.Region
			inferred.Country = loc.Country
		case inferred.City == "" && inferred.Region == "" && loc.Country != "" && inferred.Country == "":
			inferred.Country = loc.Country
		}
	}

	if len(distinctCities) > 1 {
		return nil
	}
	if inferred == (Location{}) {
		return nil
	}
	return &inferred
}

// TopCities counts posts per inferred city. Each post contributes once.
func TopCities(posts []model.Post, geo GeoMap, k int) []model.RankedEntry {
	return topGeo(posts, geo, k, func(loc *Location) string { return loc.City })
}

// TopRegions counts posts per inferred region.
func TopRegions(posts []model.Post, geo GeoMap, k int) []model.RankedEntry {
	return topGeo(posts, geo, k, func(loc *Location) string { return loc.Region })
}

// TopCountries counts posts per inferred country.
func TopCountries(posts []model.Post, geo GeoMap, k int) []model.RankedEntry {
	return topGeo(posts, geo, k, func(loc *Location) string { return loc.Country })
}

func topGeo(posts []model.Post, geo GeoMap, k int, pick func(*Location) string) []model.RankedEntry {
	c := newCounter("geo")
	for i := range posts {
		post := &posts[i]
		loc := geo.Infer(post.HashtagList())
		if loc == nil {
			continue
		}
		if key := pick(loc); key != "" {
			c.add(key, 1, post.CreatedAt)
		}
	}
	return c.topK(k)
}
