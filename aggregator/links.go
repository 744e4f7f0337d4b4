package aggregator

import (
	"encoding/json"
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"

	"github.com/feedmaster/feedmaster/extractor"
	"github.com/feedmaster/feedmaster/model"
)

// LoadNewsDomains reads the news domain list, a JSON array of host names.
// External collaborator data like the geo mapping.
func LoadNewsDomains(path string) (map[string]bool, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read news domain list")
	}
	var domains []string
	if err := json.Unmarshal(data, &domains); err != nil {
		return nil, errors.Wrap(err, "decode news domain list")
	}
	out := make(map[string]bool, len(domains))
	for _, domain := range domains {
		out[strings.ToLower(strings.TrimPrefix(domain, "www."))] = true
	}
	return out, nil
}

// TopLinks counts shared outbound links, one count per post per URL.
func TopLinks(posts []model.Post, k int) []model.RankedEntry {
	c := newCounter("link")
	for i := range posts {
		post := &posts[i]
		if !post.HasLink {
			continue
		}
		seen := map[string]bool{}
		for _, link := range post.LinkList() {
			if link.Uri == "" || seen[link.Uri] {
				continue
			}
			seen[link.Uri] = true
			c.add(link.Uri, 1, post.CreatedAt)
		}
	}
	return c.topK(k)
}

// TopDomains rolls shared links up to their host domain.
func TopDomains(posts []model.Post, k int) []model.RankedEntry {
	c := newCounter("domain")
	for i := range posts {
		post := &posts[i]
		if !post.HasLink {
			continue
		}
		seen := map[string]bool{}
		for _, link := range post.LinkList() {
			domain := extractor.LinkDomain(link.Uri)
			if domain == "" || seen[domain] {
				continue
			}
			seen[domain] = true
			c.add(domain, 1, post.CreatedAt)
		}
	}
	return c.topK(k)
}

// TopLinkCards ranks link cards, links shared with title/description/thumb
// presentation, separately from plain links. Cards sharing a URL merge into
// one entry and keep the first observed presentation.
func TopLinkCards(posts []model.Post, k int) []model.RankedEntry {
	return topCards(posts, k, nil)
}

// TopNewsLinkCards is TopLinkCards restricted to a known set of news
// domains. The domain set is external collaborator data, read-only here.
func TopNewsLinkCards(posts []model.Post, k int, newsDomains map[string]bool) []model.RankedEntry {
	if len(newsDomains) == 0 {
		return []model.RankedEntry{}
	}
	return topCards(posts, k, newsDomains)
}

func topCards(posts []model.Post, k int, domainFilter map[string]bool) []model.RankedEntry {
	c := newCounter("link_card")
	for i := range posts {
		post := &posts[i]
		if !post.HasLink || post.LinkUrl == "" || post.LinkTitle == "" {
			continue
		}
		if domainFilter != nil && !domainFilter[extractor.LinkDomain(post.LinkUrl)] {
			continue
		}
		c.add(post.LinkUrl, 1, post.CreatedAt)
		if _, annotated := c.extras[post.LinkUrl]; !annotated {
			c.annotate(post.LinkUrl, map[string]interface{}{
				"title":       post.LinkTitle,
				"description": post.LinkDescription,
				"image":       post.ThumbnailUrl,
				"uri":         post.Uri,
			})
		}
	}
	return c.topK(k)
}
