// Package extractor turns raw stream events into structured post deltas. It
// performs no I/O, the same event always extracts to the same delta.
package extractor

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
	"gorm.io/datatypes"

	"github.com/feedmaster/feedmaster/model"
	"github.com/feedmaster/feedmaster/utils"
)

const (
	PostCollection = "app.bsky.feed.post"

	facetLink    = "app.bsky.richtext.facet#link"
	facetMention = "app.bsky.richtext.facet#mention"
	facetTag     = "app.bsky.richtext.facet#tag"

	embedExternal        = "app.bsky.embed.external"
	embedImages          = "app.bsky.embed.images"
	embedVideo           = "app.bsky.embed.video"
	embedRecord          = "app.bsky.embed.record"
	embedRecordWithMedia = "app.bsky.embed.recordWithMedia"

	// Posts stamped further in the future than this are rejected, the
	// protocol does not validate createdAt.
	maxClockSkew = 5 * time.Minute
)

// ErrNotAPost indicates the event does not carry a new post record, which is
// an expected outcome for most stream traffic, not a failure.
var ErrNotAPost = errors.New("event does not contain a post creation")

// ExtractPost parses a commit event into a Post delta ready for upsert. The
// returned Post has no Id, the store assigns one on first insert. Malformed
// sub-structures degrade to empty fields, only a missing identity (uri, cid)
// or an unusable createdAt fails the whole extraction.
func ExtractPost(event *JetstreamEvent, now time.Time) (*model.Post, error) {
	if event == nil || event.Kind != "commit" || event.Commit == nil {
		return nil, ErrNotAPost
	}
	commit := event.Commit
	if commit.Collection != PostCollection || commit.Operation != "create" || commit.Record == nil {
		return nil, ErrNotAPost
	}
	if event.Did == "" || commit.RKey == "" || commit.Cid == "" {
		return nil, errors.New("post event missing identity fields")
	}

	record := commit.Record
	createdAt, err := parseCreatedAt(record.CreatedAt, now)
	if err != nil {
		return nil, err
	}

	post := &model.Post{
		Uri:         fmt.Sprintf("at://%s/%s/%s", event.Did, commit.Collection, commit.RKey),
		Cid:         commit.Cid,
		AuthorDid:   event.Did,
		Text:        record.Text,
		CreatedAt:   createdAt,
		IngestedAt:  now,
		LikeCount:   record.LikeCount,
		RepostCount: record.RepostCount,
		ReplyCount:  record.ReplyCount,
		QuoteCount:  record.QuoteCount,
	}

	post.Langs = mustMarshal(normalizeLangs(record.Langs))

	hashtags, mentions, facetLinks := extractFacets(record.Facets)
	post.HasMention = len(mentions) > 0

	links := facetLinks
	if record.Embed != nil {
		links = applyEmbed(post, record.Embed, event.Did, links)
	}
	post.HasLink = post.HasLink || len(links) > 0

	post.Hashtags = mustMarshal(hashtags)
	post.Mentions = mustMarshal(mentions)
	post.Links = mustMarshal(links)

	return post, nil
}

// parseCreatedAt accepts any reasonable timestamp format and rejects values
// more than maxClockSkew in the future.
func parseCreatedAt(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("post record missing createdAt")
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "unparseable createdAt %q", raw)
	}
	t = t.UTC()
	if t.After(now.Add(maxClockSkew)) {
		return time.Time{}, errors.Errorf("createdAt %s is in the future", t)
	}
	return t, nil
}

func normalizeLangs(langs []string) []string {
	out := []string{}
	for _, l := range langs {
		if l = strings.TrimSpace(l); l != "" && !utils.ContainsString(out, l) {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return []string{"unknown"}
	}
	return out
}

// extractFacets walks the rich-text facets and collects hashtags in order of
// appearance, mentioned DIDs deduplicated, and plain links deduplicated by
// URI. Unknown feature types are skipped.
func extractFacets(facets []Facet) (hashtags []string, mentions []string, links []model.LinkDetail) {
	hashtags = []string{}
	mentions = []string{}
	links = []model.LinkDetail{}
	seenMentions := map[string]bool{}
	seenLinks := map[string]bool{}

	for _, facet := range facets {
		for _, feature := range facet.Features {
			switch feature.Type {
			case facetTag:
				if feature.Tag != "" {
					hashtags = append(hashtags, strings.ToLower(feature.Tag))
				}
			case facetMention:
				if feature.Did != "" && !seenMentions[feature.Did] {
					seenMentions[feature.Did] = true
					mentions = append(mentions, feature.Did)
				}
			case facetLink:
				if feature.Uri != "" && !seenLinks[feature.Uri] {
					seenLinks[feature.Uri] = true
					links = append(links, model.LinkDetail{Uri: feature.Uri})
				}
			}
		}
	}
	return
}

// applyEmbed folds the embed union into the post and returns the merged link
// list. A link card's canonical URL wins over a facet link with the same URI,
// the facet entry is upgraded in place rather than double counted.
func applyEmbed(post *model.Post, embed *Embed, authorDid string, links []model.LinkDetail) []model.LinkDetail {
	switch embed.Type {
	case embedExternal:
		links = applyExternal(post, embed.External, authorDid, links)

	case embedImages:
		applyImages(post, embed.Images, authorDid)

	case embedVideo:
		applyVideo(post, embed, authorDid)

	case embedRecord:
		applyQuote(post, embed.Record)

	case embedRecordWithMedia:
		if inner := decodeInnerRecord(embed.Record); inner != nil {
			applyQuote(post, inner)
		} else {
			post.HasQuote = true
		}
		if embed.Media != nil {
			switch embed.Media.Type {
			case embedExternal:
				links = applyExternal(post, embed.Media.External, authorDid, links)
			case embedImages:
				applyImages(post, embed.Media.Images, authorDid)
			case embedVideo:
				applyVideo(post, embed.Media, authorDid)
			}
		}
	}
	return links
}

func applyExternal(post *model.Post, external *ExternalEmbed, authorDid string, links []model.LinkDetail) []model.LinkDetail {
	if external == nil || external.Uri == "" {
		return links
	}
	post.HasLink = true
	post.LinkUrl = external.Uri
	post.LinkTitle = external.Title
	post.LinkDescription = external.Description

	thumb := resolveThumb(authorDid, external.Thumb)
	if post.ThumbnailUrl == "" {
		post.ThumbnailUrl = thumb
	}

	card := model.LinkDetail{
		Uri:         external.Uri,
		Title:       external.Title,
		Description: external.Description,
		Thumb:       thumb,
	}
	for i := range links {
		if links[i].Uri == external.Uri {
			links[i] = card
			return links
		}
	}
	return append(links, card)
}

func applyImages(post *model.Post, images []ImageEmbed, authorDid string) {
	details := []model.ImageDetail{}
	for _, img := range images {
		url := ""
		if len(img.Image) > 0 {
			url = resolveBlobCdnUrl(authorDid, img.Image)
		}
		if url == "" && img.Fullsize != "" {
			url = img.Fullsize
		}
		if url == "" {
			continue
		}
		details = append(details, model.ImageDetail{Url: url, Alt: strings.TrimSpace(img.Alt)})
	}
	if len(details) == 0 {
		return
	}
	post.HasImage = true
	post.Images = mustMarshal(details)
}

func applyVideo(post *model.Post, embed *Embed, authorDid string) {
	var videoBlob blob
	if len(embed.Video) == 0 || json.Unmarshal(embed.Video, &videoBlob) != nil || videoBlob.Type != "blob" {
		return
	}
	post.HasVideo = true

	if thumb := resolveThumb(authorDid, embed.Thumb); thumb != "" {
		post.ThumbnailUrl = thumb
	} else if videoBlob.Ref.Link != "" {
		post.ThumbnailUrl = fmt.Sprintf("https://video.cdn.bsky.app/hls/%s/%s/thumbnail.jpg", authorDid, videoBlob.Ref.Link)
	}
	if embed.AspectRatio != nil {
		post.AspectRatioWidth = embed.AspectRatio.Width
		post.AspectRatioHeight = embed.AspectRatio.Height
	}
}

func applyQuote(post *model.Post, raw json.RawMessage) {
	post.HasQuote = true
	if len(raw) == 0 {
		return
	}
	var quoted quotedRecord
	if err := json.Unmarshal(raw, &quoted); err != nil {
		return
	}
	post.QuotedPostUri = quoted.Uri
	post.QuotedPostCid = quoted.Cid
	post.QuotedPostAuthorDid = quoted.Value.Author.Did
	post.QuotedPostAuthorHandle = quoted.Value.Author.Handle
	post.QuotedPostText = quoted.Value.Text
}

// decodeInnerRecord unwraps the record field of a recordWithMedia embed,
// which is itself a record embed.
func decodeInnerRecord(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var inner struct {
		Type   string          `json:"$type"`
		Record json.RawMessage `json:"record,omitempty"`
	}
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil
	}
	if inner.Type == embedRecord && len(inner.Record) > 0 {
		return inner.Record
	}
	// Some producers inline the quoted record directly.
	return raw
}

// resolveThumb handles both wire shapes of a thumbnail: a blob reference or a
// pre-resolved URL string.
func resolveThumb(authorDid string, raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	return resolveBlobCdnUrl(authorDid, raw)
}

// resolveBlobCdnUrl constructs a CDN URL for an image blob from its CID and
// mime type. Returns "" when the blob is malformed.
func resolveBlobCdnUrl(authorDid string, raw json.RawMessage) string {
	var b blob
	if err := json.Unmarshal(raw, &b); err != nil || b.Type != "blob" || b.Ref.Link == "" {
		return ""
	}
	ext := "jpeg"
	if idx := strings.LastIndex(b.MimeType, "/"); idx >= 0 {
		ext = b.MimeType[idx+1:]
	}
	if ext == "image" || ext == "svg+xml" || ext == "" {
		ext = "jpeg"
	}
	return fmt.Sprintf("https://cdn.bsky.app/img/feed_thumbnail/plain/%s/%s@%s", authorDid, b.Ref.Link, ext)
}

// LinkDomain extracts the registrable host of a link for domain rollups, with
// a leading "www." stripped. Returns "" for unparseable URLs.
func LinkDomain(rawUrl string) string {
	u, err := url.Parse(rawUrl)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Host)
	return strings.TrimPrefix(host, "www.")
}

func mustMarshal(v interface{}) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil {
		// All inputs are plain slices of strings/structs, marshal cannot fail.
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(data)
}
