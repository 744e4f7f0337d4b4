package extractor

import "encoding/json"

// JetstreamEvent is the raw JSON structure from a Jetstream style stream.
type JetstreamEvent struct {
	Did    string           `json:"did"`
	TimeUS int64            `json:"time_us"`
	Kind   string           `json:"kind"`
	Commit *JetstreamCommit `json:"commit,omitempty"`
}

// JetstreamCommit is the raw commit data carried by a commit event.
type JetstreamCommit struct {
	Rev        string      `json:"rev"`
	Operation  string      `json:"operation"`
	Collection string      `json:"collection"`
	RKey       string      `json:"rkey"`
	Record     *PostRecord `json:"record,omitempty"`
	Cid        string      `json:"cid"`
}

// PostRecord is the content of an app.bsky.feed.post record. Facets and the
// embed are kept loosely typed, malformed sub-structures must degrade to "no
// data for that field" instead of failing the whole record.
type PostRecord struct {
	Type      string   `json:"$type"`
	Text      string   `json:"text"`
	CreatedAt string   `json:"createdAt"`
	Langs     []string `json:"langs"`
	Facets    []Facet  `json:"facets,omitempty"`
	Embed     *Embed   `json:"embed,omitempty"`

	LikeCount   int64 `json:"likeCount,omitempty"`
	RepostCount int64 `json:"repostCount,omitempty"`
	ReplyCount  int64 `json:"replyCount,omitempty"`
	QuoteCount  int64 `json:"quoteCount,omitempty"`
}

// Facet is one rich-text annotation over a byte range of the post text.
type Facet struct {
	Features []FacetFeature `json:"features"`
}

// FacetFeature is a single feature of a facet. Exactly one of Uri, Did or Tag
// is populated depending on Type.
type FacetFeature struct {
	Type string `json:"$type"`
	Uri  string `json:"uri,omitempty"`
	Did  string `json:"did,omitempty"`
	Tag  string `json:"tag,omitempty"`
}

// Embed covers every embed union variant we care about. Unknown variants
// simply leave every field nil.
type Embed struct {
	Type     string          `json:"$type"`
	External *ExternalEmbed  `json:"external,omitempty"`
	Images   []ImageEmbed    `json:"images,omitempty"`
	Video    json.RawMessage `json:"video,omitempty"`
	Thumb    json.RawMessage `json:"thumb,omitempty"`
	Record   json.RawMessage `json:"record,omitempty"`
	Media    *Embed          `json:"media,omitempty"`

	AspectRatio *AspectRatio `json:"aspectRatio,omitempty"`
}

// ExternalEmbed is a link "card": a URL plus presentation metadata.
type ExternalEmbed struct {
	Uri         string          `json:"uri"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Thumb       json.RawMessage `json:"thumb,omitempty"`
}

// ImageEmbed is one image in an app.bsky.embed.images embed.
type ImageEmbed struct {
	Image    json.RawMessage `json:"image,omitempty"`
	Fullsize string          `json:"fullsize,omitempty"`
	Alt      string          `json:"alt,omitempty"`
}

// AspectRatio is the declared width/height of a video embed.
type AspectRatio struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// blob is the wire shape of an AT Proto blob reference.
type blob struct {
	Type     string `json:"$type"`
	MimeType string `json:"mimeType"`
	Ref      struct {
		Link string `json:"$link"`
	} `json:"ref"`
}

// quotedRecord is the embedded view of a quoted post inside an
// app.bsky.embed.record embed.
type quotedRecord struct {
	Uri   string `json:"uri"`
	Cid   string `json:"cid"`
	Value struct {
		Text      string `json:"text"`
		CreatedAt string `json:"createdAt"`
		Author    struct {
			Did         string `json:"did"`
			Handle      string `json:"handle"`
			DisplayName string `json:"displayName"`
		} `json:"author"`
	} `json:"value"`
}

// ParseEvent decodes a raw stream message into a JetstreamEvent.
func ParseEvent(data []byte) (*JetstreamEvent, error) {
	var event JetstreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
