package achievement

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/feedmaster/feedmaster/model"
)

// tier is one step of a tiered achievement series.
type tier struct {
	keySuffix  string
	nameSuffix string
	value      int64
}

type series struct {
	baseKey     string
	baseName    string
	description string // {value} is replaced with the tier threshold
	stat        string
	scope       model.AchievementScope
	tiers       []tier
	icon        string
	repeatable  bool
	aggMethod   string
	operator    string
}

func (s series) achievements() []model.Achievement {
	operator := s.operator
	if operator == "" {
		operator = ">="
	}

	out := make([]model.Achievement, 0, len(s.tiers))
	for _, t := range s.tiers {
		criteria, _ := json.Marshal(model.AchievementCriteria{
			Stat:      s.stat,
			Operator:  operator,
			Value:     t.value,
			AggMethod: s.aggMethod,
		})
		out = append(out, model.Achievement{
			Key:         fmt.Sprintf("%s_%s", s.baseKey, t.keySuffix),
			Name:        strings.TrimSpace(fmt.Sprintf("%s %s", s.baseName, t.nameSuffix)),
			Description: strings.ReplaceAll(s.description, "{value}", formatThousands(t.value)),
			Icon:        s.icon,
			SeriesKey:   s.baseKey,
			Scope:       s.scope,
			Criteria:    criteria,
			Repeatable:  s.repeatable,
			Active:      true,
		})
	}
	return out
}

func formatThousands(v int64) string {
	raw := fmt.Sprintf("%d", v)
	if len(raw) <= 3 {
		return raw
	}
	var b strings.Builder
	lead := len(raw) % 3
	if lead > 0 {
		b.WriteString(raw[:lead])
	}
	for i := lead; i < len(raw); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(raw[i : i+3])
	}
	return b.String()
}

var (
	powerPosterTiers = []tier{
		{"i", "I", 10},
		{"ii", "II", 50},
		{"iii", "III", 250},
	}
	globalIconTiers = []tier{
		{"i", "I", 1000},
		{"ii", "II", 5000},
		{"iii", "III", 25000},
		{"iv", "IV", 100000},
		{"v", "V", 250000},
		{"vi", "VI", 1000000},
		{"vii", "VII", 5000000},
	}
	imagePosterTiers = []tier{
		{"i", "I", 1},
		{"ii", "II", 5},
		{"iii", "III", 20},
		{"iv", "IV", 100},
		{"v", "V", 500},
		{"vi", "VI", 1000},
		{"vii", "VII", 5000},
	}
	videoPosterTiers = []tier{
		{"i", "I", 1},
		{"ii", "II", 3},
		{"iii", "III", 10},
		{"iv", "IV", 50},
		{"v", "V", 200},
		{"vi", "VI", 500},
		{"vii", "VII", 2000},
	}
	viralSensationTiers = []tier{
		{"i", "I", 25},
		{"ii", "II", 100},
		{"iii", "III", 500},
		{"iv", "IV", 2500},
	}
)

// DefaultDefinitions is the built-in achievement registry, synced into the
// database on worker startup. Tiers of one series share a series key so the
// surface can group them.
func DefaultDefinitions() []model.Achievement {
	all := [][]model.Achievement{
		series{
			baseKey: "icebreaker", baseName: "Icebreaker",
			description: "Made your first post in a feed. Welcome!",
			stat:        "post_count", scope: model.ScopePerFeed,
			tiers: []tier{{"i", "", 1}}, icon: "👋", repeatable: true, operator: "==",
		}.achievements(),
		series{
			baseKey: "community_favorite", baseName: "Community Favorite",
			description: "Received {value}+ likes on posts in a single feed.",
			stat:        "total_likes_received", scope: model.ScopePerFeed,
			tiers: []tier{{"i", "", 100}}, icon: "❤️‍🔥", repeatable: true,
		}.achievements(),
		series{
			baseKey: "feed_explorer", baseName: "Feed Explorer",
			description: "Posted in {value} different feeds.",
			stat:        "feed_count", scope: model.ScopeGlobal,
			tiers: []tier{{"i", "", 3}}, icon: "🌍", aggMethod: "count",
		}.achievements(),
		series{
			baseKey: "power_poster", baseName: "Power Poster",
			description: "Posted {value} times in a single feed.",
			stat:        "post_count", scope: model.ScopePerFeed,
			tiers: powerPosterTiers, repeatable: true,
		}.achievements(),
		series{
			baseKey: "global_likes", baseName: "Global Icon",
			description: "Received {value} likes in total across all feeds.",
			stat:        "total_likes_received", scope: model.ScopeGlobal,
			tiers: globalIconTiers, icon: "🌟", aggMethod: "sum",
		}.achievements(),
		series{
			baseKey: "image_poster", baseName: "Image Poster",
			description: "Include an image in {value} posts in a single feed.",
			stat:        "image_post_count", scope: model.ScopePerFeed,
			tiers: imagePosterTiers, icon: "🖼️", repeatable: true,
		}.achievements(),
		series{
			baseKey: "video_poster", baseName: "Video Poster",
			description: "Share {value} video posts in a single feed.",
			stat:        "video_post_count", scope: model.ScopePerFeed,
			tiers: videoPosterTiers, icon: "🎬", repeatable: true,
		}.achievements(),
		series{
			baseKey: "viral_sensation", baseName: "Viral Sensation",
			description: "A single post received {value}+ engagement in a feed.",
			stat:        "max_post_engagement", scope: model.ScopePerFeed,
			tiers: viralSensationTiers, icon: "🔥", repeatable: true,
		}.achievements(),
		series{
			baseKey: "global_power_poster", baseName: "Power Poster",
			description: "Posted {value} times in total across all feeds.",
			stat:        "post_count", scope: model.ScopeGlobal,
			tiers: powerPosterTiers, icon: "✍️", aggMethod: "sum",
		}.achievements(),
		series{
			baseKey: "global_image_poster", baseName: "Image Poster",
			description: "Include an image in {value} posts in total across all feeds.",
			stat:        "image_post_count", scope: model.ScopeGlobal,
			tiers: imagePosterTiers, icon: "📸", aggMethod: "sum",
		}.achievements(),
		series{
			baseKey: "global_video_poster", baseName: "Video Poster",
			description: "Share {value} video posts in total across all feeds.",
			stat:        "video_post_count", scope: model.ScopeGlobal,
			tiers: videoPosterTiers, icon: "🎥", aggMethod: "sum",
		}.achievements(),
		series{
			baseKey: "global_viral_sensation", baseName: "Viral Sensation",
			description: "A single post received {value}+ engagement anywhere.",
			stat:        "max_post_engagement", scope: model.ScopeGlobal,
			tiers: viralSensationTiers, icon: "💥", aggMethod: "max",
		}.achievements(),
	}

	var out []model.Achievement
	for _, group := range all {
		out = append(out, group...)
	}
	return out
}
