package aggregator

import "github.com/feedmaster/feedmaster/model"

// TopPosts ranks posts by weighted engagement, carrying the display card
// payload the dashboard renders from.
func TopPosts(posts []model.Post, weights Weights, k int) []model.RankedEntry {
	return topPostCards(posts, weights, k, func(p *model.Post) bool { return true })
}

// TopImages ranks image posts by weighted engagement.
func TopImages(posts []model.Post, weights Weights, k int) []model.RankedEntry {
	return topPostCards(posts, weights, k, func(p *model.Post) bool { return p.HasImage })
}

// TopVideos ranks video posts by weighted engagement.
func TopVideos(posts []model.Post, weights Weights, k int) []model.RankedEntry {
	return topPostCards(posts, weights, k, func(p *model.Post) bool { return p.HasVideo })
}

func topPostCards(posts []model.Post, weights Weights, k int, keep func(*model.Post) bool) []model.RankedEntry {
	c := newCounter("post_card")
	for i := range posts {
		post := &posts[i]
		if !keep(post) {
			continue
		}
		c.set(post.Uri, float64(weights.Score(post)), post.CreatedAt)
		c.annotate(post.Uri, postCard(post))
	}
	return c.topK(k)
}

func postCard(post *model.Post) map[string]interface{} {
	card := map[string]interface{}{
		"author_did":   post.AuthorDid,
		"text":         post.Text,
		"like_count":   post.LikeCount,
		"repost_count": post.RepostCount,
		"reply_count":  post.ReplyCount,
		"quote_count":  post.QuoteCount,
		"created_at":   post.CreatedAt,
		"has_image":    post.HasImage,
		"has_video":    post.HasVideo,
	}
	if post.ThumbnailUrl != "" {
		card["thumbnail_url"] = post.ThumbnailUrl
	}
	if post.HasImage && len(post.Images) > 0 {
		card["images"] = post.ImageList()
	}
	if post.LinkUrl != "" {
		card["link_url"] = post.LinkUrl
		card["link_title"] = post.LinkTitle
	}
	if post.QuotedPostUri != "" {
		card["quoted_post_uri"] = post.QuotedPostUri
		card["quoted_post_author_handle"] = post.QuotedPostAuthorHandle
	}
	return card
}
