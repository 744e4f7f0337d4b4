package aggregator

import (
	"sort"
	"time"

	"github.com/feedmaster/feedmaster/model"
)

// RecomputeUserStats derives every user's counters for one feed from scratch
// out of the feed's full post history. The result fully overwrites the
// incrementally maintained rows, it is the authoritative value.
func RecomputeUserStats(posts []model.Post, weights Weights, now time.Time) []model.UserStat {
	type acc struct {
		stat model.UserStat
	}
	byAuthor := map[string]*acc{}

	for i := range posts {
		post := &posts[i]
		a, ok := byAuthor[post.AuthorDid]
		if !ok {
			a = &acc{stat: model.UserStat{
				UserDid:     post.AuthorDid,
				FirstPostAt: post.CreatedAt,
				LastUpdated: now,
			}}
			byAuthor[post.AuthorDid] = a
		}

		s := &a.stat
		s.PostCount++
		s.TotalLikesReceived += post.LikeCount
		s.TotalRepostsReceived += post.RepostCount
		s.TotalRepliesReceived += post.ReplyCount
		s.TotalQuotesReceived += post.QuoteCount
		if post.HasImage {
			s.ImagePostCount++
		}
		if post.HasVideo {
			s.VideoPostCount++
		}
		if engagement := weights.Score(post); engagement > s.MaxPostEngagement {
			s.MaxPostEngagement = engagement
		}
		if post.CreatedAt.Before(s.FirstPostAt) {
			s.FirstPostAt = post.CreatedAt
		}
		if post.CreatedAt.After(s.LatestPostAt) {
			s.LatestPostAt = post.CreatedAt
		}
	}

	for did, streaks := range authorStreaks(posts) {
		s := &byAuthor[did].stat
		last := streaks[len(streaks)-1]
		s.CurrentStreak = last.length
		s.LastPostDate = last.lastDay
		for _, run := range streaks {
			if run.length > s.LongestStreak {
				s.LongestStreak = run.length
			}
		}
	}

	out := make([]model.UserStat, 0, len(byAuthor))
	for _, a := range byAuthor {
		out = append(out, a.stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserDid < out[j].UserDid })
	return out
}
