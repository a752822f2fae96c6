package model

import (
	"math"
	"time"
)

// DataQuality describes how rich an acquired profile is.
type DataQuality string

const (
	DataQualityBasic    DataQuality = "basic"    // profile fields only
	DataQualityStandard DataQuality = "standard" // profile + recent posts
	DataQualityRich     DataQuality = "rich"     // profile + extended post history
)

// Rank orders qualities so richer data compares greater. Unknown values
// rank 0.
func (q DataQuality) Rank() int {
	switch q {
	case DataQualityBasic:
		return 1
	case DataQualityStandard:
		return 2
	case DataQualityRich:
		return 3
	default:
		return 0
	}
}

// Profile is the acquired record for one social-media account.
type Profile struct {
	Username          string           `json:"username"`
	FullName          string           `json:"full_name,omitempty"`
	Bio               string           `json:"bio,omitempty"`
	ExternalURL       string           `json:"external_url,omitempty"`
	FollowersCount    int64            `json:"followers_count"`
	FollowingCount    int64            `json:"following_count"`
	PostsCount        int64            `json:"posts_count"`
	IsVerified        bool             `json:"is_verified"`
	IsPrivate         bool             `json:"is_private"`
	IsBusiness        bool             `json:"is_business"`
	Category          string           `json:"category,omitempty"`
	Posts             []Post           `json:"posts,omitempty"`
	Engagement        *EngagementStats `json:"engagement"`
	HasEngagementData bool             `json:"has_engagement_data"`
	Quality           DataQuality      `json:"data_quality"`
	Fallback          bool             `json:"fallback,omitempty"` // synthesized from a shallow scrape
	Source            string           `json:"source"`             // backend that produced the record
	FetchedAt         time.Time        `json:"fetched_at"`
}

// Post is one recent post on a profile.
type Post struct {
	ID        string    `json:"id,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	Likes     int64     `json:"likes"`
	Comments  int64     `json:"comments"`
	Type      string    `json:"type,omitempty"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// EngagementStats summarizes interactions across sampled posts.
type EngagementStats struct {
	AvgLikes       float64 `json:"avg_likes"`
	AvgComments    float64 `json:"avg_comments"`
	EngagementRate float64 `json:"engagement_rate"` // percent of followers
	SampleSize     int     `json:"sample_size"`
}

// ComputeEngagement derives stats from real posts. It returns nil when there
// are no posts to sample so callers never report invented numbers.
func ComputeEngagement(followers int64, posts []Post) *EngagementStats {
	if len(posts) == 0 {
		return nil
	}

	var likes, comments int64
	for _, p := range posts {
		likes += p.Likes
		comments += p.Comments
	}

	n := float64(len(posts))
	stats := &EngagementStats{
		AvgLikes:    round2(float64(likes) / n),
		AvgComments: round2(float64(comments) / n),
		SampleSize:  len(posts),
	}
	if followers > 0 {
		stats.EngagementRate = round2((float64(likes+comments) / n) / float64(followers) * 100)
	}
	return stats
}

// WithEngagement fills Engagement and HasEngagementData from p.Posts.
func (p *Profile) WithEngagement() *Profile {
	p.Engagement = ComputeEngagement(p.FollowersCount, p.Posts)
	p.HasEngagementData = p.Engagement != nil
	return p
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
