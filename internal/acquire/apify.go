package acquire

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/qualify-cli/internal/model"
)

type apifyItem struct {
	Error            string      `json:"error"`
	ErrorDescription string      `json:"errorDescription"`
	Username         string      `json:"username"`
	OwnerUsername    string      `json:"ownerUsername"`
	FullName         string      `json:"fullName"`
	Biography        string      `json:"biography"`
	ExternalURL      string      `json:"externalUrl"`
	FollowersCount   int64       `json:"followersCount"`
	FollowsCount     int64       `json:"followsCount"`
	PostsCount       int64       `json:"postsCount"`
	Verified         bool        `json:"verified"`
	Private          bool        `json:"private"`
	IsBusiness       bool        `json:"isBusinessAccount"`
	Category         string      `json:"businessCategoryName"`
	LatestPosts      []apifyPost `json:"latestPosts"`
}

type apifyPost struct {
	ID            string    `json:"id"`
	Caption       string    `json:"caption"`
	LikesCount    int64     `json:"likesCount"`
	CommentsCount int64     `json:"commentsCount"`
	Type          string    `json:"type"`
	URL           string    `json:"url"`
	Timestamp     time.Time `json:"timestamp"`
}

// parseApifyItems validates an actor's dataset and maps its first profile
// item. A usable dataset is a non-empty array whose first item names the
// subject via username or ownerUsername.
func parseApifyItems(items []json.RawMessage, subject string, postLimit int) (*model.Profile, error) {
	if len(items) == 0 {
		return nil, eris.New("apify: invalid response: empty dataset")
	}

	var it apifyItem
	if err := json.Unmarshal(items[0], &it); err != nil {
		return nil, eris.Wrap(err, "apify: invalid response: decode item")
	}
	if it.Error != "" {
		return nil, eris.Errorf("apify: actor error %s: %s", it.Error, it.ErrorDescription)
	}

	username := it.Username
	if username == "" {
		username = it.OwnerUsername
	}
	if username == "" {
		return nil, eris.New("apify: invalid response: item has no username")
	}
	if it.Private {
		return nil, eris.Errorf("apify: account @%s is private", subject)
	}

	p := &model.Profile{
		Username:       strings.ToLower(username),
		FullName:       it.FullName,
		Bio:            it.Biography,
		ExternalURL:    it.ExternalURL,
		FollowersCount: it.FollowersCount,
		FollowingCount: it.FollowsCount,
		PostsCount:     it.PostsCount,
		IsVerified:     it.Verified,
		IsBusiness:     it.IsBusiness,
		Category:       it.Category,
	}

	posts := it.LatestPosts
	if len(posts) > postLimit {
		posts = posts[:postLimit]
	}
	for _, ap := range posts {
		p.Posts = append(p.Posts, model.Post{
			ID:        ap.ID,
			Caption:   ap.Caption,
			Likes:     ap.LikesCount,
			Comments:  ap.CommentsCount,
			Type:      ap.Type,
			URL:       ap.URL,
			Timestamp: ap.Timestamp,
		})
	}
	return p, nil
}
