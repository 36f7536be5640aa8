package models

import "time"

// Post is the durable record for a published board entry. The id and
// createdAt fields are assigned by the store at creation time and never
// change afterwards; there is no update-in-place.
type Post struct {
	// Seq is the store-assigned ordering key used to break createdAt ties.
	Seq        int64  `json:"-"`
	ID         string `json:"id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	CreatedAt  int64  `json:"createdAt"`
}

// UserProfile is what the identity collaborator hands us. The board never
// initiates sign-in or sign-out itself.
type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// MediaAsset describes a write-once uploaded blob, addressed by its path.
// The serving path never deletes assets; orphans from discarded drafts are
// left for the tidy maintenance command.
type MediaAsset struct {
	OwnerID    string `json:"ownerId"`
	Filename   string `json:"filename"`
	Path       string `json:"path"`
	URL        string `json:"url"`
	UploadedAt int64  `json:"uploadedAt"`
}

// FeedSnapshot is the full ordered view of the board, createdAt descending.
// Unavailable is set when the feed channel could not produce a snapshot, so
// consumers can show an explicit failure state instead of loading forever.
type FeedSnapshot struct {
	Posts       []Post `json:"posts"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// PostsAggregatedByTime is the post count for one time bucket, used by the
// activity stats endpoint.
type PostsAggregatedByTime struct {
	Time  time.Time `json:"time"`
	Count int64     `json:"count"`
}

// PostCreatedEvent fired when a new post is persisted
type PostCreatedEvent struct {
	Post Post
}

// PostDeletedEvent fired when a post is removed by its author
type PostDeletedEvent struct {
	ID string
}
