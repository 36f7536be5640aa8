package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"

	"tavle/markup"
	"tavle/models"
)

var (
	// ErrValidationFailed is returned before any durable write when a draft
	// has an empty title or visually empty content.
	ErrValidationFailed = errors.New("db: validation failed")

	// ErrPersistenceFailed wraps durable-write failures. Callers keep the
	// draft so no work is lost.
	ErrPersistenceFailed = errors.New("db: persistence failed")
)

// Store handles all post and media-asset persistence with a shared
// connection. Every successful create or delete pushes a typed event on the
// store's event channel, which is what the feed hub subscribes to.
type Store struct {
	db     *sql.DB
	events chan interface{}

	// serializes createdAt assignment so timestamps never move backwards
	mu             sync.Mutex
	lastAssignedAt int64
}

func NewStore(database string) (*Store, error) {
	conn, err := connection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	return &Store{
		db:     conn,
		events: make(chan interface{}, 64),
	}, nil
}

// Events returns the change event channel consumed by the feed hub.
func (store *Store) Events() <-chan interface{} {
	return store.events
}

func (store *Store) Close() error {
	return store.db.Close()
}

// CreatePost validates the draft, assigns id and createdAt, persists the
// record atomically and returns it. Content is reduced to the markup
// allow-list before it is written.
func (store *Store) CreatePost(ctx context.Context, title string, content string, author models.UserProfile) (models.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	title = strings.TrimSpace(title)
	content = markup.Sanitize(content)
	if title == "" || markup.IsEffectivelyEmpty(content) {
		return models.Post{}, ErrValidationFailed
	}

	post := models.Post{
		ID:         uuid.NewString(),
		Title:      title,
		Content:    content,
		AuthorID:   author.ID,
		AuthorName: authorName(author),
		CreatedAt:  store.assignCreatedAt(),
	}

	insert := sqlbuilder.NewInsertBuilder()
	query, args := insert.InsertInto("posts").
		Cols("id", "title", "content", "author_id", "author_name", "created_at").
		Values(post.ID, post.Title, post.Content, post.AuthorID, post.AuthorName, post.CreatedAt).
		BuildWithFlavor(sqlbuilder.SQLite)

	res, err := store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return models.Post{}, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return models.Post{}, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	post.Seq = seq

	log.WithFields(log.Fields{
		"id":     post.ID,
		"author": post.AuthorID,
	}).Info("Created post")

	store.notify(models.PostCreatedEvent{Post: post})
	return post, nil
}

// DeletePost removes a post if and only if the requester is its author. A
// missing post or an ownership mismatch is a silent no-op: the delete
// affordance should never have been visible, and the store is the authority
// rather than the UI.
func (store *Store) DeletePost(ctx context.Context, postID string, requesterID string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	sb := sqlbuilder.NewSelectBuilder()
	query, args := sb.Select("author_id").From("posts").Where(sb.Equal("id", postID)).
		BuildWithFlavor(sqlbuilder.SQLite)

	var authorID string
	err := store.db.QueryRowContext(ctx, query, args...).Scan(&authorID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	if authorID != requesterID {
		log.WithFields(log.Fields{
			"id":        postID,
			"requester": requesterID,
		}).Warn("Ignoring delete by non-author")
		return nil
	}

	del := sqlbuilder.NewDeleteBuilder()
	query, args = del.DeleteFrom("posts").Where(del.Equal("id", postID)).
		BuildWithFlavor(sqlbuilder.SQLite)

	if _, err := store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	log.WithFields(log.Fields{"id": postID}).Info("Deleted post")
	store.notify(models.PostDeletedEvent{ID: postID})
	return nil
}

// Snapshot returns the full current feed, createdAt descending with the
// store-assigned seq as tie-break. The feed hub replaces its view wholesale
// with each snapshot, so no incremental diffing happens anywhere.
func (store *Store) Snapshot(ctx context.Context) ([]models.Post, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("seq", "id", "title", "content", "author_id", "author_name", "created_at").From("posts")
	sb.OrderBy("created_at DESC", "seq DESC")
	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	rows, err := store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		var post models.Post
		if err := rows.Scan(&post.Seq, &post.ID, &post.Title, &post.Content, &post.AuthorID, &post.AuthorName, &post.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		posts = append(posts, post)
	}

	return posts, rows.Err()
}

// CreateMediaAsset records an uploaded blob. Assets are write-once and
// never deleted here.
func (store *Store) CreateMediaAsset(ctx context.Context, asset models.MediaAsset) error {
	insert := sqlbuilder.NewInsertBuilder()
	query, args := insert.InsertInto("media_assets").
		Cols("path", "owner_id", "filename", "url", "uploaded_at").
		Values(asset.Path, asset.OwnerID, asset.Filename, asset.URL, asset.UploadedAt).
		BuildWithFlavor(sqlbuilder.SQLite)

	if _, err := store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	return nil
}

// MediaAssetsByOwner returns all assets uploaded by one user, newest
// first. Paths are namespaced by owner id, which is what makes this
// auditable.
func (store *Store) MediaAssetsByOwner(ctx context.Context, ownerID string) ([]models.MediaAsset, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("path", "owner_id", "filename", "url", "uploaded_at").From("media_assets")
	sb.Where(sb.Equal("owner_id", ownerID))
	sb.OrderBy("uploaded_at DESC")
	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	rows, err := store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var assets []models.MediaAsset
	for rows.Next() {
		var asset models.MediaAsset
		if err := rows.Scan(&asset.Path, &asset.OwnerID, &asset.Filename, &asset.URL, &asset.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		assets = append(assets, asset)
	}

	return assets, rows.Err()
}

// assignCreatedAt hands out wall-clock millisecond timestamps that never
// move backwards, so createdAt stays monotonic with insertion order even if
// the clock steps.
func (store *Store) assignCreatedAt() int64 {
	store.mu.Lock()
	defer store.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < store.lastAssignedAt {
		now = store.lastAssignedAt
	}
	store.lastAssignedAt = now
	return now
}

// notify never blocks a write on a slow event consumer. When the channel is
// full the oldest entry is discarded to make room: the hub rebuilds a full
// snapshot per event regardless of its payload, so only the newest event
// must survive for the feed to converge.
func (store *Store) notify(event interface{}) {
	for {
		select {
		case store.events <- event:
			return
		default:
		}

		select {
		case <-store.events:
			log.Warn("Store event channel full, discarding oldest event")
		default:
		}
	}
}

// authorName mirrors the display rules the board uses everywhere: display
// name, then the local part of the email, then anonymous.
func authorName(author models.UserProfile) string {
	if author.DisplayName != "" {
		return author.DisplayName
	}
	if author.Email != "" {
		if at := strings.Index(author.Email, "@"); at > 0 {
			return author.Email[:at]
		}
		return author.Email
	}
	return "anonymous"
}
