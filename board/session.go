package board

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"tavle/markup"
	"tavle/media"
	"tavle/models"
)

// ErrSessionBusy is returned when an upload or submit is attempted while
// another one is in flight. The attempt is rejected rather than queued.
var ErrSessionBusy = errors.New("board: session busy")

// State is the authoring session lifecycle state. Uploading and Submitting
// are mutually exclusive so a post can never be saved mid-upload with a
// dangling placeholder.
type State int

const (
	StateIdle State = iota
	StateUploading
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateUploading:
		return "uploading"
	case StateSubmitting:
		return "submitting"
	default:
		return "idle"
	}
}

// Store is the write side of the durable post collection as the session
// needs it.
type Store interface {
	CreatePost(ctx context.Context, title string, content string, author models.UserProfile) (models.Post, error)
	DeletePost(ctx context.Context, postID string, requesterID string) error
	CreateMediaAsset(ctx context.Context, asset models.MediaAsset) error
}

// Draft is the observable state of an authoring session.
type Draft struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	State   string `json:"state"`
}

// Session owns one author's in-progress draft: the title, the rich-text
// document and the upload/submit state machine. The draft is ephemeral, it
// is discarded on successful submit or when the session is closed and is
// never partially persisted.
type Session struct {
	ID string

	user     models.UserProfile
	uploader *media.Uploader
	store    Store

	mu    sync.Mutex
	state State
	title string
	doc   *markup.Document
}

func NewSession(user models.UserProfile, uploader *media.Uploader, store Store) *Session {
	return &Session{
		ID:       uuid.NewString(),
		user:     user,
		uploader: uploader,
		store:    store,
		doc:      markup.NewDocument(),
	}
}

// Owner returns the id of the user this session belongs to.
func (s *Session) Owner() string {
	return s.user.ID
}

// SetTitle replaces the draft title. Editing stays available while an
// upload is in flight, only submit and upload exclude each other.
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

// WriteText appends text to the draft document.
func (s *Session) WriteText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.WriteText(text)
}

// Apply dispatches a style command against the draft document.
func (s *Session) Apply(cmd markup.Command, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Apply(cmd, value)
}

// Draft returns the current observable draft state.
func (s *Session) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Draft{
		Title:   s.title,
		Content: s.doc.Snapshot(),
		State:   s.state.String(),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AttachImage uploads an image payload and weaves the resolved URL into the
// draft. Rejected with ErrSessionBusy unless the session is idle. On any
// upload failure the document is left untouched.
func (s *Session) AttachImage(ctx context.Context, filename string, contentType string, r io.Reader) (models.MediaAsset, error) {
	if err := s.transition(StateUploading); err != nil {
		return models.MediaAsset{}, err
	}
	defer s.settle()

	asset, err := s.uploader.Upload(ctx, s.user.ID, filename, contentType, r)
	if err != nil {
		return models.MediaAsset{}, err
	}

	// The blob itself is durable at this point; failing to record the
	// asset row must not lose the upload.
	if err := s.store.CreateMediaAsset(ctx, asset); err != nil {
		log.WithFields(log.Fields{
			"path":  asset.Path,
			"error": err,
		}).Warn("Failed to record media asset")
	}

	s.mu.Lock()
	s.doc.Apply(markup.InsertImage, asset.URL)
	s.mu.Unlock()

	return asset, nil
}

// Submit hands the finished draft to the store. Rejected with
// ErrSessionBusy unless the session is idle. The draft is cleared only
// after the store accepts the record; on validation or persistence failure
// it is preserved so no work is lost.
func (s *Session) Submit(ctx context.Context) (models.Post, error) {
	if err := s.transition(StateSubmitting); err != nil {
		return models.Post{}, err
	}
	defer s.settle()

	s.mu.Lock()
	title := s.title
	content := s.doc.Snapshot()
	s.mu.Unlock()

	post, err := s.store.CreatePost(ctx, title, content, s.user)
	if err != nil {
		return models.Post{}, err
	}

	s.mu.Lock()
	s.title = ""
	s.doc.Clear()
	s.mu.Unlock()

	return post, nil
}

// Delete removes a post with the session owner as the requester. The store
// re-checks ownership itself; a non-owner delete is a silent no-op there.
func (s *Session) Delete(ctx context.Context, postID string) error {
	return s.store.DeletePost(ctx, postID, s.user.ID)
}

// Discard drops the draft, as when the author navigates away.
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = ""
	s.doc.Clear()
}

// transition moves Idle -> next, rejecting the attempt when the session is
// not idle.
func (s *Session) transition(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrSessionBusy
	}
	s.state = next
	return nil
}

func (s *Session) settle() {
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
}
