package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"tavle/board"
	"tavle/db"
	"tavle/feed"
	"tavle/identity"
	"tavle/markup"
	"tavle/media"
	"tavle/models"
)

type ServerConfig struct {

	// The hostname to use for the server
	Hostname string

	// Origins allowed to call the API from a browser
	AllowOrigins string

	// The live feed hub
	Hub *feed.Hub

	// Authoring session registry
	Registry *board.Registry

	// Identity collaborator resolving bearer tokens
	Identity identity.Provider

	// Stats source backing the activity endpoint
	Stats StatsSource

	// Root directory of the filesystem blob store, served under /media.
	// Empty when another backend is configured.
	MediaRoot string
}

// StatsSource serves the aggregated posting activity.
type StatsSource interface {
	PostCountsPerTime(ctx context.Context, resolution string) ([]models.PostsAggregatedByTime, error)
}

// sseClients tracks detachable SSE subscriptions by client key, so a
// client can end its stream with an explicit DELETE as well as by closing
// the connection.
type sseClients struct {
	sync.Mutex
	unsubs map[string]feed.Unsubscribe
}

func (s *sseClients) add(key string, unsub feed.Unsubscribe) {
	s.Lock()
	defer s.Unlock()
	s.unsubs[key] = unsub
}

func (s *sseClients) remove(key string) {
	s.Lock()
	unsub, ok := s.unsubs[key]
	delete(s.unsubs, key)
	s.Unlock()

	if ok {
		unsub()
	}
}

// Returns a fiber.App instance to be used as the HTTP server for the board
func Server(config *ServerConfig) *fiber.App {

	hub := config.Hub
	sse := &sseClients{unsubs: make(map[string]feed.Unsubscribe)}

	app := fiber.New()

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		// start timer
		start := time.Now()

		// next routes
		err := c.Next()

		// stop timer
		stop := time.Now()

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": stop.Sub(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	if config.AllowOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     config.AllowOrigins,
			AllowHeaders:     "Authorization, Content-Type, Cache-Control",
			AllowCredentials: true,
		}))
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	if config.MediaRoot != "" {
		app.Static("/media", config.MediaRoot)
	}

	// Posting activity per time bucket, for the dashboard
	app.Get("/stats/posts-per-time", func(c *fiber.Ctx) error {
		resolution := c.Query("resolution", "hour")
		counts, err := config.Stats.PostCountsPerTime(c.Context(), resolution)
		if err != nil {
			log.WithFields(log.Fields{"error": err}).Error("Failed to aggregate post counts")
			return fiber.NewError(fiber.StatusInternalServerError, "stats unavailable")
		}
		return c.JSON(counts)
	})

	// One-shot snapshot of the feed
	app.Get("/feed", func(c *fiber.Ctx) error {
		snapshot := hub.Current(c.Context())
		if snapshot.Unavailable {
			return c.Status(fiber.StatusServiceUnavailable).JSON(snapshot)
		}
		return c.JSON(snapshot)
	})

	app.Delete("/feed/sse", func(c *fiber.Ctx) error {
		key := c.Query("key", "")
		sse.remove(key)
		return c.SendStatus(fiber.StatusOK)
	})

	app.Get("/feed/sse", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		// Unique client key
		key := uuid.New().String()
		snapshots := make(chan models.FeedSnapshot, 10) // Buffered channel

		unsub := hub.Subscribe(context.Background(), func(snapshot models.FeedSnapshot) {
			select {
			case snapshots <- snapshot: // Non-blocking send
			default:
				log.Warnf("SSE channel full, skipping snapshot for client: %s", key)
			}
		})
		sse.add(key, unsub)

		// Cleanup function
		cleanup := func() {
			log.Infof("Cleaning up SSE stream for client: %s", key)
			sse.remove(key)
		}

		// Use StreamWriter to manage SSE streaming
		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer cleanup()

			alive := time.NewTicker(5 * time.Second)
			defer alive.Stop()

			// Send initial event with client key
			fmt.Fprintf(w, "event: init\ndata: %s\n\n", key)
			if err := w.Flush(); err != nil {
				log.Errorf("Failed to send init event: %v", err)
				return
			}

			// Start streaming loop
			for {
				select {
				case <-alive.C:
					// Send keep-alive pings
					if _, err := fmt.Fprintf(w, "event: ping\ndata: \n\n"); err != nil {
						log.Warnf("Failed to send ping to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush ping for client %s: %v", key, err)
						return
					}

				case snapshot := <-snapshots:
					payload, err := json.Marshal(snapshot)
					if err != nil {
						log.Errorf("Error marshalling snapshot for client %s: %v", key, err)
						continue
					}
					if _, err := fmt.Fprintf(w, "event: feed\ndata: %s\n\n", payload); err != nil {
						log.Warnf("Failed to send feed event to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush feed event for client %s: %v", key, err)
						return
					}
				}
			}
		}))

		return nil
	})

	// Websocket variant of the live feed channel
	app.Use("/feed/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/feed/ws", websocket.New(func(conn *websocket.Conn) {
		serveFeedSocket(hub, conn)
	}))

	// Write surface: everything below requires an identity
	authed := app.Group("/", authMiddleware(config.Identity))

	authed.Post("/session", func(c *fiber.Ctx) error {
		session := config.Registry.Open(currentUser(c))
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":    session.ID,
			"draft": session.Draft(),
		})
	})

	authed.Get("/session/:id", func(c *fiber.Ctx) error {
		session, err := ownedSession(c, config.Registry)
		if err != nil {
			return err
		}
		return c.JSON(session.Draft())
	})

	authed.Put("/session/:id/title", func(c *fiber.Ctx) error {
		session, err := ownedSession(c, config.Registry)
		if err != nil {
			return err
		}
		var body struct {
			Title string `json:"title"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		session.SetTitle(body.Title)
		return c.JSON(session.Draft())
	})

	authed.Post("/session/:id/text", func(c *fiber.Ctx) error {
		session, err := ownedSession(c, config.Registry)
		if err != nil {
			return err
		}
		var body struct {
			Text string `json:"text"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		session.WriteText(body.Text)
		return c.JSON(session.Draft())
	})

	authed.Post("/session/:id/command", func(c *fiber.Ctx) error {
		session, err := ownedSession(c, config.Registry)
		if err != nil {
			return err
		}
		var body struct {
			Command string `json:"command"`
			Value   string `json:"value"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		// Unknown commands are deliberately a no-op, they can only come
		// from broken client wiring.
		session.Apply(markup.Command(body.Command), body.Value)
		return c.JSON(session.Draft())
	})

	authed.Post("/session/:id/image", func(c *fiber.Ctx) error {
		session, err := ownedSession(c, config.Registry)
		if err != nil {
			return err
		}

		header, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "missing file")
		}

		file, err := header.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "unreadable file")
		}
		defer file.Close()

		asset, err := session.AttachImage(c.Context(), header.Filename, header.Header.Get("Content-Type"), file)
		if err != nil {
			return boardError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"asset": asset,
			"draft": session.Draft(),
		})
	})

	authed.Post("/session/:id/submit", func(c *fiber.Ctx) error {
		session, err := ownedSession(c, config.Registry)
		if err != nil {
			return err
		}
		post, err := session.Submit(c.Context())
		if err != nil {
			return boardError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(post)
	})

	authed.Delete("/session/:id", func(c *fiber.Ctx) error {
		session, err := ownedSession(c, config.Registry)
		if err != nil {
			return err
		}
		config.Registry.Close(session.ID)
		return c.SendStatus(fiber.StatusNoContent)
	})

	authed.Delete("/posts/:id", func(c *fiber.Ctx) error {
		session := config.Registry.Open(currentUser(c))
		if err := session.Delete(c.Context(), c.Params("id")); err != nil {
			return boardError(err)
		}
		// A non-owner delete is a silent no-op in the store, so this
		// status only means the request was handled.
		return c.SendStatus(fiber.StatusNoContent)
	})

	return app
}

// serveFeedSocket streams feed snapshots over a websocket until the client
// goes away.
func serveFeedSocket(hub *feed.Hub, conn *websocket.Conn) {
	snapshots := make(chan models.FeedSnapshot, 10)
	done := make(chan struct{})

	unsub := hub.Subscribe(context.Background(), func(snapshot models.FeedSnapshot) {
		select {
		case snapshots <- snapshot:
		default:
			log.Warn("Websocket channel full, skipping snapshot")
		}
	})
	defer unsub()

	// Read loop exists only to notice the peer closing
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				log.Warnf("Websocket ping failed: %v", err)
				return
			}
		case snapshot := <-snapshots:
			if err := conn.WriteJSON(snapshot); err != nil {
				log.Warnf("Failed to write snapshot to websocket: %v", err)
				return
			}
		}
	}
}

// authMiddleware resolves the bearer token to a user profile. The board
// must refuse unauthenticated writes even though the presentation layer
// should have gated them already.
func authMiddleware(provider identity.Provider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		user, ok := provider.UserForToken(token)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}
		c.Locals("user", user)
		return c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func currentUser(c *fiber.Ctx) models.UserProfile {
	user, _ := c.Locals("user").(models.UserProfile)
	return user
}

// ownedSession resolves the :id param to a session owned by the caller.
func ownedSession(c *fiber.Ctx, registry *board.Registry) (*board.Session, error) {
	session, ok := registry.Get(c.Params("id"))
	if !ok || session.Owner() != currentUser(c).ID {
		return nil, fiber.NewError(fiber.StatusNotFound, "no such session")
	}
	return session, nil
}

// boardError maps domain failures onto HTTP statuses. Drafts are retained
// server-side on every failure path, so the author never loses content.
func boardError(err error) error {
	switch {
	case errors.Is(err, db.ErrValidationFailed):
		return fiber.NewError(fiber.StatusUnprocessableEntity, "title and content are required")
	case errors.Is(err, media.ErrInvalidMediaType):
		return fiber.NewError(fiber.StatusUnsupportedMediaType, "only image uploads are allowed")
	case errors.Is(err, media.ErrUnauthenticated):
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	case errors.Is(err, board.ErrSessionBusy):
		return fiber.NewError(fiber.StatusConflict, "another operation is in flight")
	case errors.Is(err, media.ErrUploadFailed):
		return fiber.NewError(fiber.StatusBadGateway, "upload failed")
	case errors.Is(err, db.ErrPersistenceFailed):
		return fiber.NewError(fiber.StatusInternalServerError, "could not save the post")
	default:
		return err
	}
}
