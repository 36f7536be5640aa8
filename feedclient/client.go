package feedclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"tavle/models"
)

// Add Prometheus metrics
var (
	wsConnectionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tavle_feedclient_connection_attempts_total",
		Help: "The total number of connection attempts to the feed websocket",
	})

	wsConnectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tavle_feedclient_connection_errors_total",
		Help: "The total number of connection errors encountered",
	})

	wsCurrentConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tavle_feedclient_current_connections",
		Help: "The current number of active feed websocket connections",
	})

	wsHostSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tavle_feedclient_host_switches_total",
		Help: "Number of times the connection switched to a different host",
	}, []string{"from_host", "to_host"})
)

const (
	wsReadBufferSize  = 1024 * 1024 // 1MB
	wsWriteBufferSize = 1024        // 1KB
	wsReadTimeout     = 60 * time.Second
	wsWriteTimeout    = 10 * time.Second
	wsPingInterval    = 30 * time.Second
)

// Config holds configuration for the feed channel connection
type Config struct {
	// Hosts is a list of board endpoints to try in order
	// e.g. ["ws://localhost:3000", "wss://board.example.com"]
	Hosts     []string
	UserAgent string
}

// Subscribe establishes and maintains a websocket connection to a board's
// live feed channel, failing over between hosts with exponential backoff.
func Subscribe(ctx context.Context, config Config) (*websocket.Conn, error) {

	log.WithFields(log.Fields{
		"hosts": config.Hosts,
	}).Info("Subscribing to feed channel")

	if len(config.Hosts) == 0 {
		return nil, fmt.Errorf("no hosts provided in config")
	}

	currentHostIdx := 0

	// Configure websocket dialer
	dialer := websocket.Dialer{
		ReadBufferSize:   wsReadBufferSize,
		WriteBufferSize:  wsWriteBufferSize,
		HandshakeTimeout: 45 * time.Second,
		NetDialContext: (&net.Dialer{
			Timeout:   45 * time.Second,
			KeepAlive: 45 * time.Second,
		}).DialContext,
	}

	// Set up exponential backoff for reconnection attempts
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	bo.Multiplier = 1.5
	bo.MaxElapsedTime = 0 // Never stop retrying

	var conn *websocket.Conn

	// Connection loop with retry and failover logic
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			currentHost := config.Hosts[currentHostIdx]

			endpoint, err := feedURL(currentHost)
			if err != nil {
				return nil, err
			}

			// Set up headers
			headers := http.Header{}
			if config.UserAgent != "" {
				headers.Set("User-Agent", config.UserAgent)
			}

			wsConnectionAttempts.Inc()

			var dialErr error
			conn, _, dialErr = dialer.Dial(endpoint, headers)

			if dialErr != nil {
				wsConnectionErrors.Inc()
				log.Errorf("Error connecting to feed host %s: %s", currentHost, dialErr)

				// Try next host
				nextHostIdx := (currentHostIdx + 1) % len(config.Hosts)
				if nextHostIdx != currentHostIdx {
					wsHostSwitches.WithLabelValues(currentHost, config.Hosts[nextHostIdx]).Inc()
					log.Infof("Switching from host %s to %s", currentHost, config.Hosts[nextHostIdx])
					currentHostIdx = nextHostIdx
					// Reset backoff when switching hosts
					bo.Reset()
					continue
				}

				// If we've tried all hosts, wait before retrying
				time.Sleep(bo.NextBackOff())
				continue
			}

			// Reset backoff on successful connection
			bo.Reset()
			wsCurrentConnections.Inc()

			go func() {
				<-ctx.Done()
				wsCurrentConnections.Dec()
			}()

			// Set up connection handlers
			setupConnectionHandlers(conn)

			// Start ping routine
			go managePingPong(ctx, conn)

			return conn, nil
		}
	}
}

// feedURL turns a board host into its feed channel endpoint.
func feedURL(host string) (string, error) {
	u, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("failed to parse host %s: %w", host, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in host %s", u.Scheme, host)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/feed/ws"
	return u.String(), nil
}

// setupConnectionHandlers configures the websocket connection handlers
func setupConnectionHandlers(conn *websocket.Conn) {
	// Set initial deadlines
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))

	// Add connection close handler
	conn.SetCloseHandler(func(code int, text string) error {
		log.Infof("WebSocket connection closed with code %d: %s", code, text)
		return nil
	})

	// Set ping handler
	conn.SetPingHandler(func(appData string) error {
		log.Debug("Received ping from server")
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	// Set pong handler
	conn.SetPongHandler(func(appData string) error {
		log.Debug("Received pong from server")
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
}

// managePingPong handles the ping/pong keepalive for the websocket connection
func managePingPong(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Debug("Sending ping to check connection")

			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteTimeout)); err != nil {
				log.Warn("Ping failed, closing connection for restart: ", err)
				wsConnectionErrors.Inc()
				conn.Close()
				return
			}

			// Reset read deadline after successful ping
			if err := conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
				log.Warn("Failed to set read deadline, closing connection: ", err)
				wsConnectionErrors.Inc()
				conn.Close()
				return
			}
		}
	}
}

// SubscribeWithSnapshots establishes a websocket connection and decodes
// each feed message into the snapshots channel until the context is
// cancelled or the connection drops.
func SubscribeWithSnapshots(ctx context.Context, config Config, snapshots chan<- models.FeedSnapshot) error {
	conn, err := Subscribe(ctx, config)
	if err != nil {
		return err
	}

	// Start message reading goroutine
	go func() {
		defer conn.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
				_, message, err := conn.ReadMessage()
				if err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						log.Errorf("Unexpected websocket close: %v", err)
					}
					wsConnectionErrors.Inc()
					return
				}

				var snapshot models.FeedSnapshot
				if err := json.Unmarshal(message, &snapshot); err != nil {
					log.Errorf("Failed to unmarshal feed snapshot: %v", err)
					continue
				}

				// The consumer may already be gone; never block on a
				// channel nobody reads
				select {
				case snapshots <- snapshot:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return nil
}
