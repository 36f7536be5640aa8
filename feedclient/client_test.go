package feedclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tavle/models"
)

func TestFeedURL(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
		wantErr  bool
	}{
		{
			name:     "http becomes ws",
			host:     "http://localhost:3000",
			expected: "ws://localhost:3000/feed/ws",
		},
		{
			name:     "https becomes wss",
			host:     "https://board.example.com",
			expected: "wss://board.example.com/feed/ws",
		},
		{
			name:     "ws passes through",
			host:     "ws://localhost:3000",
			expected: "ws://localhost:3000/feed/ws",
		},
		{
			name:     "wss passes through",
			host:     "wss://board.example.com",
			expected: "wss://board.example.com/feed/ws",
		},
		{
			name:     "trailing slash is not doubled",
			host:     "https://board.example.com/",
			expected: "wss://board.example.com/feed/ws",
		},
		{
			name:     "base path is kept",
			host:     "https://example.com/board",
			expected: "wss://example.com/board/feed/ws",
		},
		{
			name:    "unsupported scheme",
			host:    "ftp://example.com",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint, err := feedURL(tt.host)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, endpoint)
		})
	}
}

func TestSubscribeRequiresHosts(t *testing.T) {
	_, err := Subscribe(context.Background(), Config{})
	assert.Error(t, err)
}

// Cancelling the context must release the reader even when the consumer
// has stopped draining the snapshots channel.
func TestSubscribeWithSnapshotsStopsOnCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	payload, err := json.Marshal(models.FeedSnapshot{Posts: []models.Post{{ID: "p1"}}})
	require.NoError(t, err)

	clientGone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// More frames than the consumer will ever drain
		for i := 0; i < 3; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}

		// Blocks until the client connection is torn down
		conn.ReadMessage()
		close(clientGone)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Unbuffered and never read, as when the consumer has already stopped
	snapshots := make(chan models.FeedSnapshot)
	require.NoError(t, SubscribeWithSnapshots(ctx, Config{Hosts: []string{srv.URL}}, snapshots))

	// Let the reader block handing over the first snapshot, then cancel
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-clientGone:
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not shut down after cancel")
	}
}
