package transmission

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohathar/sportarr/internal/downloader/types"
)

// rpcServer fakes the Transmission RPC, including the 409 session handshake.
func rpcServer(t *testing.T, handler func(method string, args map[string]any) map[string]any) *httptest.Server {
	t.Helper()
	const sessionID = "session-123"

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(sessionIDHeader) != sessionID {
			w.Header().Set(sessionIDHeader, sessionID)
			w.WriteHeader(http.StatusConflict)
			return
		}

		var req struct {
			Method    string         `json:"method"`
			Arguments map[string]any `json:"arguments"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := map[string]any{
			"result":    "success",
			"arguments": handler(req.Method, req.Arguments),
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func clientFor(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	return New(types.ClientConfig{Host: u.Hostname(), Port: port})
}

func TestClient_SessionHandshakeAndTest(t *testing.T) {
	calls := 0
	server := rpcServer(t, func(method string, _ map[string]any) map[string]any {
		calls++
		assert.Equal(t, "session-get", method)
		return map[string]any{}
	})
	defer server.Close()

	client := clientFor(t, server)
	require.NoError(t, client.Test(t.Context()))
	assert.Equal(t, 1, calls, "the 409 retry must not reach the handler twice")
}

func TestClient_AddReturnsHash(t *testing.T) {
	server := rpcServer(t, func(method string, args map[string]any) map[string]any {
		require.Equal(t, "torrent-add", method)
		assert.Equal(t, "magnet:?xt=urn:btih:abc", args["filename"])
		return map[string]any{
			"torrent-added": map[string]any{"id": float64(7), "hashString": "abc"},
		}
	})
	defer server.Close()

	client := clientFor(t, server)
	id, err := client.Add(t.Context(), "magnet:?xt=urn:btih:abc", "sportarr")
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestClient_StatusNormalization(t *testing.T) {
	tests := []struct {
		name       string
		torrent    map[string]any
		wantStatus types.Status
	}{
		{
			name: "downloading",
			torrent: map[string]any{
				"hashString": "h1", "name": "UFC.299", "status": float64(4),
				"percentDone": 0.42, "sizeWhenDone": float64(1000), "downloadedEver": float64(420),
			},
			wantStatus: types.StatusDownloading,
		},
		{
			name: "stopped incomplete is paused",
			torrent: map[string]any{
				"hashString": "h1", "name": "UFC.299", "status": float64(0),
				"percentDone": 0.42, "sizeWhenDone": float64(1000),
			},
			wantStatus: types.StatusPaused,
		},
		{
			name: "stopped finished is completed",
			torrent: map[string]any{
				"hashString": "h1", "name": "UFC.299", "status": float64(0),
				"percentDone": 1.0, "sizeWhenDone": float64(1000), "isFinished": true,
			},
			wantStatus: types.StatusCompleted,
		},
		{
			name: "seeding is completed",
			torrent: map[string]any{
				"hashString": "h1", "name": "UFC.299", "status": float64(6),
				"percentDone": 1.0, "sizeWhenDone": float64(1000),
			},
			wantStatus: types.StatusCompleted,
		},
		{
			name: "tracker error is failed",
			torrent: map[string]any{
				"hashString": "h1", "name": "UFC.299", "status": float64(4),
				"percentDone": 0.1, "sizeWhenDone": float64(1000),
				"error": float64(2), "errorString": "tracker unreachable",
			},
			wantStatus: types.StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := rpcServer(t, func(method string, _ map[string]any) map[string]any {
				require.Equal(t, "torrent-get", method)
				return map[string]any{"torrents": []any{tt.torrent}}
			})
			defer server.Close()

			client := clientFor(t, server)
			status, err := client.Status(t.Context(), "h1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, status.Status)
		})
	}
}

func TestClient_StatusNotFound(t *testing.T) {
	server := rpcServer(t, func(string, map[string]any) map[string]any {
		return map[string]any{"torrents": []any{}}
	})
	defer server.Close()

	client := clientFor(t, server)
	_, err := client.Status(t.Context(), "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
