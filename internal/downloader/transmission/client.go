// Package transmission implements a Transmission RPC client.
package transmission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ohathar/sportarr/internal/downloader/types"
)

const sessionIDHeader = "X-Transmission-Session-Id"

// Transmission torrent status codes.
const (
	statusStopped      = 0
	statusCheckWait    = 1
	statusCheck        = 2
	statusDownloadWait = 3
	statusDownload     = 4
	statusSeedWait     = 5
	statusSeed         = 6
)

// Client implements the capability set over the Transmission RPC.
type Client struct {
	config     types.ClientConfig
	sessionID  string
	httpClient *http.Client
}

var _ types.Client = (*Client)(nil)

// New creates a new Transmission client.
func New(cfg types.ClientConfig) *Client {
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Type returns the client type.
func (c *Client) Type() types.ClientType {
	return types.ClientTypeTransmission
}

// Protocol returns the protocol.
func (c *Client) Protocol() types.Protocol {
	return types.ProtocolTorrent
}

// Test verifies the client connection.
func (c *Client) Test(ctx context.Context) error {
	_, err := c.call(ctx, "session-get", nil)
	return err
}

// Add hands a torrent URL or magnet to Transmission.
func (c *Client) Add(ctx context.Context, url, category string) (string, error) {
	args := map[string]any{"filename": url}
	if category != "" {
		args["labels"] = []string{category}
	}

	resp, err := c.call(ctx, "torrent-add", args)
	if err != nil {
		return "", err
	}

	for _, key := range []string{"torrent-added", "torrent-duplicate"} {
		if raw, ok := resp.Arguments[key].(map[string]any); ok {
			if hash, ok := raw["hashString"].(string); ok && hash != "" {
				return hash, nil
			}
			if id, ok := raw["id"].(float64); ok {
				return strconv.Itoa(int(id)), nil
			}
		}
	}
	return "", fmt.Errorf("torrent-add returned no torrent")
}

var torrentFields = []string{
	"id", "name", "status", "percentDone", "totalSize", "sizeWhenDone",
	"downloadedEver", "downloadDir", "hashString", "eta", "error", "errorString",
	"labels", "isFinished",
}

// Status fetches one torrent's normalized status.
func (c *Client) Status(ctx context.Context, id string) (*types.DownloadStatus, error) {
	torrents, err := c.list(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(torrents) == 0 {
		return nil, types.ErrNotFound
	}
	return &torrents[0], nil
}

// FindByTitle scans the whole torrent list for a case-insensitive name match.
// The category is not used to narrow the search.
func (c *Client) FindByTitle(ctx context.Context, title, category string) (*types.DownloadStatus, error) {
	torrents, err := c.list(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i := range torrents {
		if strings.EqualFold(torrents[i].Title, title) {
			return &torrents[i], nil
		}
	}
	return nil, types.ErrNotFound
}

func (c *Client) list(ctx context.Context, ids []string) ([]types.DownloadStatus, error) {
	args := map[string]any{"fields": torrentFields}
	if len(ids) > 0 {
		args["ids"] = ids
	}

	resp, err := c.call(ctx, "torrent-get", args)
	if err != nil {
		return nil, err
	}

	raw, ok := resp.Arguments["torrents"].([]any)
	if !ok {
		return nil, nil
	}

	items := make([]types.DownloadStatus, 0, len(raw))
	for _, t := range raw {
		torrent, ok := t.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, mapTorrent(torrent))
	}
	return items, nil
}

func mapTorrent(t map[string]any) types.DownloadStatus {
	item := types.DownloadStatus{TimeRemaining: -1}

	if hash, ok := t["hashString"].(string); ok {
		item.ID = hash
	}
	if name, ok := t["name"].(string); ok {
		item.Title = name
	}
	if dir, ok := t["downloadDir"].(string); ok {
		item.SavePath = dir
	}
	if size, ok := t["sizeWhenDone"].(float64); ok {
		item.Size = int64(size)
	}
	if done, ok := t["downloadedEver"].(float64); ok {
		item.Downloaded = done2Int64(done, item.Size)
	}
	if pct, ok := t["percentDone"].(float64); ok {
		item.Progress = pct * 100
	}
	if eta, ok := t["eta"].(float64); ok && eta >= 0 {
		item.TimeRemaining = int64(eta)
	}
	if msg, ok := t["errorString"].(string); ok {
		item.ErrorMessage = msg
	}

	status := statusDownload
	if code, ok := t["status"].(float64); ok {
		status = int(code)
	}
	errCode := 0.0
	if code, ok := t["error"].(float64); ok {
		errCode = code
	}
	finished, _ := t["isFinished"].(bool)

	item.Status = normalizeStatus(status, item.Progress, errCode != 0, finished)
	return item
}

func done2Int64(done float64, size int64) int64 {
	v := int64(done)
	if size > 0 && v > size {
		return size
	}
	return v
}

func normalizeStatus(code int, progress float64, hasError, finished bool) types.Status {
	if hasError {
		return types.StatusFailed
	}
	switch code {
	case statusStopped:
		if finished || progress >= 100 {
			return types.StatusCompleted
		}
		return types.StatusPaused
	case statusCheckWait, statusDownloadWait:
		return types.StatusQueued
	case statusCheck, statusDownload:
		return types.StatusDownloading
	case statusSeedWait, statusSeed:
		return types.StatusCompleted
	default:
		return types.StatusWarning
	}
}

// Remove deletes a torrent, optionally with its files.
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) error {
	_, err := c.call(ctx, "torrent-remove", map[string]any{
		"ids":               []string{id},
		"delete-local-data": deleteFiles,
	})
	return err
}

// Pause stops a torrent.
func (c *Client) Pause(ctx context.Context, id string) error {
	_, err := c.call(ctx, "torrent-stop", map[string]any{"ids": []string{id}})
	return err
}

// Resume starts a torrent.
func (c *Client) Resume(ctx context.Context, id string) error {
	_, err := c.call(ctx, "torrent-start", map[string]any{"ids": []string{id}})
	return err
}

type rpcRequest struct {
	Method    string         `json:"method"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type rpcResponse struct {
	Result    string         `json:"result"`
	Arguments map[string]any `json:"arguments"`
}

func (c *Client) rpcURL() string {
	scheme := "http"
	if c.config.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d/transmission/rpc", scheme, c.config.Host, c.config.Port)
}

// call performs one RPC round trip, retrying once on the 409 session-id
// handshake Transmission requires.
func (c *Client) call(ctx context.Context, method string, args map[string]any) (*rpcResponse, error) {
	for attempt := 0; attempt < 2; attempt++ {
		body, err := json.Marshal(rpcRequest{Method: method, Arguments: args})
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL(), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.sessionID != "" {
			req.Header.Set(sessionIDHeader, c.sessionID)
		}
		if c.config.Username != "" {
			req.SetBasicAuth(c.config.Username, c.config.Password)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusConflict:
			c.sessionID = resp.Header.Get(sessionIDHeader)
			resp.Body.Close()
			continue
		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return nil, types.ErrAuthFailed
		}

		payload, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("transmission returned HTTP %d", resp.StatusCode)
		}

		var rpc rpcResponse
		if err := json.Unmarshal(payload, &rpc); err != nil {
			return nil, fmt.Errorf("invalid transmission response: %w", err)
		}
		if rpc.Result != "success" {
			return nil, fmt.Errorf("transmission RPC %s failed: %s", method, rpc.Result)
		}
		return &rpc, nil
	}
	return nil, fmt.Errorf("transmission session handshake failed")
}
