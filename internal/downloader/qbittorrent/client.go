// Package qbittorrent implements a qBittorrent Web API client.
package qbittorrent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/ohathar/sportarr/internal/downloader/types"
)

// Client implements the capability set over the qBittorrent Web API v2.
type Client struct {
	config     types.ClientConfig
	httpClient *http.Client
	loggedIn   bool
}

var _ types.Client = (*Client)(nil)

// New creates a new qBittorrent client.
func New(cfg types.ClientConfig) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}
}

// Type returns the client type.
func (c *Client) Type() types.ClientType {
	return types.ClientTypeQBittorrent
}

// Protocol returns the protocol.
func (c *Client) Protocol() types.Protocol {
	return types.ProtocolTorrent
}

func (c *Client) baseURL() string {
	scheme := "http"
	if c.config.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d/api/v2", scheme, c.config.Host, c.config.Port)
}

// login authenticates and stores the SID cookie in the jar.
func (c *Client) login(ctx context.Context) error {
	if c.loggedIn {
		return nil
	}

	form := url.Values{}
	form.Set("username", c.config.Username)
	form.Set("password", c.config.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/auth/login",
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "Ok." {
		return types.ErrAuthFailed
	}

	c.loggedIn = true
	return nil
}

// Test verifies the client connection.
func (c *Client) Test(ctx context.Context) error {
	if err := c.login(ctx); err != nil {
		return err
	}
	_, err := c.get(ctx, "/app/version", nil)
	return err
}

// Add hands a torrent URL or magnet to qBittorrent.
func (c *Client) Add(ctx context.Context, downloadURL, category string) (string, error) {
	if err := c.login(ctx); err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("urls", downloadURL)
	if category != "" {
		form.Set("category", category)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/torrents/add",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("qbittorrent add returned HTTP %d", resp.StatusCode)
	}

	// The add endpoint returns no id. Extract the infohash from a magnet when
	// possible; otherwise the monitor re-resolves through FindByTitle.
	if hash := infoHashFromMagnet(downloadURL); hash != "" {
		return hash, nil
	}
	return "", nil
}

func infoHashFromMagnet(raw string) string {
	if !strings.HasPrefix(strings.ToLower(raw), "magnet:?") {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	xt := parsed.Query().Get("xt")
	const prefix = "urn:btih:"
	if strings.HasPrefix(strings.ToLower(xt), prefix) {
		return strings.ToLower(xt[len(prefix):])
	}
	return ""
}

type torrentInfo struct {
	Hash       string  `json:"hash"`
	Name       string  `json:"name"`
	State      string  `json:"state"`
	Progress   float64 `json:"progress"`
	Size       int64   `json:"size"`
	Downloaded int64   `json:"downloaded"`
	ETA        int64   `json:"eta"`
	SavePath   string  `json:"save_path"`
	Category   string  `json:"category"`
}

// Status fetches one torrent's normalized status.
func (c *Client) Status(ctx context.Context, id string) (*types.DownloadStatus, error) {
	torrents, err := c.listTorrents(ctx, url.Values{"hashes": []string{strings.ToLower(id)}})
	if err != nil {
		return nil, err
	}
	if len(torrents) == 0 {
		return nil, types.ErrNotFound
	}
	status := mapTorrent(torrents[0])
	return &status, nil
}

// FindByTitle scans the category's torrents for a name match.
func (c *Client) FindByTitle(ctx context.Context, title, category string) (*types.DownloadStatus, error) {
	params := url.Values{}
	if category != "" {
		params.Set("category", category)
	}
	torrents, err := c.listTorrents(ctx, params)
	if err != nil {
		return nil, err
	}
	for i := range torrents {
		if strings.EqualFold(torrents[i].Name, title) {
			status := mapTorrent(torrents[i])
			return &status, nil
		}
	}
	return nil, types.ErrNotFound
}

func (c *Client) listTorrents(ctx context.Context, params url.Values) ([]torrentInfo, error) {
	if err := c.login(ctx); err != nil {
		return nil, err
	}

	payload, err := c.get(ctx, "/torrents/info", params)
	if err != nil {
		return nil, err
	}

	var torrents []torrentInfo
	if err := json.Unmarshal(payload, &torrents); err != nil {
		return nil, fmt.Errorf("invalid qbittorrent response: %w", err)
	}
	return torrents, nil
}

func mapTorrent(t torrentInfo) types.DownloadStatus {
	item := types.DownloadStatus{
		ID:            t.Hash,
		Title:         t.Name,
		Progress:      t.Progress * 100,
		Size:          t.Size,
		Downloaded:    t.Downloaded,
		TimeRemaining: t.ETA,
		SavePath:      t.SavePath,
	}
	if item.TimeRemaining >= 8640000 { // qBittorrent's "infinity"
		item.TimeRemaining = -1
	}
	item.Status = normalizeState(t.State, item.Progress)
	return item
}

func normalizeState(state string, progress float64) types.Status {
	switch state {
	case "downloading", "stalledDL", "metaDL", "forcedDL", "checkingDL":
		return types.StatusDownloading
	case "pausedDL", "stoppedDL":
		return types.StatusPaused
	case "uploading", "stalledUP", "pausedUP", "stoppedUP", "queuedUP", "forcedUP", "checkingUP":
		return types.StatusCompleted
	case "queuedDL", "allocating":
		return types.StatusQueued
	case "error", "missingFiles":
		return types.StatusFailed
	default:
		if progress >= 100 {
			return types.StatusCompleted
		}
		return types.StatusWarning
	}
}

// Remove deletes a torrent, optionally with its files.
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) error {
	params := url.Values{
		"hashes":      []string{strings.ToLower(id)},
		"deleteFiles": []string{fmt.Sprintf("%t", deleteFiles)},
	}
	return c.post(ctx, "/torrents/delete", params)
}

// Pause stops a torrent.
func (c *Client) Pause(ctx context.Context, id string) error {
	return c.post(ctx, "/torrents/stop", url.Values{"hashes": []string{strings.ToLower(id)}})
}

// Resume starts a torrent.
func (c *Client) Resume(ctx context.Context, id string) error {
	return c.post(ctx, "/torrents/start", url.Values{"hashes": []string{strings.ToLower(id)}})
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	uri := c.baseURL() + path
	if len(params) > 0 {
		uri += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		c.loggedIn = false
		return nil, types.ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qbittorrent returned HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
}

func (c *Client) post(ctx context.Context, path string, form url.Values) error {
	if err := c.login(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		c.loggedIn = false
		return types.ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("qbittorrent %s returned HTTP %d", path, resp.StatusCode)
	}
	return nil
}
