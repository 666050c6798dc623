// Package sabnzbd implements a SABnzbd API client.
package sabnzbd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ohathar/sportarr/internal/downloader/types"
)

// Client implements the capability set over the SABnzbd JSON API.
type Client struct {
	config     types.ClientConfig
	httpClient *http.Client
}

var _ types.Client = (*Client)(nil)

// New creates a new SABnzbd client.
func New(cfg types.ClientConfig) *Client {
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Type returns the client type.
func (c *Client) Type() types.ClientType {
	return types.ClientTypeSABnzbd
}

// Protocol returns the protocol.
func (c *Client) Protocol() types.Protocol {
	return types.ProtocolUsenet
}

func (c *Client) apiURL(params url.Values) string {
	scheme := "http"
	if c.config.UseSSL {
		scheme = "https"
	}
	params.Set("apikey", c.config.APIKey)
	params.Set("output", "json")
	return fmt.Sprintf("%s://%s:%d/api?%s", scheme, c.config.Host, c.config.Port, params.Encode())
}

// Test verifies the client connection.
func (c *Client) Test(ctx context.Context) error {
	payload, err := c.get(ctx, url.Values{"mode": []string{"version"}})
	if err != nil {
		return err
	}
	var resp struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil || resp.Version == "" {
		return fmt.Errorf("unexpected sabnzbd version response")
	}
	return nil
}

// Add hands an NZB URL to SABnzbd.
func (c *Client) Add(ctx context.Context, nzbURL, category string) (string, error) {
	params := url.Values{
		"mode": []string{"addurl"},
		"name": []string{nzbURL},
	}
	if category != "" {
		params.Set("cat", category)
	}

	payload, err := c.get(ctx, params)
	if err != nil {
		return "", err
	}

	var resp struct {
		Status bool     `json:"status"`
		NzoIDs []string `json:"nzo_ids"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", fmt.Errorf("invalid sabnzbd response: %w", err)
	}
	if !resp.Status || len(resp.NzoIDs) == 0 {
		return "", fmt.Errorf("sabnzbd rejected the NZB")
	}
	return resp.NzoIDs[0], nil
}

type queueSlot struct {
	NzoID      string `json:"nzo_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Percentage string `json:"percentage"`
	MB         string `json:"mb"`
	MBLeft     string `json:"mbleft"`
	TimeLeft   string `json:"timeleft"`
}

type historySlot struct {
	NzoID   string `json:"nzo_id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Bytes   int64  `json:"bytes"`
	Storage string `json:"storage"`
	FailMsg string `json:"fail_message"`
}

// Status resolves a download from the queue first, then from history.
func (c *Client) Status(ctx context.Context, id string) (*types.DownloadStatus, error) {
	if slot, err := c.queueSlot(ctx, id); err != nil {
		return nil, err
	} else if slot != nil {
		status := mapQueueSlot(*slot)
		return &status, nil
	}

	if slot, err := c.historySlot(ctx, id); err != nil {
		return nil, err
	} else if slot != nil {
		status := mapHistorySlot(*slot)
		return &status, nil
	}

	return nil, types.ErrNotFound
}

// FindByTitle scans the queue and history for a name match.
func (c *Client) FindByTitle(ctx context.Context, title, category string) (*types.DownloadStatus, error) {
	slots, err := c.queueSlots(ctx)
	if err != nil {
		return nil, err
	}
	for _, slot := range slots {
		if strings.EqualFold(slot.Filename, title) {
			status := mapQueueSlot(slot)
			return &status, nil
		}
	}

	history, err := c.historySlots(ctx)
	if err != nil {
		return nil, err
	}
	for _, slot := range history {
		if strings.EqualFold(slot.Name, title) {
			status := mapHistorySlot(slot)
			return &status, nil
		}
	}

	return nil, types.ErrNotFound
}

func (c *Client) queueSlot(ctx context.Context, id string) (*queueSlot, error) {
	slots, err := c.queueSlots(ctx)
	if err != nil {
		return nil, err
	}
	for i := range slots {
		if slots[i].NzoID == id {
			return &slots[i], nil
		}
	}
	return nil, nil
}

func (c *Client) queueSlots(ctx context.Context) ([]queueSlot, error) {
	payload, err := c.get(ctx, url.Values{"mode": []string{"queue"}})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Queue struct {
			Slots []queueSlot `json:"slots"`
		} `json:"queue"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("invalid sabnzbd queue response: %w", err)
	}
	return resp.Queue.Slots, nil
}

func (c *Client) historySlot(ctx context.Context, id string) (*historySlot, error) {
	slots, err := c.historySlots(ctx)
	if err != nil {
		return nil, err
	}
	for i := range slots {
		if slots[i].NzoID == id {
			return &slots[i], nil
		}
	}
	return nil, nil
}

func (c *Client) historySlots(ctx context.Context) ([]historySlot, error) {
	payload, err := c.get(ctx, url.Values{"mode": []string{"history"}})
	if err != nil {
		return nil, err
	}
	var resp struct {
		History struct {
			Slots []historySlot `json:"slots"`
		} `json:"history"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("invalid sabnzbd history response: %w", err)
	}
	return resp.History.Slots, nil
}

func mapQueueSlot(slot queueSlot) types.DownloadStatus {
	progress, _ := strconv.ParseFloat(slot.Percentage, 64)
	totalMB, _ := strconv.ParseFloat(slot.MB, 64)
	leftMB, _ := strconv.ParseFloat(slot.MBLeft, 64)

	size := int64(totalMB * 1024 * 1024)
	downloaded := int64((totalMB - leftMB) * 1024 * 1024)
	if downloaded < 0 {
		downloaded = 0
	}

	item := types.DownloadStatus{
		ID:            slot.NzoID,
		Title:         slot.Filename,
		Progress:      progress,
		Size:          size,
		Downloaded:    downloaded,
		TimeRemaining: parseTimeLeft(slot.TimeLeft),
	}

	switch strings.ToLower(slot.Status) {
	case "downloading", "fetching", "verifying", "repairing", "extracting":
		item.Status = types.StatusDownloading
	case "paused":
		item.Status = types.StatusPaused
	case "queued", "grabbing":
		item.Status = types.StatusQueued
	case "failed":
		item.Status = types.StatusFailed
	default:
		item.Status = types.StatusDownloading
	}
	return item
}

func mapHistorySlot(slot historySlot) types.DownloadStatus {
	item := types.DownloadStatus{
		ID:            slot.NzoID,
		Title:         slot.Name,
		Size:          slot.Bytes,
		Downloaded:    slot.Bytes,
		Progress:      100,
		TimeRemaining: 0,
		SavePath:      slot.Storage,
		ErrorMessage:  slot.FailMsg,
	}
	if strings.EqualFold(slot.Status, "failed") {
		item.Status = types.StatusFailed
	} else {
		item.Status = types.StatusCompleted
	}
	return item
}

func parseTimeLeft(v string) int64 {
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return -1
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	s, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return -1
	}
	return int64(h*3600 + m*60 + s)
}

// Remove deletes a download from the queue (and history), optionally with
// its files.
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) error {
	params := url.Values{
		"mode":  []string{"queue"},
		"name":  []string{"delete"},
		"value": []string{id},
	}
	if deleteFiles {
		params.Set("del_files", "1")
	}
	if _, err := c.get(ctx, params); err != nil {
		return err
	}

	histParams := url.Values{
		"mode":  []string{"history"},
		"name":  []string{"delete"},
		"value": []string{id},
	}
	if deleteFiles {
		histParams.Set("del_files", "1")
	}
	_, err := c.get(ctx, histParams)
	return err
}

// Pause pauses one download.
func (c *Client) Pause(ctx context.Context, id string) error {
	_, err := c.get(ctx, url.Values{
		"mode":  []string{"queue"},
		"name":  []string{"pause"},
		"value": []string{id},
	})
	return err
}

// Resume resumes one download.
func (c *Client) Resume(ctx context.Context, id string) error {
	_, err := c.get(ctx, url.Values{
		"mode":  []string{"queue"},
		"name":  []string{"resume"},
		"value": []string{id},
	})
	return err
}

func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL(params), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, types.ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sabnzbd returned HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
}
