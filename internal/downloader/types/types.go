// Package types defines the capability set shared by all download clients.
package types

import (
	"context"
	"errors"
)

// Common errors for download clients.
var (
	ErrNotFound   = errors.New("download not found")
	ErrAuthFailed = errors.New("authentication failed")
)

// Protocol represents the download protocol.
type Protocol string

const (
	ProtocolTorrent Protocol = "torrent"
	ProtocolUsenet  Protocol = "usenet"
)

// ClientType represents the type of download client.
type ClientType string

const (
	ClientTypeTransmission ClientType = "transmission"
	ClientTypeQBittorrent  ClientType = "qbittorrent"
	ClientTypeSABnzbd      ClientType = "sabnzbd"
)

// ProtocolForClient returns the protocol for a given client type.
func ProtocolForClient(clientType ClientType) Protocol {
	if clientType == ClientTypeSABnzbd {
		return ProtocolUsenet
	}
	return ProtocolTorrent
}

// ClientConfig holds common configuration for all download clients.
type ClientConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	APIKey   string // for clients that use API keys (SABnzbd)
	UseSSL   bool
	Category string
}

// Status is the normalized download status shared by every backend.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusWarning     Status = "warning"
)

// DownloadStatus is the normalized status record for one download.
type DownloadStatus struct {
	ID            string
	Title         string
	Status        Status
	Progress      float64 // 0-100
	Downloaded    int64
	Size          int64
	TimeRemaining int64 // seconds, -1 when unknown
	SavePath      string
	ErrorMessage  string
}

// Client is the uniform capability set over heterogeneous backends. Adapters
// translate their protocol dialect to these primitives; no backend-specific
// behavior leaks past this interface.
type Client interface {
	Type() ClientType
	Protocol() Protocol

	Test(ctx context.Context) error
	Add(ctx context.Context, url, category string) (string, error)
	Status(ctx context.Context, id string) (*DownloadStatus, error)
	Remove(ctx context.Context, id string, deleteFiles bool) error
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error

	// FindByTitle follows identifier changes under debrid proxies, which
	// replace the original download with their own id.
	FindByTitle(ctx context.Context, title, category string) (*DownloadStatus, error)
}
