// Package downloader manages download clients and drives the download
// lifecycle state machine.
package downloader

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ohathar/sportarr/internal/database/store"
	"github.com/ohathar/sportarr/internal/downloader/qbittorrent"
	"github.com/ohathar/sportarr/internal/downloader/sabnzbd"
	"github.com/ohathar/sportarr/internal/downloader/transmission"
	"github.com/ohathar/sportarr/internal/downloader/types"
)

// Factory builds a protocol adapter for a configured client row.
type Factory func(*store.DownloadClient) (types.Client, error)

// DefaultFactory maps the configured type to its adapter.
func DefaultFactory(row *store.DownloadClient) (types.Client, error) {
	cfg := types.ClientConfig{
		Host:     row.Host,
		Port:     row.Port,
		Username: row.Username,
		Password: row.Password,
		APIKey:   row.APIKey,
		UseSSL:   row.UseSSL,
		Category: row.Category,
	}

	switch types.ClientType(row.Type) {
	case types.ClientTypeTransmission:
		return transmission.New(cfg), nil
	case types.ClientTypeQBittorrent:
		return qbittorrent.New(cfg), nil
	case types.ClientTypeSABnzbd:
		return sabnzbd.New(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported download client type %q", row.Type)
	}
}

// Service caches adapter instances per configured client.
type Service struct {
	store   *store.Store
	factory Factory
	logger  zerolog.Logger

	mu      sync.Mutex
	clients map[int64]types.Client
}

// NewService creates a download client service.
func NewService(st *store.Store, factory Factory, logger zerolog.Logger) *Service {
	if factory == nil {
		factory = DefaultFactory
	}
	return &Service{
		store:   st,
		factory: factory,
		logger:  logger.With().Str("component", "downloader").Logger(),
		clients: make(map[int64]types.Client),
	}
}

// GetClient returns the adapter for a configured client id.
func (s *Service) GetClient(ctx context.Context, id int64) (types.Client, error) {
	s.mu.Lock()
	if client, ok := s.clients[id]; ok {
		s.mu.Unlock()
		return client, nil
	}
	s.mu.Unlock()

	row, err := s.store.GetDownloadClient(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load download client %d: %w", id, err)
	}

	client, err := s.factory(row)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.clients[id] = client
	s.mu.Unlock()
	return client, nil
}

// PickClient chooses the highest-priority enabled client speaking the
// protocol.
func (s *Service) PickClient(ctx context.Context, protocol types.Protocol) (*store.DownloadClient, types.Client, error) {
	rows, err := s.store.ListEnabledDownloadClients(ctx)
	if err != nil {
		return nil, nil, err
	}

	for _, row := range rows {
		if types.ProtocolForClient(types.ClientType(row.Type)) != protocol {
			continue
		}
		client, err := s.GetClient(ctx, row.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("client", row.Name).Msg("Failed to build download client")
			continue
		}
		return row, client, nil
	}

	return nil, nil, fmt.Errorf("no enabled download client for protocol %s", protocol)
}

// Invalidate drops a cached adapter after a configuration change.
func (s *Service) Invalidate(id int64) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
}
