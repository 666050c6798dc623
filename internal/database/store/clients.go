package store

import (
	"context"
	"fmt"
)

// DownloadClient is one configured download backend.
type DownloadClient struct {
	ID       int64
	Name     string
	Type     string
	Host     string
	Port     int
	Username string
	Password string
	APIKey   string
	UseSSL   bool
	Category string
	Enabled  bool
	Priority int
}

// CreateDownloadClient inserts a client row.
func (s *Store) CreateDownloadClient(ctx context.Context, c DownloadClient) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO download_clients (name, type, host, port, username, password, api_key,
			use_ssl, category, enabled, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Type, c.Host, c.Port, c.Username, c.Password, c.APIKey,
		boolToInt(c.UseSSL), c.Category, boolToInt(c.Enabled), c.Priority)
	if err != nil {
		return 0, fmt.Errorf("failed to create download client: %w", err)
	}
	return res.LastInsertId()
}

// ListEnabledDownloadClients returns enabled clients by priority.
func (s *Store) ListEnabledDownloadClients(ctx context.Context) ([]*DownloadClient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, host, port, username, password, api_key, use_ssl, category, enabled, priority
		FROM download_clients WHERE enabled = 1 ORDER BY priority, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []*DownloadClient
	for rows.Next() {
		var c DownloadClient
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.Host, &c.Port, &c.Username,
			&c.Password, &c.APIKey, &c.UseSSL, &c.Category, &c.Enabled, &c.Priority); err != nil {
			return nil, err
		}
		clients = append(clients, &c)
	}
	return clients, rows.Err()
}

// GetDownloadClient fetches one client row.
func (s *Store) GetDownloadClient(ctx context.Context, id int64) (*DownloadClient, error) {
	var c DownloadClient
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, host, port, username, password, api_key, use_ssl, category, enabled, priority
		FROM download_clients WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Type, &c.Host, &c.Port, &c.Username, &c.Password,
			&c.APIKey, &c.UseSSL, &c.Category, &c.Enabled, &c.Priority)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
