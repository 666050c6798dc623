package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// QualityProfileRow is the raw quality_profiles row; the quality package
// decodes the JSON columns lazily.
type QualityProfileRow struct {
	ID             int64
	Name           string
	Cutoff         string
	ItemsJSON      string
	FormatItems    string
	MinFormatScore int
	UpgradeAllowed bool
}

// CustomFormatRow is the raw custom_formats row.
type CustomFormatRow struct {
	ID             int64
	Name           string
	Specifications string
}

// CreateQualityProfile inserts a profile with pre-encoded JSON columns.
func (s *Store) CreateQualityProfile(ctx context.Context, name, cutoff, itemsJSON, formatItemsJSON string, minFormatScore int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO quality_profiles (name, cutoff, items, format_items, min_format_score)
		VALUES (?, ?, ?, ?, ?)`,
		name, cutoff, itemsJSON, formatItemsJSON, minFormatScore)
	if err != nil {
		return 0, fmt.Errorf("failed to create quality profile: %w", err)
	}
	return res.LastInsertId()
}

// GetQualityProfile fetches one profile row.
func (s *Store) GetQualityProfile(ctx context.Context, id int64) (*QualityProfileRow, error) {
	var p QualityProfileRow
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, cutoff, items, format_items, min_format_score, upgrade_allowed
		FROM quality_profiles WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Cutoff, &p.ItemsJSON, &p.FormatItems, &p.MinFormatScore, &p.UpgradeAllowed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateCustomFormat inserts a custom format with its specifications JSON.
func (s *Store) CreateCustomFormat(ctx context.Context, name, specificationsJSON string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO custom_formats (name, specifications) VALUES (?, ?)`,
		name, specificationsJSON)
	if err != nil {
		return 0, fmt.Errorf("failed to create custom format: %w", err)
	}
	return res.LastInsertId()
}

// ListCustomFormats returns every custom format row.
func (s *Store) ListCustomFormats(ctx context.Context) ([]*CustomFormatRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, specifications FROM custom_formats ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var formats []*CustomFormatRow
	for rows.Next() {
		var f CustomFormatRow
		if err := rows.Scan(&f.ID, &f.Name, &f.Specifications); err != nil {
			return nil, err
		}
		formats = append(formats, &f)
	}
	return formats, rows.Err()
}
