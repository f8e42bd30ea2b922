package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sentinelai/sentinel-edge/internal/incident"
)

// SaveIncident persists a finalized incident record
func (m *Manager) SaveIncident(ctx context.Context, record *incident.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	classesJSON, err := json.Marshal(record.WeaponClasses)
	if err != nil {
		return fmt.Errorf("failed to marshal weapon classes: %w", err)
	}
	pathsJSON, err := json.Marshal(record.ScreenshotPaths)
	if err != nil {
		return fmt.Errorf("failed to marshal screenshot paths: %w", err)
	}

	query := `
		INSERT INTO incidents (id, started_at, ended_at, duration_seconds, screenshot_count, weapon_classes, screenshot_paths, ai_analysis, degraded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ai_analysis = excluded.ai_analysis,
			degraded = excluded.degraded
	`

	_, err = m.db.GetDB().ExecContext(ctx, query,
		record.ID, record.StartedAt, record.EndedAt, record.DurationSeconds,
		record.ScreenshotCount, string(classesJSON), string(pathsJSON),
		record.AIAnalysis, record.Degraded,
	)
	if err != nil {
		return fmt.Errorf("failed to save incident: %w", err)
	}

	return nil
}

// GetIncident retrieves a single incident by ID
func (m *Manager) GetIncident(ctx context.Context, id string) (*incident.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	query := `
		SELECT id, started_at, ended_at, duration_seconds, screenshot_count, weapon_classes, screenshot_paths, ai_analysis, degraded
		FROM incidents WHERE id = ?
	`

	record, err := scanIncident(m.db.GetDB().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}

	return record, nil
}

// ListIncidents retrieves the most recent incidents, newest first
func (m *Manager) ListIncidents(ctx context.Context, limit int) ([]incident.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, started_at, ended_at, duration_seconds, screenshot_count, weapon_classes, screenshot_paths, ai_analysis, degraded
		FROM incidents
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := m.db.GetDB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var records []incident.Record
	for rows.Next() {
		record, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		records = append(records, *record)
	}

	return records, rows.Err()
}

// CountIncidents returns the total number of stored incidents
func (m *Manager) CountIncidents(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int
	err := m.db.GetDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count incidents: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIncident(row rowScanner) (*incident.Record, error) {
	var record incident.Record
	var classesJSON, pathsJSON string
	var analysis sql.NullString

	err := row.Scan(
		&record.ID, &record.StartedAt, &record.EndedAt, &record.DurationSeconds,
		&record.ScreenshotCount, &classesJSON, &pathsJSON, &analysis, &record.Degraded,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(classesJSON), &record.WeaponClasses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal weapon classes: %w", err)
	}
	if err := json.Unmarshal([]byte(pathsJSON), &record.ScreenshotPaths); err != nil {
		return nil, fmt.Errorf("failed to unmarshal screenshot paths: %w", err)
	}
	record.AIAnalysis = analysis.String

	return &record, nil
}
