package state

import (
	"database/sql"
	"fmt"
	"time"
)

// Runtime-mutable setting keys. Values here override the static config for
// the keys the API exposes via GET/PATCH /config.
const (
	// SettingMaxAgents is the concurrent phase-execution limit.
	SettingMaxAgents = "max_agents"
	// SettingDispatchInterval is the dispatch tick interval.
	SettingDispatchInterval = "dispatch_interval"
)

// GetSetting returns the value for a key and whether it was present.
func (db *DB) GetSetting(key string) (string, bool, error) {
	row := db.QueryRow("SELECT value FROM settings WHERE key = ?", key)

	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting stores a key-value pair, replacing any existing value.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// ListSettings returns all stored settings.
func (db *DB) ListSettings() (map[string]string, error) {
	rows, err := db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("list settings: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return out, nil
}
