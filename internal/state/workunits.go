package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/chunkd/pkg/models"
)

// workUnitColumns is the canonical column list for work_units scans.
const workUnitColumns = `chunk, phase, status, priority, blocked_by,
	displaced_chunk, displaced_status, attention_reason, attention_kind,
	session_id, pending_answer, created_at`

// CreateWorkUnit inserts a new work unit.
func (db *DB) CreateWorkUnit(u *models.WorkUnit) error {
	blockedBy, err := marshalStrings(u.BlockedBy)
	if err != nil {
		return fmt.Errorf("create work unit %s: %w", u.Chunk, err)
	}

	_, err = db.Exec(`
		INSERT INTO work_units (`+workUnitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.Chunk, string(u.Phase), string(u.Status), u.Priority, blockedBy,
		u.DisplacedChunk, u.DisplacedStatus, u.AttentionReason, string(u.AttentionKind),
		u.SessionID, u.PendingAnswer, formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("create work unit %s: %w", u.Chunk, err)
	}
	return nil
}

// GetWorkUnit retrieves a work unit by chunk name.
// Returns (nil, nil) if no unit exists for the chunk.
func (db *DB) GetWorkUnit(chunk string) (*models.WorkUnit, error) {
	row := db.QueryRow(`SELECT `+workUnitColumns+` FROM work_units WHERE chunk = ?`, chunk)

	u, err := scanWorkUnit(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work unit %s: %w", chunk, err)
	}
	return u, nil
}

// UpdateWorkUnit overwrites the persisted state of a work unit.
func (db *DB) UpdateWorkUnit(u *models.WorkUnit) error {
	blockedBy, err := marshalStrings(u.BlockedBy)
	if err != nil {
		return fmt.Errorf("update work unit %s: %w", u.Chunk, err)
	}

	res, err := db.Exec(`
		UPDATE work_units SET phase = ?, status = ?, priority = ?, blocked_by = ?,
			displaced_chunk = ?, displaced_status = ?, attention_reason = ?,
			attention_kind = ?, session_id = ?, pending_answer = ?
		WHERE chunk = ?
	`, string(u.Phase), string(u.Status), u.Priority, blockedBy,
		u.DisplacedChunk, u.DisplacedStatus, u.AttentionReason, string(u.AttentionKind),
		u.SessionID, u.PendingAnswer, u.Chunk)
	if err != nil {
		return fmt.Errorf("update work unit %s: %w", u.Chunk, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update work unit %s: %w", u.Chunk, err)
	}
	if n == 0 {
		return fmt.Errorf("update work unit %s: no such unit", u.Chunk)
	}
	return nil
}

// ListWorkUnits returns all work units ordered by creation time.
func (db *DB) ListWorkUnits() ([]models.WorkUnit, error) {
	return db.queryWorkUnits(`SELECT ` + workUnitColumns + ` FROM work_units ORDER BY created_at ASC`)
}

// ListReadyOrdered returns READY units in dispatch order: priority
// descending, then age ascending.
func (db *DB) ListReadyOrdered() ([]models.WorkUnit, error) {
	return db.queryWorkUnits(`
		SELECT `+workUnitColumns+` FROM work_units
		WHERE status = ? ORDER BY priority DESC, created_at ASC
	`, string(models.StatusReady))
}

// ListByStatus returns units with the given status, oldest first.
func (db *DB) ListByStatus(status models.Status) ([]models.WorkUnit, error) {
	return db.queryWorkUnits(`
		SELECT `+workUnitColumns+` FROM work_units
		WHERE status = ? ORDER BY created_at ASC
	`, string(status))
}

// ListBlockedBy returns BLOCKED units whose blocked_by set contains chunk.
// The JSON membership test happens in Go; blocked sets are small.
func (db *DB) ListBlockedBy(chunk string) ([]models.WorkUnit, error) {
	blocked, err := db.ListByStatus(models.StatusBlocked)
	if err != nil {
		return nil, err
	}

	var out []models.WorkUnit
	for _, u := range blocked {
		if u.IsBlockedBy(chunk) {
			out = append(out, u)
		}
	}
	return out, nil
}

// DeleteWorkUnit removes a work unit by chunk name.
func (db *DB) DeleteWorkUnit(chunk string) error {
	_, err := db.Exec("DELETE FROM work_units WHERE chunk = ?", chunk)
	if err != nil {
		return fmt.Errorf("delete work unit %s: %w", chunk, err)
	}
	return nil
}

func (db *DB) queryWorkUnits(query string, args ...any) ([]models.WorkUnit, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list work units: %w", err)
	}
	defer rows.Close()

	var units []models.WorkUnit
	for rows.Next() {
		u, err := scanWorkUnit(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list work units: %w", err)
		}
		units = append(units, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list work units: %w", err)
	}
	return units, nil
}

// scanWorkUnit scans a work_units row. A row that fails to decode is an
// integrity error; it is surfaced, never skipped.
func scanWorkUnit(scan func(dest ...any) error) (*models.WorkUnit, error) {
	var u models.WorkUnit
	var phase, status, kind, blockedBy, createdAt string

	err := scan(&u.Chunk, &phase, &status, &u.Priority, &blockedBy,
		&u.DisplacedChunk, &u.DisplacedStatus, &u.AttentionReason, &kind,
		&u.SessionID, &u.PendingAnswer, &createdAt)
	if err != nil {
		return nil, err
	}

	u.Phase = models.Phase(phase)
	u.Status = models.Status(status)
	u.AttentionKind = models.AttentionKind(kind)

	if !u.Phase.Valid() {
		return nil, fmt.Errorf("%w: work unit %s has unknown phase %q", ErrIntegrity, u.Chunk, phase)
	}
	if !u.Status.Valid() {
		return nil, fmt.Errorf("%w: work unit %s has unknown status %q", ErrIntegrity, u.Chunk, status)
	}
	if err := json.Unmarshal([]byte(blockedBy), &u.BlockedBy); err != nil {
		return nil, fmt.Errorf("%w: work unit %s has malformed blocked_by: %v", ErrIntegrity, u.Chunk, err)
	}
	if len(u.BlockedBy) == 0 {
		u.BlockedBy = nil
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("%w: work unit %s has malformed created_at: %v", ErrIntegrity, u.Chunk, err)
	}
	return &u, nil
}

// marshalStrings encodes a string slice as a JSON array, mapping nil to [].
func marshalStrings(ss []string) (string, error) {
	if ss == nil {
		ss = []string{}
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
