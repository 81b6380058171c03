package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/chunkd/pkg/models"
)

const conflictColumns = `chunk_a, chunk_b, stage, verdict, confidence,
	overlapping_files, overlapping_symbols, rationale, computed_at`

// SaveConflict stores a conflict analysis, replacing any prior row for the
// pair outright. Verdicts are never merged across stages.
func (db *DB) SaveConflict(c *models.ConflictAnalysis) error {
	a, b := models.PairKey(c.ChunkA, c.ChunkB)

	files, err := marshalStrings(c.OverlappingFiles)
	if err != nil {
		return fmt.Errorf("save conflict %s/%s: %w", a, b, err)
	}
	symbols, err := marshalStrings(c.OverlappingSymbols)
	if err != nil {
		return fmt.Errorf("save conflict %s/%s: %w", a, b, err)
	}

	_, err = db.Exec(`
		INSERT INTO conflict_analyses (`+conflictColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_a, chunk_b) DO UPDATE SET
			stage = excluded.stage,
			verdict = excluded.verdict,
			confidence = excluded.confidence,
			overlapping_files = excluded.overlapping_files,
			overlapping_symbols = excluded.overlapping_symbols,
			rationale = excluded.rationale,
			computed_at = excluded.computed_at
	`, a, b, string(c.Stage), string(c.Verdict), c.Confidence,
		files, symbols, c.Rationale, formatTime(c.ComputedAt))
	if err != nil {
		return fmt.Errorf("save conflict %s/%s: %w", a, b, err)
	}
	return nil
}

// GetConflict retrieves the stored analysis for an unordered pair.
// Returns (nil, nil) if no analysis exists.
func (db *DB) GetConflict(a, b string) (*models.ConflictAnalysis, error) {
	ka, kb := models.PairKey(a, b)
	row := db.QueryRow(`
		SELECT `+conflictColumns+` FROM conflict_analyses
		WHERE chunk_a = ? AND chunk_b = ?
	`, ka, kb)

	c, err := scanConflict(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conflict %s/%s: %w", ka, kb, err)
	}
	return c, nil
}

// ListConflicts returns all stored conflict analyses.
func (db *DB) ListConflicts() ([]models.ConflictAnalysis, error) {
	return db.queryConflicts(`SELECT ` + conflictColumns + ` FROM conflict_analyses ORDER BY chunk_a, chunk_b`)
}

// ListConflictsFor returns analyses involving the given chunk.
func (db *DB) ListConflictsFor(chunk string) ([]models.ConflictAnalysis, error) {
	return db.queryConflicts(`
		SELECT `+conflictColumns+` FROM conflict_analyses
		WHERE chunk_a = ? OR chunk_b = ? ORDER BY chunk_a, chunk_b
	`, chunk, chunk)
}

// ClearConflict removes the analysis for an unordered pair.
func (db *DB) ClearConflict(a, b string) error {
	ka, kb := models.PairKey(a, b)
	_, err := db.Exec("DELETE FROM conflict_analyses WHERE chunk_a = ? AND chunk_b = ?", ka, kb)
	if err != nil {
		return fmt.Errorf("clear conflict %s/%s: %w", ka, kb, err)
	}
	return nil
}

// ClearConflictsFor removes every analysis involving the given chunk.
// Used when a chunk reaches DONE or advances phase.
func (db *DB) ClearConflictsFor(chunk string) error {
	_, err := db.Exec("DELETE FROM conflict_analyses WHERE chunk_a = ? OR chunk_b = ?", chunk, chunk)
	if err != nil {
		return fmt.Errorf("clear conflicts for %s: %w", chunk, err)
	}
	return nil
}

func (db *DB) queryConflicts(query string, args ...any) ([]models.ConflictAnalysis, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var out []models.ConflictAnalysis
	for rows.Next() {
		c, err := scanConflict(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list conflicts: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	return out, nil
}

func scanConflict(scan func(dest ...any) error) (*models.ConflictAnalysis, error) {
	var c models.ConflictAnalysis
	var stage, verdict, files, symbols, computedAt string

	err := scan(&c.ChunkA, &c.ChunkB, &stage, &verdict, &c.Confidence,
		&files, &symbols, &c.Rationale, &computedAt)
	if err != nil {
		return nil, err
	}

	c.Stage = models.Stage(stage)
	c.Verdict = models.Verdict(verdict)

	if !c.Stage.Valid() {
		return nil, fmt.Errorf("%w: conflict %s/%s has unknown stage %q", ErrIntegrity, c.ChunkA, c.ChunkB, stage)
	}
	if !c.Verdict.Valid() {
		return nil, fmt.Errorf("%w: conflict %s/%s has unknown verdict %q", ErrIntegrity, c.ChunkA, c.ChunkB, verdict)
	}
	if err := json.Unmarshal([]byte(files), &c.OverlappingFiles); err != nil {
		return nil, fmt.Errorf("%w: conflict %s/%s has malformed overlapping_files: %v", ErrIntegrity, c.ChunkA, c.ChunkB, err)
	}
	if err := json.Unmarshal([]byte(symbols), &c.OverlappingSymbols); err != nil {
		return nil, fmt.Errorf("%w: conflict %s/%s has malformed overlapping_symbols: %v", ErrIntegrity, c.ChunkA, c.ChunkB, err)
	}
	if len(c.OverlappingFiles) == 0 {
		c.OverlappingFiles = nil
	}
	if len(c.OverlappingSymbols) == 0 {
		c.OverlappingSymbols = nil
	}
	if c.ComputedAt, err = parseTime(computedAt); err != nil {
		return nil, fmt.Errorf("%w: conflict %s/%s has malformed computed_at: %v", ErrIntegrity, c.ChunkA, c.ChunkB, err)
	}
	return &c, nil
}
