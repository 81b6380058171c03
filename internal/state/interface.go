package state

import (
	"io"

	"github.com/ShayCichocki/chunkd/pkg/models"
)

// WorkUnitStore handles work-unit persistence operations.
type WorkUnitStore interface {
	CreateWorkUnit(u *models.WorkUnit) error
	GetWorkUnit(chunk string) (*models.WorkUnit, error)
	UpdateWorkUnit(u *models.WorkUnit) error
	ListWorkUnits() ([]models.WorkUnit, error)
	// ListReadyOrdered returns READY units ordered priority desc, age asc.
	ListReadyOrdered() ([]models.WorkUnit, error)
	ListByStatus(status models.Status) ([]models.WorkUnit, error)
	// ListBlockedBy returns BLOCKED units whose blocked_by contains chunk.
	ListBlockedBy(chunk string) ([]models.WorkUnit, error)
	DeleteWorkUnit(chunk string) error
}

// ConflictStore handles conflict-analysis persistence operations.
type ConflictStore interface {
	// SaveConflict overwrites any prior analysis for the pair outright.
	SaveConflict(c *models.ConflictAnalysis) error
	GetConflict(a, b string) (*models.ConflictAnalysis, error)
	ListConflicts() ([]models.ConflictAnalysis, error)
	ListConflictsFor(chunk string) ([]models.ConflictAnalysis, error)
	ClearConflict(a, b string) error
	// ClearConflictsFor removes every analysis involving chunk.
	ClearConflictsFor(chunk string) error
}

// SettingsStore handles runtime configuration key-value persistence.
type SettingsStore interface {
	GetSetting(key string) (string, bool, error)
	SetSetting(key, value string) error
	ListSettings() (map[string]string, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for state persistence. The scheduler is the
// sole writer; no store-level locking beyond the connection mutex is needed.
type Store interface {
	io.Closer
	Migrator
	WorkUnitStore
	ConflictStore
	SettingsStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store         = (*DB)(nil)
	_ Migrator      = (*DB)(nil)
	_ WorkUnitStore = (*DB)(nil)
	_ ConflictStore = (*DB)(nil)
	_ SettingsStore = (*DB)(nil)
)
