// Package artifact provides the default file-backed artifact store. Each
// chunk lives in its own directory under a chunks root: chunk.yaml carries
// the intent, lifecycle status, and recorded code references; goal.md and
// plan.md carry the phase documents. External tools and agents edit these
// files directly, so every read goes to disk.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/chunkd/internal/collab"
)

const (
	indexFile = "chunk.yaml"
	goalFile  = "goal.md"
	planFile  = "plan.md"
)

// chunkIndex is the on-disk yaml index for a single chunk.
type chunkIndex struct {
	Intent         string   `yaml:"intent"`
	Status         string   `yaml:"status"`
	CodeReferences []string `yaml:"code_references,omitempty"`
}

// FileStore implements collab.ArtifactStore over a chunks directory tree.
type FileStore struct {
	root string

	// mu serializes read-modify-write cycles on chunk.yaml files.
	mu sync.Mutex
}

var _ collab.ArtifactStore = (*FileStore)(nil)

// NewFileStore opens the store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating chunks root: %w", err)
	}
	return &FileStore{root: dir}, nil
}

// Root returns the chunks root directory.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) chunkDir(chunk string) string {
	return filepath.Join(s.root, chunk)
}

// Exists reports whether the chunk has an index file.
func (s *FileStore) Exists(chunk string) bool {
	_, err := os.Stat(filepath.Join(s.chunkDir(chunk), indexFile))
	return err == nil
}

// HasGoal reports whether the chunk has a non-empty goal document.
func (s *FileStore) HasGoal(chunk string) bool {
	info, err := os.Stat(filepath.Join(s.chunkDir(chunk), goalFile))
	return err == nil && info.Size() > 0
}

func (s *FileStore) readIndex(chunk string) (*chunkIndex, error) {
	data, err := os.ReadFile(filepath.Join(s.chunkDir(chunk), indexFile))
	if err != nil {
		return nil, fmt.Errorf("reading index of chunk %s: %w", chunk, err)
	}
	var idx chunkIndex
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parsing index of chunk %s: %w", chunk, err)
	}
	return &idx, nil
}

func (s *FileStore) writeIndex(chunk string, idx *chunkIndex) error {
	data, err := yaml.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encoding index of chunk %s: %w", chunk, err)
	}
	path := filepath.Join(s.chunkDir(chunk), indexFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing index of chunk %s: %w", chunk, err)
	}
	return nil
}

// Status returns the chunk's lifecycle status. A chunk with no recorded
// status is PLANNED.
func (s *FileStore) Status(chunk string) (collab.ChunkStatus, error) {
	idx, err := s.readIndex(chunk)
	if err != nil {
		return "", err
	}
	if idx.Status == "" {
		return collab.StatusPlanned, nil
	}
	return collab.ChunkStatus(idx.Status), nil
}

// SetStatus updates the chunk's lifecycle status in its index file.
func (s *FileStore) SetStatus(chunk string, status collab.ChunkStatus) error {
	switch status {
	case collab.StatusPlanned, collab.StatusImplementing, collab.StatusCompleted:
	default:
		return fmt.Errorf("unknown chunk status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.readIndex(chunk)
	if err != nil {
		return err
	}
	idx.Status = string(status)
	return s.writeIndex(chunk, idx)
}

// Intent returns the chunk's one-line intent.
func (s *FileStore) Intent(chunk string) (string, error) {
	idx, err := s.readIndex(chunk)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(idx.Intent), nil
}

// GoalText returns the chunk's goal document.
func (s *FileStore) GoalText(chunk string) (string, error) {
	return s.readDoc(chunk, goalFile)
}

// PlanText returns the chunk's plan document.
func (s *FileStore) PlanText(chunk string) (string, error) {
	return s.readDoc(chunk, planFile)
}

func (s *FileStore) readDoc(chunk, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.chunkDir(chunk), name))
	if err != nil {
		return "", fmt.Errorf("reading %s of chunk %s: %w", name, chunk, err)
	}
	return string(data), nil
}

// CodeReferences returns the chunk's recorded file#symbol references.
func (s *FileStore) CodeReferences(chunk string) ([]string, error) {
	idx, err := s.readIndex(chunk)
	if err != nil {
		return nil, err
	}
	return idx.CodeReferences, nil
}

// RecordReferences appends code references to the chunk's index, skipping
// duplicates.
func (s *FileStore) RecordReferences(chunk string, refs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.readIndex(chunk)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(idx.CodeReferences))
	for _, r := range idx.CodeReferences {
		seen[r] = true
	}
	for _, r := range refs {
		if r != "" && !seen[r] {
			idx.CodeReferences = append(idx.CodeReferences, r)
			seen[r] = true
		}
	}
	return s.writeIndex(chunk, idx)
}

// Scaffold creates a new chunk directory with its index and goal document.
// It fails if the chunk already exists.
func (s *FileStore) Scaffold(chunk, intent, goal string) error {
	if s.Exists(chunk) {
		return fmt.Errorf("chunk %s already exists", chunk)
	}
	dir := s.chunkDir(chunk)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating chunk dir: %w", err)
	}
	if err := s.writeIndex(chunk, &chunkIndex{Intent: intent, Status: string(collab.StatusPlanned)}); err != nil {
		return err
	}
	if goal != "" {
		if err := os.WriteFile(filepath.Join(dir, goalFile), []byte(goal), 0644); err != nil {
			return fmt.Errorf("writing goal of chunk %s: %w", chunk, err)
		}
	}
	return nil
}
