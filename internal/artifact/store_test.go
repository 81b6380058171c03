package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/chunkd/internal/collab"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "chunks"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

func TestScaffoldAndRead(t *testing.T) {
	store := newTestStore(t)
	if err := store.Scaffold("auth-limits", "add login rate limiting", "Limit to 5 attempts per minute."); err != nil {
		t.Fatalf("Scaffold: %v", err)
	}

	if !store.Exists("auth-limits") {
		t.Error("Exists = false after scaffold")
	}
	if !store.HasGoal("auth-limits") {
		t.Error("HasGoal = false after scaffold")
	}

	intent, err := store.Intent("auth-limits")
	if err != nil {
		t.Fatalf("Intent: %v", err)
	}
	if intent != "add login rate limiting" {
		t.Errorf("intent = %q", intent)
	}

	goal, err := store.GoalText("auth-limits")
	if err != nil {
		t.Fatalf("GoalText: %v", err)
	}
	if goal != "Limit to 5 attempts per minute." {
		t.Errorf("goal = %q", goal)
	}

	status, err := store.Status("auth-limits")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != collab.StatusPlanned {
		t.Errorf("status = %s, want %s", status, collab.StatusPlanned)
	}
}

func TestScaffoldRejectsDuplicate(t *testing.T) {
	store := newTestStore(t)
	if err := store.Scaffold("dup", "x", "y"); err != nil {
		t.Fatalf("Scaffold: %v", err)
	}
	if err := store.Scaffold("dup", "x", "y"); err == nil {
		t.Error("want error scaffolding existing chunk")
	}
}

func TestSetStatusRoundTrip(t *testing.T) {
	store := newTestStore(t)
	if err := store.Scaffold("c1", "x", "y"); err != nil {
		t.Fatalf("Scaffold: %v", err)
	}
	if err := store.SetStatus("c1", collab.StatusImplementing); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	status, err := store.Status("c1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != collab.StatusImplementing {
		t.Errorf("status = %s, want %s", status, collab.StatusImplementing)
	}
	// Intent must survive the status rewrite.
	intent, err := store.Intent("c1")
	if err != nil || intent != "x" {
		t.Errorf("intent = %q, %v", intent, err)
	}

	if err := store.SetStatus("c1", "BOGUS"); err == nil {
		t.Error("want error for unknown status")
	}
}

func TestRecordReferencesDeduplicates(t *testing.T) {
	store := newTestStore(t)
	if err := store.Scaffold("c1", "x", "y"); err != nil {
		t.Fatalf("Scaffold: %v", err)
	}
	if err := store.RecordReferences("c1", []string{"a.go#Run", "b.go#Tick"}); err != nil {
		t.Fatalf("RecordReferences: %v", err)
	}
	if err := store.RecordReferences("c1", []string{"a.go#Run", "c.go#Stop"}); err != nil {
		t.Fatalf("RecordReferences: %v", err)
	}
	refs, err := store.CodeReferences("c1")
	if err != nil {
		t.Fatalf("CodeReferences: %v", err)
	}
	want := []string{"a.go#Run", "b.go#Tick", "c.go#Stop"}
	if len(refs) != len(want) {
		t.Fatalf("refs = %v, want %v", refs, want)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("refs[%d] = %q, want %q", i, refs[i], want[i])
		}
	}
}

func TestMissingChunkErrors(t *testing.T) {
	store := newTestStore(t)
	if store.Exists("ghost") {
		t.Error("Exists = true for missing chunk")
	}
	if _, err := store.Intent("ghost"); err == nil {
		t.Error("want error reading intent of missing chunk")
	}
	if _, err := store.PlanText("ghost"); err == nil {
		t.Error("want error reading plan of missing chunk")
	}
}

func TestPlanTextReadsLatestEdit(t *testing.T) {
	store := newTestStore(t)
	if err := store.Scaffold("c1", "x", "y"); err != nil {
		t.Fatalf("Scaffold: %v", err)
	}
	planPath := filepath.Join(store.Root(), "c1", "plan.md")
	if err := os.WriteFile(planPath, []byte("v1"), 0644); err != nil {
		t.Fatalf("writing plan: %v", err)
	}
	if err := os.WriteFile(planPath, []byte("v2"), 0644); err != nil {
		t.Fatalf("rewriting plan: %v", err)
	}
	plan, err := store.PlanText("c1")
	if err != nil {
		t.Fatalf("PlanText: %v", err)
	}
	if plan != "v2" {
		t.Errorf("plan = %q, want v2", plan)
	}
}

func TestWatcherSignalsOnEdit(t *testing.T) {
	store := newTestStore(t)
	if err := store.Scaffold("c1", "x", "y"); err != nil {
		t.Fatalf("Scaffold: %v", err)
	}

	w, err := NewWatcher(store.Root())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	planPath := filepath.Join(store.Root(), "c1", "plan.md")
	if err := os.WriteFile(planPath, []byte("plan"), 0644); err != nil {
		t.Fatalf("writing plan: %v", err)
	}

	select {
	case <-w.Wake():
	case <-time.After(5 * time.Second):
		t.Fatal("no wake signal after artifact edit")
	}
}
