package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ShayCichocki/chunkd/internal/collab"
	"github.com/ShayCichocki/chunkd/pkg/models"
)

// allowAll admits every workdir.
type allowAll struct{}

func (allowAll) Contains(string) bool { return true }

// denyAll rejects every workdir.
type denyAll struct{}

func (denyAll) Contains(string) bool { return false }

// writeScript installs an executable shell script acting as the agent.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func run(t *testing.T, script string, req collab.PhaseRequest) (*collab.PhaseResult, error) {
	t.Helper()
	e, err := NewCommandExecutor([]string{script}, allowAll{})
	if err != nil {
		t.Fatalf("NewCommandExecutor: %v", err)
	}
	if req.Workdir == "" {
		req.Workdir = t.TempDir()
	}
	return e.RunPhase(context.Background(), req)
}

func TestRunPhaseCompleted(t *testing.T) {
	script := writeScript(t, `
echo "working on it"
echo '{"outcome":"completed"}'`)

	res, err := run(t, script, collab.PhaseRequest{Chunk: "c1", Phase: models.PhaseImplement})
	if err != nil {
		t.Fatalf("RunPhase: %v", err)
	}
	if res.Outcome != collab.OutcomeCompleted {
		t.Errorf("outcome = %s, want %s", res.Outcome, collab.OutcomeCompleted)
	}
}

func TestRunPhaseSuspendedWithQuestion(t *testing.T) {
	script := writeScript(t, `echo '{"outcome":"suspended","session_id":"s-42","question":"which database?"}'`)

	res, err := run(t, script, collab.PhaseRequest{Chunk: "c1", Phase: models.PhasePlan})
	if err != nil {
		t.Fatalf("RunPhase: %v", err)
	}
	if res.Outcome != collab.OutcomeSuspended {
		t.Errorf("outcome = %s, want %s", res.Outcome, collab.OutcomeSuspended)
	}
	if res.SessionID != "s-42" || res.Question != "which database?" {
		t.Errorf("result = %+v", res)
	}
}

func TestRunPhaseSuspendedWithoutSessionGetsOne(t *testing.T) {
	script := writeScript(t, `echo '{"outcome":"suspended","question":"?"}'`)

	res, err := run(t, script, collab.PhaseRequest{Chunk: "c1", Phase: models.PhasePlan})
	if err != nil {
		t.Fatalf("RunPhase: %v", err)
	}
	if res.SessionID == "" {
		t.Error("suspended result must carry a session id")
	}
}

func TestRunPhaseLastReportWins(t *testing.T) {
	script := writeScript(t, `
echo '{"outcome":"suspended","question":"ignore me"}'
echo '{"outcome":"completed"}'`)

	res, err := run(t, script, collab.PhaseRequest{Chunk: "c1", Phase: models.PhaseGoal})
	if err != nil {
		t.Fatalf("RunPhase: %v", err)
	}
	if res.Outcome != collab.OutcomeCompleted {
		t.Errorf("outcome = %s, want %s", res.Outcome, collab.OutcomeCompleted)
	}
}

func TestRunPhaseNonzeroExit(t *testing.T) {
	script := writeScript(t, `
echo "boom" >&2
exit 3`)

	_, err := run(t, script, collab.PhaseRequest{Chunk: "c1", Phase: models.PhaseImplement})
	var eerr *ExecutionError
	if !errors.As(err, &eerr) {
		t.Fatalf("error = %v, want *ExecutionError", err)
	}
	if !strings.Contains(eerr.Stderr, "boom") {
		t.Errorf("stderr = %q, want to contain boom", eerr.Stderr)
	}
}

func TestRunPhaseNoResultLine(t *testing.T) {
	script := writeScript(t, `echo "just chatter"`)

	_, err := run(t, script, collab.PhaseRequest{Chunk: "c1", Phase: models.PhaseImplement})
	var eerr *ExecutionError
	if !errors.As(err, &eerr) {
		t.Fatalf("error = %v, want *ExecutionError", err)
	}
}

func TestRunPhaseRejectsOutsideWorkdir(t *testing.T) {
	e, err := NewCommandExecutor([]string{"/bin/true"}, denyAll{})
	if err != nil {
		t.Fatalf("NewCommandExecutor: %v", err)
	}
	_, err = e.RunPhase(context.Background(), collab.PhaseRequest{Chunk: "c1", Phase: models.PhaseGoal, Workdir: "/tmp"})
	var eerr *ExecutionError
	if !errors.As(err, &eerr) {
		t.Fatalf("error = %v, want *ExecutionError", err)
	}
}

func TestRunPhaseScrubsGitEnv(t *testing.T) {
	t.Setenv("GIT_DIR", "/somewhere/else/.git")
	script := writeScript(t, `
if [ -n "$GIT_DIR" ]; then
  echo "GIT_DIR leaked" >&2
  exit 1
fi
echo '{"outcome":"completed"}'`)

	if _, err := run(t, script, collab.PhaseRequest{Chunk: "c1", Phase: models.PhaseImplement}); err != nil {
		t.Fatalf("RunPhase: %v", err)
	}
}

func TestRunPhasePassesResumeAndAnswer(t *testing.T) {
	script := writeScript(t, `
resume=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--resume" ]; then resume="$2"; fi
  shift
done
answer=$(cat)
if [ "$resume" = "s-9" ] && [ "$answer" = "use sqlite" ]; then
  echo '{"outcome":"completed"}'
else
  echo "resume=$resume answer=$answer" >&2
  exit 1
fi`)

	_, err := run(t, script, collab.PhaseRequest{
		Chunk:           "c1",
		Phase:           models.PhasePlan,
		ResumeSessionID: "s-9",
		Answer:          "use sqlite",
	})
	if err != nil {
		t.Fatalf("RunPhase: %v", err)
	}
}
