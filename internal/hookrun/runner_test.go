package hookrun

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hookboard/hookboard/internal/db"
)

func TestRunScriptSuccess(t *testing.T) {
	r := NewSilent()
	h := r.Start(Spec{
		TaskID:   1,
		HookName: "echo",
		Kind:     "script",
		Command:  "echo hello from hook",
		WorkDir:  t.TempDir(),
	})

	result := h.Wait()
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if !strings.Contains(result.Output, "hello from hook") {
		t.Errorf("expected output captured, got %q", result.Output)
	}
}

func TestRunScriptFailure(t *testing.T) {
	r := NewSilent()
	h := r.Start(Spec{
		HookName: "fail",
		Kind:     "script",
		Command:  "echo something broke >&2; exit 3",
		WorkDir:  t.TempDir(),
	})

	result := h.Wait()
	if result.Success || result.Stopped {
		t.Fatalf("expected failure, got %+v", result)
	}
	if !strings.Contains(result.Message, "exit status 3") {
		t.Errorf("expected exit status in message, got %q", result.Message)
	}
	if !strings.Contains(result.Message, "something broke") {
		t.Errorf("expected last output line in message, got %q", result.Message)
	}
}

func TestRunScriptEnvAndWorkDir(t *testing.T) {
	dir := t.TempDir()
	r := NewSilent()
	h := r.Start(Spec{
		HookName: "env",
		Kind:     "script",
		Command:  `echo "$HOOKBOARD_TASK_ID in $(pwd)"`,
		WorkDir:  dir,
		Env:      []string{"HOOKBOARD_TASK_ID=42"},
	})

	result := h.Wait()
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if !strings.Contains(result.Output, "42 in ") {
		t.Errorf("expected env var in output, got %q", result.Output)
	}
	if !strings.Contains(result.Output, filepath.Base(dir)) {
		t.Errorf("expected working directory %q, got %q", dir, result.Output)
	}
}

func TestRunScriptCommandNotFound(t *testing.T) {
	r := NewSilent()
	h := r.Start(Spec{
		HookName: "missing",
		Kind:     "script",
		Command:  "definitely-not-a-real-command-xyz",
		WorkDir:  t.TempDir(),
	})

	// sh itself starts fine; the failure comes back as a 127 exit
	result := h.Wait()
	if result.Success {
		t.Fatalf("expected failure, got %+v", result)
	}
	if !strings.Contains(result.Message, "exit status 127") {
		t.Errorf("expected exit status 127, got %q", result.Message)
	}
}

func TestAgentCLINotInstalled(t *testing.T) {
	if _, err := exec.LookPath("claude"); err == nil {
		t.Skip("claude CLI installed; spawn would succeed")
	}
	r := NewSilent()
	result := r.Start(Spec{HookName: "direct", Kind: "agent", Executor: "claude", Prompt: "x"}).Wait()
	if result.Success {
		t.Fatalf("expected failure, got %+v", result)
	}
	if !strings.Contains(result.Message, "not installed") {
		t.Errorf("expected missing-CLI classification, got %q", result.Message)
	}
}

func TestRunScriptTimeout(t *testing.T) {
	r := NewSilent()
	start := time.Now()
	h := r.Start(Spec{
		HookName: "slow",
		Kind:     "script",
		Command:  "sleep 10",
		WorkDir:  t.TempDir(),
		Timeout:  200 * time.Millisecond,
	})

	result := h.Wait()
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("timeout did not fire promptly, took %s", elapsed)
	}
	if result.Success || result.Stopped {
		t.Fatalf("expected timeout failure, got %+v", result)
	}
	if !strings.Contains(result.Message, "timed out") {
		t.Errorf("expected timeout message, got %q", result.Message)
	}
}

func TestStopKillsPromptly(t *testing.T) {
	r := NewSilent()
	h := r.Start(Spec{
		HookName: "sleeper",
		Kind:     "script",
		Command:  "sleep 5",
		WorkDir:  t.TempDir(),
	})

	// Give the process a moment to spawn, then stop it
	time.Sleep(100 * time.Millisecond)
	start := time.Now()
	h.Stop()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("stop took %s, expected under 1s", elapsed)
	}

	result := h.Wait()
	if !result.Stopped {
		t.Fatalf("expected stopped result, got %+v", result)
	}
}

func TestStopKillsProcessGroup(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "survived")

	r := NewSilent()
	// The background child belongs to the same process group
	h := r.Start(Spec{
		HookName: "group",
		Kind:     "script",
		Command:  `(sleep 0.5; touch survived) & wait`,
		WorkDir:  dir,
	})

	time.Sleep(100 * time.Millisecond)
	h.Stop()

	// If the child escaped the kill it would write the marker
	time.Sleep(700 * time.Millisecond)
	if _, err := os.Stat(marker); err == nil {
		t.Error("background child survived the group kill")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r := NewSilent()
	h := r.Start(Spec{
		HookName: "quick",
		Kind:     "script",
		Command:  "true",
		WorkDir:  t.TempDir(),
	})

	result := h.Wait()
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}

	// Stops after completion are no-ops and must not block or panic
	h.Stop()
	h.Stop()

	if got := h.Wait(); !got.Success {
		t.Errorf("result changed by late stop: %+v", got)
	}
}

func TestStopBeforeStart(t *testing.T) {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.result = NewSilent().run(Spec{HookName: "never", Kind: "script", Command: "sleep 5"}, h)
	}()

	h.Stop()
	result := h.Wait()
	if !result.Stopped {
		t.Fatalf("expected stopped result, got %+v", result)
	}
}

func TestClassifyAgentOutput(t *testing.T) {
	tests := []struct {
		name       string
		output     string
		needsInput bool
		question   string
	}{
		{
			name:   "complete marker",
			output: "did the work\nTASK_COMPLETE",
		},
		{
			name:       "needs input",
			output:     "NEEDS_INPUT: What should be the database name?",
			needsInput: true,
			question:   "What should be the database name?",
		},
		{
			name:       "needs input mid output",
			output:     "Processing...\nNEEDS_INPUT: Please clarify the requirements\nMore output",
			needsInput: true,
			question:   "Please clarify the requirements",
		},
		{
			name:       "needs input with extra whitespace",
			output:     "NEEDS_INPUT:   What's the API key?  ",
			needsInput: true,
			question:   "What's the API key?",
		},
		{
			name:   "no marker counts as complete",
			output: "just some output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classifyAgentOutput(tt.output)
			if result.NeedsInput != tt.needsInput {
				t.Errorf("needsInput = %v, want %v", result.NeedsInput, tt.needsInput)
			}
			if tt.needsInput && result.Message != tt.question {
				t.Errorf("question = %q, want %q", result.Message, tt.question)
			}
			if !tt.needsInput && !result.Success {
				t.Errorf("expected success for %q", tt.output)
			}
		})
	}
}

func TestAgentCommand(t *testing.T) {
	tests := []struct {
		executor    string
		autoApprove bool
		wantBin     string
		wantFlag    string
	}{
		{db.ExecutorClaude, false, "claude", "-p"},
		{db.ExecutorClaude, true, "claude", "--dangerously-skip-permissions"},
		{db.ExecutorCodex, false, "codex", "exec"},
		{db.ExecutorCodex, true, "codex", "--full-auto"},
		{db.ExecutorGemini, true, "gemini", "--dangerously-allow-run"},
		{db.ExecutorOpencode, false, "opencode", "run"},
		{"", false, "claude", "-p"},
	}

	for _, tt := range tests {
		bin, args := agentCommand(tt.executor, "do the thing", tt.autoApprove)
		if bin != tt.wantBin {
			t.Errorf("%s: bin = %q, want %q", tt.executor, bin, tt.wantBin)
		}
		found := false
		for _, a := range args {
			if a == tt.wantFlag {
				found = true
			}
		}
		if !found {
			t.Errorf("%s (auto=%v): args %v missing %q", tt.executor, tt.autoApprove, args, tt.wantFlag)
		}
		if args[len(args)-1] != "do the thing" && !strings.Contains(args[len(args)-1], "do the thing") {
			t.Errorf("%s: prompt not last arg: %v", tt.executor, args)
		}
	}
}

func TestAgentPromptCarriesProtocol(t *testing.T) {
	prompt := agentPrompt("Review the changes")
	if !strings.Contains(prompt, "Review the changes") {
		t.Error("original prompt missing")
	}
	if !strings.Contains(prompt, markerComplete) || !strings.Contains(prompt, markerNeedsInput) {
		t.Error("marker protocol missing from prompt")
	}
}
