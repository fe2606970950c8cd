// Package hookrun executes hooks as cancellable subprocesses.
package hookrun

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultScriptTimeout bounds script hooks that do not configure their own
// timeout. Agent hooks run without a timeout unless the hook sets one.
const DefaultScriptTimeout = 2 * time.Minute

// Spec describes one hook attempt.
type Spec struct {
	TaskID   int64
	HookID   string
	HookName string
	Kind     string // "script" or "agent"; system hooks never reach the runner
	Command  string // script: run via sh -c
	WorkDir  string
	Timeout  time.Duration // 0 means the kind's default
	Env      []string      // extra KEY=VALUE pairs appended to the environment

	// Agent fields
	Prompt      string
	Executor    string // "claude" (default), "codex", "gemini", "opencode"
	AutoApprove bool
}

// Result is the outcome of one hook attempt.
type Result struct {
	Success    bool   // Hook finished cleanly
	NeedsInput bool   // Agent paused waiting for the user; success-like for the queue
	Stopped    bool   // Killed by Stop before finishing
	Message    string // Failure detail or the agent's question
	Output     string // Captured combined output (tail)
}

// Runner starts hook attempts and hands back cancellable handles.
type Runner struct {
	logger *log.Logger
}

// New creates a hook runner.
func New() *Runner {
	return &Runner{
		logger: log.NewWithOptions(os.Stderr, log.Options{Prefix: "hookrun"}),
	}
}

// NewSilent creates a hook runner without logging.
func NewSilent() *Runner {
	return &Runner{
		logger: log.NewWithOptions(os.Stderr, log.Options{Level: log.FatalLevel}),
	}
}

// Start launches the hook attempt and returns immediately. The caller waits
// on the handle or stops it.
func (r *Runner) Start(spec Spec) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.result = r.run(spec, h)
	}()
	return h
}

func (r *Runner) run(spec Spec, h *Handle) Result {
	switch spec.Kind {
	case "agent":
		return r.runAgent(spec, h)
	default:
		return r.runScript(spec, h)
	}
}

func (r *Runner) runScript(spec Spec, h *Handle) Result {
	if strings.TrimSpace(spec.Command) == "" {
		return Result{Message: "hook has no command"}
	}
	cmd := exec.Command("sh", "-c", spec.Command)
	return r.execute(spec, h, cmd, scriptTimeout(spec))
}

// execute runs a prepared command under the handle's control: process-group
// spawn so Stop and timeouts kill the whole tree, combined output capture,
// and stop/timeout/exit classification.
func (r *Runner) execute(spec Spec, h *Handle, cmd *exec.Cmd, timeout time.Duration) Result {
	cmd.Dir = spec.WorkDir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := h.attach(cmd); err != nil {
		if errors.Is(err, errStopped) {
			return Result{Stopped: true, Message: "stopped before start"}
		}
		r.logger.Error("Hook failed to start", "hook", spec.HookName, "task", spec.TaskID, "error", err)
		return Result{Message: classifyStartError(err)}
	}

	r.logger.Debug("Hook started", "hook", spec.HookName, "task", spec.TaskID, "pid", cmd.Process.Pid)

	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, h.expire)
	}

	err := cmd.Wait()
	if timer != nil {
		timer.Stop()
	}

	out := tail(output.String(), 16*1024)
	switch {
	case h.wasStopped():
		return Result{Stopped: true, Message: "stopped", Output: out}
	case h.expired():
		r.logger.Warn("Hook timed out", "hook", spec.HookName, "task", spec.TaskID, "timeout", timeout)
		return Result{Message: fmt.Sprintf("timed out after %s", timeout), Output: out}
	case err != nil:
		r.logger.Error("Hook failed", "hook", spec.HookName, "task", spec.TaskID, "error", err)
		return Result{Message: failureDetail(err, out), Output: out}
	}

	r.logger.Debug("Hook completed", "hook", spec.HookName, "task", spec.TaskID)
	return Result{Success: true, Output: out}
}

func scriptTimeout(spec Spec) time.Duration {
	if spec.Timeout > 0 {
		return spec.Timeout
	}
	return DefaultScriptTimeout
}

// classifyStartError turns spawn failures into stable, user-facing detail.
func classifyStartError(err error) string {
	var execErr *exec.Error
	if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
		return fmt.Sprintf("command not found: %s", execErr.Name)
	}
	if errors.Is(err, os.ErrPermission) {
		return "permission denied"
	}
	return err.Error()
}

func failureDetail(err error, output string) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if line := lastLine(output); line != "" {
			return fmt.Sprintf("exit status %d: %s", exitErr.ExitCode(), line)
		}
		return fmt.Sprintf("exit status %d", exitErr.ExitCode())
	}
	return err.Error()
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}

var errStopped = errors.New("handle stopped")

// Handle controls one in-flight hook attempt.
type Handle struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	stopped  bool
	timedOut bool

	done   chan struct{}
	result Result
}

// attach starts the command and registers it for Stop. Refuses when the
// handle was stopped before the process could spawn.
func (h *Handle) attach(cmd *exec.Cmd) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return errStopped
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	h.cmd = cmd
	return nil
}

// Stop kills the hook's whole process group and blocks until the process has
// been reaped, so no orphan can outlive the cancellation. Idempotent; a Stop
// after completion is a no-op.
func (h *Handle) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		<-h.done
		return
	}
	h.stopped = true
	h.killLocked()
	h.mu.Unlock()
	<-h.done
}

// expire is the timeout path: same group kill, different classification.
func (h *Handle) expire() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.timedOut {
		return
	}
	h.timedOut = true
	h.killLocked()
}

func (h *Handle) killLocked() {
	if h.cmd != nil && h.cmd.Process != nil {
		// Negative PID targets the process group created by Setpgid
		syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL)
	}
}

func (h *Handle) wasStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

func (h *Handle) expired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timedOut
}

// Done is closed once the attempt has fully finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the attempt finishes and returns its result.
func (h *Handle) Wait() Result {
	<-h.done
	return h.result
}
