package hookrun

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/hookboard/hookboard/internal/db"
)

// Output markers the agent protocol asks for. The prompt instructs the agent
// to end with exactly one of these so the engine can classify the session.
const (
	markerComplete   = "TASK_COMPLETE"
	markerNeedsInput = "NEEDS_INPUT:"
)

func (r *Runner) runAgent(spec Spec, h *Handle) Result {
	name, args := agentCommand(spec.Executor, agentPrompt(spec.Prompt), spec.AutoApprove)
	if _, err := exec.LookPath(name); err != nil {
		return Result{Message: fmt.Sprintf("%s CLI is not installed", name)}
	}

	result := r.execute(spec, h, exec.Command(name, args...), spec.Timeout)
	if result.Stopped || (!result.Success && result.Message != "") {
		return result
	}
	return classifyAgentOutput(result.Output)
}

// agentCommand builds the headless invocation for each supported agent CLI.
func agentCommand(executor, prompt string, autoApprove bool) (string, []string) {
	switch executor {
	case db.ExecutorCodex:
		args := []string{"exec"}
		if autoApprove {
			args = append(args, "--full-auto")
		}
		return "codex", append(args, prompt)
	case db.ExecutorGemini:
		var args []string
		if autoApprove {
			args = append(args, "--dangerously-allow-run")
		}
		return "gemini", append(args, "-p", prompt)
	case db.ExecutorOpencode:
		return "opencode", []string{"run", prompt}
	default:
		var args []string
		if autoApprove {
			args = append(args, "--dangerously-skip-permissions")
		}
		return "claude", append(args, "-p", prompt)
	}
}

// agentPrompt appends the marker protocol so sessions always end
// classifiable.
func agentPrompt(prompt string) string {
	return fmt.Sprintf(`%s

When you are completely done, output %s on its own line.
If you are blocked and need an answer from the user, output %s followed by your question on one line, then stop.`,
		strings.TrimSpace(prompt), markerComplete, markerNeedsInput)
}

// classifyAgentOutput scans the session output for protocol markers.
// NEEDS_INPUT wins over TASK_COMPLETE; a clean exit with no marker counts as
// complete.
func classifyAgentOutput(output string) Result {
	for _, line := range strings.Split(output, "\n") {
		if idx := strings.Index(line, markerNeedsInput); idx >= 0 {
			question := strings.TrimSpace(line[idx+len(markerNeedsInput):])
			return Result{NeedsInput: true, Message: question, Output: output}
		}
	}
	return Result{Success: true, Output: output}
}
