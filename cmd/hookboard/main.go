// hookboard is the local CLI for managing boards, hooks, and tasks.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/hookboard/hookboard/internal/config"
	"github.com/hookboard/hookboard/internal/db"
	"github.com/hookboard/hookboard/internal/events"
	"github.com/hookboard/hookboard/internal/syshook"
)

var (
	version = "dev"

	// Styles for CLI output
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+msg))
	os.Exit(1)
}

func openDB() *db.DB {
	database, err := db.Open(db.DefaultPath())
	if err != nil {
		fatal(err.Error())
	}
	return database
}

func defaultAddr() string {
	if addr := os.Getenv("HOOKBOARD_ADDR"); addr != "" {
		return addr
	}
	return "http://localhost:4444"
}

// daemonClient talks to a running hookboardd. Mutating commands prefer the
// daemon so hooks fire synchronously; most fall back to direct database
// access, which the daemon's watcher adopts.
type daemonClient struct {
	base string
}

func newDaemonClient(addr string) *daemonClient {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &daemonClient{base: strings.TrimRight(addr, "/")}
}

// do sends one JSON request. reachable is false when no daemon answered at
// all; err carries the daemon's error body otherwise.
func (c *daemonClient) do(method, path string, body, out interface{}) (reachable bool, err error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return true, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return true, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return true, errors.New(apiErr.Error)
		}
		return true, fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out != nil {
		return true, json.NewDecoder(resp.Body).Decode(out)
	}
	io.Copy(io.Discard, resp.Body)
	return true, nil
}

// resolveBoard accepts a board name or numeric ID.
func resolveBoard(database *db.DB, ref string) *db.Board {
	board, err := database.GetBoardByName(ref)
	if err != nil {
		fatal(err.Error())
	}
	if board == nil {
		var id int64
		if _, err := fmt.Sscanf(ref, "%d", &id); err == nil {
			board, err = database.GetBoard(id)
			if err != nil {
				fatal(err.Error())
			}
		}
	}
	if board == nil {
		fatal(fmt.Sprintf("Board %q not found", ref))
	}
	return board
}

// resolveColumn accepts a column name or numeric ID within a board.
func resolveColumn(database *db.DB, board *db.Board, ref string) *db.Column {
	column, err := database.FindColumnByName(board.ID, ref)
	if err != nil {
		fatal(err.Error())
	}
	if column == nil {
		var id int64
		if _, err := fmt.Sscanf(ref, "%d", &id); err == nil {
			column, err = database.GetColumn(id)
			if err != nil {
				fatal(err.Error())
			}
			if column != nil && column.BoardID != board.ID {
				column = nil
			}
		}
	}
	if column == nil {
		fatal(fmt.Sprintf("Column %q not found on board %s", ref, board.Name))
	}
	return column
}

func parseTaskID(arg string) int64 {
	var id int64
	if _, err := fmt.Sscanf(arg, "%d", &id); err != nil {
		fatal("Invalid task ID: " + arg)
	}
	return id
}

// parseSettings turns repeated key=value flags into a settings map.
func parseSettings(pairs []string) map[string]interface{} {
	if len(pairs) == 0 {
		return nil
	}
	settings := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			fatal(fmt.Sprintf("Invalid setting %q (want key=value)", pair))
		}
		settings[key] = value
	}
	return settings
}

func renderStatus(status string) string {
	switch status {
	case db.ExecStatusCompleted:
		return successStyle.Render(status)
	case db.ExecStatusFailed, db.AgentStatusError:
		return errorStyle.Render(status)
	case db.ExecStatusRunning:
		return boldStyle.Render(status)
	case db.ExecStatusCancelled, db.ExecStatusSkipped, db.AgentStatusIdle:
		return dimStyle.Render(status)
	default:
		return status
	}
}

func main() {
	var apiAddr string

	rootCmd := &cobra.Command{
		Use:   "hookboard",
		Short: "Task board hook engine",
		Long: `Boards whose columns run hooks when tasks enter them.

The daemon (hookboardd) executes hooks. Mutating commands talk to it when
it is running; otherwise they write the database directly and a running
daemon adopts the change.`,
		Version: version,
	}
	rootCmd.SetVersionTemplate(`{{.Version}}
`)
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", defaultAddr(), "Daemon API address")

	// Board subcommands
	boardCmd := &cobra.Command{
		Use:   "board",
		Short: "Manage boards",
	}

	boardCreateCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a board",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			projectDir, _ := cmd.Flags().GetString("project")

			database := openDB()
			defer database.Close()

			if existing, err := database.GetBoardByName(args[0]); err != nil {
				fatal(err.Error())
			} else if existing != nil {
				fatal(fmt.Sprintf("Board %q already exists", args[0]))
			}

			board := &db.Board{Name: args[0], ProjectDir: projectDir}
			if err := database.CreateBoard(board); err != nil {
				fatal(err.Error())
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("Created board %s (#%d)", board.Name, board.ID)))
		},
	}
	boardCreateCmd.Flags().String("project", "", "Project directory hooks run in")
	boardCmd.AddCommand(boardCreateCmd)

	boardListCmd := &cobra.Command{
		Use:   "list",
		Short: "List boards",
		Run: func(cmd *cobra.Command, args []string) {
			outputJSON, _ := cmd.Flags().GetBool("json")

			database := openDB()
			defer database.Close()

			boards, err := database.ListBoards()
			if err != nil {
				fatal(err.Error())
			}

			if outputJSON {
				data, _ := json.MarshalIndent(boards, "", "  ")
				fmt.Println(string(data))
				return
			}
			if len(boards) == 0 {
				fmt.Println(dimStyle.Render("No boards found"))
				return
			}
			for _, b := range boards {
				line := fmt.Sprintf("#%-3d %s", b.ID, boldStyle.Render(b.Name))
				if b.ProjectDir != "" {
					line += "  " + dimStyle.Render(b.ProjectDir)
				}
				fmt.Println(line)
			}
		},
	}
	boardListCmd.Flags().Bool("json", false, "Output in JSON format")
	boardCmd.AddCommand(boardListCmd)
	rootCmd.AddCommand(boardCmd)

	// Column subcommands
	columnCmd := &cobra.Command{
		Use:   "column",
		Short: "Manage board columns",
	}

	columnAddCmd := &cobra.Command{
		Use:   "add <board> <name>",
		Short: "Add a column to a board",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			role, _ := cmd.Flags().GetString("role")

			database := openDB()
			defer database.Close()

			board := resolveBoard(database, args[0])
			existing, err := database.ListColumns(board.ID)
			if err != nil {
				fatal(err.Error())
			}

			column := &db.Column{BoardID: board.ID, Name: args[1], Position: len(existing), Role: role}
			if err := database.CreateColumn(column); err != nil {
				fatal(err.Error())
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("Added column %s to %s", column.Name, board.Name)))
		},
	}
	columnAddCmd.Flags().String("role", "", "Column role (in_progress, review, done)")
	columnCmd.AddCommand(columnAddCmd)

	columnListCmd := &cobra.Command{
		Use:   "list <board>",
		Short: "List a board's columns",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			database := openDB()
			defer database.Close()

			board := resolveBoard(database, args[0])
			columns, err := database.ListColumns(board.ID)
			if err != nil {
				fatal(err.Error())
			}
			if len(columns) == 0 {
				fmt.Println(dimStyle.Render("No columns found"))
				return
			}
			for _, c := range columns {
				bindings, err := database.ListColumnHooks(c.ID)
				if err != nil {
					fatal(err.Error())
				}
				line := fmt.Sprintf("#%-3d %s", c.ID, boldStyle.Render(c.Name))
				if c.Role != "" {
					line += "  " + dimStyle.Render("("+c.Role+")")
				}
				line += "  " + dimStyle.Render(fmt.Sprintf("%d hooks", len(bindings)))
				fmt.Println(line)
			}
		},
	}
	columnCmd.AddCommand(columnListCmd)

	columnHooksCmd := &cobra.Command{
		Use:   "hooks <board> <column>",
		Short: "List a column's hook bindings in execution order",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			database := openDB()
			defer database.Close()

			board := resolveBoard(database, args[0])
			column := resolveColumn(database, board, args[1])
			bindings, err := database.ListColumnHooks(column.ID)
			if err != nil {
				fatal(err.Error())
			}
			if len(bindings) == 0 {
				fmt.Println(dimStyle.Render("No hooks bound"))
				return
			}

			registry := syshook.NewRegistry()
			for i, ch := range bindings {
				name := ch.HookID
				if syshook.IsSystemHookID(ch.HookID) {
					if h, err := registry.Get(ch.HookID); err == nil {
						name = h.Name
					}
				} else if h, err := database.GetHook(ch.HookID); err == nil && h != nil {
					name = h.Name
				} else {
					name = ch.HookID + " " + errorStyle.Render("(deleted)")
				}

				var notes []string
				if ch.ExecuteOnce {
					notes = append(notes, "once")
				}
				if ch.Transparent {
					notes = append(notes, "transparent")
				}
				if !ch.Removable {
					notes = append(notes, "fixed")
				}
				line := fmt.Sprintf("%d. %s", i+1, boldStyle.Render(name))
				if len(notes) > 0 {
					line += "  " + dimStyle.Render(strings.Join(notes, ", "))
				}
				if len(ch.Settings) > 0 {
					line += "  " + dimStyle.Render(fmt.Sprintf("%v", ch.Settings))
				}
				line += "  " + dimStyle.Render(ch.ID)
				fmt.Println(line)
			}
		},
	}
	columnCmd.AddCommand(columnHooksCmd)
	rootCmd.AddCommand(columnCmd)

	// Hook subcommands
	hookCmd := &cobra.Command{
		Use:   "hook",
		Short: "Manage hook definitions",
	}

	hookAddCmd := &cobra.Command{
		Use:   "add <board> <name>",
		Short: "Define a hook on a board",
		Long: `Define a reusable hook on a board.

Examples:
  hookboard hook add webapp Lint --command "make lint"
  hookboard hook add webapp Tests --command "make test" --run-root worktree --timeout 300
  hookboard hook add webapp Implement --kind agent --prompt "Implement {task_title}" --auto-approve`,
		Args: cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			kind, _ := cmd.Flags().GetString("kind")
			command, _ := cmd.Flags().GetString("command")
			runRoot, _ := cmd.Flags().GetString("run-root")
			timeout, _ := cmd.Flags().GetInt("timeout")
			prompt, _ := cmd.Flags().GetString("prompt")
			executor, _ := cmd.Flags().GetString("executor")
			autoApprove, _ := cmd.Flags().GetBool("auto-approve")

			if (kind == "" || kind == db.KindScript) && command == "" {
				fatal("Script hooks need --command")
			}
			if kind == db.KindAgent && prompt == "" {
				fatal("Agent hooks need --prompt")
			}

			database := openDB()
			defer database.Close()

			board := resolveBoard(database, args[0])
			hook := &db.Hook{
				BoardID:          board.ID,
				Name:             args[1],
				Kind:             kind,
				Command:          command,
				RunRoot:          runRoot,
				TimeoutSeconds:   timeout,
				AgentPrompt:      prompt,
				AgentExecutor:    executor,
				AgentAutoApprove: autoApprove,
			}
			if err := database.CreateHook(hook); err != nil {
				fatal(err.Error())
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("Created hook %s on %s", hook.Name, board.Name)))
			fmt.Println(dimStyle.Render("  id: " + hook.ID))
		},
	}
	hookAddCmd.Flags().String("kind", "", "Hook kind: script (default) or agent")
	hookAddCmd.Flags().String("command", "", "Shell command for script hooks")
	hookAddCmd.Flags().String("run-root", "", "Working directory: project (default) or worktree")
	hookAddCmd.Flags().Int("timeout", 0, "Timeout in seconds (0 = engine default)")
	hookAddCmd.Flags().String("prompt", "", "Prompt template for agent hooks")
	hookAddCmd.Flags().String("executor", "", "Agent executor: claude (default), codex, gemini, opencode")
	hookAddCmd.Flags().Bool("auto-approve", false, "Agent hooks skip permission prompts")
	hookCmd.AddCommand(hookAddCmd)

	hookListCmd := &cobra.Command{
		Use:   "list <board>",
		Short: "List a board's hooks and the system catalog",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			database := openDB()
			defer database.Close()

			board := resolveBoard(database, args[0])
			hooks, err := database.ListHooks(board.ID)
			if err != nil {
				fatal(err.Error())
			}

			if len(hooks) == 0 {
				fmt.Println(dimStyle.Render("No hooks defined"))
			} else {
				fmt.Println(boldStyle.Render(fmt.Sprintf("Hooks on %s (%d)", board.Name, len(hooks))))
				for _, h := range hooks {
					detail := h.Command
					if h.Kind == db.KindAgent {
						detail = h.AgentExecutor + ": " + h.AgentPrompt
					}
					fmt.Printf("%s  %s  %s\n", boldStyle.Render(h.Name), dimStyle.Render(h.Kind), dimStyle.Render(detail))
				}
			}

			fmt.Println()
			fmt.Println(boldStyle.Render("System hooks"))
			for _, h := range syshook.NewRegistry().All() {
				fmt.Printf("%s  %s\n", boldStyle.Render(h.ID), dimStyle.Render(h.Description))
			}
		},
	}
	hookCmd.AddCommand(hookListCmd)
	rootCmd.AddCommand(hookCmd)

	// Bind subcommand - attach a hook to a column
	bindCmd := &cobra.Command{
		Use:   "bind <board> <column> <hook>",
		Short: "Bind a hook to a column",
		Long: `Bind a hook to a column so it runs when tasks enter.

The hook is a hook name or a system identifier (system.play_sound,
system.create_branch, ...).

Examples:
  hookboard bind webapp "In Progress" Tests
  hookboard bind webapp "In Progress" Implement --once
  hookboard bind webapp Review system.play_sound --setting sound=gong
  hookboard bind webapp Done Lint --transparent`,
		Args: cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			position, _ := cmd.Flags().GetInt("position")
			once, _ := cmd.Flags().GetBool("once")
			transparent, _ := cmd.Flags().GetBool("transparent")
			settingPairs, _ := cmd.Flags().GetStringArray("setting")

			database := openDB()
			defer database.Close()

			board := resolveBoard(database, args[0])
			column := resolveColumn(database, board, args[1])

			hookID := args[2]
			if syshook.IsSystemHookID(hookID) {
				if _, err := syshook.NewRegistry().Get(hookID); err != nil {
					fatal(fmt.Sprintf("Unknown system hook %q", hookID))
				}
			} else {
				hook, err := database.FindHookByName(board.ID, hookID)
				if err != nil {
					fatal(err.Error())
				}
				if hook == nil {
					fatal(fmt.Sprintf("Hook %q not found on board %s", hookID, board.Name))
				}
				hookID = hook.ID
			}

			if position < 0 {
				existing, err := database.ListColumnHooks(column.ID)
				if err != nil {
					fatal(err.Error())
				}
				position = len(existing)
			}

			binding := &db.ColumnHook{
				ColumnID:    column.ID,
				HookID:      hookID,
				Position:    position,
				ExecuteOnce: once,
				Transparent: transparent,
				Removable:   true,
				Settings:    parseSettings(settingPairs),
			}
			if err := database.CreateColumnHook(binding); err != nil {
				fatal(err.Error())
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("Bound %s to %s at position %d", args[2], column.Name, position)))
			fmt.Println(dimStyle.Render("  binding: " + binding.ID))
		},
	}
	bindCmd.Flags().Int("position", -1, "Position in the column's hook order (default: append)")
	bindCmd.Flags().Bool("once", false, "Run at most once per task")
	bindCmd.Flags().Bool("transparent", false, "Failures do not block the task")
	bindCmd.Flags().StringArray("setting", nil, "Binding setting as key=value (repeatable)")
	rootCmd.AddCommand(bindCmd)

	// Unbind subcommand - remove a binding
	unbindCmd := &cobra.Command{
		Use:   "unbind <binding-id>",
		Short: "Remove a hook binding from its column",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			database := openDB()
			defer database.Close()

			err := database.DeleteColumnHook(args[0])
			switch {
			case errors.Is(err, db.ErrHookNotFound):
				fatal("Binding not found")
			case errors.Is(err, db.ErrHookNotRemovable):
				fatal("Binding is not removable")
			case err != nil:
				fatal(err.Error())
			}
			fmt.Println(successStyle.Render("Unbound hook"))
		},
	}
	rootCmd.AddCommand(unbindCmd)

	// Task subcommands
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	taskAddCmd := &cobra.Command{
		Use:   "add <board> <column> <title>",
		Short: "Create a task in a column",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			body, _ := cmd.Flags().GetString("body")

			database := openDB()
			board := resolveBoard(database, args[0])
			column := resolveColumn(database, board, args[1])
			database.Close()

			client := newDaemonClient(apiAddr)
			var created struct {
				ID int64 `json:"id"`
			}
			reachable, err := client.do("POST", "/tasks", map[string]interface{}{
				"board_id":  board.ID,
				"column_id": column.ID,
				"title":     args[2],
				"body":      body,
			}, &created)
			if reachable {
				if err != nil {
					fatal(err.Error())
				}
				fmt.Println(successStyle.Render(fmt.Sprintf("Created task #%d in %s", created.ID, column.Name)))
				return
			}

			// No daemon: write directly. Entry hooks only run for changes a
			// daemon observes, so say so.
			database = openDB()
			defer database.Close()
			task := &db.Task{BoardID: board.ID, ColumnID: column.ID, Title: args[2], Body: body}
			if err := database.CreateTask(task); err != nil {
				fatal(err.Error())
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("Created task #%d in %s", task.ID, column.Name)))
			fmt.Println(dimStyle.Render("  daemon not running: column hooks were not run"))
		},
	}
	taskAddCmd.Flags().String("body", "", "Task description")
	taskCmd.AddCommand(taskAddCmd)

	taskListCmd := &cobra.Command{
		Use:   "list [board]",
		Short: "List tasks",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			outputJSON, _ := cmd.Flags().GetBool("json")

			database := openDB()
			defer database.Close()

			var (
				tasks []*db.Task
				err   error
			)
			if len(args) > 0 {
				board := resolveBoard(database, args[0])
				tasks, err = database.ListTasks(board.ID)
			} else {
				tasks, err = database.ListAllTasks()
			}
			if err != nil {
				fatal(err.Error())
			}

			if outputJSON {
				data, _ := json.MarshalIndent(tasks, "", "  ")
				fmt.Println(string(data))
				return
			}
			if len(tasks) == 0 {
				fmt.Println(dimStyle.Render("No tasks found"))
				return
			}

			// Column names, fetched once per board
			columnNames := make(map[int64]string)
			seenBoards := make(map[int64]bool)
			for _, t := range tasks {
				if seenBoards[t.BoardID] {
					continue
				}
				seenBoards[t.BoardID] = true
				columns, err := database.ListColumns(t.BoardID)
				if err != nil {
					continue
				}
				for _, c := range columns {
					columnNames[c.ID] = c.Name
				}
			}

			for _, t := range tasks {
				line := fmt.Sprintf("#%-4d %-36s %-14s %s",
					t.ID, t.Title, columnNames[t.ColumnID], renderStatus(t.AgentStatus))
				if t.AgentStatusMessage != "" {
					line += "  " + dimStyle.Render(t.AgentStatusMessage)
				}
				fmt.Println(line)
			}
		},
	}
	taskListCmd.Flags().Bool("json", false, "Output in JSON format")
	taskCmd.AddCommand(taskListCmd)

	taskMoveCmd := &cobra.Command{
		Use:   "move <task-id> <column>",
		Short: "Move a task to a column, running the column's hooks",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			taskID := parseTaskID(args[0])

			database := openDB()
			task, err := database.GetTask(taskID)
			if err != nil {
				fatal(err.Error())
			}
			if task == nil {
				fatal(fmt.Sprintf("Task #%d not found", taskID))
			}
			board, err := database.GetBoard(task.BoardID)
			if err != nil || board == nil {
				fatal(fmt.Sprintf("Board #%d not found", task.BoardID))
			}
			column := resolveColumn(database, board, args[1])
			database.Close()

			client := newDaemonClient(apiAddr)
			reachable, err := client.do("POST", fmt.Sprintf("/tasks/%d/move", taskID),
				map[string]int64{"column_id": column.ID}, nil)
			if reachable {
				if err != nil {
					fatal(err.Error())
				}
				fmt.Println(successStyle.Render(fmt.Sprintf("Moved #%d to %s", taskID, column.Name)))
				return
			}

			// No daemon: write directly. A daemon watching this database
			// adopts the move and runs the hooks.
			database = openDB()
			defer database.Close()
			if err := database.SetTaskColumn(taskID, column.ID); err != nil {
				fatal(err.Error())
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("Moved #%d to %s", taskID, column.Name)))
			fmt.Println(dimStyle.Render("  daemon not running: hooks run only if a daemon adopts the change"))
		},
	}
	taskCmd.AddCommand(taskMoveCmd)

	taskStopCmd := &cobra.Command{
		Use:   "stop <task-id>",
		Short: "Cancel a task's hooks and clear its error state",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			taskID := parseTaskID(args[0])

			client := newDaemonClient(apiAddr)
			reachable, err := client.do("POST", fmt.Sprintf("/tasks/%d/stop", taskID), nil, nil)
			if !reachable {
				fatal("Daemon is not running; nothing to stop")
			}
			if err != nil {
				fatal(err.Error())
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("Stopped #%d", taskID)))
		},
	}
	taskCmd.AddCommand(taskStopCmd)

	taskDeleteCmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task, cancelling its hooks and removing its worktree",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			taskID := parseTaskID(args[0])

			database := openDB()
			task, err := database.GetTask(taskID)
			database.Close()
			if err != nil {
				fatal(err.Error())
			}
			if task == nil {
				fatal(fmt.Sprintf("Task #%d not found", taskID))
			}

			force, _ := cmd.Flags().GetBool("force")
			if !force {
				fmt.Printf("Delete task #%d: %s? [y/N] ", taskID, task.Title)
				reader := bufio.NewReader(os.Stdin)
				response, _ := reader.ReadString('\n')
				response = strings.TrimSpace(strings.ToLower(response))
				if response != "y" && response != "yes" {
					fmt.Println("Cancelled")
					return
				}
			}

			client := newDaemonClient(apiAddr)
			reachable, err := client.do("DELETE", fmt.Sprintf("/tasks/%d", taskID), nil, nil)
			if reachable {
				if err != nil {
					fatal(err.Error())
				}
				fmt.Println(successStyle.Render(fmt.Sprintf("Deleted task #%d", taskID)))
				return
			}

			database = openDB()
			defer database.Close()
			if err := database.DeleteTask(taskID); err != nil {
				fatal(err.Error())
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("Deleted task #%d", taskID)))
			if task.WorktreePath != "" {
				fmt.Println(dimStyle.Render("  worktree left behind: " + task.WorktreePath))
			}
		},
	}
	taskDeleteCmd.Flags().BoolP("force", "f", false, "Skip confirmation prompt")
	taskCmd.AddCommand(taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)

	// History subcommand - show a task's execution ledger
	historyCmd := &cobra.Command{
		Use:   "history <task-id>",
		Short: "Show a task's hook execution history",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			outputJSON, _ := cmd.Flags().GetBool("json")
			taskID := parseTaskID(args[0])

			database := openDB()
			defer database.Close()

			task, err := database.GetTask(taskID)
			if err != nil {
				fatal(err.Error())
			}
			if task == nil {
				fatal(fmt.Sprintf("Task #%d not found", taskID))
			}
			executions, err := database.ListExecutions(taskID)
			if err != nil {
				fatal(err.Error())
			}

			if outputJSON {
				data, _ := json.MarshalIndent(executions, "", "  ")
				fmt.Println(string(data))
				return
			}
			if len(executions) == 0 {
				fmt.Println(dimStyle.Render("No executions recorded"))
				return
			}

			fmt.Println(boldStyle.Render(fmt.Sprintf("Execution history for #%d: %s", task.ID, task.Title)))
			fmt.Println(strings.Repeat("─", 72))
			for _, e := range executions {
				timestamp := e.QueuedAt.Time.Format("2006-01-02 15:04:05")
				line := fmt.Sprintf("%s  %-9s  %s",
					dimStyle.Render(timestamp), renderStatus(e.Status), e.HookName)
				if e.SkipReason != "" {
					line += "  " + dimStyle.Render("("+e.SkipReason+")")
				}
				fmt.Println(line)
				if e.Error != "" {
					fmt.Println(errorStyle.Render("    " + e.Error))
				}
			}
		},
	}
	historyCmd.Flags().Bool("json", false, "Output in JSON format")
	rootCmd.AddCommand(historyCmd)

	// Apply subcommand - seed a board from a YAML file
	applyCmd := &cobra.Command{
		Use:   "apply [file]",
		Short: "Apply a board file to the database",
		Long: `Apply a YAML board file, creating the board, columns, hooks, and
bindings it describes. Without an argument, looks for a board file in the
current directory. Applying the same file twice converges.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var path string
			if len(args) > 0 {
				path = args[0]
			} else {
				cwd, err := os.Getwd()
				if err != nil {
					fatal(err.Error())
				}
				path = config.FindBoardFile(cwd)
				if path == "" {
					fatal("No board file found (tried " + strings.Join(config.BoardFileNames, ", ") + ")")
				}
			}

			database := openDB()
			defer database.Close()

			board, err := config.ApplyBoardFile(database, path)
			if err != nil {
				fatal(err.Error())
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("Applied %s: board %s", path, board.Name)))
		},
	}
	rootCmd.AddCommand(applyCmd)

	// Config subcommands
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show and change daemon settings",
	}

	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current settings",
		Run: func(cmd *cobra.Command, args []string) {
			database := openDB()
			defer database.Close()

			cfg := config.New(database)
			fmt.Printf("%s %s\n", boldStyle.Render("worktrees-dir:"), cfg.WorktreesDir)
			fmt.Printf("%s %s\n", boldStyle.Render("default-sound:"), cfg.DefaultSound)
		},
	}
	configCmd.AddCommand(configShowCmd)

	configSetCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting (worktrees-dir, default-sound)",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			database := openDB()
			defer database.Close()

			cfg := config.New(database)
			var err error
			switch args[0] {
			case "worktrees-dir":
				err = cfg.SetWorktreesDir(args[1])
			case "default-sound":
				err = cfg.SetDefaultSound(args[1])
			default:
				fatal(fmt.Sprintf("Unknown setting %q (want worktrees-dir or default-sound)", args[0]))
			}
			if err != nil {
				fatal(err.Error())
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("Set %s to %s", args[0], args[1])))
		},
	}
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)

	// Watch subcommand - stream engine events from the daemon
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream hook and task events from the daemon",
		Long: `Stream engine events from the daemon as they happen.

Examples:
  hookboard watch
  hookboard watch --task 12
  hookboard watch --type hook.failed,hook.completed`,
		Run: func(cmd *cobra.Command, args []string) {
			taskID, _ := cmd.Flags().GetInt64("task")
			typeFilter, _ := cmd.Flags().GetString("type")

			wantTypes := map[string]bool{}
			for _, t := range strings.Split(typeFilter, ",") {
				if t = strings.TrimSpace(t); t != "" {
					wantTypes[t] = true
				}
			}

			client := newDaemonClient(apiAddr)
			wsURL := client.base + "/ws"
			if strings.HasPrefix(wsURL, "https://") {
				wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
			} else {
				wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
			}

			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			if err != nil {
				fatal("Daemon is not running: " + err.Error())
			}
			defer conn.Close()

			fmt.Println(dimStyle.Render("Watching events (Ctrl-C to stop)"))
			for {
				var msg struct {
					Type string       `json:"type"`
					Data events.Event `json:"data"`
				}
				if err := conn.ReadJSON(&msg); err != nil {
					fatal("Stream closed: " + err.Error())
				}
				if taskID > 0 && msg.Data.TaskID != taskID {
					continue
				}
				if len(wantTypes) > 0 && !wantTypes[msg.Type] {
					continue
				}
				printEvent(msg.Data)
			}
		},
	}
	watchCmd.Flags().Int64("task", 0, "Only events for this task")
	watchCmd.Flags().String("type", "", "Comma-separated event types")
	rootCmd.AddCommand(watchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printEvent(ev events.Event) {
	style := boldStyle
	switch ev.Type {
	case events.HookCompleted:
		style = successStyle
	case events.HookFailed:
		style = errorStyle
	case events.HookCancelled, events.HookSkipped:
		style = dimStyle
	}

	line := fmt.Sprintf("%s  %s",
		dimStyle.Render(ev.Timestamp.Format("15:04:05")),
		style.Render(fmt.Sprintf("%-14s", ev.Type)))
	if ev.TaskID != 0 {
		line += fmt.Sprintf("  #%d", ev.TaskID)
	}
	if ev.HookName != "" {
		line += "  " + ev.HookName
	}
	if ev.Status != "" && ev.Type == events.TaskStatus {
		line += "  " + renderStatus(ev.Status)
	}
	if ev.Detail != "" {
		line += "  " + dimStyle.Render(ev.Detail)
	}
	if len(ev.Effects) > 0 {
		line += "  " + dimStyle.Render(fmt.Sprintf("%v", ev.Effects))
	}
	fmt.Println(line)
}
