package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/projectgate/internal/adapters/workspace/memory"
	"github.com/jbctechsolutions/projectgate/internal/application/project"
	"github.com/jbctechsolutions/projectgate/internal/domain/command"
	"github.com/jbctechsolutions/projectgate/internal/domain/version"
	"github.com/jbctechsolutions/projectgate/internal/presentation/cli/output"
)

const shellHelp = `Commands:
  open <project>            open a project and make it current
  close                     close the current project
  nodes [version]           list the nodes of the current or a fixed version
  add <id> [name]           add a node
  move <dx> <dy> <id>...    move nodes by a delta
  rename <id> <name>        rename a node
  delete <id>...            delete nodes
  undo | redo               undo or redo your last edit
  history                   show undo and redo depths
  sync                      save and upload now
  state                     show the sync state
  auto on|off               turn automatic sync on or off
  snapshot [label]          create a fixed version
  versions                  list fixed versions
  help                      show this help
  quit                      leave the shell`

// NewShellCmd creates the interactive edit shell.
func NewShellCmd() *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "shell [project]",
		Short: "Interactive edit shell",
		Long: `Start an interactive shell for editing projects.

Edits made in the shell share one undo/redo history per project,
identified by --scope. Open projects are flushed when the shell exits.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, scope, args)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "shell", "undo/redo scope of this shell")

	return cmd
}

func runShell(cmd *cobra.Command, scope string, args []string) error {
	container := GetContainer()
	if container == nil {
		return fmt.Errorf("application not initialized")
	}
	ctx := cmd.Context()
	sh := newShell(container.Projects(), GetFormatter(), scope)

	if len(args) == 1 {
		if _, err := sh.exec(ctx, "open "+args[0]); err != nil {
			return err
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          sh.prompt(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete:    shellCompleter(),
	})
	if err != nil {
		return fmt.Errorf("could not create readline: %w", err)
	}
	defer rl.Close()

	sh.f.Info("Type 'help' for commands")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		quit, err := sh.exec(ctx, line)
		if err != nil {
			sh.f.Error("%s", err.Error())
		}
		if quit || ctx.Err() != nil {
			return nil
		}
		rl.SetPrompt(sh.prompt())
	}
}

func shellCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("open"),
		readline.PcItem("close"),
		readline.PcItem("nodes"),
		readline.PcItem("add"),
		readline.PcItem("move"),
		readline.PcItem("rename"),
		readline.PcItem("delete"),
		readline.PcItem("undo"),
		readline.PcItem("redo"),
		readline.PcItem("history"),
		readline.PcItem("sync"),
		readline.PcItem("state"),
		readline.PcItem("auto", readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem("snapshot"),
		readline.PcItem("versions"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

// shell is the state of an interactive session.
type shell struct {
	projects *project.Manager
	f        *output.Formatter
	scope    string
	current  string
}

func newShell(projects *project.Manager, f *output.Formatter, scope string) *shell {
	return &shell{projects: projects, f: f, scope: scope}
}

func (s *shell) prompt() string {
	if s.current == "" {
		return "pgate> "
	}
	return "pgate:" + s.current + "> "
}

// exec runs one shell line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "quit", "exit":
		return true, nil
	case "help", "?":
		return false, s.f.Println("%s", shellHelp)
	case "open":
		return false, s.open(ctx, args)
	}

	if s.current == "" {
		return false, fmt.Errorf("no project open, use 'open <project>'")
	}

	switch name {
	case "close":
		if err := s.projects.Close(ctx, s.current); err != nil {
			return false, err
		}
		s.f.Success("Closed %s", s.current)
		s.current = ""
		return false, nil
	case "nodes", "ls":
		return false, s.nodes(ctx, args)
	case "add":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: add <id> [name]")
		}
		return false, s.apply(ctx, memory.KindAdd, map[string]any{"id": args[0], "name": strings.Join(args[1:], " ")})
	case "move":
		if len(args) < 3 {
			return false, fmt.Errorf("usage: move <dx> <dy> <id>...")
		}
		dx, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return false, fmt.Errorf("invalid dx %q", args[0])
		}
		dy, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return false, fmt.Errorf("invalid dy %q", args[1])
		}
		return false, s.apply(ctx, memory.KindTranslate, map[string]any{"ids": args[2:], "dx": dx, "dy": dy})
	case "rename":
		if len(args) < 2 {
			return false, fmt.Errorf("usage: rename <id> <name>")
		}
		return false, s.apply(ctx, memory.KindRename, map[string]any{"id": args[0], "name": strings.Join(args[1:], " ")})
	case "delete", "rm":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: delete <id>...")
		}
		return false, s.apply(ctx, memory.KindDelete, map[string]any{"ids": args})
	case "undo":
		if err := s.projects.Undo(ctx, s.current, s.scope); err != nil {
			return false, err
		}
		return false, s.history()
	case "redo":
		if err := s.projects.Redo(ctx, s.current, s.scope); err != nil {
			return false, err
		}
		return false, s.history()
	case "history":
		return false, s.history()
	case "sync":
		syncErr := s.projects.SyncNow(ctx, s.current)
		if err := s.state(); err != nil {
			return false, err
		}
		return false, syncErr
	case "state":
		return false, s.state()
	case "auto":
		return false, s.auto(ctx, args)
	case "snapshot":
		var label string
		if len(args) > 0 {
			label = args[0]
		}
		info, err := s.projects.CreateVersion(ctx, s.current, label)
		if err != nil {
			return false, err
		}
		return false, s.f.Success("Created v%s", info.Label)
	case "versions":
		versions, err := s.projects.ListVersions(ctx, s.current)
		if err != nil {
			return false, err
		}
		return false, s.f.Table(*output.VersionsTable(versions, time.Now()))
	default:
		return false, fmt.Errorf("unknown command %q, type 'help'", name)
	}
}

func (s *shell) open(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: open <project>")
	}
	id := args[0]
	if !s.projects.IsOpen(id) {
		if _, err := s.projects.Open(ctx, id); err != nil {
			return err
		}
	}
	s.current = id
	return s.f.Success("Opened %s", id)
}

func (s *shell) apply(ctx context.Context, kind command.Kind, args map[string]any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	if err := s.projects.Apply(ctx, s.current, s.scope, command.Spec{Kind: kind, Args: raw}); err != nil {
		return err
	}
	return s.history()
}

func (s *shell) nodes(ctx context.Context, args []string) error {
	v := version.Current
	if len(args) > 0 {
		parsed, err := version.Parse(args[0])
		if err != nil {
			return err
		}
		v = parsed
	}
	h, err := s.projects.Workspace(ctx, s.current, v)
	if err != nil {
		return err
	}
	doc, ok := h.(*memory.Document)
	if !ok {
		return fmt.Errorf("workspace %s cannot be listed", v)
	}

	table := output.TableData{Headers: []string{"ID", "NAME", "X", "Y"}}
	for _, n := range doc.Nodes() {
		table.Rows = append(table.Rows, []string{
			n.ID, n.Name,
			strconv.FormatFloat(n.X, 'g', -1, 64),
			strconv.FormatFloat(n.Y, 'g', -1, 64),
		})
	}
	return s.f.Table(table)
}

func (s *shell) history() error {
	undo, redo, err := s.projects.History(s.current, s.scope)
	if err != nil {
		return err
	}
	return s.f.Println("%s", s.f.Dim(fmt.Sprintf("undo %d, redo %d", undo, redo)))
}

func (s *shell) state() error {
	snap, err := s.projects.SyncState(s.current)
	if err != nil {
		return err
	}
	return s.f.SyncState(s.current, snap)
}

func (s *shell) auto(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: auto on|off")
	}
	switch args[0] {
	case "on":
		if _, err := s.projects.EnableSync(ctx, s.current); err != nil {
			return err
		}
		return s.f.Success("Automatic sync on")
	case "off":
		if err := s.projects.DisableSync(s.current); err != nil {
			return err
		}
		return s.f.Success("Automatic sync off")
	default:
		return fmt.Errorf("usage: auto on|off")
	}
}
