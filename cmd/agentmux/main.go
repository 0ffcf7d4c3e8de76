package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/twistedxcom/agentmux/internal/config"
	"github.com/twistedxcom/agentmux/internal/logging"
	"github.com/twistedxcom/agentmux/internal/mux"
	"github.com/twistedxcom/agentmux/internal/procrun"
	"github.com/twistedxcom/agentmux/internal/session"
)

const Version = "0.3.0"

func init() {
	initColorProfile()
}

// initColorProfile configures lipgloss based on terminal capabilities, with
// an AGENTMUX_COLOR override (truecolor, 256, 16, none).
func initColorProfile() {
	switch strings.ToLower(os.Getenv("AGENTMUX_COLOR")) {
	case "truecolor", "true", "24bit":
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	case "256", "ansi256":
		lipgloss.SetColorProfile(termenv.ANSI256)
		return
	case "16", "ansi", "basic":
		lipgloss.SetColorProfile(termenv.ANSI)
		return
	case "none", "off", "ascii":
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}

	if ct := os.Getenv("COLORTERM"); ct == "truecolor" || ct == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}
	lipgloss.SetColorProfile(termenv.ANSI256)
}

// app bundles the wired-up components every subcommand needs.
type app struct {
	cfg     *config.UserConfig
	cfgDir  string
	mux     *mux.Client
	manager *session.Manager
}

func newApp() (*app, error) {
	cfgDir, err := config.Dir()
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}

	logDir := ""
	if cfg.Log.Debug {
		logDir = cfgDir
	}
	logging.Init(logging.Config{
		Debug:      cfg.Log.Debug,
		LogDir:     logDir,
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	runner := procrun.NewExecRunner()
	client := mux.NewClient(runner, cfg.Tmux.GetBinary())
	client.SetEnvironment(os.Environ())
	store := session.NewStore(session.DefaultStorePath(cfgDir))
	manager := session.NewManager(client, store)
	if err := manager.Load(); err != nil {
		return nil, err
	}

	return &app{cfg: cfg, cfgDir: cfgDir, mux: client, manager: manager}, nil
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printHelp()
		return
	}

	// hook-handler runs before any app wiring: it must stay cheap and must
	// never fail visibly, it runs inside every managed agent turn.
	if args[0] == "hook-handler" {
		runHookHandler()
		return
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Printf("agentmux v%s\n", Version)
	case "help", "--help", "-h":
		printHelp()
	case "add", "new":
		runApp(handleAdd, args[1:])
	case "list", "ls":
		runApp(handleList, args[1:])
	case "rename":
		runApp(handleRename, args[1:])
	case "kill", "rm":
		runApp(handleKill, args[1:])
	case "attach":
		runApp(handleAttach, args[1:])
	case "hooks":
		handleHooks(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "agentmux: unknown command %q\n\n", args[0])
		printHelp()
		os.Exit(1)
	}
}

// runApp wires the app, runs one subcommand handler, and flushes logs.
func runApp(fn func(*app, []string) error, args []string) {
	a, err := newApp()
	if err != nil {
		fatal(err)
	}
	defer logging.Shutdown()
	logging.ForComponent(logging.CompCLI).Debug("command", "args", os.Args[1:])
	if err := fn(a, args); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "agentmux: %v\n", err)
	if dir, derr := config.Dir(); derr == nil {
		_ = logging.DumpRingBuffer(filepath.Join(dir, "crash.log"))
	}
	logging.Shutdown()
	os.Exit(1)
}

func printHelp() {
	fmt.Print(`agentmux - terminal agent session manager

Usage:
  agentmux add [-t task] [-m model] [--skip-permissions] [dir]
                              Launch a new agent session
  agentmux list               List managed sessions
  agentmux rename <id> <task> Rename a session's task
  agentmux kill <id>          Kill a session
  agentmux attach <id>        Attach the current terminal to a session
  agentmux hooks install      Install agent hooks for state reporting
  agentmux version            Print version

The <id> argument accepts a full session ID, its 8-character suffix, or the
external session name. Task text is fuzzy-matched when no ID matches.
`)
}
