// Package main is the CLI entry point for plumb — a rule-driven router for
// file paths and text, modeled after Plan 9's plumber.
//
// Each argument (or filesystem event, in watch mode) becomes a routable
// item; the rule program from ~/.config/plumb_rules decides what happens to
// it. Matching rules schedule copy/move operations, which are resolved in
// dependency order and printed as shell commands (dry-run, the default) or
// executed (--live).
//
// CLI commands (cobra):
//
//	plumb [paths...]        - Route the given paths or strings
//	plumb file [paths...]   - Same, with --wdir to set the working directory
//	plumb check             - Parse the rule file; --verbose dumps the AST
//	plumb watch DIR         - Route files as they appear in DIR
//	plumb journal           - Query the routing journal
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/plumbkit/plumb/internal/config"
	"github.com/plumbkit/plumb/internal/journal"
	"github.com/plumbkit/plumb/internal/lang"
	"github.com/plumbkit/plumb/internal/route"
	"github.com/plumbkit/plumb/internal/sched"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ============================================================================
// Root command
// ============================================================================

var (
	configDir string
	rulesFlag string
)

var rootCmd = &cobra.Command{
	Use:   "plumb [paths...]",
	Short: "plumb — rule-driven file and message router",
	Long: `plumb routes file paths and text through a user-written rule program.
Rules match on globs, regexes, file content and stat type, and schedule
copy/move operations that are emitted as shell commands in dependency
order. The default is a dry run; pass --live to execute.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	Args:    cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFile(args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configDir, "config-dir", config.DefaultDir(),
		"Path to the plumb config directory")
	rootCmd.PersistentFlags().StringVar(
		&rulesFlag, "rules", "",
		"Rule file path (overrides config)")

	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(journalCmd)
}

// loadConfig applies the --rules override on top of config.yaml.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	if rulesFlag != "" {
		cfg.Rules = rulesFlag
	}
	return cfg, nil
}

// loadProgram reads and compiles the rule file.
func loadProgram(cfg *config.Config) (*lang.Program, error) {
	data, err := os.ReadFile(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	prog, err := lang.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Rules, err)
	}
	return prog, nil
}

// execRunner hands a scheduled command to the system shell environment.
// This is the live-mode executor contract; dry-run never calls it.
func execRunner(argv []string) error {
	c := exec.Command(argv[0], argv[1:]...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}

// openJournal opens the configured journal, or returns nil when disabled.
// Journal failures degrade to logging; they never fail the run.
func openJournal(cfg *config.Config) *journal.Journal {
	if !cfg.Journal.Enabled {
		return nil
	}
	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		slog.Error("journal unavailable", "error", err)
		return nil
	}
	return j
}

// ============================================================================
// plumb / plumb file — route arguments
// ============================================================================

var (
	wdirFlag string
	liveFlag bool
)

var fileCmd = &cobra.Command{
	Use:   "file [paths...]",
	Short: "Route the given paths or strings through the rule program",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFile(args)
	},
}

func init() {
	fileCmd.Flags().StringVar(&wdirFlag, "wdir", "", "Working directory for resolving relative paths")
	fileCmd.Flags().BoolVar(&liveFlag, "live", false, "Execute scheduled commands instead of printing them")
	rootCmd.Flags().BoolVar(&liveFlag, "live", false, "Execute scheduled commands instead of printing them")
}

// runFile routes each argument through one shared session, then flushes
// the accumulated operations. A runtime error only abandons the routable
// it hit; parse and scheduler errors fail the process.
func runFile(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prog, err := loadProgram(cfg)
	if err != nil {
		return err
	}

	queue := sched.NewQueue(os.Stdout)
	if liveFlag || !cfg.DryRun {
		queue.Runner = execRunner
	}
	sess, err := route.NewSession(prog, queue)
	if err != nil {
		return err
	}

	j := openJournal(cfg)
	if j != nil {
		defer j.Close()
	}

	for _, arg := range args {
		r := route.NewRoutable(arg, wdirFlag)
		if j != nil {
			j.RecordRoute(arg, r.Type)
		}
		if err := sess.Route(r); err != nil {
			slog.Error("routing failed", "item", arg, "error", err)
		}
	}

	if err := sess.Finalize(); err != nil {
		return err
	}
	if j != nil {
		for _, argv := range queue.Emitted {
			j.RecordCommand(sched.QuoteCommand(argv))
		}
	}
	return nil
}

// ============================================================================
// plumb check — validate the rule file
// ============================================================================

var verboseFlag bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Parse the rule file and report errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		prog, err := loadProgram(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d commands, %d grep sites\n", cfg.Rules, len(prog.Commands), len(prog.Greps))
		if verboseFlag {
			fmt.Print(prog.Dump())
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Dump the parsed program")
}

// ============================================================================
// plumb watch — route filesystem events
// ============================================================================

var watchLive bool

var watchCmd = &cobra.Command{
	Use:   "watch DIR",
	Short: "Route files as they are created or moved into DIR",
	Long: `Watch DIR for created and renamed files and route each one through the
rule program as it appears. The rule file itself is also watched: edits
re-parse it and replace the active program atomically.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(args[0])
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchLive, "live", false, "Execute scheduled commands instead of printing them")
}

func runWatch(target string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prog, err := loadProgram(cfg)
	if err != nil {
		return err
	}
	if !cfg.DryRun {
		watchLive = true
	}

	// The active program is swapped wholesale on rule-file change; each
	// event routes against whichever program is current when it fires.
	var mu sync.Mutex
	current := prog

	rw, err := config.NewRulesWatcher(cfg.Rules, func() {
		next, err := loadProgram(cfg)
		if err != nil {
			slog.Error("rule reload failed, keeping previous program", "error", err)
			return
		}
		mu.Lock()
		current = next
		mu.Unlock()
	})
	if err != nil {
		return err
	}
	defer rw.Close()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating directory watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(target); err != nil {
		return fmt.Errorf("watching %s: %w", target, err)
	}

	j := openJournal(cfg)
	if j != nil {
		defer j.Close()
	}

	slog.Info("watching", "dir", target, "rules", cfg.Rules)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// New subdirectories join the watch so files appearing
			// under them are routed too.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := fw.Add(event.Name); err != nil {
					slog.Error("watching new directory failed", "dir", event.Name, "error", err)
				}
				continue
			}
			mu.Lock()
			p := current
			mu.Unlock()
			routeEvent(p, event.Name, j)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Error("directory watcher error", "error", err)

		case <-sig:
			return nil
		}
	}
}

// routeEvent runs one watched path through a fresh session and flushes it
// immediately, matching batch-mode behavior one item at a time.
func routeEvent(prog *lang.Program, path string, j *journal.Journal) {
	queue := sched.NewQueue(os.Stdout)
	if watchLive {
		queue.Runner = execRunner
	}
	sess, err := route.NewSession(prog, queue)
	if err != nil {
		slog.Error("session setup failed", "error", err)
		return
	}
	r := route.NewRoutable(path, "")
	if j != nil {
		j.RecordRoute(path, r.Type)
	}
	if err := sess.Route(r); err != nil {
		slog.Error("routing failed", "item", path, "error", err)
	}
	if err := sess.Finalize(); err != nil {
		slog.Error("flush failed", "item", path, "error", err)
	}
	if j != nil {
		for _, argv := range queue.Emitted {
			j.RecordCommand(sched.QuoteCommand(argv))
		}
	}
}

// ============================================================================
// plumb journal — query past sessions
// ============================================================================

var (
	journalEvent string
	journalLimit int
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the routing journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()

		entries, err := j.Query(journal.QueryParams{Event: journalEvent, Limit: journalLimit})
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Type != "" {
				fmt.Printf("%s  %-8s %s (%s)\n", e.TS, e.Event, e.Data, e.Type)
			} else {
				fmt.Printf("%s  %-8s %s\n", e.TS, e.Event, e.Data)
			}
		}
		return nil
	},
}

func init() {
	journalCmd.Flags().StringVar(&journalEvent, "event", "", `Filter by event ("route" or "command")`)
	journalCmd.Flags().IntVar(&journalLimit, "limit", 50, "Maximum entries to print")
}
