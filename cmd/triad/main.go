// Package main is the entry point for the triad coding agent.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/anthropics/triad/internal/agent"
	"github.com/anthropics/triad/internal/config"
	"github.com/anthropics/triad/internal/domain"
	"github.com/anthropics/triad/internal/llm"
	"github.com/anthropics/triad/internal/memory"
	"github.com/anthropics/triad/internal/orchestrator"
	"github.com/anthropics/triad/internal/store"
	"github.com/anthropics/triad/internal/tool"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes: 0 on completion whether approved or parked for review, 1 on
// cancellation or a run error, 2 on setup failure.
const (
	exitOK    = 0
	exitRun   = 1
	exitSetup = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to configuration JSON file")
	rootDir := flag.String("root", "", "override the sandbox root directory")
	multiAgent := flag.Bool("multi-agent", false, "run the planner/implementer/validator pipeline")
	jsonOut := flag.Bool("json", false, "with -multi-agent, print the aggregated result as JSON")
	listRuns := flag.Bool("runs", false, "list recent runs from the run log and exit")
	showRun := flag.String("show-run", "", "print a stored run with its events and artifacts")
	flag.Parse()

	if *showVersion {
		fmt.Printf("triad %s (commit=%s, built=%s)\n", version, commit, date)
		return exitOK
	}

	cfg, err := resolveConfig(*configPath)
	if err != nil {
		return setupError(err)
	}
	if *rootDir != "" {
		cfg.RootDir = *rootDir
	}
	if err := config.LoadEnv(cfg.EnvFile); err != nil {
		return setupError(err)
	}

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return setupError(fmt.Errorf("open run log: %w", err))
	}
	defer db.Close()

	if *listRuns {
		return printRuns(db)
	}
	if *showRun != "" {
		return printRun(db, *showRun)
	}

	key, err := config.APIKey(cfg.Provider)
	if err != nil {
		return setupError(err)
	}
	client, err := llm.DefaultRegistry().Create(llm.Options{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		APIKey:      key,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return setupError(fmt.Errorf("create model client: %w", err))
	}
	client = llm.WithRetry(client, llm.DefaultPolicy())

	sb, err := tool.NewSandbox(cfg.RootDir)
	if err != nil {
		return setupError(err)
	}
	reg := tool.DefaultRegistry(sb, cfg.CommandTimeout())
	mem := memory.NewStore()
	audit := &store.DenialLog{DB: db}
	opts := agent.Options{
		MaxTurns:      cfg.MaxTurns,
		StageTimeout:  cfg.StageTimeout(),
		LintThreshold: cfg.LintThreshold,
		SharedMemory:  cfg.SharedMemory,
	}

	// An interrupt cancels the run context; the pipeline notices between
	// stages and finalizes the run as needs_review.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("interrupt received, canceling...")
		cancel()
	}()

	request := strings.TrimSpace(strings.Join(flag.Args(), " "))

	if *multiAgent {
		if request == "" {
			fmt.Fprintln(os.Stderr, `ERROR: -multi-agent needs a request, e.g. triad -multi-agent "add input validation to the parser"`)
			return exitSetup
		}
		orch := orchestrator.New(db, agent.NewStageSet(client, reg, mem, audit, opts), orchestrator.Options{
			MaxFixIterations: cfg.MaxFixIterations,
			UsageWarnTokens:  cfg.UsageWarnTokens,
		})
		result, err := orch.Run(ctx, request)
		if result != nil {
			printResult(result, *jsonOut)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			// A key the provider rejects is a setup problem, not a run outcome.
			if domain.ErrorCode(err) == domain.ErrMissingCredentials.Code {
				return exitSetup
			}
			return exitRun
		}
		return exitOK
	}

	assistant := agent.NewAssistant(client, reg, mem, audit, opts)
	sessionID := uuid.NewString()
	if request != "" {
		res, err := assistant.Run(ctx, sessionID, request)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			if domain.ErrorCode(err) == domain.ErrMissingCredentials.Code {
				return exitSetup
			}
			return exitRun
		}
		fmt.Println(res.Text)
		return exitOK
	}
	return interact(ctx, assistant, sessionID)
}

// resolveConfig finds and loads the configuration: the -config flag, then the
// TRIAD_CONFIG env var, then auto-discovery, then the built-in defaults.
func resolveConfig(flagPath string) (*config.Config, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv("TRIAD_CONFIG")
	}
	if path == "" {
		path = discoverConfig()
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// discoverConfig looks for triad.json next to the executable, then in the cwd.
func discoverConfig() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "triad.json")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat("triad.json"); err == nil {
		return "triad.json"
	}
	return ""
}

func setupError(err error) int {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	return exitSetup
}

// interact runs the single-agent prompt loop until quit/exit/q or EOF. Errors
// inside the loop are printed and the loop continues, unless the session
// context itself ended.
func interact(ctx context.Context, assistant *agent.Stage, sessionID string) int {
	fmt.Printf("triad %s interactive session. Type 'quit' to leave.\n", version)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return exitOK
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit", "q":
			return exitOK
		}

		res, err := assistant.Run(ctx, sessionID, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			if ctx.Err() != nil {
				return exitRun
			}
			continue
		}
		fmt.Println(res.Text)
	}
}

func printResult(result *domain.Result, asJSON bool) {
	if asJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Printf("marshal result: %v", err)
			return
		}
		fmt.Println(string(data))
		return
	}

	fmt.Printf("run %s: %s after %d fix iteration(s)\n", result.RunID, result.Status, result.Iterations)
	if result.Plan != nil {
		fmt.Printf("  plan:           %d steps\n", len(result.Plan.Steps))
	}
	if result.Implementation != nil {
		fmt.Printf("  implementation: %s (%d created, %d modified)\n", result.Implementation.Status,
			len(result.Implementation.FilesCreated), len(result.Implementation.FilesModified))
	}
	if result.Validation != nil {
		fmt.Printf("  validation:     %s, quality %s (%.1f/10)\n",
			result.Validation.Status, result.Validation.OverallQuality, result.Validation.QualityScore)
	}
}

func printRuns(db *sql.DB) int {
	runs, err := (&store.RunRepo{}).ListRecent(context.Background(), db, 20)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return exitRun
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return exitOK
	}
	for _, r := range runs {
		fmt.Printf("%s  %-13s iter=%d  %s  %s\n", r.RunID, r.Status, r.Iterations,
			time.Unix(r.UpdatedAt, 0).Format("2006-01-02 15:04"), truncateRequest(r.Request))
	}
	return exitOK
}

func printRun(db *sql.DB, runID string) int {
	ctx := context.Background()

	run, err := (&store.RunRepo{}).GetByID(ctx, db, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return exitRun
	}
	fmt.Printf("run %s\n", run.RunID)
	fmt.Printf("  request:    %s\n", run.Request)
	fmt.Printf("  status:     %s\n", run.Status)
	fmt.Printf("  iterations: %d\n", run.Iterations)
	fmt.Printf("  updated:    %s\n", time.Unix(run.UpdatedAt, 0).Format("2006-01-02 15:04:05"))

	events, err := (&store.EventRepo{}).ListByRun(ctx, db, runID, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return exitRun
	}
	fmt.Println("\nevents:")
	for _, ev := range events {
		line := fmt.Sprintf("  %3d  %-16s", ev.SeqNo, ev.Kind)
		if ev.FromState != "" || ev.ToState != "" {
			line += fmt.Sprintf("  %s -> %s", ev.FromState, ev.ToState)
		}
		if ev.Detail != "" {
			line += "  " + ev.Detail
		}
		fmt.Println(line)
	}

	artifacts, err := (&store.ArtifactRepo{}).ListByRun(ctx, db, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return exitRun
	}
	if len(artifacts) > 0 {
		fmt.Println("\nartifacts:")
		for _, a := range artifacts {
			fmt.Printf("  [iteration %d] %s %s\n    %s\n", a.Iteration, a.Stage, a.Kind, a.Body)
		}
	}
	return exitOK
}

func truncateRequest(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}
