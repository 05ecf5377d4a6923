// Package main provides the headless workflow runner: it loads a recorded
// workflow, binds a browser session, replays the workflow under the
// configured domain scope, and emits the aggregated run result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/getvergo/vergo-agent/pkg/browser"
	appconfig "github.com/getvergo/vergo-agent/pkg/config"
	"github.com/getvergo/vergo-agent/pkg/domainscope"
	"github.com/getvergo/vergo-agent/pkg/engine"
	"github.com/getvergo/vergo-agent/pkg/logging"
	"github.com/getvergo/vergo-agent/pkg/login"
	"github.com/getvergo/vergo-agent/pkg/session"
	"github.com/getvergo/vergo-agent/pkg/store"
	"github.com/getvergo/vergo-agent/pkg/types"
	"github.com/getvergo/vergo-agent/pkg/workflow"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	WorkflowFile  string
	WorkflowID    string
	RunConfigFile string
	ConfigFile    string
	SessionFile   string
	SessionPass   string
	SaveSession   bool
	DatabasePath  string
	BaseDomain    string
	OutputFile    string
	Timeout       time.Duration
	Headless      bool
	ShowVersion   bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("vergo-agent %s\n", version)
		return
	}

	if err := run(cli); err != nil {
		log.Fatalf("vergo-agent: %v", err)
	}
}

func parseFlags() *CLIConfig {
	cli := &CLIConfig{}
	flag.StringVar(&cli.WorkflowFile, "workflow", "", "Path to a workflow YAML definition to load and run")
	flag.StringVar(&cli.WorkflowID, "workflow-id", "", "ID of an already-stored workflow to run")
	flag.StringVar(&cli.RunConfigFile, "run-config", "", "Path to a run config YAML (login, variables, options)")
	flag.StringVar(&cli.ConfigFile, "config", "", "Path to the product config file (default ~/.vergo/config.json)")
	flag.StringVar(&cli.DatabasePath, "db", "", "Path to the SQLite database (default ~/.vergo/vergo.db)")
	flag.StringVar(&cli.BaseDomain, "base-domain", "", "Scope the run to this base domain (overrides config)")
	flag.StringVar(&cli.OutputFile, "output", "", "Write the run result JSON to this file instead of stdout")
	flag.StringVar(&cli.SessionFile, "session", "", "Path to an encrypted session file to restore before the run")
	flag.StringVar(&cli.SessionPass, "session-passphrase", os.Getenv("VERGO_SESSION_PASSPHRASE"), "Passphrase for the session file")
	flag.BoolVar(&cli.SaveSession, "save-session", false, "Capture and encrypt the session to -session after the run")
	flag.DurationVar(&cli.Timeout, "timeout", 30*time.Minute, "Run-level timeout")
	flag.BoolVar(&cli.Headless, "headless", true, "Run the browser headless")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")
	flag.Parse()
	return cli
}

func run(cli *CLIConfig) error {
	if cli.WorkflowFile == "" && cli.WorkflowID == "" {
		return fmt.Errorf("either -workflow or -workflow-id is required")
	}

	if err := appconfig.Initialize(cli.ConfigFile); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}

	logger, _ := logging.NewLogger("cli")
	defer logger.Close()

	db, err := openStore(cli)
	if err != nil {
		return err
	}
	defer db.Close()

	workflowID, err := resolveWorkflow(cli, db)
	if err != nil {
		return err
	}

	runConfig, err := loadRunConfig(cli)
	if err != nil {
		return err
	}

	scope, err := buildScope(cli)
	if err != nil {
		return err
	}

	// Browser lifecycle: one manager, one session bound to this run.
	manager := browser.NewManager()
	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("initializing browser: %w", err)
	}
	defer manager.Shutdown()

	sess, err := manager.StartSession("run", browser.SessionOptions{
		Headless:  cli.Headless,
		TimeoutMs: stepTimeoutMs(),
	})
	if err != nil {
		return fmt.Errorf("starting browser session: %w", err)
	}

	if cli.SessionFile != "" && !cli.SaveSession {
		if err := restoreSession(cli, sess); err != nil {
			return err
		}
		logger.Infof("restored session state from %s", cli.SessionFile)
	}

	opts := []engine.Option{
		engine.WithLoginExecutor(login.NewExecutor(sess, logger)),
	}
	if scope != nil {
		opts = append(opts, engine.WithDomainScope(scope))
	}
	if eng := appconfig.GetEngine(); eng != nil {
		opts = append(opts,
			engine.WithStepTimeout(time.Duration(eng.StepTimeoutMs())*time.Millisecond),
			engine.WithRetryPolicy(engine.RetryPolicy{
				MaxAttempts: eng.RetryAttempts(),
				Delay:       500 * time.Millisecond,
				Backoff:     true,
			}),
		)
	}

	runner := engine.NewRunner(db, db, opts...)
	if err := runner.Initialize(sess); err != nil {
		return err
	}
	defer runner.Cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, cli.Timeout)
	defer cancelTimeout()

	result := runner.Run(ctx, workflowID, runConfig)

	if scope != nil {
		summary := scope.GetSummary()
		logger.Infof("domain scope: %d navigations, %d denied",
			summary.Stats.TotalNavigations, summary.Stats.DeniedNavigations)
	}

	if cli.SaveSession && cli.SessionFile != "" && result.Status != types.RunStatusFailed {
		if err := saveSession(cli, sess); err != nil {
			logger.Warnf("saving session failed: %v", err)
		}
	}

	if err := writeResult(cli, result); err != nil {
		return err
	}
	if result.Status == types.RunStatusFailed {
		return fmt.Errorf("run %s failed: %s", result.RunID, result.Error)
	}
	return nil
}

// openStore opens the SQLite store at the flagged, configured, or default
// path.
func openStore(cli *CLIConfig) (store.Store, error) {
	path := cli.DatabasePath
	if path == "" {
		if eng := appconfig.GetEngine(); eng != nil {
			path = eng.DatabasePath()
		}
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		dir := filepath.Join(home, ".vergo")
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		path = filepath.Join(dir, "vergo.db")
	}

	db, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", path, err)
	}
	return db, nil
}

// resolveWorkflow loads a workflow file into the store when one is given,
// returning the id of the workflow to run.
func resolveWorkflow(cli *CLIConfig, db store.Store) (string, error) {
	if cli.WorkflowFile == "" {
		return cli.WorkflowID, nil
	}

	w, err := workflow.LoadFile(cli.WorkflowFile)
	if err != nil {
		return "", fmt.Errorf("loading workflow: %w", err)
	}
	if err := db.SaveWorkflow(context.Background(), w); err != nil {
		return "", fmt.Errorf("storing workflow: %w", err)
	}
	return w.ID, nil
}

// loadRunConfig reads the run config YAML, or returns an empty config.
func loadRunConfig(cli *CLIConfig) (*types.RunConfig, error) {
	if cli.RunConfigFile == "" {
		return &types.RunConfig{}, nil
	}
	data, err := os.ReadFile(cli.RunConfigFile)
	if err != nil {
		return nil, fmt.Errorf("reading run config: %w", err)
	}
	var cfg types.RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding run config: %w", err)
	}
	return &cfg, nil
}

// buildScope constructs the domain scope from the -base-domain flag or the
// configured domain scope section. Nil means the run executes unscoped.
func buildScope(cli *CLIConfig) (*domainscope.Scope, error) {
	var raw map[string]interface{}
	if cli.BaseDomain != "" {
		raw = map[string]interface{}{"baseDomain": cli.BaseDomain}
		if section := appconfig.GetDomainScope(); section != nil {
			data := section.Data()
			raw["allowedDomains"] = data["allowedDomains"]
			raw["ssoProviders"] = data["ssoProviders"]
		}
	} else if section := appconfig.GetDomainScope(); section != nil {
		raw = section.ScopeConfig()
	}
	if raw == nil {
		return nil, nil
	}

	cfg, err := domainscope.ValidateConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid domain scope: %w", err)
	}
	return domainscope.NewScope(cfg), nil
}

// restoreSession decrypts a saved session file and applies its cookies and
// storage onto the live browser session.
func restoreSession(cli *CLIConfig, sess *browser.Session) error {
	if cli.SessionPass == "" {
		return fmt.Errorf("-session requires a passphrase (flag or VERGO_SESSION_PASSPHRASE)")
	}
	blob, err := os.ReadFile(cli.SessionFile)
	if err != nil {
		return fmt.Errorf("reading session file: %w", err)
	}
	data, err := session.Decrypt(blob, cli.SessionPass)
	if err != nil {
		return fmt.Errorf("opening session file: %w", err)
	}
	if err := session.Validate(data); err != nil {
		return fmt.Errorf("saved session is stale: %w", err)
	}
	return session.Apply(context.Background(), sess, data)
}

// saveSession captures the live session and writes it encrypted to the
// session file.
func saveSession(cli *CLIConfig, sess *browser.Session) error {
	if cli.SessionPass == "" {
		return fmt.Errorf("-save-session requires a passphrase (flag or VERGO_SESSION_PASSPHRASE)")
	}
	data, err := session.Capture(sess)
	if err != nil {
		return err
	}
	blob, err := session.Encrypt(data, cli.SessionPass)
	if err != nil {
		return err
	}
	return os.WriteFile(cli.SessionFile, blob, 0600)
}

// stepTimeoutMs picks the browser session default timeout from config.
func stepTimeoutMs() float64 {
	if eng := appconfig.GetEngine(); eng != nil {
		return eng.StepTimeoutMs()
	}
	return browser.DefaultTimeoutMs
}

// writeResult emits the run result JSON to the output file or stdout.
func writeResult(cli *CLIConfig, result *types.RunResult) error {
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if cli.OutputFile != "" {
		if err := os.WriteFile(cli.OutputFile, encoded, 0600); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}
		return nil
	}
	fmt.Println(string(encoded))
	return nil
}
