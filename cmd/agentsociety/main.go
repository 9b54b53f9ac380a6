// Command agentsociety runs the multi-agent orchestration runtime.
//
// Usage:
//
//	agentsociety serve --config services.yaml --addr :8080
//	agentsociety validate --config services.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/agentsociety/runtime/pkg/config"
	"github.com/agentsociety/runtime/pkg/logger"
	"github.com/agentsociety/runtime/pkg/orgregistry"
	"github.com/agentsociety/runtime/pkg/society"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the agent society and its HTTP surface."`
	Validate ValidateCmd `cmd:"" help:"Validate a service/role configuration file."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to service/role config file (YAML)." default:"services.yaml" type:"path"`
	Env       string `help:"Path to .env file for API key expansion." default:".env" type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose)." default:"simple"`
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println("agentsociety dev")
	return nil
}

// ValidateCmd checks that a config file parses and resolves env references.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	doc, err := config.Load(cli.Config, cli.Env)
	if err != nil {
		return err
	}
	fmt.Printf("config OK: %d services, %d roles\n", len(doc.Services), len(doc.Roles))
	return nil
}

// ServeCmd starts the society runtime and its HTTP surface.
type ServeCmd struct {
	Addr                  string `help:"HTTP listen address." default:":8080"`
	MaxConcurrentRequests int    `name:"max-concurrent-requests" help:"Max in-flight LLM calls." default:"8"`
	MaxToolRounds         int    `name:"max-tool-rounds" help:"Max tool-call rounds per dispatch." default:"5"`
	Watch                 bool   `help:"Watch the config file and hot-reload roles/services on change."`
	ShutdownTimeout       time.Duration `name:"shutdown-timeout" help:"Bound on graceful drain at shutdown." default:"10s"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	doc, err := config.Load(cli.Config, cli.Env)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	defaultServiceID := ""
	if len(doc.Services) > 0 {
		defaultServiceID = doc.Services[0].ID
	}

	s := society.New(society.Options{
		MaxConcurrentRequests: c.MaxConcurrentRequests,
		MaxToolRounds:         c.MaxToolRounds,
		DefaultServiceID:      defaultServiceID,
		Services:              society.BuildServices(doc),
	})
	seedRoles(s, doc)

	if c.Watch {
		watcher, err := config.NewWatcher(cli.Config, cli.Env, func(newDoc *config.Document) {
			seedRoles(s, newDoc)
		})
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
		} else {
			defer watcher.Close()
		}
	}

	httpServer := newHTTPServer(s, c.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down...")
		cancel()
	}()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- httpServer.Start(ctx) }()

	fmt.Printf("agent society listening on %s\n", c.Addr)

	select {
	case err := <-serveErrCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		<-serveErrCh
	}

	summary := s.Shutdown(context.Background(), c.ShutdownTimeout)
	slog.Info("shutdown complete", "ok", summary.OK, "durationMs", summary.DurationMs, "activeAgents", summary.ActiveAgents)
	return nil
}

func seedRoles(s *society.Society, doc *config.Document) {
	for _, rc := range doc.Roles {
		if _, err := s.CreateRole(orgregistry.RoleInput{
			Name:         rc.Name,
			RolePrompt:   rc.RolePrompt,
			LLMServiceID: rc.LLMServiceID,
			ToolGroups:   rc.ToolGroups,
			CreatedBy:    orgregistry.RootID,
		}); err != nil {
			slog.Warn("skipping role from config", "role", rc.Name, "err", err)
		}
	}
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agentsociety"),
		kong.Description("Multi-agent LLM orchestration runtime"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	output := os.Stderr
	if cli.LogFile != "" {
		f, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = f
	}
	logger.Init(level, output, cli.LogFormat)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
