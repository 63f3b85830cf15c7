package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shblue21/ntomb/pkg/api"
	"github.com/shblue21/ntomb/pkg/config"
	"github.com/shblue21/ntomb/pkg/consistency"
	"github.com/shblue21/ntomb/pkg/inventory"
	"github.com/shblue21/ntomb/pkg/logger"
	"github.com/shblue21/ntomb/pkg/mcp"
	"github.com/shblue21/ntomb/pkg/rules"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ntomb-intel",
	Short: "Network connection intelligence over MCP",
	Long: `ntomb-intel classifies live TCP connections against a declarative,
hot-reloadable detection rule set and exposes the results as MCP tools.

Run it from an MCP client configuration. Stdout carries the protocol,
so all logging goes to stderr.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Running without a subcommand serves, the same as `ntomb-intel serve`.
		return runServe()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP tools on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [rules-file]",
	Short: "Lint a rule document and exit",
	Long: `check loads the rule document, reports unknown connection states and
invalid severities, and exits non-zero when any error-level finding exists.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ntomb-intel v%s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func runServe() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.InitLogger(cfg.LogLevel)

	log.Info().Msgf("ntomb-intel %s starting...", Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Msgf("Received signal: %s. Shutting down gracefully...", sig)
		cancel()
	}()

	ruleProvider := rules.NewProvider(cfg.RulesPath)
	if store, err := ruleProvider.Store(); err != nil {
		log.Warn().Err(err).Msg("Rule document failed to load, continuing without rules until it is fixed")
	} else {
		api.SetRulesLoaded(len(store.Rules))
	}
	if cfg.WatchRules {
		go func() {
			if err := ruleProvider.Watch(ctx); err != nil {
				log.Error().Err(err).Msg("Rule document watcher stopped")
			}
		}()
	}

	if cfg.APIPort != "" {
		go api.StartAPIServer(cfg.APIPort)
	}

	server := mcp.NewServer(inventory.NewProvider(), ruleProvider, cfg.ServerName, Version)
	if err := server.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	log.Info().Msg("ntomb-intel shut down gracefully.")
	return nil
}

func runCheck(args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.InitLogger(cfg.LogLevel)

	path := cfg.RulesPath
	if len(args) == 1 {
		path = args[0]
	}

	store, err := rules.Load(path)
	if err != nil {
		return err
	}

	summary := consistency.Check(store, inventory.KnownTCPStates())
	for _, finding := range summary.Findings {
		fmt.Printf("%s: %s\n", finding.Severity, finding.Message)
	}
	fmt.Printf("%d rules checked: %d errors, %d warnings\n", len(store.Rules), summary.Errors, summary.Warnings)

	if summary.Errors > 0 {
		return fmt.Errorf("rule document %s has %d error(s)", path, summary.Errors)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
