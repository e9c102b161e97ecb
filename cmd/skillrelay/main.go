// Package main is the entrypoint for the skillrelay bot host.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/vivars7/skillrelay/internal/config"
	"github.com/vivars7/skillrelay/internal/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// startable is satisfied by *server.Server.
type startable interface {
	Start(ctx context.Context) error
}

// serverFactory creates a startable server from config. Tests can inject a
// failing factory to cover the server.New() error path.
type serverFactory func(cfg *config.Config, configPath, version string) (startable, error)

// defaultServerFactory is the production factory that delegates to server.New.
func defaultServerFactory(cfg *config.Config, configPath, version string) (startable, error) {
	return server.New(cfg, version, server.WithConfigPath(configPath))
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Global flags
	fs := flag.NewFlagSet("skillrelay", flag.ContinueOnError)
	configPath := fs.String("config", "skillrelay.yaml", "path to configuration file")
	showVersion := fs.Bool("version", false, "print version and exit")

	// Parse only known flags before the subcommand
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			printUsage()
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *showVersion {
		fmt.Printf("skillrelay %s\n", Version)
		return 0
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	subcmd := "serve"
	remaining := fs.Args()
	if len(remaining) > 0 {
		subcmd = remaining[0]
		remaining = remaining[1:]
	}

	switch subcmd {
	case "serve":
		return cmdServe(*configPath, defaultServerFactory)
	case "validate":
		return cmdValidate(*configPath)
	case "skills":
		return cmdSkills(*configPath, os.Stdout)
	case "init":
		return cmdInit(remaining)
	case "help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", subcmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `skillrelay %s

Hosts a bot on <messages_path> and relays sub-conversations to the skills
listed under skills.channels. Skills answer on <skills.callback_path>.

Usage:
  skillrelay [--config FILE] [command]

Commands:
  serve                      run the bot host (default)
  validate                   load the config and report what it configures
  skills                     list the skills the bot can delegate to
  init [--profile dev|prod]  write a starter config (--output FILE)
  help                       show this text

Flags:
  --config FILE   configuration file (default "skillrelay.yaml")
  --version       print the version
`, Version)
}

// cmdServe starts the HTTP server with graceful shutdown.
func cmdServe(configPath string, newServer serverFactory) int {
	logger := slog.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("configuration error", "config", configPath, "error", err)
		return 1
	}
	logger.Info("starting skillrelay",
		"version", Version,
		"config", configPath,
		"messages_path", cfg.Bot.MessagesPath,
		"storage", cfg.Storage.Type,
		"oauth_connection", cfg.OAuth.ConnectionName,
		"skills", len(cfg.Skills.Channels),
	)
	for _, sc := range cfg.Skills.Channels {
		logger.Info("skill registered",
			"skill", sc.ID,
			"app_id", sc.AppID,
			"endpoint", sc.Endpoint,
		)
	}
	if cfg.Bot.AllowAnonymousEmulator {
		logger.Warn("anonymous emulator access is enabled; do not use in production")
	}

	srv, err := newServer(cfg, configPath, Version)
	if err != nil {
		logger.Error("server initialization error", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", "error", err)
		return 1
	}
	return 0
}

// cmdValidate loads the configuration and summarizes it.
func cmdValidate(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("%s: ok\n", configPath)
	fmt.Printf("  bot       app %s, messages on %s\n", orDash(cfg.Bot.AppID), cfg.Bot.MessagesPath)
	fmt.Printf("  storage   %s\n", cfg.Storage.Type)
	fmt.Printf("  oauth     %s\n", orDash(cfg.OAuth.ConnectionName))
	fmt.Printf("  skills    %d, callbacks on %s\n", len(cfg.Skills.Channels), cfg.Skills.CallbackPath)
	fmt.Printf("  providers %d\n", len(cfg.Connections))
	return 0
}

// cmdSkills prints the configured skills as a table.
func cmdSkills(configPath string, w io.Writer) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := writeSkills(w, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func writeSkills(w io.Writer, cfg *config.Config) error {
	if len(cfg.Skills.Channels) == 0 {
		_, err := fmt.Fprintln(w, "no skills configured")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAPP ID\tENDPOINT\tTOKEN PROVIDER\tTIMEOUT")
	for _, sc := range cfg.Skills.Channels {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			sc.ID, orDash(sc.AppID), sc.Endpoint, orDash(sc.TokenProvider), sc.Timeout.Duration)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// cmdInit generates a new skillrelay.yaml with the specified profile.
func cmdInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	profile := fs.String("profile", "dev", "configuration profile (dev or prod)")
	output := fs.String("output", "skillrelay.yaml", "file to write")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	switch *profile {
	case "dev", "prod":
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown profile %q (use dev or prod)\n", *profile)
		return 1
	}

	if err := os.WriteFile(*output, []byte(generateProfileYAML(*profile)), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *output, err)
		return 1
	}

	fmt.Printf("Generated %s with profile %q\n", *output, *profile)
	return 0
}

// generateProfileYAML returns a YAML configuration string for the given profile.
func generateProfileYAML(profile string) string {
	switch profile {
	case "prod":
		return config.ProdProfile()
	default:
		return config.DevProfile()
	}
}
