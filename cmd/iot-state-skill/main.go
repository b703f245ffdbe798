// The iot-state-skill command runs a voice-assistant skill that answers
// natural-language queries about IoT device states (window sensors)
// from the shared time-series database.
//
// The skill is a leaf component of the assistant ecosystem: intents
// arrive on the framework's MQTT bus, answers leave the same way. The
// configuration file is TOML with a [skill] section for the framework
// fields and an [iot] section for the database connection; secrets can
// be supplied through IOT_POSTGRES_* environment variables.
//
// Usage:
//
//	iot-state-skill serve [-config path]   Run the skill
//	iot-state-skill version                Print version and build information
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"iot-state-skill/internal/buildinfo"
	"iot-state-skill/internal/config"
	"iot-state-skill/internal/connwatch"
	"iot-state-skill/internal/iotstate"
	"iot-state-skill/internal/skillbase"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run] so the full
// startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// cliArgs is the parsed command line.
type cliArgs struct {
	command    string
	configPath string
}

// parseArgs parses the argument list by hand. The flag package relies
// on package-level globals (flag.CommandLine), which makes it
// impossible to call run() concurrently from tests; our argument
// surface is one flag and two commands.
func parseArgs(args []string) (cliArgs, error) {
	var parsed cliArgs
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			parsed.configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			parsed.configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			parsed.command = "help"
		case !strings.HasPrefix(args[i], "-") && parsed.command == "":
			parsed.command = args[i]
		default:
			return cliArgs{}, fmt.Errorf("unknown flag: %s", args[i])
		}
	}
	return parsed, nil
}

func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	parsed, err := parseArgs(args)
	if err != nil {
		return err
	}

	switch parsed.command {
	case "", "serve":
		return runServe(ctx, stdout, parsed.configPath)
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	case "help":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", parsed.command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, `Usage:
  iot-state-skill serve [-config path]   Run the skill
  iot-state-skill version                Print version and build information

The config path may also be given via PRIVATE_ASSISTANT_CONFIG_PATH.`)
	return nil
}

// runServe loads configuration, opens the IoT database pool, and runs
// the skill until the process receives SIGINT or SIGTERM. Startup
// configuration failures are fatal; everything after that is recovered
// per request.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	path, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.Skill.LogLevel)
	if err != nil {
		return err
	}
	logger := config.NewLogger(stdout, level)

	logger.Info("starting "+buildinfo.String(),
		"client_id", cfg.Skill.ClientID,
		"config", path,
	)

	// The pool connects lazily; a database that is down at startup is
	// a runtime condition (users hear the fallback response), not a
	// config error.
	db, err := sql.Open("pgx", cfg.IoT.DSN())
	if err != nil {
		return fmt.Errorf("open iot database: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Warn("closing iot database", "error", cerr)
		}
	}()

	reader := iotstate.NewStateReader(db, logger)
	runner := skillbase.NewRunner(cfg.Skill, logger)
	skill := iotstate.New(reader, runner, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Health watchers are observational only; the request path has its
	// own error handling.
	dbWatch := connwatch.NewWatcher("iot-db", reader.Ping, logger)
	brokerWatch := connwatch.NewWatcher("mqtt-broker", runner.AwaitConnection, logger)
	go dbWatch.Start(ctx)
	go brokerWatch.Start(ctx)

	if err := runner.Serve(ctx, skill); err != nil && ctx.Err() == nil {
		return err
	}

	logger.Info("shutdown complete", "uptime", buildinfo.Uptime().String())
	return nil
}
