// Command ghgforecast loads eurostat greenhouse gas inventories, forecasts every country and
// sector and serves the results.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aouyang1/ghg-forecaster/config"
	"github.com/aouyang1/ghg-forecaster/logging"
	"github.com/pkg/profile"
)

// errUsage is returned by commands for invalid arguments and maps to exit code 2
var errUsage = errors.New("usage error")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, app *app, args []string) error
}

var commands = []command{
	{"etl", "extract, transform and load the eurostat inventory", runETL},
	{"forecast", "forecast every entity and replace the snapshot", runForecast},
	{"pipeline", "run etl followed by forecast", runPipeline},
	{"serve", "serve the api, dashboard and metrics", runServe},
	{"export", "write the forecast snapshot and failures to xlsx", runExport},
}

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ghgforecast", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "yaml config file")
	profileMode := fs.String("profile", "", "write a cpu or mem profile to the working directory")
	envFile := fs.String("env", ".env", "dotenv file loaded when present")
	fs.Usage = func() { usage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		usage(stderr, fs)
		return 2
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == fs.Arg(0) {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "unknown command %q\n", fs.Arg(0))
		usage(stderr, fs)
		return 2
	}

	switch *profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		fmt.Fprintf(stderr, "unknown profile mode %q\n", *profileMode)
		return 2
	}

	if err := config.LoadEnvFiles(*envFile); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	logger, err := logging.Setup(stderr, cfg.Logging)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	a := &app{cfg: cfg, logger: logger, stdout: stdout, stderr: stderr}
	if err := cmd.run(ctx, a, fs.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			return 2
		}
		logger.Error(cmd.name+" failed", "error", err.Error())
		return 1
	}
	return 0
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "usage: ghgforecast [options] <command> [command options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "options:")
	fs.PrintDefaults()
}
