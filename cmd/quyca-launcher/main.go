package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/colav/quyca-launcher/internal/core/appenv"
	"github.com/colav/quyca-launcher/internal/core/compose"
	coredeployment "github.com/colav/quyca-launcher/internal/core/deployment"
	"github.com/colav/quyca-launcher/internal/core/profile"
	"github.com/colav/quyca-launcher/internal/shell/docker"
	"github.com/colav/quyca-launcher/internal/shell/store"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitValidationError = 2
	ExitDockerError     = 3
	ExitHTTPServerError = 4
	ExitStoreError      = 5
)

const usage = `usage: quyca-launcher [-config file] <command> [arguments]

commands:
  validate              check the profile set and each profile's settings file
  resolve <profile>     print the resolved profile as JSON
  describe <profile>    print the runtime parameters as JSON
  up <profile>          build the image and start the container
  down <profile>        stop the profile's container
  status                show every profile with its latest instance
  logs <profile>        print the container output
  serve                 run the HTTP API and supervise launched profiles
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("quyca-launcher", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "Path to config file")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitConfigError
	}

	if *showVersion {
		fmt.Fprintf(stdout, "quyca-launcher %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return ExitConfigError
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	logger := SetupLogger(cfg, stderr)

	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", fs.Arg(0))
		fs.Usage()
		return ExitConfigError
	}

	env := &cmdEnv{
		cfg:    cfg,
		logger: logger,
		stdout: stdout,
		stderr: stderr,
	}
	if err := cmd(env, fs.Args()[1:]); err != nil {
		logger.Error("command failed", "command", fs.Arg(0), "error", err)
		fmt.Fprintf(stderr, "%s: %v\n", fs.Arg(0), err)
		return exitCode(err)
	}
	return ExitSuccess
}

// =============================================================================
// Errors
// =============================================================================

// CommandError carries the exit code a failure maps to.
type CommandError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *CommandError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// exitCode maps a command failure to the process exit status.
func exitCode(err error) int {
	var (
		cmdErr   *CommandError
		validErr *profile.ValidationError
		parseErr *compose.ParseError
		conflict *coredeployment.ConflictError
		missing  *appenv.MissingKeysError
		build    *docker.ExternalBuildError
		superv   *docker.ExternalSupervisionError
		dockErr  *docker.DockerError
		storeErr *store.StoreError
	)

	switch {
	case errors.As(err, &cmdErr):
		return cmdErr.ExitCode
	case errors.Is(err, profile.ErrUnknownProfile),
		errors.As(err, &validErr),
		errors.As(err, &parseErr),
		errors.As(err, &conflict),
		errors.As(err, &missing),
		errors.Is(err, appenv.ErrEnvFileNotFound),
		errors.Is(err, appenv.ErrInvalidValue),
		errors.Is(err, docker.ErrLaunchInProgress),
		errors.Is(err, docker.ErrNotRunning):
		return ExitValidationError
	case errors.As(err, &build), errors.As(err, &superv), errors.As(err, &dockErr):
		return ExitDockerError
	case errors.As(err, &storeErr):
		return ExitStoreError
	default:
		return ExitConfigError
	}
}
