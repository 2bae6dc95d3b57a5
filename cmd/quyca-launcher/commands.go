package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/colav/quyca-launcher/internal/core/appenv"
	"github.com/colav/quyca-launcher/internal/core/profile"
)

// cmdEnv is what every command runs with.
type cmdEnv struct {
	cfg    *Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

type command func(env *cmdEnv, args []string) error

var commands = map[string]command{
	"validate": runValidate,
	"resolve":  runResolve,
	"describe": runDescribe,
	"up":       runUp,
	"down":     runDown,
	"status":   runStatus,
	"logs":     runLogs,
	"serve":    runServe,
}

// newFlagSet returns a flag set for a subcommand that reports errors on
// env.stderr instead of exiting.
func (env *cmdEnv) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	return fs
}

// profileArg parses the subcommand flags and returns the single profile name.
func profileArg(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", &CommandError{Op: fs.Name(), Err: err, ExitCode: ExitConfigError}
	}
	if fs.NArg() != 1 {
		return "", &CommandError{Op: fs.Name(), Err: errors.New("expected exactly one profile name"), ExitCode: ExitConfigError}
	}
	return fs.Arg(0), nil
}

func (env *cmdEnv) printJSON(v any) error {
	enc := json.NewEncoder(env.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// =============================================================================
// Offline Commands
// =============================================================================

// runValidate checks the profile set, then loads each profile's settings
// file. A missing settings file is reported but only fails validation when
// project.require_env_file is set. Compose placeholders that neither the
// settings file nor the environment define are reported as warnings.
func runValidate(env *cmdEnv, args []string) error {
	fs := env.newFlagSet("validate")
	if err := fs.Parse(args); err != nil {
		return &CommandError{Op: "validate", Err: err, ExitCode: ExitConfigError}
	}

	set, err := loadProfiles(env.cfg, env.logger)
	if err != nil {
		return err
	}

	vars := composeVariables(env.cfg)

	var failed error
	for _, p := range set.Profiles() {
		settings, err := appenv.Load(env.cfg.Project.EnvDir, p.EnvFile, p.Name)
		switch {
		case err == nil:
			fmt.Fprintf(env.stdout, "%s: ok\n", p.Name)
			fmt.Fprintf(env.stdout, "%s: mongo %s\n", p.Name, settings.RedactedMongoURI())
			defined := settings.Variables()
			for _, v := range vars {
				if _, ok := defined[v]; !ok && os.Getenv(v) == "" {
					fmt.Fprintf(env.stdout, "%s: warning: ${%s} is used by the compose file but not set\n", p.Name, v)
				}
			}
		case errors.Is(err, appenv.ErrEnvFileNotFound) && !env.cfg.Project.RequireEnvFile:
			fmt.Fprintf(env.stdout, "%s: ok (no settings file: %v)\n", p.Name, err)
		default:
			fmt.Fprintf(env.stdout, "%s: %v\n", p.Name, err)
			if failed == nil {
				failed = err
			}
		}
	}
	return failed
}

func runResolve(env *cmdEnv, args []string) error {
	name, err := profileArg(env.newFlagSet("resolve"), args)
	if err != nil {
		return err
	}
	set, err := loadProfiles(env.cfg, env.logger)
	if err != nil {
		return err
	}
	p, err := set.Resolve(name)
	if err != nil {
		return err
	}
	return env.printJSON(p)
}

func runDescribe(env *cmdEnv, args []string) error {
	name, err := profileArg(env.newFlagSet("describe"), args)
	if err != nil {
		return err
	}
	set, err := loadProfiles(env.cfg, env.logger)
	if err != nil {
		return err
	}
	p, err := set.Resolve(name)
	if err != nil {
		return err
	}
	return env.printJSON(profile.DescribeRuntimeParameters(p))
}

// =============================================================================
// Docker Commands
// =============================================================================

// runUp launches a profile. With -watch it stays in the foreground recording
// exits and restarts until interrupted or the instance stops.
func runUp(env *cmdEnv, args []string) error {
	fs := env.newFlagSet("up")
	watch := fs.Bool("watch", false, "Supervise the instance until interrupted")
	quiet := fs.Bool("quiet", false, "Do not print build output")
	name, err := profileArg(fs, args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var buildOutput io.Writer = env.stderr
	if *quiet {
		buildOutput = nil
	}
	l, err := openLauncher(ctx, env.cfg, env.logger, nil, buildOutput)
	if err != nil {
		return err
	}
	defer l.Close()

	inst, err := l.orchestrator.Up(ctx, name)
	if err != nil {
		return err
	}
	if err := env.printJSON(inst); err != nil {
		return err
	}

	if !*watch {
		return nil
	}
	env.logger.Info("watching instance", "profile", name, "instance_id", inst.ID)
	if err := l.orchestrator.Watch(ctx, inst.ID); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runDown(env *cmdEnv, args []string) error {
	name, err := profileArg(env.newFlagSet("down"), args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	l, err := openLauncher(ctx, env.cfg, env.logger, nil, nil)
	if err != nil {
		return err
	}
	defer l.Close()

	inst, err := l.orchestrator.Down(ctx, name)
	if err != nil {
		return err
	}
	return env.printJSON(inst)
}

func runStatus(env *cmdEnv, args []string) error {
	fs := env.newFlagSet("status")
	asJSON := fs.Bool("json", false, "Print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return &CommandError{Op: "status", Err: err, ExitCode: ExitConfigError}
	}

	ctx, cancel := signalContext()
	defer cancel()

	l, err := openLauncher(ctx, env.cfg, env.logger, nil, nil)
	if err != nil {
		return err
	}
	defer l.Close()

	statuses, err := l.orchestrator.Status(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return env.printJSON(statuses)
	}

	tw := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROFILE\tIMAGE\tSTATE\tCONTAINER\tRESTARTS\tINSTANCE")
	for _, st := range statuses {
		state, instanceID, restarts := "-", "-", "-"
		if st.Instance != nil {
			state = string(st.Instance.State)
			instanceID = st.Instance.ID
			restarts = strconv.Itoa(st.Instance.RestartCount)
		}
		container := "-"
		if st.Container != nil {
			container = string(st.Container.Status)
		}
		image := "missing"
		if st.ImageBuilt {
			image = "built"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", st.Profile, image, state, container, restarts, instanceID)
	}
	return tw.Flush()
}

func runLogs(env *cmdEnv, args []string) error {
	fs := env.newFlagSet("logs")
	tail := fs.String("tail", "100", `Number of lines to show, or "all"`)
	follow := fs.Bool("follow", false, "Stream output until interrupted")
	name, err := profileArg(fs, args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	l, err := openLauncher(ctx, env.cfg, env.logger, nil, nil)
	if err != nil {
		return err
	}
	defer l.Close()

	return l.orchestrator.Logs(ctx, name, *tail, *follow, env.stdout)
}

// runServe blocks until SIGINT or SIGTERM.
func runServe(env *cmdEnv, args []string) error {
	fs := env.newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return &CommandError{Op: "serve", Err: err, ExitCode: ExitConfigError}
	}

	env.logger.Info("starting quyca-launcher",
		"version", Version,
		"project", env.cfg.Project.Dir,
	)

	server, err := NewServer(env.cfg, env.logger)
	if err != nil {
		return err
	}
	return server.Start(context.Background())
}
