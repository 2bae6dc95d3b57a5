package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/colav/quyca-launcher/internal/core/compose"
	"github.com/colav/quyca-launcher/internal/core/domain"
	"github.com/colav/quyca-launcher/internal/core/profile"
	"github.com/colav/quyca-launcher/internal/shell/docker"
	"github.com/colav/quyca-launcher/internal/shell/source"
	"github.com/colav/quyca-launcher/internal/shell/store"
	"github.com/prometheus/client_golang/prometheus"
)

// =============================================================================
// Profiles
// =============================================================================

// loadProfiles returns the profiles declared in the project's compose file,
// or the built-in dev and prod profiles when there is no compose file.
func loadProfiles(cfg *Config, logger *slog.Logger) (*profile.Set, error) {
	dir, err := projectDir(cfg)
	if err != nil {
		return nil, &CommandError{Op: "resolve project dir", Err: err, ExitCode: ExitConfigError}
	}

	path := composePath(cfg)
	if path == "" {
		return newProfileSet(localMounts(profile.Defaults(dir), dir, logger))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("no compose file, using built-in profiles", "path", path)
			return newProfileSet(localMounts(profile.Defaults(dir), dir, logger))
		}
		return nil, &CommandError{Op: "read compose file", Err: err, ExitCode: ExitConfigError}
	}

	profiles, err := compose.ParseProfiles(string(content), dir)
	if err != nil {
		return nil, &CommandError{Op: "parse " + path, Err: err, ExitCode: ExitValidationError}
	}
	logger.Debug("profiles loaded from compose file", "path", path, "count", len(profiles))
	return newProfileSet(localMounts(profiles, dir, logger))
}

// projectDir returns the configured project directory, made absolute when it
// is local. Docker only binds absolute host paths.
func projectDir(cfg *Config) (string, error) {
	dir := cfg.Project.Dir
	if dir == "" || source.IsRemote(dir) {
		return dir, nil
	}
	return filepath.Abs(dir)
}

// localMounts drops the bind mounts a remote project cannot provide. A git
// project is cloned for the build only, so there is no host directory to
// live-mount.
func localMounts(profiles []domain.DeploymentProfile, dir string, logger *slog.Logger) []domain.DeploymentProfile {
	if !source.IsRemote(dir) {
		return profiles
	}
	for i := range profiles {
		kept := profiles[i].VolumeMounts[:0:0]
		for _, m := range profiles[i].VolumeMounts {
			if filepath.IsAbs(m.HostPath) {
				kept = append(kept, m)
				continue
			}
			logger.Warn("dropping bind mount of remote project",
				"profile", profiles[i].Name,
				"host_path", m.HostPath,
				"container_path", m.ContainerPath,
			)
		}
		profiles[i].VolumeMounts = kept
	}
	return profiles
}

// composePath resolves the compose file against the project directory.
func composePath(cfg *Config) string {
	path := cfg.Project.ComposeFile
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) && !source.IsRemote(cfg.Project.Dir) {
		path = filepath.Join(cfg.Project.Dir, path)
	}
	return path
}

// composeVariables returns the ${VAR} placeholders the compose file uses.
// It returns nil when there is no readable compose file.
func composeVariables(cfg *Config) []string {
	path := composePath(cfg)
	if path == "" {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return compose.ExtractVariablesFromYAML(string(content))
}

func newProfileSet(profiles []domain.DeploymentProfile) (*profile.Set, error) {
	set, err := profile.NewSet(profiles...)
	if err != nil {
		return nil, &CommandError{Op: "validate profiles", Err: err, ExitCode: ExitValidationError}
	}
	return set, nil
}

// =============================================================================
// Launcher Wiring
// =============================================================================

// launcher bundles the store, the Docker client and the orchestrator built on
// them for one command.
type launcher struct {
	store        *store.SQLiteStore
	docker       *docker.DockerClient
	orchestrator *docker.Orchestrator
	logger       *slog.Logger
}

// openLauncher connects to the store and the Docker daemon. reg may be nil.
// Build progress is copied to buildOutput when it is not nil.
func openLauncher(ctx context.Context, cfg *Config, logger *slog.Logger, reg prometheus.Registerer, buildOutput io.Writer) (*launcher, error) {
	profiles, err := loadProfiles(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := ensureDataDir(cfg.Database.DSN); err != nil {
		return nil, &CommandError{Op: "open store", Err: err, ExitCode: ExitStoreError}
	}
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &CommandError{Op: "open store", Err: err, ExitCode: ExitStoreError}
	}

	d, err := docker.NewDockerClient(cfg.Docker.Host)
	if err != nil {
		s.Close()
		return nil, &CommandError{Op: "connect docker", Err: err, ExitCode: ExitDockerError}
	}
	if err := d.Ping(ctx); err != nil {
		s.Close()
		d.Close()
		return nil, &CommandError{Op: "connect docker", Err: err, ExitCode: ExitDockerError}
	}

	ocfg := docker.DefaultOrchestratorConfig()
	ocfg.EnvDir = cfg.Project.EnvDir
	ocfg.RequireEnvFile = cfg.Project.RequireEnvFile
	ocfg.BuildOutput = buildOutput
	if cfg.Docker.StopTimeout > 0 {
		ocfg.StopTimeout = cfg.Docker.StopTimeout
	}
	if cfg.Project.StaleAfter > 0 {
		ocfg.StaleAfter = cfg.Project.StaleAfter
	}

	orch := docker.NewOrchestrator(d, s, profiles, source.NewPreparer(logger), docker.NewMetrics(reg), logger, ocfg)

	return &launcher{
		store:        s,
		docker:       d,
		orchestrator: orch,
		logger:       logger,
	}, nil
}

// Close releases the Docker client and the store.
func (l *launcher) Close() {
	if err := l.docker.Close(); err != nil {
		l.logger.Error("Docker client close error", "error", err)
	}
	if err := l.store.Close(); err != nil {
		l.logger.Error("database close error", "error", err)
	}
}

// ensureDataDir creates the parent directory of a file DSN.
func ensureDataDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
