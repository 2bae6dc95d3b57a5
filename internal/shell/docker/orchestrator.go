package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/colav/quyca-launcher/internal/core/appenv"
	coredeployment "github.com/colav/quyca-launcher/internal/core/deployment"
	"github.com/colav/quyca-launcher/internal/core/domain"
	"github.com/colav/quyca-launcher/internal/core/profile"
	"github.com/colav/quyca-launcher/internal/shell/store"
	"github.com/docker/docker/pkg/stdcopy"
)

// =============================================================================
// Orchestrator - Manages Profile Instance Lifecycle
// =============================================================================

// InstanceStore is the minimal store interface the orchestrator needs. An
// instance row and the events describing its change are written in one
// transaction.
type InstanceStore interface {
	GetInstance(ctx context.Context, id string) (*domain.ContainerInstance, error)
	LatestInstance(ctx context.Context, profileName string) (*domain.ContainerInstance, error)
	WithTx(ctx context.Context, fn func(store.Store) error) error
}

// ContextPreparer turns a build context reference into a local directory.
type ContextPreparer interface {
	Prepare(ctx context.Context, ref string) (dir string, cleanup func(), err error)
}

// OrchestratorConfig holds the orchestrator's tunables.
type OrchestratorConfig struct {
	// EnvDir is where .env.<profile> files are looked up.
	EnvDir string
	// RequireEnvFile turns a missing settings file into an error.
	RequireEnvFile bool
	// StopTimeout is the grace period given to the process on stop.
	StopTimeout time.Duration
	// StaleAfter is how long a building/starting record may sit untouched
	// before a new launch treats it as interrupted.
	StaleAfter time.Duration
	// PollInterval paces the watcher while the supervisor restarts a container.
	PollInterval time.Duration
	// BuildOutput receives decoded build progress. nil discards it.
	BuildOutput io.Writer
}

// DefaultOrchestratorConfig returns the default configuration.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		EnvDir:       ".",
		StopTimeout:  10 * time.Second,
		StaleAfter:   30 * time.Minute,
		PollInterval: time.Second,
	}
}

// Orchestrator launches, stops and watches profile instances using Docker.
type Orchestrator struct {
	docker   Client
	store    InstanceStore
	profiles *profile.Set
	source   ContextPreparer
	metrics  *Metrics
	logger   *slog.Logger
	config   OrchestratorConfig

	mu       sync.Mutex
	locks    map[string]*sync.Mutex // profile name -> launch lock
	stopping map[string]bool        // instance IDs stopped by the operator
}

// NewOrchestrator creates a new orchestrator. source and metrics may be nil.
func NewOrchestrator(docker Client, s InstanceStore, profiles *profile.Set, source ContextPreparer, metrics *Metrics, logger *slog.Logger, config OrchestratorConfig) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	return &Orchestrator{
		docker:   docker,
		store:    s,
		profiles: profiles,
		source:   source,
		metrics:  metrics,
		logger:   logger,
		config:   config,
		locks:    make(map[string]*sync.Mutex),
		stopping: make(map[string]bool),
	}
}

// Profiles returns the profile set the orchestrator launches from.
func (o *Orchestrator) Profiles() *profile.Set {
	return o.profiles
}

// =============================================================================
// Up
// =============================================================================

// Up builds the profile's image and starts one container for it. Resolution,
// settings and port conflict checks all happen before the builder is called.
func (o *Orchestrator) Up(ctx context.Context, name string) (*domain.ContainerInstance, error) {
	unlock := o.lockProfile(name)
	defer unlock()

	p, err := o.profiles.Resolve(name)
	if err != nil {
		return nil, err
	}
	rt := profile.DescribeRuntimeParameters(p)

	settings, err := o.loadSettings(p)
	if err != nil {
		return nil, err
	}
	var variables map[string]string
	if settings != nil {
		variables = settings.Variables()
		rt.Ports = mergePorts(rt.Ports, settings.Port())
	}

	if err := o.checkConflicts(ctx, rt); err != nil {
		return nil, err
	}

	previous, err := o.planRelaunch(ctx, p.Name)
	if err != nil {
		return nil, err
	}

	o.logger.Info("launching profile",
		"profile", p.Name,
		"target", p.BuildTarget,
		"image", p.ImageReference,
		"network_mode", p.NetworkMode,
	)

	inst := domain.NewContainerInstance(p)
	err = o.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.CreateInstance(ctx, inst); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, newEvent(inst, "", inst.State, "launch requested"))
	})
	if err != nil {
		return nil, fmt.Errorf("record instance: %w", err)
	}

	if err := o.build(ctx, p); err != nil {
		o.fail(ctx, inst, err)
		o.metrics.Launches.WithLabelValues(p.Name, "build_failed").Inc()
		return inst, &ExternalBuildError{Profile: p.Name, Err: err}
	}

	// The live instance keeps running until its replacement image exists.
	if previous != nil {
		o.logger.Info("replacing live instance", "profile", p.Name, "instance_id", previous.ID)
		if err := o.stopInstance(ctx, previous, "replaced by new launch"); err != nil {
			o.fail(ctx, inst, err)
			o.metrics.Launches.WithLabelValues(p.Name, "replace_failed").Inc()
			return inst, err
		}
	}

	if err := o.transition(ctx, inst, domain.StateStarting, ""); err != nil {
		return inst, err
	}

	plan := coredeployment.BuildContainerPlan(coredeployment.BuildContainerPlanParams{
		InstanceID:  inst.ID,
		BuildTarget: p.BuildTarget,
		Runtime:     rt,
		Variables:   variables,
	})

	containerID, err := o.start(ctx, plan)
	if err != nil {
		o.fail(ctx, inst, err)
		o.metrics.Launches.WithLabelValues(p.Name, "start_failed").Inc()
		return inst, &ExternalSupervisionError{Profile: p.Name, Op: "start", Err: err}
	}
	inst.ContainerID = containerID

	if err := o.transition(ctx, inst, domain.StateRunning, ""); err != nil {
		return inst, err
	}
	o.metrics.Launches.WithLabelValues(p.Name, "ok").Inc()

	o.logger.Info("profile running",
		"profile", p.Name,
		"instance_id", inst.ID,
		"container_id", shortID(containerID),
	)
	return inst, nil
}

// loadSettings reads the profile's settings file as a pre-flight check.
func (o *Orchestrator) loadSettings(p domain.DeploymentProfile) (*appenv.Settings, error) {
	settings, err := appenv.Load(o.config.EnvDir, p.EnvFile, p.Name)
	if err == nil {
		return settings, nil
	}
	if errors.Is(err, appenv.ErrEnvFileNotFound) && !o.config.RequireEnvFile {
		o.logger.Warn("settings file not found, continuing without it", "profile", p.Name, "error", err)
		return nil, nil
	}
	return nil, err
}

// checkConflicts refuses a host-network launch that would share a port with a
// running instance of another profile.
func (o *Orchestrator) checkConflicts(ctx context.Context, rt domain.RuntimeParameters) error {
	if !rt.NetworkMode.SharesHost() {
		return nil
	}
	containers, err := o.docker.ListContainers(ctx, ListOptions{
		Filters: map[string]string{"label": coredeployment.ManagedFilter()},
	})
	if err != nil {
		return &ExternalSupervisionError{Profile: rt.Profile, Op: "list", Err: err}
	}

	var running []coredeployment.RunningProfile
	for _, c := range containers {
		if c.Status != ContainerStatusRunning && c.Status != ContainerStatusRestarting {
			continue
		}
		if rp, ok := coredeployment.FromLabels(c.Labels, c.NetworkMode, c.ID); ok {
			running = append(running, rp)
		}
	}
	return coredeployment.CheckConflicts(coredeployment.FromRuntime(rt), running)
}

// planRelaunch checks the profile's latest instance before a new launch. It
// refuses while another launch is in progress, closes out an interrupted one
// and returns the live instance the launch will replace, if any.
func (o *Orchestrator) planRelaunch(ctx context.Context, name string) (*domain.ContainerInstance, error) {
	latest, err := o.store.LatestInstance(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load latest instance: %w", err)
	}

	path := coredeployment.DetermineUpPath(latest, time.Now().UTC(), o.config.StaleAfter)
	if !path.Valid {
		return nil, fmt.Errorf("profile %q: %w: %s", name, ErrLaunchInProgress, path.ErrorReason)
	}
	if path.Interrupted {
		o.logger.Warn("previous launch was interrupted", "profile", name, "instance_id", latest.ID, "state", latest.State)
		o.fail(ctx, latest, errors.New("launch interrupted"))
		return nil, nil
	}
	if path.Replace && !latest.State.Terminal() {
		return latest, nil
	}
	return nil, nil
}

// build prepares the context and runs the image build.
func (o *Orchestrator) build(ctx context.Context, p domain.DeploymentProfile) error {
	plan := coredeployment.BuildImagePlan(p)

	dir := plan.Context
	if o.source != nil {
		prepared, cleanup, err := o.source.Prepare(ctx, plan.Context)
		if err != nil {
			return err
		}
		defer cleanup()
		dir = prepared
	}

	start := time.Now()
	o.logger.Info("building image", "profile", p.Name, "target", plan.Target, "context", dir, "tags", plan.Tags)
	err := o.docker.BuildImage(ctx, BuildSpec{
		ContextDir: dir,
		Dockerfile: plan.Dockerfile,
		Target:     plan.Target,
		Tags:       plan.Tags,
		Labels:     plan.Labels,
	}, o.config.BuildOutput)
	o.metrics.BuildDuration.WithLabelValues(p.Name, plan.Target).Observe(time.Since(start).Seconds())
	return err
}

// start replaces any container left under the profile's name and starts a
// fresh one from the plan.
func (o *Orchestrator) start(ctx context.Context, plan coredeployment.ContainerPlan) (string, error) {
	if err := o.docker.RemoveContainer(ctx, plan.Name, RemoveOptions{Force: true}); err != nil && !errors.Is(err, ErrContainerNotFound) {
		return "", err
	}

	spec := ContainerSpec{
		Name:         plan.Name,
		Image:        plan.Image,
		Command:      plan.Command,
		Env:          plan.Env,
		Labels:       plan.Labels,
		ExposedPorts: plan.ExposedPorts,
		NetworkMode:  plan.NetworkMode,
		WorkingDir:   plan.WorkingDir,
		RestartPolicy: RestartPolicy{
			Name:              plan.RestartPolicy.Name,
			MaximumRetryCount: plan.RestartPolicy.MaximumRetryCount,
		},
	}
	for _, m := range plan.Mounts {
		spec.Mounts = append(spec.Mounts, VolumeMount{Source: m.Source, Target: m.Target, ReadOnly: m.ReadOnly})
	}

	containerID, err := o.docker.CreateContainer(ctx, spec)
	if err != nil {
		return "", err
	}
	if err := o.docker.StartContainer(ctx, containerID); err != nil {
		_ = o.docker.RemoveContainer(ctx, containerID, RemoveOptions{Force: true})
		return "", err
	}
	return containerID, nil
}

// =============================================================================
// Down
// =============================================================================

// Down stops the profile's live instance. The restart policy never applies to
// an operator stop.
func (o *Orchestrator) Down(ctx context.Context, name string) (*domain.ContainerInstance, error) {
	unlock := o.lockProfile(name)
	defer unlock()

	if _, err := o.profiles.Resolve(name); err != nil {
		return nil, err
	}

	latest, err := o.store.LatestInstance(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("profile %q: %w", name, ErrNotRunning)
		}
		return nil, fmt.Errorf("load latest instance: %w", err)
	}
	if ok, reason := coredeployment.CanStop(latest.State); !ok {
		return latest, fmt.Errorf("profile %q: %w: %s", name, ErrNotRunning, reason)
	}

	o.logger.Info("stopping profile", "profile", name, "instance_id", latest.ID)
	if err := o.stopInstance(ctx, latest, "operator stop"); err != nil {
		return latest, err
	}
	return latest, nil
}

// stopInstance asks the supervisor to stop the container, then records the
// stop. A failed stop leaves the instance in its live state with the error,
// so a later Down can try again.
func (o *Orchestrator) stopInstance(ctx context.Context, inst *domain.ContainerInstance, reason string) error {
	o.setStopping(inst.ID, true)
	defer o.setStopping(inst.ID, false)

	if inst.ContainerID != "" {
		timeout := o.config.StopTimeout
		if err := o.docker.StopContainer(ctx, inst.ContainerID, &timeout); err != nil &&
			!errors.Is(err, ErrContainerNotRunning) && !errors.Is(err, ErrContainerNotFound) {
			o.recordStopFailure(ctx, inst, err)
			return &ExternalSupervisionError{Profile: inst.Profile, Op: "stop", Err: err}
		}
	}

	// A watcher in another launcher process may have recorded the exit.
	if current, err := o.store.GetInstance(ctx, inst.ID); err == nil {
		*inst = *current
	}
	if !inst.State.Terminal() {
		inst.ErrorMessage = ""
		if err := o.transition(ctx, inst, domain.StateStopped, reason); err != nil {
			return err
		}
	}

	// start removes leftovers by name, so a failed removal is not fatal.
	if inst.ContainerID != "" {
		if err := o.docker.RemoveContainer(ctx, inst.ContainerID, RemoveOptions{Force: true}); err != nil && !errors.Is(err, ErrContainerNotFound) {
			o.logger.Warn("failed to remove stopped container",
				"profile", inst.Profile,
				"container_id", shortID(inst.ContainerID),
				"error", err,
			)
		}
	}
	return nil
}

// recordStopFailure keeps the instance's state and stores the stop error.
func (o *Orchestrator) recordStopFailure(ctx context.Context, inst *domain.ContainerInstance, cause error) {
	inst.ErrorMessage = "stop failed: " + cause.Error()
	inst.UpdatedAt = time.Now().UTC()
	if err := o.persist(ctx, inst); err != nil {
		o.logger.Error("failed to record stop failure", "instance_id", inst.ID, "error", err)
	}
	o.logger.Error("stop failed", "profile", inst.Profile, "instance_id", inst.ID, "error", cause)
}

// =============================================================================
// Status and Logs
// =============================================================================

// ProfileStatus pairs a profile with its latest instance and live container.
type ProfileStatus struct {
	Profile    string                    `json:"profile"`
	ImageBuilt bool                      `json:"image_built"`
	Instance   *domain.ContainerInstance `json:"instance,omitempty"`
	Container  *ContainerInfo            `json:"container,omitempty"`
}

// Status reports every profile in the set, sorted by name.
func (o *Orchestrator) Status(ctx context.Context) ([]ProfileStatus, error) {
	containers, err := o.docker.ListContainers(ctx, ListOptions{
		All:     true,
		Filters: map[string]string{"label": coredeployment.ManagedFilter()},
	})
	if err != nil {
		return nil, &ExternalSupervisionError{Op: "list", Err: err}
	}
	byProfile := make(map[string]ContainerInfo, len(containers))
	for _, c := range containers {
		if name := c.Labels[coredeployment.LabelProfile]; name != "" {
			byProfile[name] = c
		}
	}

	names := o.profiles.Names()
	sort.Strings(names)
	out := make([]ProfileStatus, 0, len(names))
	for _, name := range names {
		st := ProfileStatus{Profile: name}
		inst, err := o.store.LatestInstance(ctx, name)
		switch {
		case err == nil:
			st.Instance = inst
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("load latest instance: %w", err)
		}
		if c, ok := byProfile[name]; ok {
			st.Container = &c
		}
		st.ImageBuilt = o.imageBuilt(ctx, name)
		out = append(out, st)
	}
	return out, nil
}

// imageBuilt reports whether the profile's image is present locally. A failed
// lookup counts as absent.
func (o *Orchestrator) imageBuilt(ctx context.Context, name string) bool {
	p, err := o.profiles.Resolve(name)
	if err != nil {
		return false
	}
	ok, err := o.docker.ImageExists(ctx, p.ImageReference)
	if err != nil {
		o.logger.Warn("image lookup failed", "profile", name, "image", p.ImageReference, "error", err)
		return false
	}
	return ok
}

// Logs copies the last tail lines of the profile's container output to w.
func (o *Orchestrator) Logs(ctx context.Context, name, tail string, follow bool, w io.Writer) error {
	if _, err := o.profiles.Resolve(name); err != nil {
		return err
	}
	reader, err := o.docker.ContainerLogs(ctx, coredeployment.ContainerName(name), LogOptions{
		Tail:       tail,
		Follow:     follow,
		Timestamps: true,
	})
	if err != nil {
		return &ExternalSupervisionError{Profile: name, Op: "logs", Err: err}
	}
	defer reader.Close()

	if _, err := stdcopy.StdCopy(w, w, reader); err != nil && !errors.Is(err, context.Canceled) {
		return &ExternalSupervisionError{Profile: name, Op: "logs", Err: err}
	}
	return nil
}

// =============================================================================
// Helper Methods
// =============================================================================

func (o *Orchestrator) lockProfile(name string) func() {
	o.mu.Lock()
	l, ok := o.locks[name]
	if !ok {
		l = &sync.Mutex{}
		o.locks[name] = l
	}
	o.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (o *Orchestrator) operatorStopped(instanceID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopping[instanceID]
}

func (o *Orchestrator) setStopping(instanceID string, on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if on {
		o.stopping[instanceID] = true
	} else {
		delete(o.stopping, instanceID)
	}
}

// transition applies a state change and records it.
func (o *Orchestrator) transition(ctx context.Context, inst *domain.ContainerInstance, to domain.InstanceState, message string) error {
	from := inst.State
	if err := inst.Transition(to); err != nil {
		return err
	}
	return o.persist(ctx, inst, newEvent(inst, from, to, message))
}

// fail stops the instance with the error's message and records it.
func (o *Orchestrator) fail(ctx context.Context, inst *domain.ContainerInstance, cause error) {
	from := inst.State
	if err := inst.Fail(cause.Error()); err != nil {
		o.logger.Error("failed to record failure", "instance_id", inst.ID, "error", err)
		return
	}
	if err := o.persist(ctx, inst, newEvent(inst, from, inst.State, cause.Error())); err != nil {
		o.logger.Error("failed to record failure", "instance_id", inst.ID, "error", err)
		return
	}
	o.logger.Error("launch failed", "profile", inst.Profile, "instance_id", inst.ID, "error", cause)
}

// persist writes the instance row and its events atomically.
func (o *Orchestrator) persist(ctx context.Context, inst *domain.ContainerInstance, events ...*domain.InstanceEvent) error {
	err := o.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.UpdateInstance(ctx, inst); err != nil {
			return err
		}
		for _, ev := range events {
			if err := tx.AppendEvent(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record instance: %w", err)
	}
	return nil
}

func newEvent(inst *domain.ContainerInstance, from, to domain.InstanceState, message string) *domain.InstanceEvent {
	return &domain.InstanceEvent{
		InstanceID: inst.ID,
		From:       from,
		To:         to,
		ExitCode:   inst.ExitCode,
		Message:    message,
		Timestamp:  inst.UpdatedAt,
	}
}

// mergePorts adds extra to ports when it is set and not already present.
func mergePorts(ports []int, extra int) []int {
	if extra <= 0 {
		return ports
	}
	for _, p := range ports {
		if p == extra {
			return ports
		}
	}
	out := append(append([]int(nil), ports...), extra)
	sort.Ints(out)
	return out
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
