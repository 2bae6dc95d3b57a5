package docker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/colav/quyca-launcher/internal/core/domain"
	"github.com/colav/quyca-launcher/internal/shell/store"
)

// =============================================================================
// Watch - Mirror Supervisor Exits and Restarts
// =============================================================================

// Watch follows one instance until it is stopped or ctx is done. Every exit
// is recorded as exited-clean or exited-failed, followed by restarting or
// stopped as the restart policy dictates. The supervisor performs the restart;
// Watch only records starting and running once it sees the container back.
func (o *Orchestrator) Watch(ctx context.Context, instanceID string) error {
	inst, err := o.store.GetInstance(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("load instance: %w", err)
	}

	for {
		if inst.State.Terminal() {
			return nil
		}
		if inst.ContainerID == "" {
			return fmt.Errorf("instance %s has no container", inst.ID)
		}

		res, err := o.docker.WaitContainer(ctx, inst.ContainerID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrContainerNotFound) {
				return o.containerGone(ctx, inst.ID)
			}
			return &ExternalSupervisionError{Profile: inst.Profile, Op: "wait", Err: err}
		}

		inst, err = o.recordExit(ctx, inst.ID, res)
		if err != nil {
			return err
		}

		if inst.State == domain.StateRestarting {
			o.metrics.Restarts.WithLabelValues(inst.Profile).Inc()
			if inst, err = o.awaitRestart(ctx, inst); err != nil {
				return err
			}
		}
	}
}

// LiveInstances returns the latest non-stopped instance of every profile, for
// resuming watchers after a launcher restart.
func (o *Orchestrator) LiveInstances(ctx context.Context) ([]*domain.ContainerInstance, error) {
	var live []*domain.ContainerInstance
	for _, name := range o.profiles.Names() {
		inst, err := o.store.LatestInstance(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !inst.State.Terminal() && inst.ContainerID != "" {
			live = append(live, inst)
		}
	}
	return live, nil
}

// recordExit reloads the instance under the profile lock and applies the exit.
// An instance already stopped by the operator is returned unchanged.
func (o *Orchestrator) recordExit(ctx context.Context, instanceID string, res WaitResult) (*domain.ContainerInstance, error) {
	inst, err := o.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}

	unlock := o.lockProfile(inst.Profile)
	defer unlock()

	// Down may have recorded a stop before the lock was acquired.
	if inst, err = o.store.GetInstance(ctx, instanceID); err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	if inst.State.Terminal() {
		return inst, nil
	}

	exit := domain.ExitStatus{Code: res.ExitCode, OperatorStopped: o.operatorStopped(inst.ID)}
	outcome := "clean"
	if !exit.Clean() {
		outcome = "failed"
	}
	o.metrics.Exits.WithLabelValues(inst.Profile, outcome).Inc()

	prev := inst.State
	states, err := inst.Exit(exit)
	if err != nil {
		return nil, err
	}

	message := "exit code " + strconv.Itoa(res.ExitCode)
	if res.Error != "" {
		message += ": " + res.Error
	}
	events := make([]*domain.InstanceEvent, 0, len(states))
	for _, s := range states {
		events = append(events, newEvent(inst, prev, s, message))
		prev = s
	}
	if err := o.persist(ctx, inst, events...); err != nil {
		return nil, err
	}

	o.logger.Info("container exited",
		"profile", inst.Profile,
		"instance_id", inst.ID,
		"exit_code", res.ExitCode,
		"restart_policy", inst.RestartPolicy,
		"next", inst.State,
	)
	return inst, nil
}

// awaitRestart polls the supervisor until the restarted container is running.
func (o *Orchestrator) awaitRestart(ctx context.Context, inst *domain.ContainerInstance) (*domain.ContainerInstance, error) {
	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		current, err := o.store.GetInstance(ctx, inst.ID)
		if err != nil {
			return nil, fmt.Errorf("load instance: %w", err)
		}
		if current.State.Terminal() {
			return current, nil
		}

		info, err := o.docker.InspectContainer(ctx, inst.ContainerID)
		if err != nil {
			if errors.Is(err, ErrContainerNotFound) {
				if err := o.containerGone(ctx, inst.ID); err != nil {
					return nil, err
				}
				return o.store.GetInstance(ctx, inst.ID)
			}
			return nil, &ExternalSupervisionError{Profile: inst.Profile, Op: "inspect", Err: err}
		}
		if info.Status != ContainerStatusRunning {
			continue
		}
		return o.recordRestarted(ctx, inst.ID)
	}
}

// recordRestarted records restarting -> starting -> running.
func (o *Orchestrator) recordRestarted(ctx context.Context, instanceID string) (*domain.ContainerInstance, error) {
	inst, err := o.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	unlock := o.lockProfile(inst.Profile)
	defer unlock()

	if inst, err = o.store.GetInstance(ctx, instanceID); err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	if inst.State != domain.StateRestarting {
		return inst, nil
	}
	if err := o.transition(ctx, inst, domain.StateStarting, "restarted by supervisor"); err != nil {
		return nil, err
	}
	if err := o.transition(ctx, inst, domain.StateRunning, ""); err != nil {
		return nil, err
	}
	o.logger.Info("container restarted", "profile", inst.Profile, "instance_id", inst.ID, "restart_count", inst.RestartCount)
	return inst, nil
}

// containerGone records an instance whose container vanished from under it.
func (o *Orchestrator) containerGone(ctx context.Context, instanceID string) error {
	inst, err := o.store.GetInstance(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("load instance: %w", err)
	}
	unlock := o.lockProfile(inst.Profile)
	defer unlock()

	if inst, err = o.store.GetInstance(ctx, instanceID); err != nil {
		return fmt.Errorf("load instance: %w", err)
	}
	if inst.State.Terminal() {
		return nil
	}
	o.fail(ctx, inst, errors.New("container removed outside the launcher"))
	return nil
}
