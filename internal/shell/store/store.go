package store

import (
	"context"

	"github.com/colav/quyca-launcher/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for profile instances.
type Store interface {
	// Instance operations
	CreateInstance(ctx context.Context, inst *domain.ContainerInstance) error
	UpdateInstance(ctx context.Context, inst *domain.ContainerInstance) error
	GetInstance(ctx context.Context, id string) (*domain.ContainerInstance, error)
	LatestInstance(ctx context.Context, profile string) (*domain.ContainerInstance, error)
	ListInstances(ctx context.Context, opts ListOptions) ([]domain.ContainerInstance, error)

	// Event operations
	AppendEvent(ctx context.Context, ev *domain.InstanceEvent) error
	ListEvents(ctx context.Context, instanceID string, opts ListOptions) ([]domain.InstanceEvent, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Health
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination and filtering options.
type ListOptions struct {
	Limit  int
	Offset int

	// Profile restricts instance listings to one profile when set.
	Profile string
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
