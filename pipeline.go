// Package pipeline provides a lightweight meta-module that re-exports from
// submodules. This is the main entry point for the framework; users should
// import specific packages based on their needs:
//   - github.com/verdantlabs/pipeline/pipe - filter chains and contexts
//   - github.com/verdantlabs/pipeline/retry - retry policies and filters
//   - github.com/verdantlabs/pipeline/agent - lifecycle and context caching
//   - github.com/verdantlabs/pipeline/telemetry - observability
package pipeline

import (
	"github.com/verdantlabs/pipeline/agent"
	"github.com/verdantlabs/pipeline/core"
	"github.com/verdantlabs/pipeline/retry"
)

// Version information for the pipeline framework
const (
	// Version is the current framework version
	Version = "development"

	// APIVersion is the current API version
	APIVersion = "v1alpha1"
)

// Re-export the shared kernel types so simple integrations need a single
// import
type (
	// Configuration types
	Config = core.Config
	Option = core.Option

	// Logging types
	Logger     = core.Logger
	NoOpLogger = core.NoOpLogger

	// Retry types
	RetryPolicy     = retry.Policy
	RetryContext    = retry.Context
	ExceptionFilter = retry.ExceptionFilter

	// Lifecycle types
	Agent      = agent.Agent
	Supervisor = agent.Supervisor
	Latch      = agent.Latch
)

// NewConfig builds a Config from defaults, environment, and options
func NewConfig(opts ...Option) (*Config, error) {
	return core.NewConfig(opts...)
}

// NewRetryPolicy builds a retry policy from options
func NewRetryPolicy(opts ...retry.Option) RetryPolicy {
	return retry.NewPolicy(opts...)
}

// NewSupervisor creates a supervisor with no children
func NewSupervisor(opts ...agent.BaseOption) *Supervisor {
	return agent.NewSupervisor(opts...)
}
