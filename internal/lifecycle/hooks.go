package lifecycle

import "context"

// Hook describes a named shutdown hook.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Phase orders hooks. All hooks of a phase finish before the next phase starts.
type Phase int

const (
	// PhaseIngress stops accepting new work: HTTP server, bot poller, queue consumers.
	PhaseIngress Phase = iota
	// PhaseResources closes what the ingress used: database, Redis, event publisher.
	PhaseResources
)
