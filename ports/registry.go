package ports

import (
	"context"

	"github.com/layer-3/rangda/core"
)

// ProfileRegistry is the external document store mapping a controller
// address to its smart account profiles, newest first. Put has
// last-writer-wins semantics; this system only ever prepends.
type ProfileRegistry interface {
	Get(ctx context.Context, owner string) ([]core.SmartAccountProfile, error)
	Put(ctx context.Context, owner string, profiles []core.SmartAccountProfile) error
}

// Deployer is the one-shot service that deploys a smart account for a
// controller address.
type Deployer interface {
	Deploy(ctx context.Context, controller string) (*core.SmartAccountProfile, error)
}
