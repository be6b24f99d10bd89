package coordinator

import (
	"context"

	"github.com/cristianoliveira/freshshell/internal/agent"
)

// Container is the registration side of the agent as seen from the page.
type Container interface {
	Register(ctx context.Context) (Registration, error)
	SupportsControllerChange() bool
}

// Registration is the page's handle on the agent lifecycle.
type Registration interface {
	Update(ctx context.Context) (bool, error)
	PostMessage(ctx context.Context, msg agent.Message) error
	Subscribe() (<-chan agent.Event, func())
	HasWaiting() bool
}

// FromAgent adapts an agent container.
func FromAgent(c *agent.Container) Container {
	return agentContainer{c: c}
}

type agentContainer struct {
	c *agent.Container
}

func (a agentContainer) Register(ctx context.Context) (Registration, error) {
	reg, err := a.c.Register(ctx)
	if err != nil {
		return nil, err
	}
	return agentRegistration{reg}, nil
}

func (a agentContainer) SupportsControllerChange() bool {
	return a.c.SupportsControllerChange()
}

type agentRegistration struct {
	*agent.Registration
}

func (r agentRegistration) HasWaiting() bool {
	return r.Waiting() != nil
}
