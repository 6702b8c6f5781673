package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/thejerf/suture/v4"

	"skidoodle/biolink/internal/discord"
)

// SessionRunner is satisfied by *discord.Session.
type SessionRunner interface {
	Run(ctx context.Context) error
}

// GatewayService supervises the gateway session. An exhausted reconnect
// budget terminates the whole tree.
type GatewayService struct {
	session SessionRunner
	onFatal func(error)
}

// NewGatewayService wraps session. onFatal, if set, is called before the
// tree is terminated.
func NewGatewayService(session SessionRunner, onFatal func(error)) *GatewayService {
	return &GatewayService{session: session, onFatal: onFatal}
}

// Serve implements suture.Service.
func (g *GatewayService) Serve(ctx context.Context) error {
	err := g.session.Run(ctx)
	if errors.Is(err, discord.ErrReconnectBudgetExhausted) {
		if g.onFatal != nil {
			g.onFatal(err)
		}
		return fmt.Errorf("%w: %w", suture.ErrTerminateSupervisorTree, err)
	}
	if err == nil {
		return ctx.Err()
	}
	return err
}

// String implements fmt.Stringer for supervisor logs.
func (g *GatewayService) String() string {
	return "discord-gateway"
}
