package supervisor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thejerf/suture/v4"

	"skidoodle/biolink/internal/discord"
)

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

func TestGatewayServiceTerminatesTreeOnExhaustedBudget(t *testing.T) {
	var fatal error
	svc := NewGatewayService(runnerFunc(func(context.Context) error {
		return fmt.Errorf("%w after 5 attempts", discord.ErrReconnectBudgetExhausted)
	}), func(err error) { fatal = err })

	err := svc.Serve(context.Background())
	if !errors.Is(err, suture.ErrTerminateSupervisorTree) {
		t.Errorf("expected ErrTerminateSupervisorTree, got %v", err)
	}
	if !errors.Is(err, discord.ErrReconnectBudgetExhausted) {
		t.Errorf("expected budget error to be preserved, got %v", err)
	}
	if !errors.Is(fatal, discord.ErrReconnectBudgetExhausted) {
		t.Errorf("expected onFatal to be called, got %v", fatal)
	}
}

func TestGatewayServiceCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewGatewayService(runnerFunc(func(context.Context) error { return nil }), nil)
	if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestTreeStopsOnGatewayFailure(t *testing.T) {
	tree := NewTree(logrus.NewEntry(logrus.New()), TreeConfig{ShutdownTimeout: time.Second})

	tree.AddAPIService(NewGatewayService(runnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}), nil))
	tree.AddPresenceService(NewGatewayService(runnerFunc(func(context.Context) error {
		return discord.ErrReconnectBudgetExhausted
	}), nil))

	done := make(chan error, 1)
	go func() { done <- tree.Serve(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, suture.ErrTerminateSupervisorTree) {
			t.Errorf("expected tree termination, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not terminate")
	}
}
