package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

// Sender performs message sending using the postgres-backed gue queue,
// used for every inter-stage and cross-service message in this system
// (orchestrator task intake, progress broadcaster fan-out, inform mailer).
type Sender struct {
	gc *gue.Client
}

// NewSender initializes a gue sender over an existing pgx pool.
func NewSender(pool *pgxpool.Pool) (*Sender, error) {
	gc, err := gue.NewClient(pgxv5.NewConnPool(pool))
	if err != nil {
		return nil, fmt.Errorf("can't init gue: %w", err)
	}
	return &Sender{gc: gc}, nil
}

// SendMessage marshals msg as JSON and enqueues it on queue.
func (sender *Sender) SendMessage(ctx context.Context, msg any, queue string) error {
	goapp.Log.Debug().Str("queue", queue).Msg("sending message")
	args, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("can't marshal msg: %w", err)
	}

	j := &gue.Job{
		Type:  queue,
		Queue: queue,
		Args:  args,
	}
	if err := sender.gc.Enqueue(ctx, j); err != nil {
		return fmt.Errorf("can't send msg to %s: %w", queue, err)
	}
	goapp.Log.Debug().Msg("sent")
	return nil
}

// Client exposes the underlying gue client for callers that need to build
// a gue.WorkerPool over the same client.
func (sender *Sender) Client() *gue.Client { return sender.gc }
