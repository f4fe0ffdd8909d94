package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxsum/internal/pkg/messages"
	"github.com/airenas/voxsum/internal/pkg/utils/handler"
	"github.com/vgarvardt/gue/v5"
)

// ConsumerData keeps the collaborators the progress-queue consumer needs.
type ConsumerData struct {
	GueClient   *gue.Client
	WorkerCount int
	Broadcaster *Broadcaster
	Testing     bool
}

// StartConsumer starts the gue worker pool that drains the Progress queue
// into data.Broadcaster, bridging the worker process's publisher to this
// process's subscriber-facing broadcaster. Returns a channel closed once
// every worker has exited.
func StartConsumer(ctx context.Context, data *ConsumerData) (chan struct{}, error) {
	if err := validateConsumer(data); err != nil {
		return nil, err
	}
	wm := gue.WorkMap{
		messages.Progress: handler.Create(data, handleProgress, handler.DefaultOpts[messages.ProgressMessage]().
			WithTimeout(time.Minute).WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
	}
	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Progress),
		gue.WithPoolPollInterval(250*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("progress-consumer"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue progress pool: %w", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("progress pool error")
		}
		goapp.Log.Info().Msg("progress consumer finished")
	}()
	return done, nil
}

func handleProgress(_ context.Context, m *messages.ProgressMessage, data *ConsumerData) error {
	data.Broadcaster.Publish(m.TaskID, Event{Type: EventType(m.Type), Status: m.Status, Stage: m.Stage, Progress: m.Progress})
	return nil
}

func validateConsumer(data *ConsumerData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.Broadcaster == nil {
		return fmt.Errorf("no broadcaster")
	}
	return nil
}
