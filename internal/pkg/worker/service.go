// Package worker wires the durable gue queue to the Pipeline
// Orchestrator: one worker pool dequeues task messages and drives each
// through every remaining stage, and a second pool runs on-demand
// visualization requests; a failed job is rescheduled until the default
// attempt budget is spent.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxsum/internal/pkg/messages"
	"github.com/airenas/voxsum/internal/pkg/orchestrator"
	"github.com/airenas/voxsum/internal/pkg/summary"
	"github.com/airenas/voxsum/internal/pkg/utils/handler"
	"github.com/vgarvardt/gue/v5"
)

// Runner drives one task through the orchestrator, satisfied by
// *orchestrator.Orchestrator.
type Runner interface {
	Run(ctx context.Context, taskID string) error
	RunVisualize(ctx context.Context, req orchestrator.VisualizeRequest) error
}

// MsgSender enqueues messages; the worker's handlers do not call it.
type MsgSender interface {
	SendMessage(ctx context.Context, msg any, queue string) error
}

// ServiceData keeps the collaborators the worker pool needs.
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	MsgSender   MsgSender
	Orchestrator Runner
	Testing     bool
}

const extractQueue = messages.Extract

// StartWorkerService starts the gue worker pools listening on the Extract
// and Visualize queues. Returns a channel closed once both pools have exited.
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Int("workers", data.WorkerCount).Msg("starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}

	wm := gue.WorkMap{
		extractQueue: handler.Create(data, handleExtract, handler.DefaultOpts[messages.TaskMessage]().
			WithTimeout(2*time.Hour).WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Extract),
		gue.WithPoolLogger(newGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("pipeline-worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}

	vwm := gue.WorkMap{
		messages.Visualize: handler.Create(data, handleVisualize, handler.DefaultOpts[messages.VisualizeMessage]().
			WithTimeout(10*time.Minute).WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
	}
	vpool, err := gue.NewWorkerPool(
		data.GueClient, vwm, data.WorkerCount,
		gue.WithPoolQueue(messages.Visualize),
		gue.WithPoolLogger(newGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("visualize-worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue visualize pool: %w", err)
	}

	res := make(chan struct{}, 2)
	done := make(chan struct{})
	go func() {
		goapp.Log.Info().Msg("starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("pool workers finished")
		res <- struct{}{}
	}()
	go func() {
		if err := vpool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("visualize pool error")
		}
		goapp.Log.Info().Msg("visualize pool workers finished")
		res <- struct{}{}
	}()
	go func() {
		<-res
		<-res
		close(done)
	}()
	return done, nil
}

func handleExtract(ctx context.Context, m *messages.TaskMessage, data *ServiceData) error {
	goapp.Log.Info().Str("taskID", m.TaskID).Msg("running pipeline")
	if err := data.Orchestrator.Run(ctx, m.TaskID); err != nil {
		goapp.Log.Warn().Err(err).Str("taskID", m.TaskID).Msg("pipeline run failed")
		return err
	}
	goapp.Log.Info().Str("taskID", m.TaskID).Msg("pipeline run completed")
	return nil
}

func handleVisualize(ctx context.Context, m *messages.VisualizeMessage, data *ServiceData) error {
	goapp.Log.Info().Str("taskID", m.TaskID).Str("visualType", m.VisualType).Msg("running visualize")
	req := orchestrator.VisualizeRequest{
		TaskID: m.TaskID, VisualType: summary.VisualType(m.VisualType),
		ContentStyle: m.ContentStyle, Provider: m.Provider, ModelID: m.ModelID,
	}
	if err := data.Orchestrator.RunVisualize(ctx, req); err != nil {
		goapp.Log.Warn().Err(err).Str("taskID", m.TaskID).Msg("visualize run failed")
		return err
	}
	return nil
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.Orchestrator == nil {
		return fmt.Errorf("no orchestrator")
	}
	return nil
}
