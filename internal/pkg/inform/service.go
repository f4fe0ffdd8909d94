// Package inform drives terminal-state email notifications: one gue
// worker pool listens on the Inform queue and mails the task owner when
// a task finishes, fails, or is cancelled.
package inform

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/async-api/pkg/inform"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxsum/internal/pkg/messages"
	"github.com/airenas/voxsum/internal/pkg/persistence"
	"github.com/airenas/voxsum/internal/pkg/utils/handler"
	"github.com/jordan-wright/email"
	"github.com/vgarvardt/gue/v5"
)

// Sender sends the prepared email.
type Sender interface {
	Send(email *email.Email) error
}

// EmailMaker renders an email from template data.
type EmailMaker interface {
	Make(data *inform.Data) (*email.Email, error)
}

// DB loads the task and guards against sending the same notification
// twice when a message is redelivered.
type DB interface {
	LoadTask(ctx context.Context, id string) (*persistence.Task, error)
	LockEmailTable(ctx context.Context, taskID, msgType string) error
	UnLockEmailTable(ctx context.Context, taskID, msgType string, result *int) error
}

// ServiceData keeps the collaborators the inform worker pool needs.
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	EmailSender Sender
	EmailMaker  EmailMaker
	DB          DB
	Location    *time.Location
}

// StartWorkerService starts the gue worker pool listening on the Inform
// queue. Returns a channel closed once every worker has exited.
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Msg("starting listen for messages")

	wm := gue.WorkMap{
		messages.Inform: handler.Create(data, handleInform, handler.DefaultOpts[messages.InformMessage]()),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Inform),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("voxsum-inform"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

func handleInform(ctx context.Context, m *messages.InformMessage, data *ServiceData) error {
	goapp.Log.Info().Str("taskID", m.TaskID).Str("status", m.Status).Msg("handling")

	task, err := data.DB.LoadTask(ctx, m.TaskID)
	if err != nil {
		return fmt.Errorf("can't load task: %w", err)
	}
	if task == nil || task.UserID == "" {
		goapp.Log.Info().Msg("no owner, skip")
		return nil
	}

	mailData := inform.Data{}
	mailData.ID = m.TaskID
	mailData.MsgTime = toLocalTime(data, time.Now())
	mailData.MsgType = m.Status
	mailData.Email = task.UserID

	msg, err := data.EmailMaker.Make(&mailData)
	if err != nil {
		return fmt.Errorf("can't prepare email: %w", err)
	}

	if err := data.DB.LockEmailTable(ctx, m.TaskID, m.Status); err != nil {
		return fmt.Errorf("can't lock mail table: %w", err)
	}
	unlockValue := 0
	defer data.DB.UnLockEmailTable(ctx, m.TaskID, m.Status, &unlockValue)

	if err := data.EmailSender.Send(msg); err != nil {
		return fmt.Errorf("can't send email: %w", err)
	}
	unlockValue = 2
	return nil
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.EmailMaker == nil {
		return fmt.Errorf("no EmailMaker")
	}
	if data.EmailSender == nil {
		return fmt.Errorf("no EmailSender")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	return nil
}

func toLocalTime(data *ServiceData, t time.Time) time.Time {
	if data.Location != nil {
		return t.In(data.Location)
	}
	return t
}
