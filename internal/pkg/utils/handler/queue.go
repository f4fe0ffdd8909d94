// Package handler wraps gue.WorkFunc with a typed decode step and a
// uniform retry/backoff policy, shared by every stage worker.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vgarvardt/gue/v5"
)

// MsgSender provides send msg functionality. Nothing in this package
// calls it; the default failure handler sends no notification.
type MsgSender interface {
	SendMessage(ctx context.Context, msg any, queue string) error
}

// Opts configures a handler built by Create.
type Opts[TM any] struct {
	backoff        gue.Backoff
	timeout        time.Duration
	failureHandler func(context.Context, *TM, error, *gue.Job) (bool, time.Duration, error)
}

// Create wraps a typed worker function hf into a gue.WorkFunc: it decodes
// the job payload into TM, runs hf with a per-job timeout, and on error
// consults the failure handler for retry-vs-terminal classification.
func Create[TM any, SD any](data *SD, hf func(context.Context, *TM, *SD) error, opts *Opts[TM]) gue.WorkFunc {
	if opts == nil {
		goapp.Log.Panic().Msg("no opts provided")
	}
	return func(ctx context.Context, j *gue.Job) error {
		goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("got msg")

		var m TM
		err := json.Unmarshal(j.Args, &m)
		if err != nil {
			err = fmt.Errorf("could not unmarshal message: %w", err)
		} else {
			wrkCtx, cf := context.WithTimeout(ctx, opts.timeout)
			defer cf()
			err = hf(wrkCtx, &m, data)
			if err != nil {
				goapp.Log.Warn().Err(err).Str("queue", j.Queue).Str("type", j.Type).Msg("fail")
			}
		}
		if err == nil {
			return nil
		}
		retry, delay, errHandler := opts.failureHandler(ctx, &m, err, j)
		if errHandler != nil {
			goapp.Log.Error().Err(errHandler).Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Send()
		}
		if !retry {
			goapp.Log.Warn().Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("terminal failure, not retrying")
			return nil
		}
		if delay == 0 {
			delay = opts.backoff(int(j.ErrorCount + 1))
		}
		goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Dur("after", delay).Msg("retry after")
		return gue.ErrRescheduleJobIn(delay, err.Error())
	}
}

// DefaultOpts applies a 15 minute job timeout, full-jitter backoff, and
// a failure handler that gives up after 3 attempts (the retry policy's
// default max attempts, per the selector's retriable/terminal table).
func DefaultOpts[TM any]() *Opts[TM] {
	return &Opts[TM]{timeout: time.Minute * 15, failureHandler: defaultFailureHandler[TM], backoff: DefaultBackoff()}
}

// DefaultBackoff implements the base-delay/exponential/jitter policy:
// 500ms base, factor 2, full jitter in [0, delay).
func DefaultBackoff() gue.Backoff {
	return func(retries int) time.Duration {
		base := 500 * time.Millisecond
		delay := base << uint(retries)
		return fullJitter(delay)
	}
}

// NoBackoff retries immediately, used under Testing mode.
func NoBackoff() gue.Backoff {
	return func(retries int) time.Duration {
		return 0
	}
}

// DefaultBackoffOrTest picks NoBackoff in test mode so suites don't stall.
func DefaultBackoffOrTest(test bool) gue.Backoff {
	if test {
		return NoBackoff()
	}
	return DefaultBackoff()
}

// WithFailure overrides the failure classification function.
func (o *Opts[TM]) WithFailure(failureHandler func(context.Context, *TM, error, *gue.Job) (bool, time.Duration, error)) *Opts[TM] {
	o.failureHandler = failureHandler
	return o
}

// WithTimeout overrides the per-job timeout.
func (o *Opts[TM]) WithTimeout(timeout time.Duration) *Opts[TM] {
	o.timeout = timeout
	return o
}

// WithBackoff overrides the backoff function.
func (o *Opts[TM]) WithBackoff(b gue.Backoff) *Opts[TM] {
	o.backoff = b
	return o
}

// fullJitter returns a randomized duration in [0, t), as suggested by
// https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
func fullJitter(t time.Duration) time.Duration {
	return time.Duration(float64(t) * rand.Float64())
}

// defaultFailureHandler allows 3 attempts in total (A=3 per the default
// retry policy): j.ErrorCount counts earlier failures, so the run with
// ErrorCount 2 is the last; then it gives up and lets the job die.
func defaultFailureHandler[TM any](ctx context.Context, message *TM, err error, j *gue.Job) (bool, time.Duration, error) {
	if j.ErrorCount >= 2 {
		return false, 0, nil
	}
	return true, 0, nil
}
