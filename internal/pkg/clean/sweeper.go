package clean

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// ExpiredLister finds task IDs whose soft delete is older than retention.
type ExpiredLister interface {
	GetExpiredDeleted(ctx context.Context, retention time.Duration) ([]string, error)
}

// TimerData keeps the collaborators the retention-sweep timer needs,
// adapted from the teacher's timer/cleaner-group pair into a single
// periodic sweep over this service's own Cleaner.
type TimerData struct {
	IDsProvider ExpiredLister
	Cleaner     Cleaner
	RunEvery    time.Duration
	Retention   time.Duration
}

func validateTimer(data *TimerData) error {
	if data.IDsProvider == nil {
		return fmt.Errorf("no IDs provider")
	}
	if data.Cleaner == nil {
		return fmt.Errorf("no cleaner")
	}
	if data.RunEvery <= 0 {
		return fmt.Errorf("no run interval")
	}
	return nil
}

// StartCleanTimer runs the retention sweep every data.RunEvery until ctx
// is done. Returns a channel closed once the loop has exited.
func StartCleanTimer(ctx context.Context, data *TimerData) (chan struct{}, error) {
	if err := validateTimer(data); err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(data.RunEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepOnce(ctx, data)
			}
		}
	}()
	return done, nil
}

func sweepOnce(ctx context.Context, data *TimerData) {
	ids, err := data.IDsProvider.GetExpiredDeleted(ctx, data.Retention)
	if err != nil {
		goapp.Log.Error().Err(err).Msg("can't list expired tasks")
		return
	}
	for _, id := range ids {
		if err := data.Cleaner.Clean(ctx, id); err != nil {
			goapp.Log.Error().Err(err).Str("taskID", id).Msg("can't clean expired task")
			continue
		}
		goapp.Log.Info().Str("taskID", id).Msg("swept expired task")
	}
}
