package clean

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/airenas/voxsum/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockLister struct{ mock.Mock }

func (m *mockLister) GetExpiredDeleted(ctx context.Context, retention time.Duration) ([]string, error) {
	args := m.Called(ctx, retention)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func Test_sweepOnce(t *testing.T) {
	lister := &mockLister{}
	cleaner := newCleanMock(false)
	lister.On("GetExpiredDeleted", mock.Anything, mock.Anything).Return([]string{"1", "2"}, nil)
	sweepOnce(test.Ctx(t), &TimerData{IDsProvider: lister, Cleaner: cleaner, RunEvery: time.Minute})
	cleaner.AssertNumberOfCalls(t, "Clean", 2)
}

func Test_sweepOnce_ListFails(t *testing.T) {
	lister := &mockLister{}
	cleaner := newCleanMock(false)
	lister.On("GetExpiredDeleted", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("boom"))
	sweepOnce(test.Ctx(t), &TimerData{IDsProvider: lister, Cleaner: cleaner, RunEvery: time.Minute})
	cleaner.AssertNotCalled(t, "Clean", mock.Anything, mock.Anything)
}

func Test_sweepOnce_CleanFailsContinues(t *testing.T) {
	lister := &mockLister{}
	cleaner := &mockCleaner{}
	cleaner.On("Clean", mock.Anything, "1").Return(fmt.Errorf("boom"))
	cleaner.On("Clean", mock.Anything, "2").Return(nil)
	lister.On("GetExpiredDeleted", mock.Anything, mock.Anything).Return([]string{"1", "2"}, nil)
	sweepOnce(test.Ctx(t), &TimerData{IDsProvider: lister, Cleaner: cleaner, RunEvery: time.Minute})
	cleaner.AssertNumberOfCalls(t, "Clean", 2)
}

func Test_validateTimer(t *testing.T) {
	lister := &mockLister{}
	cleaner := newCleanMock(false)
	tests := []struct {
		name    string
		data    *TimerData
		wantErr bool
	}{
		{name: "OK", data: &TimerData{IDsProvider: lister, Cleaner: cleaner, RunEvery: time.Minute}, wantErr: false},
		{name: "no provider", data: &TimerData{Cleaner: cleaner, RunEvery: time.Minute}, wantErr: true},
		{name: "no cleaner", data: &TimerData{IDsProvider: lister, RunEvery: time.Minute}, wantErr: true},
		{name: "no interval", data: &TimerData{IDsProvider: lister, Cleaner: cleaner}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTimer(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateTimer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_StartCleanTimer_InvalidConfig(t *testing.T) {
	_, err := StartCleanTimer(test.Ctx(t), &TimerData{})
	assert.NotNil(t, err)
}
