package progress

import (
	"context"
	"testing"

	"github.com/airenas/voxsum/internal/pkg/messages"
	"github.com/stretchr/testify/assert"
)

func Test_handleProgress(t *testing.T) {
	b := New()
	data := &ConsumerData{Broadcaster: b}
	ch, unsub := b.Subscribe("t1")
	defer unsub()

	msg := &messages.ProgressMessage{TaskID: "t1", Type: "progress", Status: "transcribing", Stage: "transcribe", Progress: 30}
	err := handleProgress(context.Background(), msg, data)
	assert.Nil(t, err)

	ev := <-ch
	assert.Equal(t, TypeProgress, ev.Type)
	assert.Equal(t, "transcribing", ev.Status)
	assert.Equal(t, "transcribe", ev.Stage)
	assert.EqualValues(t, 30, ev.Progress)
	assert.Equal(t, "t1", ev.TaskID)
}

func Test_validateConsumer(t *testing.T) {
	b := New()
	tests := []struct {
		name    string
		data    *ConsumerData
		wantErr bool
	}{
		{name: "no gue client", data: &ConsumerData{WorkerCount: 1, Broadcaster: b}, wantErr: true},
		{name: "no worker count", data: &ConsumerData{Broadcaster: b}, wantErr: true},
		{name: "no broadcaster", data: &ConsumerData{WorkerCount: 1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConsumer(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConsumer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
