package worker

import (
	"context"
	"fmt"
	"testing"

	"github.com/airenas/voxsum/internal/pkg/messages"
	"github.com/airenas/voxsum/internal/pkg/orchestrator"
	"github.com/airenas/voxsum/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/vgarvardt/gue/v5"
)

type mockRunner struct{ mock.Mock }

func (m *mockRunner) Run(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *mockRunner) RunVisualize(ctx context.Context, req orchestrator.VisualizeRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

type mockSender struct{ mock.Mock }

func (m *mockSender) SendMessage(ctx context.Context, msg any, queue string) error {
	args := m.Called(ctx, msg, queue)
	return args.Error(0)
}

var (
	runnerMock *mockRunner
	senderMock *mockSender
	srvData    *ServiceData
)

func initTest(t *testing.T) {
	runnerMock = &mockRunner{}
	senderMock = &mockSender{}
	srvData = &ServiceData{GueClient: &gue.Client{}, WorkerCount: 10, MsgSender: senderMock, Orchestrator: runnerMock}
}

func Test_handleExtract(t *testing.T) {
	initTest(t)
	runnerMock.On("Run", mock.Anything, "task-1").Return(nil)
	err := handleExtract(test.Ctx(t), &messages.TaskMessage{TaskID: "task-1"}, srvData)
	assert.Nil(t, err)
}

func Test_handleExtract_Fail(t *testing.T) {
	initTest(t)
	runnerMock.On("Run", mock.Anything, "task-1").Return(fmt.Errorf("boom"))
	err := handleExtract(test.Ctx(t), &messages.TaskMessage{TaskID: "task-1"}, srvData)
	assert.NotNil(t, err)
}

func Test_handleVisualize(t *testing.T) {
	initTest(t)
	runnerMock.On("RunVisualize", mock.Anything, mock.Anything).Return(nil)
	err := handleVisualize(test.Ctx(t), &messages.VisualizeMessage{TaskID: "task-1", VisualType: "visual_mindmap"}, srvData)
	assert.Nil(t, err)
}

func Test_handleVisualize_Fail(t *testing.T) {
	initTest(t)
	runnerMock.On("RunVisualize", mock.Anything, mock.Anything).Return(fmt.Errorf("boom"))
	err := handleVisualize(test.Ctx(t), &messages.VisualizeMessage{TaskID: "task-1", VisualType: "visual_mindmap"}, srvData)
	assert.NotNil(t, err)
}

func Test_validate(t *testing.T) {
	initTest(t)
	tests := []struct {
		name    string
		data    *ServiceData
		wantErr bool
	}{
		{name: "OK", data: &ServiceData{GueClient: &gue.Client{}, WorkerCount: 10, Orchestrator: runnerMock}, wantErr: false},
		{name: "no gue client", data: &ServiceData{WorkerCount: 10, Orchestrator: runnerMock}, wantErr: true},
		{name: "no worker count", data: &ServiceData{GueClient: &gue.Client{}, Orchestrator: runnerMock}, wantErr: true},
		{name: "no orchestrator", data: &ServiceData{GueClient: &gue.Client{}, WorkerCount: 10}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
