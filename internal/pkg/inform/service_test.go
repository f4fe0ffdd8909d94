package inform

import (
	"context"
	"fmt"
	"testing"

	"github.com/airenas/async-api/pkg/inform"
	"github.com/airenas/voxsum/internal/pkg/messages"
	"github.com/airenas/voxsum/internal/pkg/persistence"
	"github.com/airenas/voxsum/internal/pkg/test"
	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vgarvardt/gue/v5"
)

var (
	dbMock     *dbStub
	senderMock *mockEmailSender
	makerMock  *mockEmailMaker
	srvData    *ServiceData
)

type dbStub struct{ mock.Mock }

func (m *dbStub) LoadTask(ctx context.Context, id string) (*persistence.Task, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*persistence.Task)
	return t, args.Error(1)
}

func (m *dbStub) LockEmailTable(ctx context.Context, taskID, msgType string) error {
	args := m.Called(ctx, taskID, msgType)
	return args.Error(0)
}

func (m *dbStub) UnLockEmailTable(ctx context.Context, taskID, msgType string, result *int) error {
	args := m.Called(ctx, taskID, msgType, *result)
	return args.Error(0)
}

func initTest(t *testing.T) {
	dbMock = &dbStub{}
	senderMock = &mockEmailSender{}
	makerMock = &mockEmailMaker{}
	srvData = &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 10, EmailSender: senderMock,
		EmailMaker: makerMock, Location: nil}
	dbMock.On("LoadTask", mock.Anything, "1").Return(&persistence.Task{ID: "1", UserID: "o@o.lt"}, nil)
	dbMock.On("LockEmailTable", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	dbMock.On("UnLockEmailTable", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	senderMock.On("Send", mock.Anything).Return(nil)
	makerMock.On("Make", mock.Anything).Return(&email.Email{From: "o@o.lt", Text: []byte("text")}, nil)
}

func Test_handleInform(t *testing.T) {
	initTest(t)
	err := handleInform(test.Ctx(t), &messages.InformMessage{TaskID: "1", Status: "completed"}, srvData)
	assert.Nil(t, err)
	require.Equal(t, 3, len(dbMock.Calls))
	assert.Equal(t, "completed", dbMock.Calls[1].Arguments[2])
	assert.Equal(t, "completed", dbMock.Calls[2].Arguments[2])
	assert.Equal(t, 2, dbMock.Calls[2].Arguments[3])
}

func Test_handleInform_FailDB(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadTask", mock.Anything, "1").Return(nil, fmt.Errorf("err"))
	err := handleInform(test.Ctx(t), &messages.InformMessage{TaskID: "1", Status: "completed"}, srvData)
	assert.NotNil(t, err)
}

func Test_handleInform_FailMaker(t *testing.T) {
	initTest(t)
	makerMock.ExpectedCalls = nil
	makerMock.On("Make", mock.Anything).Return(nil, fmt.Errorf("err"))
	err := handleInform(test.Ctx(t), &messages.InformMessage{TaskID: "1", Status: "completed"}, srvData)
	assert.NotNil(t, err)
}

func Test_handleInform_FailSender(t *testing.T) {
	initTest(t)
	senderMock.ExpectedCalls = nil
	senderMock.On("Send", mock.Anything).Return(fmt.Errorf("err"))
	err := handleInform(test.Ctx(t), &messages.InformMessage{TaskID: "1", Status: "completed"}, srvData)
	assert.NotNil(t, err)
	require.Equal(t, 3, len(dbMock.Calls))
	assert.Equal(t, "completed", dbMock.Calls[1].Arguments[2])
	assert.Equal(t, "completed", dbMock.Calls[2].Arguments[2])
	assert.Equal(t, 0, dbMock.Calls[2].Arguments[3])
}

func Test_validate(t *testing.T) {
	initTest(t)
	tests := []struct {
		name    string
		data    *ServiceData
		wantErr bool
	}{
		{name: "OK", data: &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 10, EmailSender: senderMock,
			EmailMaker: makerMock}, wantErr: false},
		{name: "no gue client", data: &ServiceData{DB: dbMock, WorkerCount: 10, EmailSender: senderMock,
			EmailMaker: makerMock}, wantErr: true},
		{name: "no worker count", data: &ServiceData{DB: dbMock, GueClient: &gue.Client{}, EmailSender: senderMock,
			EmailMaker: makerMock}, wantErr: true},
		{name: "no maker", data: &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 10, EmailSender: senderMock}, wantErr: true},
		{name: "no sender", data: &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 10, EmailMaker: makerMock}, wantErr: true},
		{name: "no db", data: &ServiceData{GueClient: &gue.Client{}, WorkerCount: 10, EmailSender: senderMock,
			EmailMaker: makerMock}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.data); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type mockEmailSender struct{ mock.Mock }

func (m *mockEmailSender) Send(email *email.Email) error {
	args := m.Called(email)
	return args.Error(0)
}

type mockEmailMaker struct{ mock.Mock }

func (m *mockEmailMaker) Make(data *inform.Data) (*email.Email, error) {
	args := m.Called(data)
	e, _ := args.Get(0).(*email.Email)
	return e, args.Error(1)
}
