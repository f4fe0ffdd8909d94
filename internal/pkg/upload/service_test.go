package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/airenas/voxsum/internal/pkg/persistence"
	"github.com/airenas/voxsum/internal/pkg/postgres"
	"github.com/airenas/voxsum/internal/pkg/selector"
	"github.com/airenas/voxsum/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var (
	dbMock       *mockDB
	senderMock   *mockMsgSender
	selectorMock *mockSelector
	storeMock    *mockStorage
	tData        *Data
)

func initTest(t *testing.T) {
	dbMock = &mockDB{}
	senderMock = &mockMsgSender{}
	storeMock = &mockStorage{}
	selectorMock = &mockSelector{}
	tData = &Data{DB: dbMock, MsgSender: senderMock, Selector: selectorMock}
}

type mockDB struct{ mock.Mock }

func (m *mockDB) InsertTask(ctx context.Context, t *persistence.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockDB) FindTaskByContentHash(ctx context.Context, userID, hash string) (*persistence.Task, error) {
	args := m.Called(ctx, userID, hash)
	t, _ := args.Get(0).(*persistence.Task)
	return t, args.Error(1)
}

func (m *mockDB) LoadTask(ctx context.Context, id string) (*persistence.Task, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*persistence.Task)
	return t, args.Error(1)
}

func (m *mockDB) ListTasks(ctx context.Context, f postgres.ListTasksFilter) ([]*persistence.Task, int, error) {
	args := m.Called(ctx, f)
	t, _ := args.Get(0).([]*persistence.Task)
	return t, args.Int(1), args.Error(2)
}

func (m *mockDB) SoftDeleteTask(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockMsgSender struct{ mock.Mock }

func (m *mockMsgSender) SendMessage(ctx context.Context, msg any, queue string) error {
	args := m.Called(ctx, msg, queue)
	return args.Error(0)
}

type mockSelector struct{ mock.Mock }

func (s *mockSelector) Select(ctx context.Context, req selector.Request) (*selector.Selected, error) {
	args := s.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*selector.Selected), args.Error(1)
}

type mockStorage struct{ mock.Mock }

func (m *mockStorage) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return nil
}

func (m *mockStorage) GetObjectURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", nil
}

func (m *mockStorage) PresignPut(ctx context.Context, key string, ttl time.Duration, contentType string) (string, error) {
	args := m.Called(ctx, key, ttl, contentType)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) Delete(ctx context.Context, key string) error { return nil }

func Test_Live(t *testing.T) {
	initTest(t)
	e := initRoutes(tData)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	test.Code(t, e, req, 200)
}

func Test_CreateTask_Upload(t *testing.T) {
	initTest(t)
	e := initRoutes(tData)
	dbMock.On("InsertTask", mock.Anything, mock.Anything).Return(nil)
	senderMock.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	body, _ := json.Marshal(createTaskReq{SourceType: "upload", FileKey: "uploads/2026/01/x.mp3"})
	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := test.Code(t, e, req, 200)

	var env map[string]any
	assert.Nil(t, json.Unmarshal(resp.Body.Bytes(), &env))
	assert.EqualValues(t, 0, env["code"])
}

func Test_CreateTask_BadSourceType(t *testing.T) {
	initTest(t)
	e := initRoutes(tData)
	body, _ := json.Marshal(createTaskReq{SourceType: "ftp"})
	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := test.Code(t, e, req, 200)

	var env map[string]any
	assert.Nil(t, json.Unmarshal(resp.Body.Bytes(), &env))
	assert.NotEqualValues(t, 0, env["code"])
	dbMock.AssertNotCalled(t, "InsertTask", mock.Anything, mock.Anything)
}

func Test_CreateTask_MissingFileKey(t *testing.T) {
	initTest(t)
	e := initRoutes(tData)
	body, _ := json.Marshal(createTaskReq{SourceType: "upload"})
	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := test.Code(t, e, req, 200)

	var env map[string]any
	assert.Nil(t, json.Unmarshal(resp.Body.Bytes(), &env))
	assert.EqualValues(t, 40000, env["code"])
}

func Test_GetTask_NotFound(t *testing.T) {
	initTest(t)
	e := initRoutes(tData)
	dbMock.On("LoadTask", mock.Anything, "1").Return(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/tasks/1", nil)
	resp := test.Code(t, e, req, 200)

	var env map[string]any
	assert.Nil(t, json.Unmarshal(resp.Body.Bytes(), &env))
	assert.EqualValues(t, 40400, env["code"])
}

func Test_GetTask_Forbidden(t *testing.T) {
	initTest(t)
	e := initRoutes(tData)
	dbMock.On("LoadTask", mock.Anything, "1").Return(&persistence.Task{ID: "1", UserID: "owner"}, nil)
	req := httptest.NewRequest(http.MethodGet, "/tasks/1", nil)
	req.Header.Set("x-user-id", "someoneelse")
	resp := test.Code(t, e, req, 200)

	var env map[string]any
	assert.Nil(t, json.Unmarshal(resp.Body.Bytes(), &env))
	assert.EqualValues(t, 40300, env["code"])
}

func Test_GetTask_OK(t *testing.T) {
	initTest(t)
	e := initRoutes(tData)
	dbMock.On("LoadTask", mock.Anything, "1").Return(&persistence.Task{ID: "1", UserID: "owner"}, nil)
	req := httptest.NewRequest(http.MethodGet, "/tasks/1", nil)
	req.Header.Set("x-user-id", "owner")
	test.Code(t, e, req, 200)
}

func Test_DeleteTask_OK(t *testing.T) {
	initTest(t)
	e := initRoutes(tData)
	dbMock.On("LoadTask", mock.Anything, "1").Return(&persistence.Task{ID: "1", UserID: "owner"}, nil)
	dbMock.On("SoftDeleteTask", mock.Anything, "1").Return(nil)
	req := httptest.NewRequest(http.MethodDelete, "/tasks/1", nil)
	req.Header.Set("x-user-id", "owner")
	test.Code(t, e, req, 200)
}

func Test_ListTasks(t *testing.T) {
	initTest(t)
	e := initRoutes(tData)
	dbMock.On("ListTasks", mock.Anything, mock.Anything).Return([]*persistence.Task{{ID: "1"}}, 1, nil)
	req := httptest.NewRequest(http.MethodGet, "/tasks?page=1&page_size=10", nil)
	test.Code(t, e, req, 200)
}

func Test_Presign_Dedup(t *testing.T) {
	initTest(t)
	e := initRoutes(tData)
	dbMock.On("FindTaskByContentHash", mock.Anything, "owner", "H1").Return(&persistence.Task{ID: "99"}, nil)

	body, _ := json.Marshal(presignReq{Filename: "a.mp3", ContentType: "audio/mpeg", SizeBytes: 123, ContentHash: "H1"})
	req := httptest.NewRequest(http.MethodPost, "/tasks/presign", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-user-id", "owner")
	resp := test.Code(t, e, req, 200)

	var env struct {
		Data presignResp `json:"data"`
	}
	assert.Nil(t, json.Unmarshal(resp.Body.Bytes(), &env))
	assert.True(t, env.Data.Exists)
	assert.Equal(t, "99", env.Data.TaskID)
	selectorMock.AssertNotCalled(t, "Select", mock.Anything, mock.Anything)
}

func Test_Presign_New(t *testing.T) {
	initTest(t)
	e := initRoutes(tData)
	dbMock.On("FindTaskByContentHash", mock.Anything, "owner", "H1").Return(nil, nil)
	selectorMock.On("Select", mock.Anything, mock.Anything).
		Return(&selector.Selected{ProviderName: "minio", Client: storeMock}, nil)
	storeMock.On("PresignPut", mock.Anything, mock.Anything, mock.Anything, "audio/mpeg").
		Return("https://bucket.example.com/put", nil)

	body, _ := json.Marshal(presignReq{Filename: "a.mp3", ContentType: "audio/mpeg", SizeBytes: 123, ContentHash: "H1"})
	req := httptest.NewRequest(http.MethodPost, "/tasks/presign", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-user-id", "owner")
	resp := test.Code(t, e, req, 200)

	var env struct {
		Data presignResp `json:"data"`
	}
	assert.Nil(t, json.Unmarshal(resp.Body.Bytes(), &env))
	assert.False(t, env.Data.Exists)
	assert.Equal(t, "https://bucket.example.com/put", env.Data.UploadURL)
	assert.Contains(t, env.Data.FileKey, "uploads/")
}

func Test_Presign_MissingFields(t *testing.T) {
	initTest(t)
	e := initRoutes(tData)
	body, _ := json.Marshal(presignReq{})
	req := httptest.NewRequest(http.MethodPost, "/tasks/presign", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := test.Code(t, e, req, 200)

	var env map[string]any
	assert.Nil(t, json.Unmarshal(resp.Body.Bytes(), &env))
	assert.EqualValues(t, 40000, env["code"])
}

func Test_objectKey(t *testing.T) {
	k := objectKey("abc123", "recording.mp3")
	assert.Contains(t, k, "uploads/")
	assert.Contains(t, k, ".mp3")
	assert.Contains(t, k, "abc123")
}

func Test_extOf(t *testing.T) {
	assert.Equal(t, ".mp3", extOf("a/b/c.mp3"))
	assert.Equal(t, "", extOf("noext"))
}

func Test_validate(t *testing.T) {
	initTest(t)
	tests := []struct {
		name    string
		data    *Data
		wantErr bool
	}{
		{name: "OK", data: &Data{DB: dbMock, Selector: selectorMock, MsgSender: senderMock}, wantErr: false},
		{name: "no db", data: &Data{Selector: selectorMock, MsgSender: senderMock}, wantErr: true},
		{name: "no selector", data: &Data{DB: dbMock, MsgSender: senderMock}, wantErr: true},
		{name: "no sender", data: &Data{DB: dbMock, Selector: selectorMock}, wantErr: true},
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
