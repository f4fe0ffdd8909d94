package quotaapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/airenas/voxsum/internal/pkg/persistence"
	"github.com/airenas/voxsum/internal/pkg/quota"
	"github.com/airenas/voxsum/internal/pkg/test"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"
)

var (
	mgrMock *mockManager
	tData   *Data
	tEcho   *echo.Echo
)

type mockManager struct{ mock.Mock }

func (m *mockManager) Query(ctx context.Context, owner, provider, variant string) ([]*persistence.QuotaEntry, error) {
	args := m.Called(ctx, owner, provider, variant)
	res, _ := args.Get(0).([]*persistence.QuotaEntry)
	return res, args.Error(1)
}

func (m *mockManager) Refresh(ctx context.Context, p quota.RefreshParams) (*persistence.QuotaEntry, error) {
	args := m.Called(ctx, p)
	res, _ := args.Get(0).(*persistence.QuotaEntry)
	return res, args.Error(1)
}

func initTest(t *testing.T) {
	mgrMock = &mockManager{}
	tData = &Data{Manager: mgrMock}
	tEcho = initRoutes(tData)
}

func Test_Live(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	test.Code(t, tEcho, req, 200)
}

func Test_Query_OK(t *testing.T) {
	initTest(t)
	mgrMock.On("Query", mock.Anything, "u1", "openai", "").Return([]*persistence.QuotaEntry{{Owner: "u1", Provider: "openai"}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/quota?owner=u1&provider=openai", nil)
	test.Code(t, tEcho, req, http.StatusOK)
}

func Test_Query_MissingParams(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/quota?owner=u1", nil)
	test.Code(t, tEcho, req, http.StatusOK)
	mgrMock.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func Test_Refresh_OK(t *testing.T) {
	initTest(t)
	mgrMock.On("Refresh", mock.Anything, mock.Anything).Return(&persistence.QuotaEntry{Owner: "u1"}, nil)
	body, _ := json.Marshal(map[string]any{
		"owner": "u1", "provider": "openai", "window_type": "month", "quota_hours": 10, "reset": true,
	})
	req := httptest.NewRequest(http.MethodPost, "/quota/refresh", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	test.Code(t, tEcho, req, http.StatusOK)
}

func Test_Refresh_MissingFields(t *testing.T) {
	initTest(t)
	body, _ := json.Marshal(map[string]any{"owner": "u1"})
	req := httptest.NewRequest(http.MethodPost, "/quota/refresh", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	test.Code(t, tEcho, req, http.StatusOK)
	mgrMock.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
}

func Test_validate(t *testing.T) {
	initTest(t)
	tests := []struct {
		name    string
		data    *Data
		wantErr bool
	}{
		{name: "OK", data: &Data{Manager: mgrMock}, wantErr: false},
		{name: "no manager", data: &Data{}, wantErr: true},
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
