package progress

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func Test_Live(t *testing.T) {
	data := &Data{Broadcaster: New()}
	e := initRoutes(data)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	resp := httptest.NewRecorder()
	e.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
}

func Test_validate(t *testing.T) {
	tests := []struct {
		name    string
		data    *Data
		wantErr bool
	}{
		{name: "OK", data: &Data{Broadcaster: New()}, wantErr: false},
		{name: "no broadcaster", data: &Data{}, wantErr: true},
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

func Test_SubscribeHandler_StreamsEventsUntilTerminal(t *testing.T) {
	b := New()
	data := &Data{Broadcaster: b}
	e := initRoutes(data)

	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/tasks/t1/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Nil(t, err)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	b.Publish("t1", Event{Type: TypeProgress, Status: "transcribing", Stage: "transcribe", Progress: 40})

	var env map[string]any
	require.Nil(t, conn.ReadJSON(&env))
	d, ok := env["data"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "transcribing", d["status"])

	b.Publish("t1", Event{Type: TypeCompleted, Status: "completed", Progress: 100})
	require.Nil(t, conn.ReadJSON(&env))
	d, ok = env["data"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "completed", d["status"])

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	err = conn.ReadJSON(&env)
	require.NotNil(t, err)
}
