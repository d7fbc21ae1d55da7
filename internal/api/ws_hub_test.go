package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bistro/server/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateWebSocketPushesChanges(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/gate/ws?access_token=" + tokenFor(t, customer)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg GateMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "service_gate", msg.Type)
	assert.Equal(t, models.GateAccepting, msg.State)

	require.Eventually(t, func() bool { return s.deps.Hub.GetClientsCount() == 1 }, time.Second, 10*time.Millisecond)

	_, err = s.deps.Gate.Set(context.Background(), models.GateBusy, staff)
	require.NoError(t, err)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, models.GateBusy, msg.State)
	assert.Equal(t, "Staff:2", msg.UpdatedBy)
}

func TestGateWebSocketRequiresToken(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/gate/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}
