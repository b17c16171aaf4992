package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bloodbank/internal/auth"
	"bloodbank/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*Hub, *auth.Signer, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(nil)
	go hub.Run(ctx)

	signer := auth.NewSigner("secret", "bloodbank", time.Hour)
	router := gin.New()
	router.GET("/ws", func(c *gin.Context) { ServeWs(hub, c, signer) })

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return hub, signer, srv
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
}

func TestAdminReceivesPublishedEvents(t *testing.T) {
	hub, signer, srv := newServer(t)

	token, err := signer.Mint(uuid.New(), model.RoleAdmin)
	require.NoError(t, err)

	conn, _, err := gorilla.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(map[string]any{"type": "inventory.updated", "blood_group": "O+"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"inventory.updated","blood_group":"O+"}`, string(msg))
}

func TestServeWsRejectsDonorsAndBadTokens(t *testing.T) {
	_, signer, srv := newServer(t)

	donorToken, err := signer.Mint(uuid.New(), model.RoleDonor)
	require.NoError(t, err)

	_, resp, err := gorilla.DefaultDialer.Dial(wsURL(srv, donorToken), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = gorilla.DefaultDialer.Dial(wsURL(srv, "garbage"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = gorilla.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPublishDoesNotBlockWithoutRunLoop(t *testing.T) {
	hub := NewHub(nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer*2; i++ {
			hub.Publish(map[string]int{"n": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}
}
