package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialSpectator(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/spectate"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestSpectatorReceivesFullViewOnConnect(t *testing.T) {
	world := NewWorld()
	world.AddFood(Point{X: 3, Y: 3})
	world.AdvanceRound(1000, 500)
	hub := NewSpectatorHub(world, 10, 0, zap.NewNop())
	t.Cleanup(hub.Close)

	srv := httptest.NewServer(muxFor(hub))
	t.Cleanup(srv.Close)

	ws := dialSpectator(t, srv)
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)

	var full FullView
	require.NoError(t, json.Unmarshal(raw, &full))
	assert.Equal(t, 1, full.Round)
	assert.Equal(t, []Point{{X: 3, Y: 3}}, full.Foods)
}

func TestSpectatorReceivesBroadcastDeltas(t *testing.T) {
	world := NewWorld()
	hub := NewSpectatorHub(world, 10, 0, zap.NewNop())
	t.Cleanup(hub.Close)

	srv := httptest.NewServer(muxFor(hub))
	t.Cleanup(srv.Close)

	ws := dialSpectator(t, srv)
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage() // initial full view
	require.NoError(t, err)

	// The hub registers connections before HandleUpgrade returns, so the
	// broadcast below cannot race the subscription
	require.Eventually(t, func() bool { return hub.Count() == 1 },
		time.Second, 5*time.Millisecond)

	hub.BroadcastDelta(DeltaView{Round: 7, DiedPlayers: []string{"p_1_000001"}})

	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	var delta DeltaView
	require.NoError(t, json.Unmarshal(raw, &delta))
	assert.Equal(t, 7, delta.Round)
	assert.Equal(t, []string{"p_1_000001"}, delta.DiedPlayers)
}

func TestSpectatorConnectionCap(t *testing.T) {
	world := NewWorld()
	hub := NewSpectatorHub(world, 1, 0, zap.NewNop())
	t.Cleanup(hub.Close)

	srv := httptest.NewServer(muxFor(hub))
	t.Cleanup(srv.Close)

	dialSpectator(t, srv)
	require.Eventually(t, func() bool { return hub.Count() == 1 },
		time.Second, 5*time.Millisecond)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/spectate"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	assert.Error(t, err, "second spectator must be refused at the cap")
	if resp != nil {
		assert.Equal(t, 503, resp.StatusCode)
	}
}

// muxFor mounts just the spectator route for hub tests
func muxFor(hub *SpectatorHub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/spectate", hub.HandleUpgrade)
	return mux
}
