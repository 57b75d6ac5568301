//go:build integration

package integration

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(map[string]any{"event": event, "data": data}))
}

func next(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func join(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	send(t, ws, "joinRestaurant", restaurantID)
	require.Equal(t, "joined", next(t, ws).Event)
}

func TestRealtime_HTTPOrderBroadcast(t *testing.T) {
	staff := dial(t)
	join(t, staff)

	created := createOrder(t, baseRequest())

	f := next(t, staff)
	require.Equal(t, "newOrder", f.Event)
	var o orderResponse
	require.NoError(t, json.Unmarshal(f.Data, &o))
	assert.Equal(t, created.OrderID, o.ID)
	assert.Equal(t, 250.0, o.TotalPrice)
}

func TestRealtime_SocketOrder(t *testing.T) {
	staff := dial(t)
	join(t, staff)
	diner := dial(t)
	join(t, diner)

	req := baseRequest()
	send(t, diner, "newOrder", map[string]any{
		"customerName":  req.CustomerName,
		"phone":         req.Phone,
		"restaurantId":  req.RestaurantID,
		"selectedTable": req.SelectedTable,
		"cart":          req.Cart,
		"nonce":         "ws-1",
	})

	ack := next(t, diner)
	require.Equal(t, "orderAck", ack.Event)
	var body struct {
		Nonce      string  `json:"nonce"`
		OrderID    string  `json:"orderId"`
		TotalPrice float64 `json:"totalPrice"`
	}
	require.NoError(t, json.Unmarshal(ack.Data, &body))
	assert.Equal(t, "ws-1", body.Nonce)
	assert.Equal(t, 250.0, body.TotalPrice)

	f := next(t, staff)
	require.Equal(t, "newOrder", f.Event)
	assert.Contains(t, string(f.Data), body.OrderID)
}

func TestRealtime_OrderUpdateFanOut(t *testing.T) {
	staff := dial(t)
	join(t, staff)
	kitchen := dial(t)
	join(t, kitchen)

	send(t, kitchen, "orderUpdate", map[string]string{
		"restaurantId": restaurantID,
		"orderId":      "o-1",
		"status":       "In Progress",
	})

	f := next(t, staff)
	require.Equal(t, "orderUpdate", f.Event)
	assert.JSONEq(t, `{"restaurantId":"`+restaurantID+`","orderId":"o-1","status":"In Progress"}`, string(f.Data))
}
