package realtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/tableorder/internal/domain/order"
	"github.com/xenking/tableorder/internal/wire"
)

const room = "64b7f0c2a1b2c3d4e5f60701"

type fakeBuilder struct {
	hub *Hub
	err error
}

func (b *fakeBuilder) Build(ctx context.Context, req order.Request) (*order.Result, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	o := &order.Order{
		ID:            "0b8f6a8e-4a44-4c57-9d0e-0f7a1f1d2c3b",
		RestaurantID:  req.RestaurantID,
		DiningTableID: req.TableID,
		Customer:      req.Customer,
		TotalPrice:    decimal.RequireFromString("120.50"),
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
	}
	b.hub.OrderCreated(ctx, o, req.Origin)
	return &order.Result{Order: o}, nil
}

type recordingRelay struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (r *recordingRelay) Publish(_ context.Context, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, body)
	return nil
}

func newTestHub(t *testing.T, opts ...Option) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub(Config{}, zaptest.NewLogger(t), nil, opts...)
	h.SetBuilder(&fakeBuilder{hub: h})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func read(t *testing.T, ws *websocket.Conn) wire.Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	f, err := wire.DecodeFrame(msg)
	require.NoError(t, err)
	return f
}

func assertSilent(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, msg, err := ws.ReadMessage()
	assert.Error(t, err, "unexpected frame %s", msg)
}

func joinRoom(t *testing.T, h *Hub, ws *websocket.Conn, want int) {
	t.Helper()
	send(t, ws, `{"event":"joinRestaurant","data":"`+room+`"}`)
	f := read(t, ws)
	require.Equal(t, EventJoined, f.Event)
	require.Eventually(t, func() bool { return h.RoomSize(room) == want }, time.Second, 10*time.Millisecond)
}

const validOrder = `{"event":"newOrder","data":{
	"customer":"Asha","phone":"9876543210",
	"restaurantId":"64b7f0c2a1b2c3d4e5f60701","selectedTable":"64b7f0c2a1b2c3d4e5f60702",
	"nonce":"n-1","cart":[{"foodId":"64b7f0c2a1b2c3d4e5f60801","quantity":1,"price":1}]}}`

func TestHub_JoinAcceptsObjectPayload(t *testing.T) {
	h, srv := newTestHub(t)
	ws := dial(t, srv)

	send(t, ws, `{"event":"joinRestaurant","data":{"restaurantId":"`+room+`"}}`)
	f := read(t, ws)
	assert.Equal(t, EventJoined, f.Event)
	fields, err := wire.DecodeFields(f.Data)
	require.NoError(t, err)
	assert.Equal(t, room, fields["restaurantId"])
	assert.Equal(t, 1, h.RoomSize(room))
}

func TestHub_NewOrderAcksSenderAndBroadcastsToOthers(t *testing.T) {
	h, srv := newTestHub(t)
	kitchen := dial(t, srv)
	table := dial(t, srv)
	joinRoom(t, h, kitchen, 1)
	joinRoom(t, h, table, 2)

	send(t, table, validOrder)

	ack := read(t, table)
	require.Equal(t, EventOrderAck, ack.Event)
	fields, err := wire.DecodeFields(ack.Data)
	require.NoError(t, err)
	assert.Equal(t, "n-1", fields["nonce"])
	assert.Equal(t, "0b8f6a8e-4a44-4c57-9d0e-0f7a1f1d2c3b", fields["orderId"])
	assert.Equal(t, "120.50", fields["totalPrice"])

	announced := read(t, kitchen)
	require.Equal(t, EventNewOrder, announced.Event)
	fields, err = wire.DecodeFields(announced.Data)
	require.NoError(t, err)
	assert.Equal(t, "0b8f6a8e-4a44-4c57-9d0e-0f7a1f1d2c3b", fields["id"])
	assert.Equal(t, "120.50", fields["totalPrice"], "broadcast carries the persisted order")

	assertSilent(t, table)
}

func TestHub_NewOrderValidationError(t *testing.T) {
	h, srv := newTestHub(t)
	kitchen := dial(t, srv)
	table := dial(t, srv)
	joinRoom(t, h, kitchen, 1)
	joinRoom(t, h, table, 2)

	send(t, table, `{"event":"newOrder","data":{"customer":"","phone":"1","nonce":"n-2","cart":[]}}`)

	f := read(t, table)
	require.Equal(t, EventOrderError, f.Event)
	var causes []string
	var nonce string
	require.NoError(t, jx.DecodeBytes(f.Data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "nonce":
			v, err := d.Str()
			nonce = v
			return err
		case "causes":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				causes = append(causes, v)
				return err
			})
		default:
			return d.Skip()
		}
	}))
	assert.Equal(t, "n-2", nonce)
	assert.Contains(t, causes, order.ErrMissingCustomer.Error())
	assert.Contains(t, causes, order.ErrEmptyCart.Error())

	assertSilent(t, kitchen)
}

func TestHub_OrderUpdateFanOut(t *testing.T) {
	h, srv := newTestHub(t)
	kitchen := dial(t, srv)
	table := dial(t, srv)
	joinRoom(t, h, kitchen, 1)
	joinRoom(t, h, table, 2)

	send(t, kitchen, `{"event":"orderUpdate","data":{"restaurantId":"`+room+`","tableId":"t1","orderId":"o1","status":"In Progress"}}`)

	f := read(t, table)
	require.Equal(t, EventOrderUpdate, f.Event)
	fields, err := wire.DecodeFields(f.Data)
	require.NoError(t, err)
	assert.Equal(t, "In Progress", fields["status"])

	assertSilent(t, kitchen)
}

func TestHub_FanOutRequiresCorrelationFields(t *testing.T) {
	h, srv := newTestHub(t)
	kitchen := dial(t, srv)
	table := dial(t, srv)
	joinRoom(t, h, kitchen, 1)
	joinRoom(t, h, table, 2)

	send(t, kitchen, `{"event":"paymentProcessed","data":{"restaurantId":"`+room+`","tableId":"t1","orderId":"o1"}}`)

	f := read(t, kitchen)
	require.Equal(t, EventError, f.Event)
	fields, err := wire.DecodeFields(f.Data)
	require.NoError(t, err)
	assert.Equal(t, "transactionId required", fields["message"])

	assertSilent(t, table)
}

func TestHub_MalformedAndUnknownFrames(t *testing.T) {
	_, srv := newTestHub(t)
	ws := dial(t, srv)

	send(t, ws, `not json`)
	assert.Equal(t, EventError, read(t, ws).Event)

	send(t, ws, `{"event":"dance","data":{}}`)
	f := read(t, ws)
	assert.Equal(t, EventError, f.Event)
	fields, err := wire.DecodeFields(f.Data)
	require.NoError(t, err)
	assert.Equal(t, "dance", fields["event"])
}

func TestHub_RelayPublishesAndDeliversRemote(t *testing.T) {
	relay := &recordingRelay{}
	h, srv := newTestHub(t, WithRelay(relay))
	kitchen := dial(t, srv)
	joinRoom(t, h, kitchen, 1)

	other := NewHub(Config{}, zaptest.NewLogger(t), nil, WithRelay(&recordingRelay{}))
	other.Broadcast(context.Background(), room, EventOrderUpdate, "", wire.Fields(map[string]string{"orderId": "o9"}))

	remote := other.relay.(*recordingRelay)
	require.Len(t, remote.bodies, 1)
	require.NoError(t, h.Deliver(context.Background(), remote.bodies[0]))

	f := read(t, kitchen)
	assert.Equal(t, EventOrderUpdate, f.Event)

	// Own envelopes coming back from the exchange are ignored.
	h.Broadcast(context.Background(), "another-room", EventOrderUpdate, "", nil)
	require.Len(t, relay.bodies, 1)
	require.NoError(t, h.Deliver(context.Background(), relay.bodies[0]))
	assertSilent(t, kitchen)
}

func TestHub_DeliverRejectsBadEnvelope(t *testing.T) {
	h := NewHub(Config{}, zaptest.NewLogger(t), nil)
	require.Error(t, h.Deliver(context.Background(), []byte(`{"instance":"x"}`)))
	require.Error(t, h.Deliver(context.Background(), []byte(`nope`)))
}

func TestHub_SlowConnectionDropsFrames(t *testing.T) {
	h := NewHub(Config{SendBuffer: 1}, zaptest.NewLogger(t), nil)
	c := &Conn{id: "slow", hub: h, send: make(chan []byte, 1), lg: h.lg}
	h.join(c, room)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 3 {
			h.Broadcast(context.Background(), room, EventOrderUpdate, "", nil)
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full connection")
	}
	assert.Len(t, c.send, 1)

	h.leave(c)
	assert.Zero(t, h.RoomSize(room))
}

func TestHub_CheckOrigin(t *testing.T) {
	h := NewHub(Config{AllowedOrigins: []string{"https://pos.example"}}, zaptest.NewLogger(t), nil)

	r := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, h.checkOrigin(r))
	r.Header.Set("Origin", "https://pos.example")
	assert.True(t, h.checkOrigin(r))
	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, h.checkOrigin(r))
}
