// Package realtime fans order events out to websocket clients grouped in
// per-restaurant rooms.
package realtime

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/tableorder/internal/domain/order"
	"github.com/xenking/tableorder/internal/wire"
)

// Event names exchanged with clients.
const (
	EventJoinRestaurant   = "joinRestaurant"
	EventJoined           = "joined"
	EventNewOrder         = "newOrder"
	EventOrderAck         = "orderAck"
	EventOrderError       = "orderError"
	EventOrderUpdate      = "orderUpdate"
	EventPaymentProcessed = "paymentProcessed"
	EventError            = "error"
)

// Builder creates orders submitted over the channel.
type Builder interface {
	Build(ctx context.Context, req order.Request) (*order.Result, error)
}

// Relay forwards room events to other replicas.
type Relay interface {
	Publish(ctx context.Context, body []byte) error
}

// Config holds hub settings.
type Config struct {
	SendBuffer     int           `default:"64" usage:"Per-connection outgoing frame buffer"`
	WriteTimeout   time.Duration `default:"10s" usage:"Websocket write deadline"`
	PongWait       time.Duration `default:"60s" usage:"Time allowed to read the next pong"`
	MaxMessageSize int64         `default:"65536" usage:"Largest accepted inbound frame in bytes"`
	BuildTimeout   time.Duration `default:"15s" usage:"Deadline for orders submitted over websocket"`
	AllowedOrigins []string      `default:"*" usage:"Origins allowed to open a websocket"`
}

func (c *Config) setDefaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 << 10
	}
	if c.BuildTimeout <= 0 {
		c.BuildTimeout = 15 * time.Second
	}
}

// Hub tracks connections and the rooms they joined.
type Hub struct {
	cfg      Config
	lg       *zap.Logger
	builder  Builder
	relay    Relay
	instance string
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}

	connections metric.Int64UpDownCounter
	dropped     metric.Int64Counter
}

// Option configures a Hub.
type Option func(*Hub)

// WithRelay publishes every room event through r.
func WithRelay(r Relay) Option {
	return func(h *Hub) {
		h.relay = r
	}
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(h *Hub) {
		m := mp.Meter("github.com/xenking/tableorder/internal/realtime")
		if c, err := m.Int64UpDownCounter("realtime.connections"); err == nil {
			h.connections = c
		}
		if c, err := m.Int64Counter("realtime.dropped_frames"); err == nil {
			h.dropped = c
		}
	}
}

// NewHub creates a Hub. The builder may be nil until SetBuilder is called.
func NewHub(cfg Config, lg *zap.Logger, builder Builder, opts ...Option) *Hub {
	cfg.setDefaults()
	h := &Hub{
		cfg:         cfg,
		lg:          lg,
		builder:     builder,
		instance:    uuid.NewString(),
		rooms:       make(map[string]map[*Conn]struct{}),
		connections: metricnoop.Int64UpDownCounter{},
		dropped:     metricnoop.Int64Counter{},
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// SetBuilder sets the order builder. It must be called before serving.
func (h *Hub) SetBuilder(b Builder) {
	h.builder = b
}

// Instance identifies this hub among replicas sharing a relay.
func (h *Hub) Instance() string {
	return h.instance
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 || slices.Contains(h.cfg.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, origin)
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.lg.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	c := newConn(h, ws)
	ctx := r.Context()
	h.connections.Add(ctx, 1)
	defer h.connections.Add(ctx, -1)

	go c.writePump()
	c.readPump(ctx)
}

func (h *Hub) join(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.room == room {
		return
	}
	if c.room != "" {
		h.removeLocked(c)
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.room = room
}

// leave removes c from its room and closes its send queue.
func (h *Hub) leave(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (h *Hub) removeLocked(c *Conn) {
	if c.room == "" {
		return
	}
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

// RoomSize returns the number of local connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast sends event to every member of room except the connection with
// id exclude, locally and through the relay.
func (h *Hub) Broadcast(ctx context.Context, room, event, exclude string, data func(e *jx.Encoder)) {
	var e jx.Encoder
	wire.EncodeFrame(&e, event, data)
	frame := e.Bytes()

	h.deliver(ctx, room, exclude, frame)

	if h.relay == nil {
		return
	}
	body := encodeEnvelope(envelope{
		Instance: h.instance,
		Room:     room,
		Exclude:  exclude,
		Frame:    frame,
	})
	if err := h.relay.Publish(ctx, body); err != nil {
		h.lg.Warn("Relay publish failed", zap.String("room", room), zap.String("event", event), zap.Error(err))
	}
}

// Deliver handles an envelope received from the relay. Envelopes published
// by this hub are ignored.
func (h *Hub) Deliver(ctx context.Context, body []byte) error {
	env, err := decodeEnvelope(body)
	if err != nil {
		return err
	}
	if env.Instance == h.instance {
		return nil
	}
	h.deliver(ctx, env.Room, env.Exclude, env.Frame)
	return nil
}

func (h *Hub) deliver(ctx context.Context, room, exclude string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c.id == exclude {
			continue
		}
		if !c.enqueue(frame) {
			h.dropped.Add(ctx, 1)
			h.lg.Debug("Dropped frame for slow connection", zap.String("conn_id", c.id), zap.String("room", room))
		}
	}
}

// OrderCreated announces a newly persisted order to its restaurant room.
func (h *Hub) OrderCreated(ctx context.Context, o *order.Order, origin string) {
	h.Broadcast(ctx, o.RestaurantID, EventNewOrder, origin, func(e *jx.Encoder) {
		wire.EncodeOrder(e, o)
	})
}

// PaymentProcessed announces a confirmed payment to its restaurant room.
func (h *Hub) PaymentProcessed(ctx context.Context, o *order.Order) {
	h.Broadcast(ctx, o.RestaurantID, EventPaymentProcessed, "", wire.Fields(map[string]string{
		"restaurantId":  o.RestaurantID,
		"tableId":       o.DiningTableID,
		"orderId":       o.ID,
		"transactionId": o.PaymentID,
		"status":        string(o.Status),
	}))
}
