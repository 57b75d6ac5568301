package realtime

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xenking/tableorder/internal/domain/order"
	"github.com/xenking/tableorder/internal/wire"
)

// Conn is one websocket client.
type Conn struct {
	id   string
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte
	lg   *zap.Logger

	// guarded by hub.mu
	room   string
	closed bool
}

func newConn(h *Hub, ws *websocket.Conn) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:   id,
		hub:  h,
		ws:   ws,
		send: make(chan []byte, h.cfg.SendBuffer),
		lg:   h.lg.With(zap.String("conn_id", id)),
	}
}

// enqueue queues frame without blocking and reports whether it was accepted.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Conn) reply(event string, data func(e *jx.Encoder)) {
	var e jx.Encoder
	wire.EncodeFrame(&e, event, data)
	if !c.enqueue(e.Bytes()) {
		c.lg.Debug("Dropped reply for slow connection", zap.String("event", event))
	}
}

func (c *Conn) replyError(event, message string) {
	c.reply(EventError, wire.Fields(map[string]string{
		"event":   event,
		"message": message,
	}))
}

func (c *Conn) readPump(ctx context.Context) {
	defer func() {
		c.hub.leave(c)
		_ = c.ws.Close()
	}()

	pongWait := c.hub.cfg.PongWait
	c.ws.SetReadLimit(c.hub.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx = zctx.Base(ctx, c.lg)
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.lg.Debug("Websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		c.handle(ctx, msg)
	}
}

func (c *Conn) writePump() {
	pingPeriod := c.hub.cfg.PongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) handle(ctx context.Context, msg []byte) {
	f, err := wire.DecodeFrame(msg)
	if err != nil {
		c.lg.Debug("Dropped malformed frame", zap.Error(err))
		c.replyError("", err.Error())
		return
	}

	switch f.Event {
	case EventJoinRestaurant:
		c.handleJoin(f)
	case EventNewOrder:
		c.handleNewOrder(ctx, f)
	case EventOrderUpdate:
		c.handleFanOut(ctx, f, "restaurantId", "tableId", "orderId", "status")
	case EventPaymentProcessed:
		c.handleFanOut(ctx, f, "restaurantId", "tableId", "orderId", "transactionId")
	default:
		c.lg.Debug("Dropped unknown event", zap.String("event", f.Event))
		c.replyError(f.Event, "unknown event")
	}
}

func (c *Conn) handleJoin(f wire.Frame) {
	room, err := joinTarget(f.Data)
	if err != nil || room == "" {
		c.replyError(f.Event, "restaurantId required")
		return
	}
	c.hub.join(c, room)
	c.lg.Debug("Joined restaurant room", zap.String("restaurant_id", room))
	c.reply(EventJoined, wire.Fields(map[string]string{"restaurantId": room}))
}

// joinTarget accepts either a bare id or an object with restaurantId.
func joinTarget(data jx.Raw) (string, error) {
	d := jx.DecodeBytes(data)
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Object:
		fields, err := wire.DecodeFields(data)
		if err != nil {
			return "", err
		}
		return fields["restaurantId"], nil
	default:
		return "", errors.New("unexpected join payload")
	}
}

func (c *Conn) handleNewOrder(ctx context.Context, f wire.Frame) {
	req, err := wire.DecodeOrderRequest(f.Data)
	if err != nil {
		c.replyOrderError("", err)
		return
	}
	if c.hub.builder == nil {
		c.replyOrderError(req.Nonce, errors.New("order intake unavailable"))
		return
	}
	req.Origin = c.id

	ctx, cancel := context.WithTimeout(ctx, c.hub.cfg.BuildTimeout)
	defer cancel()

	res, err := c.hub.builder.Build(ctx, req)
	if err != nil {
		c.replyOrderError(req.Nonce, err)
		return
	}

	o := res.Order
	c.reply(EventOrderAck, func(e *jx.Encoder) {
		e.ObjStart()
		if req.Nonce != "" {
			e.FieldStart("nonce")
			e.Str(req.Nonce)
		}
		e.FieldStart("orderId")
		e.Str(o.ID)
		e.FieldStart("totalPrice")
		wire.Money(e, o.TotalPrice)
		e.FieldStart("replayed")
		e.Bool(res.Replayed)
		e.ObjEnd()
	})
}

func (c *Conn) replyOrderError(nonce string, err error) {
	message, causes := "could not create order", []string(nil)
	var (
		verr *order.ValidationError
		derr *wire.DecodeError
	)
	switch {
	case errors.As(err, &verr):
		message, causes = "invalid order", verr.Messages()
	case errors.As(err, &derr):
		message = derr.Error()
	case isNotFound(err):
		message = err.Error()
	default:
		c.lg.Error("Realtime order failed", zap.Error(err))
	}

	c.reply(EventOrderError, func(e *jx.Encoder) {
		e.ObjStart()
		if nonce != "" {
			e.FieldStart("nonce")
			e.Str(nonce)
		}
		e.FieldStart("message")
		e.Str(message)
		if len(causes) > 0 {
			e.FieldStart("causes")
			e.ArrStart()
			for _, cause := range causes {
				e.Str(cause)
			}
			e.ArrEnd()
		}
		e.ObjEnd()
	})
}

func (c *Conn) handleFanOut(ctx context.Context, f wire.Frame, required ...string) {
	fields, err := wire.DecodeFields(f.Data)
	if err != nil {
		c.replyError(f.Event, err.Error())
		return
	}
	for _, k := range required {
		if fields[k] == "" {
			c.lg.Debug("Dropped event without correlation field", zap.String("event", f.Event), zap.String("field", k))
			c.replyError(f.Event, k+" required")
			return
		}
	}
	c.hub.Broadcast(ctx, fields["restaurantId"], f.Event, c.id, wire.Fields(fields))
}
