package realtime

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/tableorder/internal/domain/order"
	"github.com/xenking/tableorder/internal/domain/venue"
)

// envelope carries a frame between replicas.
type envelope struct {
	Instance string
	Room     string
	Exclude  string
	Frame    []byte
}

func encodeEnvelope(env envelope) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("instance")
	e.Str(env.Instance)
	e.FieldStart("room")
	e.Str(env.Room)
	if env.Exclude != "" {
		e.FieldStart("exclude")
		e.Str(env.Exclude)
	}
	e.FieldStart("frame")
	e.Raw(env.Frame)
	e.ObjEnd()
	return e.Bytes()
}

func decodeEnvelope(body []byte) (envelope, error) {
	var env envelope
	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "instance":
			env.Instance, err = d.Str()
		case "room":
			env.Room, err = d.Str()
		case "exclude":
			env.Exclude, err = d.Str()
		case "frame":
			var raw jx.Raw
			raw, err = d.Raw()
			env.Frame = append([]byte(nil), raw...)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return envelope{}, errors.Wrap(err, "decode envelope")
	}
	if env.Room == "" || len(env.Frame) == 0 {
		return envelope{}, errors.New("envelope without room or frame")
	}
	return env, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, venue.ErrRestaurantNotFound) ||
		errors.Is(err, venue.ErrTableNotFound) ||
		errors.Is(err, order.ErrNotFound)
}
