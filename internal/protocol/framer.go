package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

var (
	// ErrDesync means the length prefix is out of range; the buffer cannot be trusted any more.
	ErrDesync         = errors.New("protocol: frame length out of range")
	ErrFrameTooLarge  = errors.New("protocol: frame too large")
	ErrHeaderTooLarge = errors.New("protocol: header too large")
)

// Encode builds one frame. A nil header is sent as an empty JSON object.
func Encode(t MsgType, header any, payload []byte) ([]byte, error) {
	var hb []byte
	switch h := header.(type) {
	case nil:
		hb = []byte("{}")
	case []byte:
		hb = h
	default:
		b, err := json.Marshal(h)
		if err != nil {
			return nil, fmt.Errorf("marshal %s header: %w", t, err)
		}
		hb = b
	}
	if len(hb) > MaxHeaderLen {
		return nil, ErrHeaderTooLarge
	}
	total := MinFrameLen + len(hb) + len(payload)
	if total > MaxFrameLen {
		return nil, ErrFrameTooLarge
	}

	out := make([]byte, lenFieldSize+total)
	binary.BigEndian.PutUint32(out[0:4], uint32(total))
	binary.BigEndian.PutUint16(out[4:6], uint16(t))
	binary.BigEndian.PutUint32(out[6:10], uint32(len(hb)))
	n := copy(out[10:], hb)
	copy(out[10+n:], payload)
	return out, nil
}

// MustEncode is Encode for headers that are known to marshal and fit.
func MustEncode(t MsgType, header any, payload []byte) []byte {
	b, err := Encode(t, header, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode drains every complete frame from buf. consumed is the number of leading bytes the
// caller must discard. On ErrDesync consumed equals len(buf): the whole buffer is dropped.
// Frames whose header length does not fit are consumed and skipped.
func Decode(buf []byte) (msgs []Message, consumed int, err error) {
	for {
		rest := buf[consumed:]
		if len(rest) < lenFieldSize {
			return msgs, consumed, nil
		}
		total := binary.BigEndian.Uint32(rest[:lenFieldSize])
		if total < MinFrameLen || total > MaxFrameLen {
			return msgs, len(buf), ErrDesync
		}
		need := lenFieldSize + int(total)
		if len(rest) < need {
			return msgs, consumed, nil
		}
		frame := rest[:need:need]
		consumed += need

		t := MsgType(binary.BigEndian.Uint16(frame[4:6]))
		hlen := binary.BigEndian.Uint32(frame[6:10])
		capacity := uint32(need - lenFieldSize - MinFrameLen)
		if hlen > capacity || hlen > MaxHeaderLen {
			continue
		}
		body := frame[lenFieldSize+MinFrameLen:]
		msg := Message{
			Type:      t,
			RawHeader: body[:hlen],
			Raw:       frame,
		}
		if int(hlen) < len(body) {
			msg.Payload = body[hlen:]
		}
		msgs = append(msgs, msg)
	}
}

// Decoder accumulates bytes for one connection. It is not safe for concurrent use.
type Decoder struct {
	buf []byte
}

// Feed appends p and returns every message completed by it. Returned messages own their
// memory and stay valid after later calls. ErrDesync is returned after the buffer was cleared.
func (d *Decoder) Feed(p []byte) ([]Message, error) {
	d.buf = append(d.buf, p...)
	msgs, consumed, err := Decode(d.buf)
	for i := range msgs {
		msgs[i] = detach(msgs[i])
	}
	if consumed > 0 {
		n := copy(d.buf, d.buf[consumed:])
		d.buf = d.buf[:n]
	}
	return msgs, err
}

// Buffered returns the number of bytes waiting for the rest of their frame.
func (d *Decoder) Buffered() int { return len(d.buf) }

func detach(m Message) Message {
	raw := append([]byte(nil), m.Raw...)
	body := raw[lenFieldSize+MinFrameLen:]
	out := Message{Type: m.Type, Raw: raw, RawHeader: body[:len(m.RawHeader)]}
	if len(m.Payload) > 0 {
		out.Payload = body[len(m.RawHeader):]
	}
	return out
}
