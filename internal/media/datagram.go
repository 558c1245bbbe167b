// Package media holds the unreliable-transport side of the system: the datagram codec,
// fragment reassembly, delta frame decoding and a small UDP peer used by receivers.
package media

import (
	"encoding/binary"
	"errors"
	"math"

	"golang.org/x/text/encoding/unicode"
)

const (
	Magic uint32 = 0x55444D31 // "UDM1"

	Version1 uint8 = 1 // chunks carry no codec byte, payload is JPEG
	Version2 uint8 = 2

	TypeRegister uint8 = 1
	TypeChunk    uint8 = 2

	// MaxChunkPayload keeps a chunk datagram under common path MTUs.
	MaxChunkPayload = 1200

	headerSize = 8
)

type Codec uint8

const (
	CodecJPEG  Codec = 0
	CodecDelta Codec = 1
)

func (c Codec) String() string {
	switch c {
	case CodecJPEG:
		return "jpeg"
	case CodecDelta:
		return "delta"
	}
	return "unknown"
}

var (
	ErrBadMagic    = errors.New("media: bad magic")
	ErrBadVersion  = errors.New("media: unsupported version")
	ErrUnknownType = errors.New("media: unknown datagram type")
	ErrTruncated   = errors.New("media: truncated datagram")
	ErrTooLong     = errors.New("media: field too long")
	ErrBadString   = errors.New("media: malformed string")
)

// nullString is the length a null string is written with.
const nullString = math.MaxUint32

// Strings are u32 byte length + UTF-16BE, the QDataStream encoding desktop clients speak.
var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// Registration announces (room, user) at the datagram's source address.
type Registration struct {
	Room string
	User string
}

// Chunk is one fragment of a media frame.
type Chunk struct {
	Room    string
	Sender  string
	FrameID uint32
	Index   uint16
	Count   uint16
	Codec   Codec
	Width   uint16
	Height  uint16
	TS      uint64
	Data    []byte
}

// Datagram is the parsed form of one packet; exactly one of Reg and Chunk is set.
type Datagram struct {
	Version uint8
	Type    uint8
	Reg     *Registration
	Chunk   *Chunk
}

func putHeader(b []byte, version, typ uint8) []byte {
	b = binary.BigEndian.AppendUint32(b, Magic)
	b = append(b, version, typ)
	return binary.BigEndian.AppendUint16(b, 0)
}

func putString(b []byte, s string) ([]byte, error) {
	if len(s) > math.MaxUint16 {
		return nil, ErrTooLong
	}
	u, err := utf16be.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, err
	}
	b = binary.BigEndian.AppendUint32(b, uint32(len(u)))
	return append(b, u...), nil
}

func EncodeRegistration(r Registration) ([]byte, error) {
	b := putHeader(make([]byte, 0, headerSize+8+2*(len(r.Room)+len(r.User))), Version2, TypeRegister)
	b, err := putString(b, r.Room)
	if err != nil {
		return nil, err
	}
	return putString(b, r.User)
}

// EncodeChunk writes a version 2 chunk datagram.
func EncodeChunk(c Chunk) ([]byte, error) {
	if len(c.Data) > MaxChunkPayload {
		return nil, ErrTooLong
	}
	b := putHeader(make([]byte, 0, headerSize+8+2*(len(c.Room)+len(c.Sender))+26+len(c.Data)), Version2, TypeChunk)
	b, err := putString(b, c.Room)
	if err != nil {
		return nil, err
	}
	if b, err = putString(b, c.Sender); err != nil {
		return nil, err
	}
	b = binary.BigEndian.AppendUint32(b, c.FrameID)
	b = binary.BigEndian.AppendUint16(b, c.Index)
	b = binary.BigEndian.AppendUint16(b, c.Count)
	b = append(b, byte(c.Codec))
	b = binary.BigEndian.AppendUint16(b, c.Width)
	b = binary.BigEndian.AppendUint16(b, c.Height)
	b = binary.BigEndian.AppendUint64(b, c.TS)
	b = binary.BigEndian.AppendUint32(b, uint32(len(c.Data)))
	return append(b, c.Data...), nil
}

// SplitFrame cuts data into chunks of at most MaxChunkPayload bytes. The chunks share
// meta's room, sender, frame id, codec, size and timestamp.
func SplitFrame(meta Chunk, data []byte) []Chunk {
	n := (len(data) + MaxChunkPayload - 1) / MaxChunkPayload
	if n == 0 {
		n = 1
	}
	out := make([]Chunk, 0, n)
	for i := 0; i < n; i++ {
		c := meta
		c.Index = uint16(i)
		c.Count = uint16(n)
		lo := i * MaxChunkPayload
		hi := min(lo+MaxChunkPayload, len(data))
		c.Data = data[lo:hi]
		out = append(out, c)
	}
	return out
}

type reader struct {
	b   []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = ErrTruncated
		return nil
	}
	v := r.b[:n]
	r.b = r.b[n:]
	return v
}

func (r *reader) u8() uint8 {
	if v := r.take(1); v != nil {
		return v[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if v := r.take(2); v != nil {
		return binary.BigEndian.Uint16(v)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if v := r.take(4); v != nil {
		return binary.BigEndian.Uint32(v)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if v := r.take(8); v != nil {
		return binary.BigEndian.Uint64(v)
	}
	return 0
}

func (r *reader) str() string {
	n := r.u32()
	if r.err != nil || n == nullString {
		return ""
	}
	if n%2 != 0 {
		r.err = ErrBadString
		return ""
	}
	raw := r.take(int(n))
	if r.err != nil {
		return ""
	}
	s, err := utf16be.NewDecoder().Bytes(raw)
	if err != nil {
		r.err = ErrBadString
		return ""
	}
	return string(s)
}

// ParseDatagram validates and decodes one packet. Chunk data aliases b.
func ParseDatagram(b []byte) (Datagram, error) {
	if len(b) < headerSize {
		return Datagram{}, ErrTruncated
	}
	if binary.BigEndian.Uint32(b[0:4]) != Magic {
		return Datagram{}, ErrBadMagic
	}
	d := Datagram{Version: b[4], Type: b[5]}
	if d.Version != Version1 && d.Version != Version2 {
		return Datagram{}, ErrBadVersion
	}
	r := &reader{b: b[headerSize:]}

	switch d.Type {
	case TypeRegister:
		reg := Registration{Room: r.str(), User: r.str()}
		if r.err != nil {
			return Datagram{}, r.err
		}
		d.Reg = &reg
	case TypeChunk:
		c := Chunk{Room: r.str(), Sender: r.str()}
		c.FrameID = r.u32()
		c.Index = r.u16()
		c.Count = r.u16()
		if d.Version == Version2 {
			c.Codec = Codec(r.u8())
		}
		c.Width = r.u16()
		c.Height = r.u16()
		c.TS = r.u64()
		n := r.u32()
		if r.err == nil && n > MaxChunkPayload {
			return Datagram{}, ErrTooLong
		}
		c.Data = r.take(int(n))
		if r.err != nil {
			return Datagram{}, r.err
		}
		d.Chunk = &c
	default:
		return Datagram{}, ErrUnknownType
	}
	return d, nil
}
