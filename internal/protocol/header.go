package protocol

import (
	"bytes"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

var ErrMalformedHeader = errors.New("protocol: malformed header")

// Header is the tagged union over known message types. Unknown and reserved types decode
// to OpaqueHeader.
type Header interface {
	MsgType() MsgType
}

type JoinHeader struct {
	RoomID string `json:"roomId"`
	User   string `json:"user,omitempty"`
}

type LeaveHeader struct {
	RoomID string `json:"roomId,omitempty"`
}

type TextHeader struct {
	Sender string `json:"sender,omitempty"`
	Text   string `json:"text,omitempty"`
	TS     int64  `json:"ts,omitempty"`
}

type DeviceDataHeader struct {
	Sender string          `json:"sender,omitempty"`
	Device string          `json:"device,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Media describes which picture a video frame carries.
type Media string

const (
	MediaCamera Media = "camera"
	MediaScreen Media = "screen"
)

type VideoFrameHeader struct {
	Sender string `json:"sender,omitempty"`
	Media  Media  `json:"media,omitempty"`
	Codec  string `json:"codec,omitempty"`
	Width  int    `json:"w,omitempty"`
	Height int    `json:"h,omitempty"`
	TS     int64  `json:"ts,omitempty"`
}

type AudioFrameHeader struct {
	Sender     string `json:"sender,omitempty"`
	SampleRate int    `json:"rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	TS         int64  `json:"ts,omitempty"`
}

type ControlHeader struct {
	Sender string          `json:"sender,omitempty"`
	Cmd    string          `json:"cmd,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
}

type FileHeader struct {
	Sender string `json:"sender,omitempty"`
	Name   string `json:"name,omitempty"`
	Size   int64  `json:"size,omitempty"`
	Mime   string `json:"mime,omitempty"`
}

// ServerEventHeader covers acks, nacks and room events pushed by the hub.
type ServerEventHeader struct {
	Code    int      `json:"code"`
	Message string   `json:"message,omitempty"`
	Kind    string   `json:"kind,omitempty"`
	Event   string   `json:"event,omitempty"`
	RoomID  string   `json:"roomId,omitempty"`
	Who     string   `json:"who,omitempty"`
	Members []string `json:"members,omitempty"`
	TS      int64    `json:"ts,omitempty"`
}

type DeviceControlHeader struct {
	Sender string          `json:"sender,omitempty"`
	Target string          `json:"target,omitempty"`
	Action string          `json:"action,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Point is normalized to [0,1] in both axes. On the wire it is a two-element array;
// an {"x":..,"y":..} object is accepted too.
type Point struct {
	X float64
	Y float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

func (p *Point) UnmarshalJSON(b []byte) error {
	var arr []float64
	if err := json.Unmarshal(b, &arr); err == nil {
		if len(arr) < 2 {
			return fmt.Errorf("point needs 2 coordinates, got %d", len(arr))
		}
		p.X, p.Y = arr[0], arr[1]
		return nil
	}
	var obj struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	p.X, p.Y = obj.X, obj.Y
	return nil
}

type AnnotationHeader struct {
	Op     string  `json:"op"`
	RoomID string  `json:"roomId,omitempty"`
	Target string  `json:"target,omitempty"`
	Sender string  `json:"sender,omitempty"`
	ID     string  `json:"id,omitempty"`
	Tool   string  `json:"tool,omitempty"`
	Color  string  `json:"color,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Points []Point `json:"pts,omitempty"`
	Text   string  `json:"text,omitempty"`
}

// OpaqueHeader keeps the raw document of types this build does not model.
type OpaqueHeader struct {
	Type MsgType
	Raw  json.RawMessage
}

func (JoinHeader) MsgType() MsgType          { return MsgJoin }
func (LeaveHeader) MsgType() MsgType         { return MsgLeave }
func (TextHeader) MsgType() MsgType          { return MsgText }
func (DeviceDataHeader) MsgType() MsgType    { return MsgDeviceData }
func (VideoFrameHeader) MsgType() MsgType    { return MsgVideoFrame }
func (AudioFrameHeader) MsgType() MsgType    { return MsgAudioFrame }
func (ControlHeader) MsgType() MsgType       { return MsgControl }
func (FileHeader) MsgType() MsgType          { return MsgFile }
func (ServerEventHeader) MsgType() MsgType   { return MsgServerEvent }
func (DeviceControlHeader) MsgType() MsgType { return MsgDeviceControl }
func (AnnotationHeader) MsgType() MsgType    { return MsgAnnotation }
func (h OpaqueHeader) MsgType() MsgType      { return h.Type }

// ParseHeader decodes raw into the variant selected by t. An empty document is accepted as {}.
func ParseHeader(t MsgType, raw []byte) (Header, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	var h Header
	switch t {
	case MsgJoin:
		h = &JoinHeader{}
	case MsgLeave:
		h = &LeaveHeader{}
	case MsgText:
		h = &TextHeader{}
	case MsgDeviceData:
		h = &DeviceDataHeader{}
	case MsgVideoFrame:
		h = &VideoFrameHeader{}
	case MsgAudioFrame:
		h = &AudioFrameHeader{}
	case MsgControl:
		h = &ControlHeader{}
	case MsgFile:
		h = &FileHeader{}
	case MsgServerEvent:
		h = &ServerEventHeader{}
	case MsgDeviceControl:
		h = &DeviceControlHeader{}
	case MsgAnnotation:
		h = &AnnotationHeader{}
	default:
		if !json.Valid(raw) {
			return nil, fmt.Errorf("%w: %s", ErrMalformedHeader, t)
		}
		return OpaqueHeader{Type: t, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
	if err := json.Unmarshal(raw, h); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedHeader, t, err)
	}
	return deref(h), nil
}

func deref(h Header) Header {
	switch v := h.(type) {
	case *JoinHeader:
		return *v
	case *LeaveHeader:
		return *v
	case *TextHeader:
		return *v
	case *DeviceDataHeader:
		return *v
	case *VideoFrameHeader:
		return *v
	case *AudioFrameHeader:
		return *v
	case *ControlHeader:
		return *v
	case *FileHeader:
		return *v
	case *ServerEventHeader:
		return *v
	case *DeviceControlHeader:
		return *v
	case *AnnotationHeader:
		return *v
	}
	return h
}
