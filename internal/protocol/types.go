// Package protocol implements the binary envelope spoken over the reliable transport:
//
//	u32 totalLength | u16 type | u32 headerLength | header (JSON) | payload
//
// All integers are big-endian and totalLength counts every byte from type onward.
package protocol

import "strconv"

type MsgType uint16

const (
	MsgRegister        MsgType = 1
	MsgLogin           MsgType = 2
	MsgCreateWorkOrder MsgType = 3
	MsgJoin            MsgType = 4
	MsgLeave           MsgType = 5

	MsgText          MsgType = 10
	MsgDeviceData    MsgType = 20
	MsgVideoFrame    MsgType = 30
	MsgAudioFrame    MsgType = 40
	MsgControl       MsgType = 50
	MsgFile          MsgType = 60
	MsgServerEvent   MsgType = 90
	MsgDeviceControl MsgType = 100

	MsgAnnotation MsgType = 1206
)

// Types in [ReservedMin, ReservedMax] are kept for future growth and travel as opaque headers.
const (
	ReservedMin MsgType = 1000
	ReservedMax MsgType = 1999
)

const (
	MaxFrameLen  = 8 << 20 // totalLength cap
	MaxHeaderLen = 1 << 20

	lenFieldSize    = 4
	typeFieldSize   = 2
	headerFieldSize = 4
	// MinFrameLen is the smallest valid totalLength: type + headerLength.
	MinFrameLen = typeFieldSize + headerFieldSize
)

func (t MsgType) Reserved() bool {
	return t >= ReservedMin && t <= ReservedMax && t != MsgAnnotation
}

// Relayable reports whether a joined session's message of this type is fanned out to the room.
func (t MsgType) Relayable() bool {
	switch t {
	case MsgText, MsgDeviceData, MsgVideoFrame, MsgAudioFrame, MsgControl,
		MsgAnnotation, MsgFile, MsgDeviceControl:
		return true
	}
	return false
}

// Droppable marks large media messages that may be skipped for slow recipients.
func (t MsgType) Droppable() bool {
	return t == MsgVideoFrame
}

func (t MsgType) String() string {
	switch t {
	case MsgRegister:
		return "register"
	case MsgLogin:
		return "login"
	case MsgCreateWorkOrder:
		return "create_work_order"
	case MsgJoin:
		return "join"
	case MsgLeave:
		return "leave"
	case MsgText:
		return "text"
	case MsgDeviceData:
		return "device_data"
	case MsgVideoFrame:
		return "video_frame"
	case MsgAudioFrame:
		return "audio_frame"
	case MsgControl:
		return "control"
	case MsgFile:
		return "file"
	case MsgServerEvent:
		return "server_event"
	case MsgDeviceControl:
		return "device_control"
	case MsgAnnotation:
		return "annotation"
	}
	return "type_" + strconv.Itoa(int(t))
}

// Message is one decoded envelope. Raw holds the exact frame bytes (length prefix included)
// so the message can be relayed without re-encoding.
type Message struct {
	Type      MsgType
	RawHeader []byte
	Payload   []byte
	Raw       []byte
}

// Header parses the typed header for the message.
func (m Message) Header() (Header, error) {
	return ParseHeader(m.Type, m.RawHeader)
}
