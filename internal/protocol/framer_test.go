package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		typ     MsgType
		header  any
		payload []byte
	}{
		{"join without payload", MsgJoin, JoinHeader{RoomID: "R1", User: "alice"}, nil},
		{"text", MsgText, TextHeader{Sender: "alice", Text: "hi"}, nil},
		{"video with payload", MsgVideoFrame, VideoFrameHeader{Sender: "bob", Media: MediaCamera}, bytes.Repeat([]byte{0xAB}, 4096)},
		{"nil header", MsgControl, nil, []byte{1, 2, 3}},
		{"reserved type", MsgType(1500), map[string]int{"x": 1}, []byte("opaque")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := Encode(tc.typ, tc.header, tc.payload)
			require.NoError(t, err)

			msgs, consumed, err := Decode(raw)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.Equal(t, len(raw), consumed)
			assert.Equal(t, tc.typ, msgs[0].Type)
			assert.Equal(t, raw, msgs[0].Raw)
			if len(tc.payload) == 0 {
				assert.Empty(t, msgs[0].Payload)
			} else {
				assert.Equal(t, tc.payload, msgs[0].Payload)
			}
		})
	}
}

func TestDecoderIncrementalSplits(t *testing.T) {
	var stream []byte
	for i := 0; i < 5; i++ {
		raw := MustEncode(MsgText, TextHeader{Sender: "a", Text: string(rune('a' + i))}, bytes.Repeat([]byte{byte(i)}, i*37))
		stream = append(stream, raw...)
	}
	whole, consumed, err := Decode(stream)
	require.NoError(t, err)
	require.Equal(t, len(stream), consumed)
	require.Len(t, whole, 5)

	for _, step := range []int{1, 2, 3, 7, 13, 64} {
		var d Decoder
		var got []Message
		for off := 0; off < len(stream); off += step {
			end := min(off+step, len(stream))
			msgs, err := d.Feed(stream[off:end])
			require.NoError(t, err)
			got = append(got, msgs...)
		}
		require.Len(t, got, len(whole), "step %d", step)
		for i := range whole {
			assert.Equal(t, whole[i].Raw, got[i].Raw)
			assert.Equal(t, whole[i].RawHeader, got[i].RawHeader)
		}
		assert.Zero(t, d.Buffered())
	}
}

func TestDecodeWaitsForMoreBytes(t *testing.T) {
	raw := MustEncode(MsgText, TextHeader{Text: "hello"}, nil)

	msgs, consumed, err := Decode(raw[:3])
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Zero(t, consumed)

	msgs, consumed, err = Decode(raw[:len(raw)-1])
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Zero(t, consumed)
}

func TestDecodeDesyncClearsBuffer(t *testing.T) {
	for _, total := range []uint32{0xFFFFFFFF, 3, MaxFrameLen + 1} {
		buf := make([]byte, 32)
		binary.BigEndian.PutUint32(buf, total)

		var d Decoder
		msgs, err := d.Feed(buf)
		require.ErrorIs(t, err, ErrDesync)
		assert.Empty(t, msgs)
		assert.Zero(t, d.Buffered())
	}
}

func TestDecodeSkipsFrameWithBadHeaderLength(t *testing.T) {
	bad := make([]byte, 4+6+2)
	binary.BigEndian.PutUint32(bad[0:4], 8)
	binary.BigEndian.PutUint16(bad[4:6], uint16(MsgText))
	binary.BigEndian.PutUint32(bad[6:10], 100)
	good := MustEncode(MsgText, TextHeader{Text: "ok"}, nil)

	msgs, consumed, err := Decode(append(bad, good...))
	require.NoError(t, err)
	assert.Equal(t, len(bad)+len(good), consumed)
	require.Len(t, msgs, 1)
	assert.Equal(t, good, msgs[0].Raw)
}

func TestEncodeEnforcesCaps(t *testing.T) {
	_, err := Encode(MsgFile, bytes.Repeat([]byte{'x'}, MaxHeaderLen+1), nil)
	require.ErrorIs(t, err, ErrHeaderTooLarge)

	_, err = Encode(MsgFile, nil, make([]byte, MaxFrameLen))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFeedDetachesMessages(t *testing.T) {
	a := MustEncode(MsgText, TextHeader{Text: "first"}, []byte("p1"))
	b := MustEncode(MsgText, TextHeader{Text: "second"}, []byte("p2"))

	var d Decoder
	first, err := d.Feed(a)
	require.NoError(t, err)
	_, err = d.Feed(b)
	require.NoError(t, err)

	require.Len(t, first, 1)
	assert.Equal(t, a, first[0].Raw)
	assert.Equal(t, []byte("p1"), first[0].Payload)
}
