package recorder

import (
	"context"
	"errors"
	"image"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/annot"
	"github.com/dkeye/Meet/internal/catalog"
	"github.com/dkeye/Meet/internal/metrics"
)

type State int

const (
	StateIdle State = iota
	StateArmed
	StateEncoding
	StateStopped
	StateDiscarded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateEncoding:
		return "encoding"
	case StateStopped:
		return "stopped"
	case StateDiscarded:
		return "discarded"
	}
	return "unknown"
}

// Stream records one user of one room into OutPath. Not safe for concurrent use.
type Stream struct {
	Room    string
	User    string
	OutPath string

	state  State
	camera image.Image
	screen image.Image
	enc    Encoder
	frames int

	usedCamera bool
	usedScreen bool

	log zerolog.Logger
}

func newStream(room, user, outPath string) *Stream {
	return &Stream{
		Room:    room,
		User:    user,
		OutPath: outPath,
		log:     log.With().Str("module", "recorder").Str("room", room).Str("user", user).Logger(),
	}
}

func (s *Stream) State() State { return s.state }
func (s *Stream) Frames() int  { return s.frames }

// Arm starts ticking an idle stream. Terminal states stay terminal.
func (s *Stream) Arm() {
	if s.state == StateIdle {
		s.state = StateArmed
		s.log.Info().Msg("armed, waiting for first frame")
	}
}

func (s *Stream) SetCamera(img image.Image) {
	if img != nil && s.live() {
		s.camera = img
	}
}

func (s *Stream) SetScreen(img image.Image) {
	if img != nil && s.live() {
		s.screen = img
	}
}

func (s *Stream) live() bool {
	return s.state == StateIdle || s.state == StateArmed || s.state == StateEncoding
}

// Kind classifies the output by the sources that made it into written frames.
func (s *Stream) Kind() catalog.Kind {
	switch {
	case s.usedCamera && s.usedScreen:
		return catalog.KindComposite
	case s.usedScreen:
		return catalog.KindScreen
	}
	return catalog.KindCamera
}

// tick composes and writes one frame. The encoder is started lazily on the first tick
// that has something to show.
func (s *Stream) tick(ctx context.Context, factory EncoderFactory, comp Compositor, fps int, model *annot.Model, m *metrics.Metrics) {
	if s.state != StateArmed && s.state != StateEncoding {
		return
	}
	if s.camera == nil && s.screen == nil {
		return
	}

	if s.state == StateArmed {
		enc, err := factory.Start(ctx, s.OutPath, fps)
		if err != nil {
			if errors.Is(err, ErrEncoderNotFound) {
				s.log.Error().Err(err).Msg("install ffmpeg or set FFMPEG_PATH; stream discarded")
			} else {
				s.log.Error().Err(err).Msg("encoder start failed; stream discarded")
			}
			m.IncEncoderFailures()
			s.discard()
			return
		}
		s.enc = enc
		s.state = StateEncoding
	}

	select {
	case <-s.enc.Done():
		s.log.Warn().Int("frames", s.frames).Msg("encoder exited early")
		m.IncEncoderFailures()
		s.Stop()
		return
	default:
	}

	img := comp.Compose(s.camera, s.screen, model)
	jpeg, err := comp.EncodeJPEG(img)
	if err != nil {
		s.log.Warn().Err(err).Msg("jpeg encode failed, skipping tick")
		return
	}
	if !s.enc.WriteFrame(jpeg) {
		s.log.Debug().Msg("encoder queue full, frame dropped")
		return
	}
	s.frames++
	s.usedCamera = s.usedCamera || s.camera != nil
	s.usedScreen = s.usedScreen || s.screen != nil
	m.IncFramesEncoded()
	if s.frames%60 == 0 {
		s.log.Debug().Int("frames", s.frames).Msg("progress")
	}
}

// Stop releases the encoder. A stream that never wrote a frame ends Discarded and leaves
// no file behind.
func (s *Stream) Stop() State {
	switch s.state {
	case StateStopped, StateDiscarded:
		return s.state
	}
	if s.enc != nil {
		if err := s.enc.Close(); err != nil {
			s.log.Warn().Err(err).Msg("encoder close")
		}
		s.enc = nil
	}
	if s.frames == 0 {
		s.discard()
		return s.state
	}
	s.state = StateStopped
	s.camera, s.screen = nil, nil
	s.log.Info().Int("frames", s.frames).Str("out", s.OutPath).Msg("stopped")
	return s.state
}

func (s *Stream) discard() {
	if s.enc != nil {
		_ = s.enc.Close()
		s.enc = nil
	}
	if st, err := os.Stat(s.OutPath); err == nil && st.Size() == 0 {
		_ = os.Remove(s.OutPath)
	}
	s.state = StateDiscarded
	s.camera, s.screen = nil, nil
	s.log.Info().Int("frames", s.frames).Msg("discarded")
}
