// Package recorder turns each room member's camera, screen and annotations into one mp4
// per room session and catalogs the result when the room empties.
package recorder

import (
	"context"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/catalog"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/media"
	"github.com/dkeye/Meet/internal/metrics"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/dkeye/Meet/internal/storage"
)

// Identity is the name the recorder registers under with the UDP relay.
const Identity = "__recorder__"

const (
	queueSize  = 1024
	archiveTTL = 10 * time.Minute
)

type Catalog interface {
	Finalize(ctx context.Context, rec *catalog.Recording, files []catalog.RecordingFile) error
}

type Options struct {
	ContentRoot string
	FPS         int
	Width       int
	Height      int
	JPEGQuality int
	// RelayAddr is the UDP relay to pull screen frames from; empty disables it.
	RelayAddr string
}

type membershipEvent struct{ ev domain.MembershipEvent }

type messageEvent struct {
	room   domain.RoomName
	sender string
	msg    protocol.Message
}

type udpFrameEvent struct{ f media.Frame }

// Service is a hub listener. Hub callbacks only enqueue; all state is owned by Run.
type Service struct {
	opts    Options
	comp    Compositor
	factory EncoderFactory
	catalog Catalog
	archive storage.Storage
	metrics *metrics.Metrics

	media  *media.Client
	inbox  *inbox
	rooms  map[string]*room
	now    func() time.Time

	uploads sync.WaitGroup
}

func New(opts Options, factory EncoderFactory, cat Catalog, m *metrics.Metrics) *Service {
	if opts.FPS <= 0 {
		opts.FPS = 12
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1280, 720
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 80
	}
	if opts.ContentRoot == "" {
		opts.ContentRoot = "knowledge"
	}
	return &Service{
		opts:    opts,
		comp:    Compositor{Width: opts.Width, Height: opts.Height, Quality: opts.JPEGQuality},
		factory: factory,
		catalog: cat,
		metrics: m,
		inbox:   newInbox(queueSize),
		rooms:   make(map[string]*room),
		now:     time.Now,
	}
}

// SetArchive uploads finished files to st after each finalize. Call before Run.
func (s *Service) SetArchive(st storage.Storage) { s.archive = st }

// enqueueMedia drops ev when queueSize media events are already pending.
func (s *Service) enqueueMedia(ev any, room string) {
	if !s.inbox.push(ev, true) {
		s.metrics.IncRecorderDrops()
		log.Debug().Str("module", "recorder").Str("room", room).Msg("media queue full, frame dropped")
	}
}

// OnMembershipChanged is never dropped.
func (s *Service) OnMembershipChanged(ev domain.MembershipEvent) {
	s.inbox.push(membershipEvent{ev: ev}, false)
}

func (s *Service) OnMessage(room domain.RoomName, sender string, msg protocol.Message) {
	switch msg.Type {
	case protocol.MsgVideoFrame:
		s.enqueueMedia(messageEvent{room: room, sender: sender, msg: msg}, string(room))
	case protocol.MsgAnnotation:
		// stroke ops are stateful, never dropped
		s.inbox.push(messageEvent{room: room, sender: sender, msg: msg}, false)
	}
}

func (s *Service) Run(ctx context.Context) error {
	l := log.With().Str("module", "recorder").Logger()
	if s.opts.RelayAddr != "" {
		c, err := media.NewClient(s.opts.RelayAddr, func(f media.Frame) {
			s.enqueueMedia(udpFrameEvent{f: f}, f.Room)
		})
		if err != nil {
			l.Error().Err(err).Str("relay", s.opts.RelayAddr).Msg("udp client unavailable, screen frames via relay disabled")
		} else {
			s.media = c
			go func() { _ = c.Run(ctx) }()
		}
	}

	tick := time.NewTicker(time.Second / time.Duration(s.opts.FPS))
	defer tick.Stop()
	l.Info().Int("fps", s.opts.FPS).Str("root", s.opts.ContentRoot).Msg("recorder started")

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			l.Info().Msg("recorder stopped")
			return nil
		case <-s.inbox.wake:
			s.drain(ctx)
		case <-tick.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for name, r := range s.rooms {
		s.finalize(ctx, name, r)
	}
	if s.media != nil {
		_ = s.media.Close()
	}
	s.uploads.Wait()
}

func (s *Service) drain(ctx context.Context) {
	for _, ev := range s.inbox.take() {
		s.handle(ctx, ev)
	}
}

func (s *Service) handle(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case membershipEvent:
		s.handleMembership(ctx, e.ev)
	case messageEvent:
		s.handleMessage(e.room, e.sender, e.msg)
	case udpFrameEvent:
		s.handleUDPFrame(e.f)
	}
}

func (s *Service) openRoom(name string) *room {
	if r, ok := s.rooms[name]; ok {
		return r
	}
	r := newRoom(name, s.opts.ContentRoot, s.now())
	s.rooms[name] = r
	if s.media != nil {
		if err := s.media.Register(name, Identity); err != nil {
			log.Warn().Err(err).Str("module", "recorder").Str("room", name).Msg("relay registration failed")
		}
	}
	log.Info().Str("module", "recorder").Str("room", name).Msg("room opened")
	return r
}

func (s *Service) handleMembership(ctx context.Context, ev domain.MembershipEvent) {
	name := string(ev.Room)
	r, ok := s.rooms[name]
	if ev.Empty() {
		if ok {
			s.finalize(ctx, name, r)
		}
		return
	}
	if !ok {
		r = s.openRoom(name)
	}
	r.membersUpdated(ev.Members)
}

func (s *Service) handleMessage(roomName domain.RoomName, sender string, msg protocol.Message) {
	h, err := msg.Header()
	if err != nil {
		return
	}
	r := s.openRoom(string(roomName))

	switch hdr := h.(type) {
	case protocol.VideoFrameHeader:
		user := hdr.Sender
		if user == "" {
			user = sender
		}
		img, err := DecodeImage(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("module", "recorder").Str("room", r.name).Str("user", user).
				Str("media", string(hdr.Media)).Int("bytes", len(msg.Payload)).Msg("frame decode failed")
			return
		}
		if hdr.Media == protocol.MediaScreen {
			r.onScreen(user, img)
		} else {
			r.onCamera(user, img)
		}
	case protocol.AnnotationHeader:
		r.onAnnotation(sender, hdr)
	}
}

func (s *Service) handleUDPFrame(f media.Frame) {
	if f.Sender == Identity {
		return
	}
	r, ok := s.rooms[f.Room]
	if !ok {
		return
	}
	switch f.Codec {
	case media.CodecDelta:
		img, err := r.deltas.Apply(f.Sender, f.Data, int(f.Width), int(f.Height))
		if err != nil {
			log.Debug().Err(err).Str("module", "recorder").Str("room", f.Room).Str("user", f.Sender).Msg("bad delta frame")
			return
		}
		r.onScreen(f.Sender, img)
	default:
		img, err := DecodeImage(f.Data)
		if err != nil {
			log.Debug().Err(err).Str("module", "recorder").Str("room", f.Room).Str("user", f.Sender).Msg("bad screen frame")
			return
		}
		r.onScreen(f.Sender, img)
	}
}

func (s *Service) tick(ctx context.Context) {
	for _, r := range s.rooms {
		for user, st := range r.streams {
			st.tick(ctx, s.factory, s.comp, s.opts.FPS, r.annots[user], s.metrics)
		}
	}
}

// finalize stops every stream of r, drops it and writes one catalog entry. A room that
// was already finalized is no longer in s.rooms, so a repeat call cannot get here.
func (s *Service) finalize(ctx context.Context, name string, r *room) {
	files := r.stopAll()
	delete(s.rooms, name)
	if s.media != nil {
		s.media.Unregister(name, Identity)
	}

	l := log.With().Str("module", "recorder").Str("room", name).Logger()
	rec := &catalog.Recording{
		RoomID:    name,
		StartedAt: r.startedAt,
		EndedAt:   s.now(),
		Title:     "Meeting recording " + name,
	}
	if s.catalog != nil {
		if err := s.catalog.Finalize(ctx, rec, files); err != nil {
			l.Error().Err(err).Msg("catalog finalize failed")
			return
		}
	}
	s.metrics.IncRecordings()
	l.Info().Uint("recording", rec.ID).Int("files", len(files)).Msg("room finalized")

	if s.archive != nil && len(files) > 0 {
		s.uploads.Add(1)
		go s.upload(name, files)
	}
}

func (s *Service) upload(room string, files []catalog.RecordingFile) {
	defer s.uploads.Done()
	ctx, cancel := context.WithTimeout(context.Background(), archiveTTL)
	defer cancel()
	for _, f := range files {
		key := path.Join(safeName(room), filepath.Base(f.FilePath))
		if err := storage.UploadFile(ctx, s.archive, f.FilePath, key); err != nil {
			log.Error().Err(err).Str("module", "recorder").Str("room", room).Str("key", key).Msg("archive upload failed")
			continue
		}
		log.Info().Str("module", "recorder").Str("room", room).Str("key", key).Msg("archived")
	}
}
