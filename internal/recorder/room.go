package recorder

import (
	"fmt"
	"hash/fnv"
	"image"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dkeye/Meet/internal/annot"
	"github.com/dkeye/Meet/internal/catalog"
	"github.com/dkeye/Meet/internal/media"
	"github.com/dkeye/Meet/internal/protocol"
)

// maxNamePart bounds each id embedded in a file name so names stay under filesystem limits.
const maxNamePart = 64

// LocalTarget in an annotation means "the sender's own stream".
const LocalTarget = "__local__"

type room struct {
	name      string
	dir       string
	startedAt time.Time

	streams map[string]*Stream
	annots  map[string]*annot.Model
	deltas  *media.DeltaDecoder
}

func newRoom(name, contentRoot string, now time.Time) *room {
	return &room{
		name:      name,
		dir:       filepath.Join(contentRoot, safeName(name)),
		startedAt: now,
		streams:   make(map[string]*Stream),
		annots:    make(map[string]*annot.Model),
		deltas:    media.NewDeltaDecoder(),
	}
}

func (r *room) ensureStream(user string) *Stream {
	if s, ok := r.streams[user]; ok {
		return s
	}
	out := filepath.Join(r.dir, fmt.Sprintf("%s_%s_%d.mp4", safeName(r.name), safeName(user), r.startedAt.UnixMilli()))
	s := newStream(r.name, user, out)
	r.streams[user] = s
	return s
}

func (r *room) model(user string) *annot.Model {
	m, ok := r.annots[user]
	if !ok {
		m = annot.NewModel()
		r.annots[user] = m
	}
	return m
}

// membersUpdated arms a stream for every current member.
func (r *room) membersUpdated(members []string) {
	for _, u := range members {
		r.ensureStream(u).Arm()
	}
}

func (r *room) onCamera(user string, img image.Image) {
	s := r.ensureStream(user)
	s.Arm()
	s.SetCamera(img)
}

func (r *room) onScreen(user string, img image.Image) {
	s := r.ensureStream(user)
	s.Arm()
	s.SetScreen(img)
}

// onAnnotation routes a stroke event to the model of its target user.
func (r *room) onAnnotation(sender string, h protocol.AnnotationHeader) bool {
	if h.RoomID != "" && h.RoomID != r.name {
		return false
	}
	if h.Sender == "" {
		h.Sender = sender
	}
	target := h.Target
	if target == LocalTarget {
		target = h.Sender
	}
	if target == "" {
		return false
	}
	return r.model(target).Apply(h)
}

// stopAll stops every stream and returns the files worth cataloging.
func (r *room) stopAll() []catalog.RecordingFile {
	users := make([]string, 0, len(r.streams))
	for u := range r.streams {
		users = append(users, u)
	}
	slices.Sort(users)

	var files []catalog.RecordingFile
	for _, u := range users {
		s := r.streams[u]
		if s.Stop() == StateStopped {
			files = append(files, catalog.RecordingFile{User: u, FilePath: s.OutPath, Kind: s.Kind()})
		}
	}
	r.streams = make(map[string]*Stream)
	return files
}

// safeName keeps identities usable as a single path element.
func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	if len(s) > maxNamePart {
		h := fnv.New32a()
		_, _ = h.Write([]byte(s))
		cut := maxNamePart - 9
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = fmt.Sprintf("%s-%08x", s[:cut], h.Sum32())
	}
	return s
}
