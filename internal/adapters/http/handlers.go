package http

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app/relay"
	"github.com/dkeye/Meet/internal/catalog"
	"github.com/dkeye/Meet/internal/core"
)

type handlers struct {
	deps        Deps
	contentRoot string
}

type fileDTO struct {
	catalog.RecordingFile
	URL string `json:"url,omitempty"`
}

type recordingDTO struct {
	catalog.Recording
	Files []fileDTO `json:"files"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) rooms(c *gin.Context) {
	rooms := []core.RoomInfo{}
	if h.deps.Rooms != nil {
		rooms = h.deps.Rooms.List()
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *handlers) relayPeers(c *gin.Context) {
	peers := []relay.Peer{}
	if h.deps.Relay != nil {
		peers = h.deps.Relay.Snapshot()
	}
	c.JSON(http.StatusOK, gin.H{"peers": peers})
}

func (h *handlers) listRecordings(c *gin.Context) {
	if h.deps.Recordings == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog disabled"})
		return
	}
	items, err := h.deps.Recordings.List(c.Request.Context(), c.Query("room_id"))
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("list recordings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *handlers) getRecording(c *gin.Context) {
	if h.deps.Recordings == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog disabled"})
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	rec, err := h.deps.Recordings.Get(c.Request.Context(), uint(id))
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Uint64("id", id).Msg("get recording")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	out := recordingDTO{Recording: *rec, Files: make([]fileDTO, 0, len(rec.Files))}
	out.Recording.Files = nil
	for _, f := range rec.Files {
		out.Files = append(out.Files, fileDTO{RecordingFile: f, URL: h.fileURL(c, f.FilePath)})
	}
	c.JSON(http.StatusOK, out)
}

// fileURL resolves a catalog path to something a browser can fetch, or "" when the
// storage backend does not have it.
func (h *handlers) fileURL(c *gin.Context, filePath string) string {
	if h.deps.Storage == nil {
		return ""
	}
	rel, err := filepath.Rel(h.contentRoot, filePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(filePath)
	}
	url, err := h.deps.Storage.GetURL(c.Request.Context(), filepath.ToSlash(rel), fileURLTTL)
	if err != nil {
		return ""
	}
	if strings.HasPrefix(url, "/") {
		url = "/files" + url
	}
	return url
}
