package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrEncoderNotFound = errors.New("recorder: encoder executable not found")

// Encoder consumes JPEG stills and produces one video file.
type Encoder interface {
	// WriteFrame queues one JPEG without blocking; false means it was dropped.
	WriteFrame(jpeg []byte) bool
	// Done is closed once the encoder has exited, for whatever reason.
	Done() <-chan struct{}
	// Close flushes pending frames, ends the input and waits for the encoder to exit.
	Close() error
}

type EncoderFactory interface {
	Start(ctx context.Context, outPath string, fps int) (Encoder, error)
}

var wellKnownFFmpeg = []string{
	"/usr/bin/ffmpeg",
	"/usr/local/bin/ffmpeg",
	"/opt/homebrew/bin/ffmpeg",
	"/opt/local/bin/ffmpeg",
}

// LocateFFmpeg resolves the executable: the override (a file or a directory holding
// ffmpeg), then PATH, then well-known install locations.
func LocateFFmpeg(override string) (string, error) {
	if override != "" {
		if isExecutable(override) {
			return override, nil
		}
		if p := filepath.Join(override, "ffmpeg"); isExecutable(p) {
			return p, nil
		}
	}
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		return p, nil
	}
	for _, p := range wellKnownFFmpeg {
		if isExecutable(p) {
			return p, nil
		}
	}
	return "", ErrEncoderNotFound
}

func isExecutable(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir() && st.Mode()&0o111 != 0
}

// FFmpegFactory spawns ffmpeg reading MJPEG from stdin and writing H.264 mp4.
type FFmpegFactory struct {
	Path        string
	StopTimeout time.Duration
	QueueSize   int
}

func ffmpegArgs(fps int, outPath string) []string {
	return []string{
		"-loglevel", "error",
		"-y",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-r", strconv.Itoa(fps),
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		outPath,
	}
}

func (f FFmpegFactory) Start(_ context.Context, outPath string, fps int) (Encoder, error) {
	bin, err := LocateFFmpeg(f.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	// Not bound to ctx: shutdown must still close stdin so the file gets its trailer.
	cmd := exec.Command(bin, ffmpegArgs(fps, outPath)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = stderrLog{out: outPath}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}

	timeout := f.StopTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	size := f.QueueSize
	if size <= 0 {
		size = 32
	}
	e := &ffmpegEncoder{
		cmd:     cmd,
		stdin:   stdin,
		queue:   make(chan []byte, size),
		written: make(chan struct{}),
		exited:  make(chan struct{}),
		timeout: timeout,
		out:     outPath,
	}
	go e.writeLoop()
	go func() {
		e.waitErr = cmd.Wait()
		close(e.exited)
	}()
	log.Info().Str("module", "recorder").Str("bin", bin).Str("out", outPath).Int("fps", fps).Msg("encoder started")
	return e, nil
}

type ffmpegEncoder struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	timeout time.Duration
	out     string

	mu     sync.Mutex
	closed bool
	queue  chan []byte

	written chan struct{}
	exited  chan struct{}
	waitErr error
}

func (e *ffmpegEncoder) WriteFrame(jpeg []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	select {
	case <-e.exited:
		return false
	default:
	}
	select {
	case e.queue <- jpeg:
		return true
	default:
		return false
	}
}

func (e *ffmpegEncoder) Done() <-chan struct{} { return e.exited }

func (e *ffmpegEncoder) writeLoop() {
	defer close(e.written)
	broken := false
	for b := range e.queue {
		if broken {
			continue
		}
		if _, err := e.stdin.Write(b); err != nil {
			log.Warn().Err(err).Str("module", "recorder").Str("out", e.out).Msg("encoder input closed")
			broken = true
		}
	}
}

// stderrLog forwards ffmpeg diagnostics to the log.
type stderrLog struct{ out string }

func (w stderrLog) Write(p []byte) (int, error) {
	if msg := strings.TrimSpace(string(p)); msg != "" {
		log.Warn().Str("module", "recorder").Str("out", w.out).Msg("ffmpeg: " + msg)
	}
	return len(p), nil
}

func (e *ffmpegEncoder) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.exited
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	select {
	case <-e.written:
	case <-e.exited:
	case <-ctx.Done():
	}
	_ = e.stdin.Close()

	select {
	case <-e.exited:
		return e.waitErr
	case <-ctx.Done():
		_ = e.cmd.Process.Kill()
		<-e.exited
		return fmt.Errorf("encoder for %s killed after %s", e.out, e.timeout)
	}
}
