package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/config"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "R1/R1_alice.mp4", strings.NewReader("video"), 5, "video/mp4"))
	ok, err := s.Exists(ctx, "R1/R1_alice.mp4")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Read(ctx, "R1/R1_alice.mp4")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "video", string(b))

	url, err := s.GetURL(ctx, "R1/R1_alice.mp4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "/R1/R1_alice.mp4", url)

	require.NoError(t, s.Delete(ctx, "R1/R1_alice.mp4"))
	ok, err = s.Exists(ctx, "R1/R1_alice.mp4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorageStaysInBase(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.fullPath("../../etc/passwd"), s.BasePath()))
}

func TestUploadFile(t *testing.T) {
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte("mp4"), 0o644))

	dst, err := New(ctx, config.StorageConfig{Type: "local"}, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, UploadFile(ctx, dst, src, "R1/clip.mp4"))

	ok, err := dst.Exists(ctx, "R1/clip.mp4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Type: "ftp"}, t.TempDir())
	require.Error(t, err)
	_, err = New(context.Background(), config.StorageConfig{Type: "s3"}, t.TempDir())
	require.Error(t, err)
}
