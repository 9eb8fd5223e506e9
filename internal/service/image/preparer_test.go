package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func gradient(w, h int, base uint16) *image.RGBA64 {
	img := image.NewRGBA64(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := base + uint16((x+y)%1000)
			img.SetRGBA64(x, y, color.RGBA64{R: v, G: v, B: v, A: 0xffff})
		}
	}
	return img
}

func newTestPreparer(t *testing.T) (*Preparer, string) {
	t.Helper()
	dir := t.TempDir()
	return NewPreparer(90, dir, zap.NewNop().Sugar()), dir
}

func decodeDataURI(t *testing.T, uri string) image.Image {
	t.Helper()
	require.True(t, strings.HasPrefix(uri, DataURIPrefix))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, DataURIPrefix))
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTargetSize(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{w: 800, h: 600, max: 2048, wantW: 800, wantH: 600},
		{w: 4000, h: 3000, max: 2048, wantW: 2048, wantH: 1536},
		{w: 3000, h: 4001, max: 1024, wantW: 768, wantH: 1024},
		{w: 5000, h: 1, max: 512, wantW: 512, wantH: 1},
		{w: 2048, h: 2048, max: 2048, wantW: 2048, wantH: 2048},
	}
	for _, tt := range tests {
		w, h := targetSize(tt.w, tt.h, tt.max)
		assert.Equal(t, tt.wantW, w, "%dx%d", tt.w, tt.h)
		assert.Equal(t, tt.wantH, h, "%dx%d", tt.w, tt.h)
	}
}

func TestPrepareDownscalesAndCleansUp(t *testing.T) {
	p, dir := newTestPreparer(t)
	src := NewStaticSource("m31", gradient(1200, 600, 30000))

	uri, err := p.Prepare(context.Background(), src, 512)
	require.NoError(t, err)

	img := decodeDataURI(t, uri)
	assert.Equal(t, 512, img.Bounds().Dx())
	assert.Equal(t, 256, img.Bounds().Dy())
	assertDirEmpty(t, dir)
}

func TestPrepareKeepsSmallImageSize(t *testing.T) {
	p, _ := newTestPreparer(t)
	uri, err := p.Prepare(context.Background(), NewStaticSource("small", gradient(64, 48, 40000)), 2048)
	require.NoError(t, err)

	img := decodeDataURI(t, uri)
	assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())
}

func TestPrepareEncoderFailureRemovesTempFile(t *testing.T) {
	p, dir := newTestPreparer(t)
	boom := errors.New("codec unavailable")
	p.encode = func(w io.Writer, _ image.Image, _ int) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	}

	uri, err := p.Prepare(context.Background(), NewStaticSource("x", gradient(16, 16, 0)), 2048)
	assert.Empty(t, uri)
	assert.ErrorIs(t, err, boom)
	assertDirEmpty(t, dir)
}

func TestPrepareEmptyOutput(t *testing.T) {
	p, dir := newTestPreparer(t)
	p.encode = func(io.Writer, image.Image, int) error { return nil }

	uri, err := p.Prepare(context.Background(), NewStaticSource("x", gradient(16, 16, 0)), 2048)
	assert.Empty(t, uri)
	assert.ErrorIs(t, err, ErrEmptyOutput)
	assertDirEmpty(t, dir)
}

func TestPrepareNoSource(t *testing.T) {
	p, _ := newTestPreparer(t)

	_, err := p.Prepare(context.Background(), nil, 2048)
	assert.ErrorIs(t, err, ErrNoSource)

	_, err = p.Prepare(context.Background(), NewStaticSource("empty", nil), 2048)
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestPrepareFromFile(t *testing.T) {
	p, _ := newTestPreparer(t)
	path := filepath.Join(t.TempDir(), "ngc7000.jpg")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, gradient(100, 50, 20000), nil))
	require.NoError(t, f.Close())

	src := NewFileSource(path)
	assert.Equal(t, "ngc7000", src.ID())

	uri, err := p.Prepare(context.Background(), src, 2048)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 50), decodeDataURI(t, uri).Bounds())

	_, err = p.Prepare(context.Background(), NewFileSource(filepath.Join(t.TempDir(), "missing.png")), 2048)
	assert.Error(t, err)
}

func TestEstimateStretchSkipsDisplayReadyImage(t *testing.T) {
	median, mad := channelStats(gradient(64, 64, 30000))
	_, ok := estimateStretch(median, mad)
	assert.False(t, ok)
}

func TestStretchBrightensLinearImage(t *testing.T) {
	img := gradient(100, 100, 3000)
	median, mad := channelStats(img)
	require.Less(t, median, 0.1)

	params, ok := estimateStretch(median, mad)
	require.True(t, ok)
	assert.False(t, params.identity())
	assert.Greater(t, params.shadows, 0.0)

	applyStretch(img, params)
	after, _ := channelStats(img)
	assert.InDelta(t, targetBackground, after, 0.03)

	// альфа не меняется
	assert.Equal(t, uint16(0xffff), img.RGBA64At(5, 5).A)
}

func TestMTF(t *testing.T) {
	assert.Equal(t, 0.0, mtf(0.3, 0))
	assert.Equal(t, 1.0, mtf(0.3, 1))
	assert.Equal(t, 0.5, mtf(0.3, 0.3))
	assert.InDelta(t, 0.7, mtf(0.5, 0.7), 1e-9)
}

func TestCleanerRemovesOnlyStalePreparedFiles(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)

	stale := filepath.Join(dir, "prepared-123.jpg")
	fresh := filepath.Join(dir, "prepared-456.jpg")
	foreign := filepath.Join(dir, "photo.jpg")
	for _, p := range []string{stale, fresh, foreign} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(foreign, old, old))

	c := NewCleaner(zap.NewNop().Sugar())
	assert.Zero(t, c.Clean(dir, time.Hour, true))
	assert.FileExists(t, stale)

	assert.Equal(t, 1, c.Clean(dir, time.Hour, false))
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, foreign)
}

func TestCleanerCustomPatterns(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-48 * time.Hour)

	rotated := filepath.Join(dir, "llm-assistant.log.1")
	current := filepath.Join(dir, "llm-assistant.log")
	prepared := filepath.Join(dir, "prepared-1.jpg")
	sub := filepath.Join(dir, "llm-assistant.log.d")
	require.NoError(t, os.Mkdir(sub, 0o755))
	for _, p := range []string{rotated, current, prepared} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	for _, p := range []string{rotated, current, prepared, sub} {
		require.NoError(t, os.Chtimes(p, old, old))
	}

	// Пересекающиеся шаблоны не считают файл дважды
	c := NewCleaner(zap.NewNop().Sugar(), "llm-assistant.log.*", "*.log.1")
	assert.Equal(t, 1, c.Clean(dir, 24*time.Hour, false))
	assert.NoFileExists(t, rotated)
	assert.FileExists(t, current)
	assert.FileExists(t, prepared)
	assert.DirExists(t, sub)
}

func TestCleanerSkipsBadPattern(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)
	stale := filepath.Join(dir, "prepared-9.jpg")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(stale, old, old))

	c := NewCleaner(zap.NewNop().Sugar(), "[", TempPattern)
	assert.Equal(t, 1, c.Clean(dir, time.Hour, false))
	assert.Zero(t, c.Clean(filepath.Join(dir, "absent"), time.Hour, false))
}
