package image

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"os"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

const (
	DataURIPrefix  = "data:image/jpeg;base64,"
	TempPattern    = "prepared-*.jpg"
	defaultQuality = 90
)

var (
	ErrNoSource    = errors.New("no source image")
	ErrEmptyOutput = errors.New("image encoder produced no data")
)

type encodeFunc func(w io.Writer, img image.Image, quality int) error

// Preparer превращает выбранное изображение в data URI для vision-запроса.
type Preparer struct {
	quality int
	tempDir string
	logger  *zap.SugaredLogger
	encode  encodeFunc
}

func NewPreparer(quality int, tempDir string, logger *zap.SugaredLogger) *Preparer {
	if quality <= 0 || quality > 100 {
		quality = defaultQuality
	}
	return &Preparer{
		quality: quality,
		tempDir: tempDir,
		logger:  logger,
		encode: func(w io.Writer, img image.Image, quality int) error {
			return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
		},
	}
}

// Prepare уменьшает изображение до maxDim по длинной стороне, растягивает тона при необходимости,
// сжимает в JPEG через временный файл и возвращает data URI.
func (p *Preparer) Prepare(ctx context.Context, src Source, maxDim int) (string, error) {
	if src == nil {
		return "", ErrNoSource
	}
	img, err := src.Image(ctx)
	if err != nil {
		return "", fmt.Errorf("load image %s: %w", src.ID(), err)
	}
	if img == nil {
		return "", ErrNoSource
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return "", fmt.Errorf("invalid image size: %dx%d", b.Dx(), b.Dy())
	}

	w, h := targetSize(b.Dx(), b.Dy(), maxDim)
	work := image.NewRGBA64(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(work, work.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(work, work.Bounds(), img, b, draw.Src, nil)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	median, mad := channelStats(work)
	if params, ok := estimateStretch(median, mad); ok && !params.identity() {
		applyStretch(work, params)
		p.logger.Debugw("Применено автоматическое растяжение",
			"source", src.ID(), "median", median, "shadows", params.shadows, "midtones", params.midtones)
	}

	data, err := p.compress(work)
	if err != nil {
		return "", err
	}

	p.logger.Infow("Изображение подготовлено", "source", src.ID(), "width", w, "height", h, "bytes", len(data))
	return DataURIPrefix + base64.StdEncoding.EncodeToString(data), nil
}

// compress пишет JPEG во временный файл и читает его обратно. Файл удаляется при любом исходе.
func (p *Preparer) compress(img image.Image) ([]byte, error) {
	f, err := os.CreateTemp(p.tempDir, TempPattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			p.logger.Warnw("Не удалось удалить временный файл", "path", path, "error", rmErr)
		}
	}()

	if err := p.encode(f, img, p.quality); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read temp file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyOutput
	}
	return data, nil
}

// targetSize ограничивает длинную сторону maxDim с сохранением пропорций.
func targetSize(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, int(math.Round(float64(h)*float64(maxDim)/float64(w))))
	}
	return max(1, int(math.Round(float64(w)*float64(maxDim)/float64(h)))), maxDim
}
