package image

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/kbinani/screenshot"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	"go.uber.org/zap"
)

// Source выбранное пользователем изображение.
type Source interface {
	// ID короткий идентификатор для профиля и логов.
	ID() string
	// Path путь к файлу или пустая строка для изображений в памяти.
	Path() string
	// Image возвращает растр. Вызывающий не должен его изменять.
	Image(ctx context.Context) (image.Image, error)
}

// FileSource изображение из файла (jpeg, png, gif, bmp, tiff).
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource { return &FileSource{path: path} }

func (s *FileSource) ID() string {
	base := filepath.Base(s.path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Image(_ context.Context) (image.Image, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return img, nil
}

// StaticSource изображение, уже находящееся в памяти.
type StaticSource struct {
	id  string
	img image.Image
}

func NewStaticSource(id string, img image.Image) *StaticSource {
	return &StaticSource{id: id, img: img}
}

func (s *StaticSource) ID() string   { return s.id }
func (s *StaticSource) Path() string { return "" }

func (s *StaticSource) Image(_ context.Context) (image.Image, error) {
	if s.img == nil {
		return nil, ErrNoSource
	}
	return s.img, nil
}

// ScreenSource снимок всех активных мониторов, склеенных в один холст.
type ScreenSource struct {
	logger *zap.SugaredLogger

	displays func() int
	bounds   func(i int) image.Rectangle
	capture  func(r image.Rectangle) (*image.RGBA, error)
}

func NewScreenSource(logger *zap.SugaredLogger) *ScreenSource {
	return &ScreenSource{
		logger:   logger,
		displays: screenshot.NumActiveDisplays,
		bounds:   screenshot.GetDisplayBounds,
		capture:  screenshot.CaptureRect,
	}
}

func (s *ScreenSource) ID() string   { return "screen" }
func (s *ScreenSource) Path() string { return "" }

func (s *ScreenSource) Image(ctx context.Context) (image.Image, error) {
	n := s.displays()
	if n <= 0 {
		return nil, errors.New("no active displays detected for screenshot")
	}

	// Вычисляем объединённые границы всех мониторов
	union := s.bounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(s.bounds(i))
	}

	canvas := image.NewRGBA(image.Rect(0, 0, union.Dx(), union.Dy()))
	captured := 0
	var lastErr error
	for i := range n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b := s.bounds(i)
		img, err := s.capture(b)
		if err != nil {
			s.logger.Errorw("Failed to capture display", "index", i, "bounds", b.String(), "error", err)
			lastErr = err
			continue
		}
		// Копируем в холст со смещением
		dstPoint := image.Pt(b.Min.X-union.Min.X, b.Min.Y-union.Min.Y)
		dstRect := image.Rectangle{Min: dstPoint, Max: dstPoint.Add(b.Size())}
		draw.Draw(canvas, dstRect, img, img.Bounds().Min, draw.Src)
		captured++
	}
	if captured == 0 {
		return nil, fmt.Errorf("failed to capture any display: %w", lastErr)
	}
	return canvas, nil
}
