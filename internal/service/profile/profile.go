package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdimage "image"
	"image/color"
	"os"
	"runtime"
	"runtime/debug"

	"LLMAssistant/internal/service/image"

	"github.com/tidwall/gjson"
)

const (
	ProgramName = "LLM Assistant"
	inMemory    = "In-memory view"
)

var ErrInvalidJSON = errors.New("analysis file is not valid JSON")

// Profile базовое описание изображения, отправляемое модели первым сообщением.
type Profile struct {
	Environment       Environment    `json:"environment"`
	Image             Image          `json:"image"`
	Astrometry        Astrometry     `json:"astrometry"`
	Sensor            Sensor         `json:"sensor"`
	ProcessingHistory map[string]any `json:"processingHistory"`
	FITSKeywords      []Keyword      `json:"fitsKeywords"`
}

type Environment struct {
	Program  string `json:"program"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

type Image struct {
	ID         string `json:"id"`
	FilePath   string `json:"filePath"`
	Dimensions string `json:"dimensions"`
	IsColor    bool   `json:"isColor"`
	ColorSpace string `json:"colorSpace"`
}

// Astrometry в базовом профиле решения нет, поля остаются null.
type Astrometry struct {
	IsPlateSolved bool     `json:"isPlateSolved"`
	RA            *string  `json:"RA"`
	Dec           *string  `json:"Dec"`
	Resolution    *float64 `json:"resolution"`
	FocalLength   *float64 `json:"focalLength"`
}

type Sensor struct {
	PixelSize *float64 `json:"pixelSize"`
}

type Keyword struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Comment string `json:"comment"`
}

// Load читает готовый анализ из файла и пересылает его без изменений.
func Load(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s: %w", path, ErrInvalidJSON)
	}
	return json.RawMessage(data), nil
}

// Describe строит базовый профиль по самому изображению.
func Describe(ctx context.Context, src image.Source) (*Profile, error) {
	img, err := src.Image(ctx)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()

	path := src.Path()
	if path == "" {
		path = inMemory
	}
	isColor := hasColor(img)
	space := "Grayscale"
	if isColor {
		space = "RGB"
	}

	return &Profile{
		Environment: Environment{
			Program:  ProgramName,
			Version:  version(),
			Platform: runtime.GOOS + "/" + runtime.GOARCH,
		},
		Image: Image{
			ID:         src.ID(),
			FilePath:   path,
			Dimensions: fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
			IsColor:    isColor,
			ColorSpace: space,
		},
		ProcessingHistory: map[string]any{},
		FITSKeywords:      []Keyword{},
	}, nil
}

// hasColor проверяет модель цвета, а для RGB-растров ищет хотя бы один цветной пиксель.
func hasColor(img stdimage.Image) bool {
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return false
	}
	b := img.Bounds()
	// Для больших кадров хватает разреженной выборки
	step := max(1, min(b.Dx(), b.Dy())/256)
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r != g || g != bl {
				return true
			}
		}
	}
	return false
}

func version() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		return bi.Main.Version
	}
	return "(devel)"
}
