package player

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Player воспроизводит короткий звук из потока.
type Player interface {
	Play(format string, r io.ReadCloser) error
}

// Default поддерживает mp3 и wav. Воспроизведения не перекрываются.
type Default struct {
	volumeDB float64
	mu       sync.Mutex
}

// New создаёт плеер без изменения громкости (0 dB).
func New() *Default { return &Default{} }

// NewWithVolume создаёт плеер с громкостью в dB (отрицательные тише).
func NewWithVolume(db float64) *Default { return &Default{volumeDB: db} }

func (d *Default) Play(format string, r io.ReadCloser) error {
	var (
		streamer beep.StreamSeekCloser
		f        beep.Format
		err      error
	)
	switch strings.ToLower(format) {
	case "wav":
		streamer, f, err = wav.Decode(r)
	case "mp3":
		streamer, f, err = mp3.Decode(r)
	default:
		return fmt.Errorf("unsupported sound format %q, use mp3 or wav", format)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", format, err)
	}
	defer streamer.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := speaker.Init(f.SampleRate, f.SampleRate.N(time.Second/10)); err != nil {
		return err
	}
	vol := &effects.Volume{
		Streamer: streamer,
		Base:     2,
		Volume:   d.volumeDB,
	}
	done := make(chan struct{})
	speaker.Play(beep.Seq(vol, beep.Callback(func() { close(done) })))
	<-done
	return nil
}
