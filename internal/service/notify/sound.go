package notify

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"LLMAssistant/internal/chat"
	"LLMAssistant/internal/service/player"

	"go.uber.org/zap"
)

// SoundNotifier проигрывает короткий звук после каждого ответа ассистента.
// Реализует session.Listener.
type SoundNotifier struct {
	logger  *zap.SugaredLogger
	path    string
	ply     player.Player
	playing atomic.Bool
	done    chan struct{} // для тестов: сигнал об окончании воспроизведения
}

// NewSoundNotifier создаёт нотификатор. Пустой путь отключает звук.
func NewSoundNotifier(logger *zap.SugaredLogger, path string, ply player.Player) *SoundNotifier {
	if ply == nil {
		ply = player.New()
	}
	return &SoundNotifier{logger: logger, path: strings.TrimSpace(path), ply: ply}
}

func (n *SoundNotifier) Enabled() bool { return n.path != "" }

func (n *SoundNotifier) OnMessageAppended(msg chat.Message) {
	if msg.Role != chat.RoleAssistant || !n.Enabled() {
		return
	}
	// Новый звук не начинается, пока играет предыдущий
	if !n.playing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer n.playing.Store(false)
		if err := n.play(); err != nil {
			n.logger.Warnw("Не удалось воспроизвести звуковое уведомление", "path", n.path, "error", err)
		}
		if n.done != nil {
			n.done <- struct{}{}
		}
	}()
}

func (n *SoundNotifier) OnBusyChanged(bool) {}

func (n *SoundNotifier) play() error {
	f, err := os.Open(n.path)
	if err != nil {
		return err
	}
	defer f.Close()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(n.path), "."))
	if ext == "" {
		ext = "mp3" // по умолчанию
	}
	return n.ply.Play(ext, f)
}
