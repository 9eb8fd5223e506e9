package notify

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"LLMAssistant/internal/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePlayer struct {
	mu      sync.Mutex
	formats []string
}

func (f *fakePlayer) Play(format string, r io.ReadCloser) error {
	_, _ = io.ReadAll(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formats = append(f.formats, format)
	return nil
}

func newTestNotifier(path string, p *fakePlayer) *SoundNotifier {
	n := NewSoundNotifier(zap.NewNop().Sugar(), path, p)
	n.done = make(chan struct{}, 4)
	return n
}

func waitDone(t *testing.T, n *SoundNotifier) {
	t.Helper()
	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not played")
	}
}

func TestSoundNotifierPlaysOnAssistantReply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ding.WAV")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))
	p := &fakePlayer{}
	n := newTestNotifier(path, p)

	n.OnMessageAppended(chat.Message{Role: chat.RoleUser})
	n.OnMessageAppended(chat.Message{Role: chat.RoleError})
	n.OnMessageAppended(chat.Message{Role: chat.RoleAssistant})
	waitDone(t, n)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, []string{"wav"}, p.formats)
}

func TestSoundNotifierDisabledWithoutPath(t *testing.T) {
	p := &fakePlayer{}
	n := newTestNotifier("  ", p)
	assert.False(t, n.Enabled())

	n.OnMessageAppended(chat.Message{Role: chat.RoleAssistant})
	assert.Empty(t, n.done)
	assert.Empty(t, p.formats)
}

func TestSoundNotifierMissingFile(t *testing.T) {
	p := &fakePlayer{}
	n := newTestNotifier(filepath.Join(t.TempDir(), "missing.mp3"), p)

	n.OnMessageAppended(chat.Message{Role: chat.RoleAssistant})
	waitDone(t, n)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Empty(t, p.formats)
}
