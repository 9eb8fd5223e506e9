package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"LLMAssistant/internal/ai"
	"LLMAssistant/internal/chat"
	"LLMAssistant/internal/config"
	"LLMAssistant/internal/service/image"

	"go.uber.org/zap"
)

var (
	ErrBusy    = errors.New("a request is already in progress")
	ErrNoImage = errors.New("no image selected")

	errStale = errors.New("conversation was reset")
)

// Preparer готовит изображение для vision-запроса.
type Preparer interface {
	Prepare(ctx context.Context, src image.Source, maxDim int) (string, error)
}

// Listener получает уведомления сессии. Вызывается с фоновой горутины.
type Listener interface {
	OnMessageAppended(msg chat.Message)
	OnBusyChanged(busy bool)
}

// Session история диалога с LLM и единственный запрос в полёте.
type Session struct {
	cfg      *config.Config
	params   ai.Params
	sender   ai.Sender
	preparer Preparer
	listener Listener
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	history []chat.Message
	gen     int64 // Счётчик сброса, запросы старого поколения игнорируются
	cancel  context.CancelFunc

	busy atomic.Bool
	wg   sync.WaitGroup
}

func New(cfg *config.Config, sender ai.Sender, preparer Preparer, listener Listener, logger *zap.SugaredLogger) *Session {
	if listener == nil {
		listener = Multi()
	}
	return &Session{
		cfg:      cfg,
		params:   ai.ParamsFromConfig(cfg),
		sender:   sender,
		preparer: preparer,
		listener: listener,
		logger:   logger,
	}
}

// StartAnalysis начинает новый диалог с данными анализа изображения.
// Изображение прикладывается, только если vision включён в конфигурации и attachImage=true.
func (s *Session) StartAnalysis(ctx context.Context, src image.Source, analysis any, attachImage bool) error {
	if src == nil {
		return ErrNoImage
	}
	data, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("serialize analysis: %w", err)
	}
	if !s.acquire() {
		return ErrBusy
	}

	msg := chat.Message{Role: chat.RoleUser, Content: chat.Text(string(data)), Structured: true}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.history = []chat.Message{s.systemMessage(), msg}
	s.mu.Unlock()

	s.listener.OnMessageAppended(msg)

	var attach image.Source
	if s.cfg.EnableVision && attachImage {
		attach = src
	}
	s.logger.Infow("Отправка анализа изображения", "source", src.ID(), "vision", attach != nil, "bytes", len(data))
	s.dispatch(ctx, gen, attach)
	return nil
}

// SubmitUserText добавляет реплику пользователя и отправляет историю. Пустой текст игнорируется.
func (s *Session) SubmitUserText(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if !s.acquire() {
		return ErrBusy
	}

	msg := chat.Message{Role: chat.RoleUser, Content: chat.Text(text)}

	s.mu.Lock()
	if len(s.history) == 0 {
		s.history = append(s.history, s.systemMessage())
	}
	s.history = append(s.history, msg)
	gen := s.gen
	s.mu.Unlock()

	s.listener.OnMessageAppended(msg)
	s.dispatch(ctx, gen, nil)
	return nil
}

// Reset очищает историю. Ответ на запрос, отправленный до сброса, будет отброшен.
func (s *Session) Reset() {
	s.mu.Lock()
	s.history = nil
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.logger.Infow("Диалог сброшен")
}

// Busy сообщает, что запрос в полёте.
func (s *Session) Busy() bool { return s.busy.Load() }

// History возвращает копию истории.
func (s *Session) History() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Wait блокируется до завершения текущего запроса.
func (s *Session) Wait() { s.wg.Wait() }

func (s *Session) systemMessage() chat.Message {
	return chat.Message{Role: chat.RoleSystem, Content: chat.Text(s.params.SystemPrompt)}
}

func (s *Session) acquire() bool {
	if !s.busy.CompareAndSwap(false, true) {
		return false
	}
	s.listener.OnBusyChanged(true)
	return true
}

func (s *Session) release() {
	s.busy.Store(false)
	s.listener.OnBusyChanged(false)
}

// dispatch запускает запрос в фоне. src != nil означает vision-путь.
func (s *Session) dispatch(ctx context.Context, gen int64, src image.Source) {
	reqCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release()
		defer cancel()
		s.run(reqCtx, gen, src)
	}()
}

func (s *Session) run(ctx context.Context, gen int64, src image.Source) {
	start := time.Now()

	var dataURI string
	if src != nil {
		uri, err := s.preparer.Prepare(ctx, src, s.cfg.VisionMaxDimension)
		if err != nil {
			s.logger.Warnw("Не удалось подготовить изображение", "source", src.ID(), "error", err)
			s.applyFailure(gen, fmt.Sprintf("Error: could not prepare image for vision request: %v", err))
			return
		}
		dataURI = uri
	}

	payload, err := s.buildPayload(gen, dataURI)
	if errors.Is(err, errStale) {
		s.logger.Infow("Запрос отменён сбросом диалога")
		return
	}
	if err != nil {
		s.logger.Warnw("Не удалось приложить изображение", "error", err)
		s.applyFailure(gen, fmt.Sprintf("Error: could not attach image to the request: %v", err))
		return
	}

	text, err := s.sender.Send(ctx, payload)
	if err != nil {
		s.logger.Warnw("Запрос к LLM завершился ошибкой", "error", err, "duration", time.Since(start).String())
		s.applyFailure(gen, err.Error())
		return
	}
	s.logger.Infow("Ответ получен", "duration", time.Since(start).String(), "chars", len(text))
	s.applySuccess(gen, text)
}

// buildPayload при непустом dataURI повышает последнее сообщение до [текст, изображение].
func (s *Session) buildPayload(gen int64, dataURI string) (ai.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || len(s.history) == 0 {
		return ai.Payload{}, errStale
	}
	if dataURI != "" {
		last := &s.history[len(s.history)-1]
		if err := last.Promote(dataURI, chat.DetailHigh); err != nil {
			return ai.Payload{}, err
		}
	}
	return ai.BuildRequest(s.history, s.params), nil
}

func (s *Session) applySuccess(gen int64, text string) {
	s.apply(gen, chat.Message{Role: chat.RoleAssistant, Content: chat.Text(text)})
}

// applyFailure оставляет реплику пользователя в истории, чтобы её можно было повторить.
func (s *Session) applyFailure(gen int64, reason string) {
	s.apply(gen, chat.Message{Role: chat.RoleError, Content: chat.Text(reason)})
}

func (s *Session) apply(gen int64, msg chat.Message) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Infow("Ответ устаревшего запроса отброшен", "role", msg.Role)
		return
	}
	// Изображение отправляется один раз, дальше уходит только текст
	if n := len(s.history); n > 0 {
		if err := s.history[n-1].Demote(); err != nil && !errors.Is(err, chat.ErrNotPromoted) {
			s.logger.Warnw("Не удалось убрать изображение из истории", "error", err)
		}
	}
	s.history = append(s.history, msg)
	s.mu.Unlock()

	s.listener.OnMessageAppended(msg)
}
