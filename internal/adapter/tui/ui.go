package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"LLMAssistant/internal/adapter/render"
	"LLMAssistant/internal/chat"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

// Controller операции сессии, доступные из интерфейса.
type Controller interface {
	SubmitUserText(ctx context.Context, text string) error
	Reset()
	History() []chat.Message
}

// UI терминальный чат: лента сообщений, строка статуса и поле ввода.
type UI struct {
	ctx    context.Context
	app    *tview.Application
	view   *tview.TextView
	status *tview.TextView
	input  *tview.TextArea

	ctrl    Controller
	analyze func(ctx context.Context) error
	md      *render.Markdown
	logger  *zap.SugaredLogger
	model   string

	do  func(func()) // обновление виджетов из чужой горутины
	now func() time.Time
}

func New(ctx context.Context, md *render.Markdown, model string, logger *zap.SugaredLogger) *UI {
	u := &UI{
		ctx:    ctx,
		app:    tview.NewApplication(),
		md:     md,
		model:  model,
		logger: logger,
		now:    time.Now,
	}
	u.do = func(f func()) { u.app.QueueUpdateDraw(f) }

	u.view = tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)
	u.view.SetTitle("LLM Assistant").SetBorder(true)
	u.view.SetScrollable(true)

	u.status = tview.NewTextView().SetDynamicColors(true)
	u.input = tview.NewTextArea()
	u.input.SetTitle("Message (Enter to send, /help for commands)").SetBorder(true)

	u.setStatus(false)
	return u
}

// Attach связывает интерфейс с сессией. analyze повторяет анализ изображения, может быть nil.
func (u *UI) Attach(ctrl Controller, analyze func(ctx context.Context) error) {
	u.ctrl = ctrl
	u.analyze = analyze
}

// Run блокируется до выхода из приложения.
func (u *UI) Run() error {
	u.input.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEnter:
			// Alt+Enter переносит строку
			if event.Modifiers()&tcell.ModAlt != 0 {
				return event
			}
			text := u.input.GetText()
			if strings.TrimSpace(text) == "" {
				return nil
			}
			u.input.SetText("", true)
			u.handle(text)
			return nil
		case tcell.KeyESC:
			u.app.SetFocus(u.view)
			return nil
		}
		return event
	})
	u.view.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEnter || event.Key() == tcell.KeyESC {
			u.app.SetFocus(u.input)
			return nil
		}
		return event
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(u.view, 0, 1, false).
		AddItem(u.status, 1, 0, false).
		AddItem(u.input, 5, 0, true)

	return u.app.SetRoot(layout, true).SetFocus(u.input).EnableMouse(true).EnablePaste(true).Run()
}

func (u *UI) Stop() { u.app.Stop() }

func (u *UI) OnMessageAppended(msg chat.Message) {
	text := u.format(msg)
	u.do(func() {
		fmt.Fprint(u.view, text)
		u.view.ScrollToEnd()
	})
}

func (u *UI) OnBusyChanged(busy bool) {
	u.do(func() {
		u.input.SetDisabled(busy)
		u.setStatus(busy)
	})
}

func (u *UI) setStatus(busy bool) {
	model := u.model
	if model == "" {
		model = "default model"
	}
	if busy {
		u.status.SetText(fmt.Sprintf(" [yellow]Waiting for LLM response...[-]  %s", tview.Escape(model)))
		return
	}
	u.status.SetText(fmt.Sprintf(" [green]Ready[-]  %s", tview.Escape(model)))
}

// format готовит сообщение для ленты: заголовок роли и тело.
func (u *UI) format(msg chat.Message) string {
	var body string
	switch {
	case msg.Role == chat.RoleUser && msg.Structured:
		body = "[::i]" + tview.Escape(chat.StructuredPlaceholder) + "[::-]"
	case msg.Role == chat.RoleAssistant:
		body = tview.TranslateANSI(tview.Escape(u.md.Render(msg.Content.String())))
	default:
		body = tview.Escape(msg.Content.String())
	}
	return fmt.Sprintf("[%s::b]%s:[-::-]\n%s\n\n", roleColor(msg.Role), msg.Role.DisplayName(), body)
}

func roleColor(r chat.Role) string {
	switch r {
	case chat.RoleUser:
		return "yellow"
	case chat.RoleAssistant:
		return "green"
	case chat.RoleError:
		return "red"
	default:
		return "gray"
	}
}

// notice служебная строка интерфейса, в историю не попадает.
func (u *UI) notice(format string, args ...any) {
	fmt.Fprintf(u.view, "[gray]%s[-]\n\n", tview.Escape(fmt.Sprintf(format, args...)))
	u.view.ScrollToEnd()
}
