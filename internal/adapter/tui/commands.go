package tui

import (
	"errors"
	"strings"

	"LLMAssistant/internal/app/session"
	"LLMAssistant/internal/chat"
)

const helpText = `Commands:
  /new            start a new chat
  /analyze        send the image analysis again
  /export <path>  save the chat (.json for raw history, anything else for a text log)
  /help           show this help
  /quit, /bye     exit`

// parseCommand разбирает строку вида "/name arg". ok=false для обычного текста.
func parseCommand(line string) (name, arg string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	name, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg), true
}

// handle вызывается из цикла событий tview.
func (u *UI) handle(line string) {
	name, arg, ok := parseCommand(line)
	if !ok {
		go u.submit(line)
		return
	}

	switch name {
	case "help":
		u.notice("%s", helpText)
	case "new":
		u.ctrl.Reset()
		u.view.Clear()
		u.notice("New chat started.")
	case "analyze":
		if u.analyze == nil {
			u.notice("No image selected. Start with --image or --screen.")
			return
		}
		u.ctrl.Reset()
		u.view.Clear()
		go func() {
			if err := u.analyze(u.ctx); err != nil {
				u.report(err)
			}
		}()
	case "export":
		u.export(arg)
	case "quit", "bye", "exit":
		u.Stop()
	default:
		u.notice("Unknown command /%s. Type /help for the list.", name)
	}
}

func (u *UI) submit(text string) {
	if err := u.ctrl.SubmitUserText(u.ctx, text); err != nil {
		u.report(err)
	}
}

// report показывает ошибку, которая не попала в историю (занятость, нет изображения).
func (u *UI) report(err error) {
	u.logger.Warnw("Действие отклонено", "error", err)
	msg := err.Error()
	switch {
	case errors.Is(err, session.ErrBusy):
		msg = "Please wait for the current response."
	case errors.Is(err, session.ErrNoImage):
		msg = "No image selected."
	}
	u.do(func() { u.notice("%s", msg) })
}

func (u *UI) export(path string) {
	if path == "" {
		u.notice("Usage: /export <path>")
		return
	}
	history := u.ctrl.History()
	if len(history) == 0 {
		u.notice("Nothing to export yet.")
		return
	}
	if err := chat.ExportFile(path, history, u.now()); err != nil {
		u.logger.Errorw("Не удалось сохранить чат", "path", path, "error", err)
		u.notice("Export failed: %v", err)
		return
	}
	u.logger.Infow("Чат сохранён", "path", path, "messages", len(history))
	u.notice("Chat saved to %s", path)
}
