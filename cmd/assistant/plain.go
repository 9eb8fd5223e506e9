package main

import (
	"fmt"
	"io"
	"sync"

	"LLMAssistant/internal/adapter/render"
	"LLMAssistant/internal/chat"
)

// plainPrinter печатает ответы и ошибки в stdout для режима --plain.
type plainPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	md     *render.Markdown
	errors int
}

func newPlainPrinter(out io.Writer, md *render.Markdown) *plainPrinter {
	return &plainPrinter{out: out, md: md}
}

func (p *plainPrinter) OnMessageAppended(msg chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch msg.Role {
	case chat.RoleAssistant:
		fmt.Fprintf(p.out, "%s\n\n", p.md.Render(msg.Content.String()))
	case chat.RoleError:
		p.errors++
		fmt.Fprintf(p.out, "%s: %s\n\n", msg.Role.DisplayName(), msg.Content.String())
	}
}

func (p *plainPrinter) OnBusyChanged(bool) {}

func (p *plainPrinter) failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errors
}
