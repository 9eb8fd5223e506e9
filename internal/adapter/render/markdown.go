package render

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

const (
	StyleDark  = "dark"
	StyleNoTTY = "notty"
)

// Markdown отрисовывает ответы модели для терминала.
type Markdown struct {
	mu sync.Mutex
	r  *glamour.TermRenderer
}

// NewMarkdown создаёт рендерер со стандартным стилем glamour и переносом по width колонкам.
func NewMarkdown(style string, width int) (*Markdown, error) {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &Markdown{r: r}, nil
}

// Render возвращает исходный текст, если разметку отрисовать не удалось.
func (m *Markdown) Render(md string) string {
	if m == nil || m.r == nil {
		return md
	}
	m.mu.Lock()
	out, err := m.r.Render(md)
	m.mu.Unlock()
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}
