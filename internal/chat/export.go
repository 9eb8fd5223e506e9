package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StructuredPlaceholder подставляется в текстовый лог вместо JSON с данными анализа.
const StructuredPlaceholder = "[Initial image analysis data was sent to the LLM.]"

const (
	logHeader    = "LLM Assistant Chat Log"
	logRule      = "========================================"
	logSeparator = "----------------------------------------"
)

// WriteJSON сохраняет историю как есть, в виде отформатированного JSON.
func WriteJSON(w io.Writer, history []Message) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if history == nil {
		history = []Message{}
	}
	return enc.Encode(history)
}

// WriteTranscript сохраняет историю в человекочитаемом виде.
func WriteTranscript(w io.Writer, history []Message, now time.Time) error {
	var b strings.Builder
	b.WriteString(logHeader + "\n")
	b.WriteString("Date: " + now.UTC().Format(time.RFC1123) + "\n")
	b.WriteString(logRule + "\n\n")

	for _, m := range history {
		content := m.Content.String()
		if m.Role == RoleUser && m.Structured {
			content = StructuredPlaceholder
		}
		fmt.Fprintf(&b, "### %s ###\n\n", strings.ToUpper(string(m.Role)))
		b.WriteString(content + "\n\n")
		b.WriteString(logSeparator + "\n\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Export выбирает формат по расширению пути: .json даёт JSON, иначе текстовый лог.
func Export(w io.Writer, path string, history []Message, now time.Time) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return WriteJSON(w, history)
	}
	return WriteTranscript(w, history, now)
}

// ExportFile создаёт (или перезаписывает) файл path и сохраняет в него историю.
func ExportFile(path string, history []Message, now time.Time) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return Export(f, path, history, now)
}
