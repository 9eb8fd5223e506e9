package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// marshalPayload кодирует тело компактно и экранирует все символы начиная с U+007F
// как \uXXXX: часть серверов и прокси портят не-ASCII байты в теле запроса.
func marshalPayload(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return escapeNonASCII(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// escapeNonASCII заменяет код-пойнты >= U+007F на \uXXXX, выше U+FFFF суррогатной парой.
// Валидный JSON содержит такие символы только внутри строк, поэтому результат остаётся валидным.
func escapeNonASCII(src []byte) []byte {
	out := make([]byte, 0, len(src))
	for len(src) > 0 {
		c := src[0]
		if c < 0x7F {
			out = append(out, c)
			src = src[1:]
			continue
		}
		r, size := utf8.DecodeRune(src)
		src = src[size:]
		if r > 0xFFFF {
			hi, lo := utf16.EncodeRune(r)
			out = fmt.Appendf(out, `\u%04x\u%04x`, hi, lo)
			continue
		}
		out = fmt.Appendf(out, `\u%04x`, r)
	}
	return out
}
