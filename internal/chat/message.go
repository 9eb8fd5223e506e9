package chat

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Role роль автора сообщения в истории диалога.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleError ошибки показываются пользователю, но не отправляются модели.
	RoleError Role = "error"
)

// DisplayName возвращает подпись роли для интерфейса и экспорта.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "LLM Assistant"
	case RoleSystem:
		return "System"
	case RoleError:
		return "Error"
	default:
		return string(r)
	}
}

// ImageDetail подсказка модели о детализации изображения.
type ImageDetail string

const (
	DetailAuto ImageDetail = "auto"
	DetailLow  ImageDetail = "low"
	DetailHigh ImageDetail = "high"
)

const (
	PartText  = "text"
	PartImage = "image_url"
)

// ImageURL изображение в виде data URL или http(s) URL.
type ImageURL struct {
	URL    string      `json:"url"`
	Detail ImageDetail `json:"detail,omitempty"`
}

// Part одна часть мультимодального содержимого.
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// TextPart создаёт текстовую часть.
func TextPart(text string) Part { return Part{Type: PartText, Text: text} }

// MarshalJSON у текстовой части поле text пишется всегда, даже пустое: без него серверы отклоняют часть.
func (p Part) MarshalJSON() ([]byte, error) {
	if p.Type == PartText {
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{Type: p.Type, Text: p.Text})
	}
	type plain Part
	return json.Marshal(plain(p))
}

// ImagePart создаёт часть с изображением.
func ImagePart(url string, detail ImageDetail) Part {
	return Part{Type: PartImage, ImageURL: &ImageURL{URL: url, Detail: detail}}
}

// Content содержимое сообщения: либо скалярный текст, либо список частей.
// В JSON скаляр кодируется строкой, список частей массивом.
type Content struct {
	Text  string
	Parts []Part
}

// Text создаёт скалярное содержимое.
func Text(s string) Content { return Content{Text: s} }

// IsMultiPart сообщает, что содержимое повышено до списка частей.
func (c Content) IsMultiPart() bool { return c.Parts != nil }

// String возвращает текстовое представление: для списка частей текст первой текстовой части.
func (c Content) String() string {
	if !c.IsMultiPart() {
		return c.Text
	}
	for _, p := range c.Parts {
		if p.Type == PartText {
			return p.Text
		}
	}
	return ""
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsMultiPart() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var parts []Part
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		if parts == nil {
			parts = []Part{}
		}
		*c = Content{Parts: parts}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = Content{Text: s}
	return nil
}

// Message одна реплика диалога.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
	// Structured помечает сериализованные данные анализа изображения.
	Structured bool `json:"-"`
}

var (
	ErrAlreadyPromoted = errors.New("message content is already multi-part")
	ErrNotPromoted     = errors.New("message content is not multi-part")
)

// Promote превращает скалярное содержимое в пару [текст, изображение] для одного запроса.
func (m *Message) Promote(dataURL string, detail ImageDetail) error {
	if m.Content.IsMultiPart() {
		return ErrAlreadyPromoted
	}
	m.Content = Content{Parts: []Part{
		TextPart(m.Content.Text),
		ImagePart(dataURL, detail),
	}}
	return nil
}

// Demote возвращает исходный текст, убирая изображение.
func (m *Message) Demote() error {
	if !m.Content.IsMultiPart() {
		return ErrNotPromoted
	}
	m.Content = Text(m.Content.String())
	return nil
}
