package ai

import (
	"strings"

	"LLMAssistant/internal/chat"
	"LLMAssistant/internal/config"
)

// Params параметры генерации, общие для всех запросов сессии.
type Params struct {
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Model        string
}

// ParamsFromConfig берёт параметры запроса из конфигурации.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		SystemPrompt: cfg.SystemPrompt,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		Model:        cfg.Model,
	}
}

// Payload тело запроса chat completions. Model опускается, если пуст:
// некоторые серверы отклоняют пустое поле model.
type Payload struct {
	Messages    []chat.Message `json:"messages"`
	Temperature float64        `json:"temperature"`
	MaxTokens   int            `json:"max_tokens"`
	Model       string         `json:"model,omitempty"`
	Stream      bool           `json:"stream"`
}

// BuildRequest собирает тело запроса из истории. Функция чистая: история не изменяется.
// Если первым идёт не системное сообщение, системный промпт вставляется в начало.
// Сообщения с ролью error видны только пользователю и модели не отправляются.
func BuildRequest(history []chat.Message, p Params) Payload {
	msgs := make([]chat.Message, 0, len(history)+1)
	if len(history) == 0 || history[0].Role != chat.RoleSystem {
		msgs = append(msgs, chat.Message{Role: chat.RoleSystem, Content: chat.Text(p.SystemPrompt)})
	}
	for _, m := range history {
		if m.Role == chat.RoleError {
			continue
		}
		msgs = append(msgs, m)
	}

	return Payload{
		Messages:    msgs,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Model:       strings.TrimSpace(p.Model),
		Stream:      false,
	}
}
