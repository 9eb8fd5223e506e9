package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/tidwall/gjson"
)

// decoder пытается разобрать тело ответа в одной известной форме.
// matched=false: форма не совпала, пробуем следующую.
type decoder func(body []byte) (text string, matched bool, err error)

// Декодеры перебираются по порядку до первого совпадения.
var (
	responseDecoders = []decoder{decodeChoices, decodeGateway, decodeErrorArray, decodeErrorObject}
	errorDecoders    = []decoder{decodeErrorArray, decodeErrorObject}
)

// decodeResponse нормализует тело успешного HTTP ответа в текст или *Error.
func decodeResponse(body []byte) (string, error) {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &Error{Kind: KindProtocol, Message: "Error parsing LLM JSON response", Err: err}
	}

	for _, dec := range responseDecoders {
		if text, ok, err := dec(body); ok {
			return text, err
		}
	}
	return "", &Error{Kind: KindProtocol, Message: "Error: unexpected response shape from LLM endpoint"}
}

// decodeErrorBody разбирает тело неуспешного HTTP ответа. matched=false: описания ошибки нет.
func decodeErrorBody(status int, body []byte) (bool, error) {
	if !gjson.ValidBytes(body) {
		return false, nil
	}
	for _, dec := range errorDecoders {
		if _, ok, err := dec(body); ok {
			var apiErr *Error
			if errors.As(err, &apiErr) {
				apiErr.Status = status
			}
			return true, err
		}
	}
	return false, nil
}

// decodeChoices OpenAI-совместимый ответ: choices[0].message.content.
func decodeChoices(body []byte) (string, bool, error) {
	if !gjson.GetBytes(body, "choices.0.message").IsObject() {
		return "", false, nil
	}
	var completion openai.ChatCompletion
	if err := json.Unmarshal(body, &completion); err != nil || len(completion.Choices) == 0 {
		return "", false, nil
	}
	return completion.Choices[0].Message.Content, true, nil
}

// decodeGateway упрощённый ответ шлюзов: {"result":{"response":"..."}}.
func decodeGateway(body []byte) (string, bool, error) {
	res := gjson.GetBytes(body, "result.response")
	if res.Type != gjson.String {
		return "", false, nil
	}
	return res.String(), true, nil
}

type apiError struct {
	Message string          `json:"message"`
	Code    json.RawMessage `json:"code"`
	Status  string          `json:"status"`
	Type    string          `json:"type"`
}

// describe собирает читаемое сообщение из заполненных полей.
func (e apiError) describe() string {
	var b strings.Builder
	b.WriteString("LLM API error")
	if code := strings.Trim(string(e.Code), `"`); code != "" && code != "null" {
		fmt.Fprintf(&b, " %s", code)
	}
	if e.Status != "" {
		fmt.Fprintf(&b, " (%s)", e.Status)
	} else if e.Type != "" {
		fmt.Fprintf(&b, " (%s)", e.Type)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

// decodeErrorArray массив ошибок в стиле Google: [{"error":{"message","code","status"}}].
func decodeErrorArray(body []byte) (string, bool, error) {
	var items []struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &items); err != nil || len(items) == 0 || items[0].Error == nil {
		return "", false, nil
	}
	msgs := make([]string, 0, len(items))
	for _, it := range items {
		if it.Error != nil {
			msgs = append(msgs, it.Error.describe())
		}
	}
	return "", true, &Error{Kind: KindAPI, Message: strings.Join(msgs, "\n")}
}

// decodeErrorObject одиночная ошибка: OpenAI {"error":{"message","type","code"}}
// или Ollama {"error":"..."}.
func decodeErrorObject(body []byte) (string, bool, error) {
	res := gjson.GetBytes(body, "error")
	switch {
	case res.Type == gjson.String:
		return "", true, &Error{Kind: KindAPI, Message: "LLM API error: " + res.String()}
	case res.IsObject():
		var e apiError
		if err := json.Unmarshal([]byte(res.Raw), &e); err != nil {
			return "", false, nil
		}
		return "", true, &Error{Kind: KindAPI, Message: e.describe()}
	default:
		return "", false, nil
	}
}
