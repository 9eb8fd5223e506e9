package ai

import "fmt"

// Kind класс ошибки обмена с LLM.
type Kind int

const (
	// KindNetwork соединение, тайм-аут или неуспешный HTTP статус без разбираемого тела.
	KindNetwork Kind = iota
	// KindProtocol тело не JSON или не совпало ни с одной известной формой ответа.
	KindProtocol
	// KindAPI сервер вернул описание ошибки в известном формате.
	KindAPI
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindAPI:
		return "api"
	default:
		return "unknown"
	}
}

// Error неудачный исход запроса. Status равен 0, если HTTP ответа не было.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Network сообщает, что запрос не дошёл до разбора ответа.
func (e *Error) Network() bool { return e.Kind == KindNetwork }
