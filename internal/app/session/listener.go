package session

import "LLMAssistant/internal/chat"

type multiListener []Listener

// Multi рассылает уведомления нескольким слушателям по порядку.
func Multi(ls ...Listener) Listener { return multiListener(ls) }

func (m multiListener) OnMessageAppended(msg chat.Message) {
	for _, l := range m {
		l.OnMessageAppended(msg)
	}
}

func (m multiListener) OnBusyChanged(busy bool) {
	for _, l := range m {
		l.OnBusyChanged(busy)
	}
}
