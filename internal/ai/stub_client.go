package ai

import (
	"context"
	"fmt"
)

// StubClient заглушка, которая не делает реальных запросов
type StubClient struct{}

func NewStubClient() *StubClient { return &StubClient{} }

func (c *StubClient) Send(_ context.Context, p Payload) (string, error) {
	return fmt.Sprintf("запрос получен: %d сообщений", len(p.Messages)), nil
}
