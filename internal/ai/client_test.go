package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"LLMAssistant/internal/chat"
	"LLMAssistant/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedRequest struct {
	header http.Header
	body   []byte
}

// testServer отвечает заданным статусом и телом и запоминает последний запрос.
func testServer(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		captured.header = r.Header.Clone()
		captured.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func testClient(t *testing.T, url, apiKey string) *Client {
	t.Helper()
	cfg := config.Defaults()
	cfg.URL = url
	cfg.APIKey = apiKey
	c, err := NewClient(cfg, nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	return c
}

func samplePayload() Payload {
	return BuildRequest([]chat.Message{{Role: chat.RoleUser, Content: chat.Text("Привет, µ° 🚀")}}, Params{
		SystemPrompt: "system",
		Temperature:  0.8,
		MaxTokens:    100,
	})
}

func TestSendDecodesResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "openai choices", body: `{"choices":[{"message":{"content":"hello"}}]}`, want: "hello"},
		{name: "openai full", body: `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Ответ"},"finish_reason":"stop"}]}`, want: "Ответ"},
		{name: "gateway", body: `{"result":{"response":"hi"}}`, want: "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, http.StatusOK, tt.body)
			got, err := testClient(t, srv.URL, config.NoKey).Send(context.Background(), samplePayload())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSendErrorArray(t *testing.T) {
	srv, _ := testServer(t, http.StatusOK, `[{"error":{"message":"bad model","code":404,"status":"NOT_FOUND"}}]`)
	_, err := testClient(t, srv.URL, "").Send(context.Background(), samplePayload())
	require.Error(t, err)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindAPI, e.Kind)
	assert.False(t, e.Network())
	assert.Contains(t, e.Error(), "bad model")
	assert.Contains(t, e.Error(), "404")
	assert.Contains(t, e.Error(), "NOT_FOUND")
}

func TestSendErrorArrayOnNonSuccessStatus(t *testing.T) {
	srv, _ := testServer(t, http.StatusNotFound, `[{"error":{"message":"bad model","code":404,"status":"NOT_FOUND"}}]`)
	_, err := testClient(t, srv.URL, "").Send(context.Background(), samplePayload())

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindAPI, e.Kind)
	assert.Equal(t, http.StatusNotFound, e.Status)
	assert.Contains(t, e.Error(), "bad model")
}

func TestSendOpenAIErrorObject(t *testing.T) {
	srv, _ := testServer(t, http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	_, err := testClient(t, srv.URL, "sk-bad").Send(context.Background(), samplePayload())

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindAPI, e.Kind)
	assert.Contains(t, e.Error(), "Incorrect API key provided")
	assert.Contains(t, e.Error(), "invalid_api_key")
}

func TestSendUnparsableBody(t *testing.T) {
	srv, _ := testServer(t, http.StatusOK, `<html>gateway timeout</html>`)

	var (
		got string
		err error
	)
	require.NotPanics(t, func() {
		got, err = testClient(t, srv.URL, "").Send(context.Background(), samplePayload())
	})
	assert.Empty(t, got)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindProtocol, e.Kind)
	assert.Contains(t, e.Error(), "Error parsing LLM JSON response")
}

func TestSendUnexpectedShape(t *testing.T) {
	srv, _ := testServer(t, http.StatusOK, `{"choices":[]}`)
	_, err := testClient(t, srv.URL, "").Send(context.Background(), samplePayload())

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindProtocol, e.Kind)
	assert.Contains(t, e.Error(), "unexpected response shape")
}

func TestSendNonSuccessStatusWithoutBody(t *testing.T) {
	srv, _ := testServer(t, http.StatusBadGateway, "")
	_, err := testClient(t, srv.URL, "").Send(context.Background(), samplePayload())

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.True(t, e.Network())
	assert.Equal(t, http.StatusBadGateway, e.Status)
	assert.Contains(t, e.Error(), "502")
}

func TestSendConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := testClient(t, url, "").Send(context.Background(), samplePayload())
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.True(t, e.Network())
	assert.Zero(t, e.Status)
}

func TestSendHeadersAndEscapedBody(t *testing.T) {
	srv, captured := testServer(t, http.StatusOK, `{"choices":[{"message":{"content":"ok"}}]}`)
	_, err := testClient(t, srv.URL, "sk-123").Send(context.Background(), samplePayload())
	require.NoError(t, err)

	assert.Equal(t, "application/json; charset=utf-8", captured.header.Get("Content-Type"))
	assert.Equal(t, "application/json", captured.header.Get("Accept"))
	assert.Equal(t, "Bearer sk-123", captured.header.Get("Authorization"))

	for _, b := range captured.body {
		require.Less(t, b, byte(0x7F), "body must be 7-bit ASCII")
	}
	assert.Contains(t, string(captured.body), `\u00b5\u00b0`)
	assert.Contains(t, string(captured.body), `\ud83d\ude80`)
	assert.NotContains(t, string(captured.body), `"model"`)

	var decoded Payload
	require.NoError(t, json.Unmarshal(captured.body, &decoded))
	require.Len(t, decoded.Messages, 2)
	assert.Equal(t, "Привет, µ° 🚀", decoded.Messages[1].Content.Text)
	assert.False(t, decoded.Stream)
}

func TestSendOmitsAuthorizationForSentinelKey(t *testing.T) {
	for _, key := range []string{"", config.NoKey, "   "} {
		srv, captured := testServer(t, http.StatusOK, `{"result":{"response":"hi"}}`)
		_, err := testClient(t, srv.URL, key).Send(context.Background(), samplePayload())
		require.NoError(t, err)
		assert.Empty(t, captured.header.Get("Authorization"), "key %q", key)
	}
}

func TestNewClientRejectsUnsupportedScheme(t *testing.T) {
	cfg := config.Defaults()
	cfg.URL = "ftp://example.com/chat"
	_, err := NewClient(cfg, nil, zap.NewNop().Sugar())
	assert.Error(t, err)
}
