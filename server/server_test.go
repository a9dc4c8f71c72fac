package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/flowchat-io/flowchat/dialog"
	"github.com/flowchat-io/flowchat/flow"
	"github.com/flowchat-io/flowchat/flow/actions"
	"github.com/flowchat-io/flowchat/internal/profile"
	"github.com/flowchat-io/flowchat/nlu"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	d, err := flow.NewDomain([]string{"default", "greet", "restart"}, nil, nil)
	require.NoError(t, err)
	var cfg flow.Config
	require.NoError(t, yaml.Unmarshal([]byte(`
actions_map:
  - intent: default
    triggers:
      - action: default
  - intent: restart
    triggers:
      - action: restart
  - intent: greet
    triggers:
      - text:
          - "hi there"
`), &cfg))
	flowMap, err := flow.NewFlowMap(&cfg, d)
	require.NoError(t, err)

	registry, err := actions.Builtin(d, map[string]string{})
	require.NoError(t, err)
	classifier := nlu.NewKeywordClassifier([]nlu.KeywordRule{
		{Intent: "greet", Keywords: []string{"hello"}},
	}, nil)
	conversations, err := dialog.NewUserConversations(8, d, nil, "test")
	require.NoError(t, err)
	controller, err := dialog.NewController(flowMap, classifier, registry, "test")
	require.NoError(t, err)
	service, err := dialog.NewService(controller, conversations, 4)
	require.NoError(t, err)

	srv, err := NewServer(&profile.Profile{Mode: "dev", Version: "test"}, service, nil)
	require.NoError(t, err)
	return srv
}

func doRequest(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.echoServer.ServeHTTP(rec, req)
	return rec
}

func TestChatEndpoint(t *testing.T) {
	srv := testServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/chat", `{"user_id":"u1","message":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hi there", resp.Text)
}

func TestChatEndpointValidation(t *testing.T) {
	srv := testServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/chat", `{"message":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "user_id required")

	rec = doRequest(srv, http.MethodPost, "/api/v1/chat", `{"user_id":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "message required")
}

func TestHealthz(t *testing.T) {
	srv := testServer(t)

	rec := doRequest(srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestHistoryWithoutStore(t *testing.T) {
	srv := testServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/conversations", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/conversations/u1/history", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)

	rec := doRequest(srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flowchat_dialog")
}
