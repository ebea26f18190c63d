package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuwenbin0122/convo-sync/internal/utils"
)

func testConfig(baseURL string) utils.SourceConfig {
	return utils.SourceConfig{
		BaseURL:           baseURL,
		APIToken:          "secret",
		AuthHeader:        "Authorization",
		ConversationsPath: "/conversations",
		MessagesPath:      "/conversations/{id}/messages",
		EnvelopePaths:     []string{"data.payload", "data", "payload", "."},
		Timeout:           2 * time.Second,
	}
}

func TestListConversationsEnvelopeVariants(t *testing.T) {
	bodies := map[string]string{
		"data":         `{"data": [{"id": 1}, {"id": 2}]}`,
		"payload":      `{"meta": {"count": 2}, "payload": [{"id": 1}, {"id": 2}]}`,
		"data.payload": `{"data": {"meta": {}, "payload": [{"id": 1}, {"id": 2}]}}`,
		"top-level":    `[{"id": 1}, {"id": 2}]`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			client := NewSourceClient(testConfig(srv.URL), nil)
			items, err := client.ListConversations(context.Background(), time.Now(), time.Now())
			require.NoError(t, err)
			require.Len(t, items, 2)

			id, _ := items[1].Lookup("id")
			assert.Equal(t, json.Number("2"), id)
		})
	}
}

func TestListConversationsSendsWindowAndAuth(t *testing.T) {
	var gotAuth, gotFrom, gotTo, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotFrom = r.URL.Query().Get("from")
		gotTo = r.URL.Query().Get("to")
		gotLimit = r.URL.Query().Get("limit")
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.PageSize = 100
	cfg.MaxPages = 3
	client := NewSourceClient(cfg, nil)

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 1, 23, 59, 59, 999_000_000, time.UTC)
	items, err := client.ListConversations(context.Background(), from, to)
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "2024-05-01T00:00:00.000Z", gotFrom)
	assert.Equal(t, "2024-05-01T23:59:59.999Z", gotTo)
	assert.Equal(t, "100", gotLimit)
}

func TestListConversationsCustomAuthHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("api_access_token")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.AuthHeader = "api_access_token"
	_, err := NewSourceClient(cfg, nil).ListConversations(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
}

func TestListConversationsPaginates(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		switch page {
		case 1:
			_, _ = w.Write([]byte(`{"data": [{"id": 1}, {"id": 2}]}`))
		case 2:
			_, _ = w.Write([]byte(`{"data": [{"id": 3}, {"id": 4}]}`))
		default:
			_, _ = w.Write([]byte(`{"data": [{"id": 5}]}`))
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.PageSize = 2
	cfg.MaxPages = 10

	items, err := NewSourceClient(cfg, nil).ListConversations(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestListConversationsStopsWhenPageRepeats(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"data": [{"id": 1}, {"id": 2}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.PageSize = 2
	cfg.MaxPages = 10

	items, err := NewSourceClient(cfg, nil).ListConversations(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestListMessagesPathAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/conversations/42/messages":
			_, _ = w.Write([]byte(`{"meta": {}, "payload": [{"id": 7, "content": "hi"}]}`))
		case "/conversations/404/messages":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error": "Resource could not be found"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewSourceClient(testConfig(srv.URL), nil)

	items, err := client.ListMessages(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = client.ListMessages(context.Background(), "404")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Resource could not be found", apiErr.Message)

	_, err = client.ListMessages(context.Background(), "500")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestListMessagesNoEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": {"items": []}}`))
	}))
	defer srv.Close()

	_, err := NewSourceClient(testConfig(srv.URL), nil).ListMessages(context.Background(), "1")
	assert.True(t, errors.Is(err, ErrNoEnvelope))
}

func TestBuildAPIErrorShapes(t *testing.T) {
	err := buildAPIError(422, []byte(`{"error": {"code": "invalid", "message": " bad window "}}`))
	assert.Equal(t, "source api error (422, invalid): bad window", err.Error())

	err = buildAPIError(401, []byte(`{"errors": ["Invalid token", "expired"]}`))
	assert.Equal(t, "Invalid token; expired", err.Message)

	err = buildAPIError(502, nil)
	assert.Equal(t, "Bad Gateway", err.Message)
}
