package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wuwenbin0122/convo-sync/internal/metrics"
	"github.com/wuwenbin0122/convo-sync/internal/models"
	"github.com/wuwenbin0122/convo-sync/internal/utils"
)

const (
	defaultSourceTimeout = 20 * time.Second
	isoMillis            = "2006-01-02T15:04:05.000Z"
)

// ErrNoEnvelope means no configured envelope path resolved to a record array.
var ErrNoEnvelope = errors.New("source: response has no record array at any envelope path")

// SourceClient reads conversations and messages from the support API.
type SourceClient struct {
	http    *resty.Client
	limiter *rate.Limiter
	cfg     utils.SourceConfig
	logger  *zap.SugaredLogger
}

// NewSourceClient builds a rate-limited client for the configured API.
func NewSourceClient(cfg utils.SourceConfig, logger *zap.SugaredLogger) *SourceClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "convo-sync/1.0")

	header := strings.TrimSpace(cfg.AuthHeader)
	if header == "" || strings.EqualFold(header, "Authorization") {
		client.SetAuthToken(cfg.APIToken)
	} else {
		client.SetHeader(header, cfg.APIToken)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &SourceClient{
		http:    client,
		limiter: rate.NewLimiter(limit, burst),
		cfg:     cfg,
		logger:  logger,
	}
}

// ListConversations returns the conversations active within [from, to],
// following page-based pagination when a page size is configured.
func (c *SourceClient) ListConversations(ctx context.Context, from, to time.Time) ([]models.Payload, error) {
	params := map[string]string{
		"from": from.UTC().Format(isoMillis),
		"to":   to.UTC().Format(isoMillis),
	}

	if c.cfg.PageSize <= 0 {
		items, err := c.get(ctx, c.cfg.ConversationsPath, params)
		if err != nil {
			metrics.FetchErrorsTotal.WithLabelValues("conversations").Inc()
			return nil, err
		}
		return items, nil
	}

	maxPages := c.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	params["limit"] = strconv.Itoa(c.cfg.PageSize)

	var all []models.Payload
	seen := make(map[string]struct{})
	for page := 1; page <= maxPages; page++ {
		params["page"] = strconv.Itoa(page)

		items, err := c.get(ctx, c.cfg.ConversationsPath, params)
		if err != nil {
			metrics.FetchErrorsTotal.WithLabelValues("conversations").Inc()
			return all, fmt.Errorf("page %d: %w", page, err)
		}

		added := 0
		for _, item := range items {
			if id, ok := payloadKey(item); ok {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
			all = append(all, item)
			added++
		}

		// an API that ignores the page parameter keeps returning page one
		if len(items) < c.cfg.PageSize || added == 0 {
			break
		}
		if page == maxPages {
			c.logger.Warnf("conversation listing stopped at page cap %d", maxPages)
		}
	}

	return all, nil
}

// ListMessages returns the messages of one conversation.
func (c *SourceClient) ListMessages(ctx context.Context, conversationID string) ([]models.Payload, error) {
	path := strings.ReplaceAll(c.cfg.MessagesPath, "{id}", url.PathEscape(conversationID))
	items, err := c.get(ctx, path, nil)
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues("messages").Inc()
		return nil, err
	}
	return items, nil
}

func (c *SourceClient) get(ctx context.Context, path string, params map[string]string) ([]models.Payload, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("source: rate limit wait: %w", err)
	}

	req := c.http.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(path)
	if err != nil {
		return nil, fmt.Errorf("source: GET %s: %w", path, err)
	}

	body := resp.Body()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, buildAPIError(resp.StatusCode(), body)
	}

	items, err := extractRecords(body, c.cfg.EnvelopePaths)
	if err != nil {
		return nil, fmt.Errorf("source: GET %s: %w", path, err)
	}

	c.logger.Debugf("GET %s returned %d records", path, len(items))
	return items, nil
}

// extractRecords decodes body and returns the first array found at one of the
// envelope paths. "." names the top-level value.
func extractRecords(body []byte, paths []string) ([]models.Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	for _, path := range paths {
		v, ok := models.LookupPath(root, path)
		if !ok {
			continue
		}
		if items, ok := v.([]any); ok {
			return models.Payloads(items), nil
		}
	}

	return nil, ErrNoEnvelope
}

func payloadKey(p models.Payload) (string, bool) {
	v, ok := p.Lookup("id")
	if !ok {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), true
	default:
		return fmt.Sprint(id), true
	}
}
