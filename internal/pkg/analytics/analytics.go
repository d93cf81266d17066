package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/loadway/Loadway/internal/pkg/env"
)

// Sink delivers analytics events fire-and-forget. Failures are logged and
// swallowed, never propagated into the checkout flow.
type Sink interface {
	LogEvent(name string, props map[string]interface{})
}

// NewSinkFromEnv returns the HTTP sink when an endpoint is configured,
// otherwise a log-only sink.
func NewSinkFromEnv() Sink {
	endpoint := strings.TrimSpace(env.GetEnv("ANALYTICS_ENDPOINT", ""))
	if endpoint == "" {
		return &logSink{}
	}
	return &httpSink{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(env.GetEnv("ANALYTICS_API_KEY", "")),
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type httpSink struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func (s *httpSink) LogEvent(name string, props map[string]interface{}) {
	payload := map[string]interface{}{
		"event":       name,
		"properties":  props,
		"occurred_at": time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Warnf("[Analytics] failed to marshal event %s: %v", name, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(data))
		if err != nil {
			log.Warnf("[Analytics] failed to build request for %s: %v", name, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("X-Api-Key", s.apiKey)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			log.Warnf("[Analytics] event %s not delivered: %v", name, err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			log.Warnf("[Analytics] event %s rejected: status=%d", name, resp.StatusCode)
		}
	}()
}

type logSink struct{}

func (s *logSink) LogEvent(name string, props map[string]interface{}) {
	log.Debugf("[Analytics] %s %v", name, props)
}
