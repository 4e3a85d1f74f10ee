package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"zac/internal/config"
	"zac/internal/domain"
)

// Envelope is the JSON body posted by the HTTP sink.
type Envelope struct {
	Text   string           `json:"text"`
	Report domain.RunReport `json:"report"`
}

// HTTPSink posts the report to a webhook.
type HTTPSink struct {
	cfg    config.HTTPReport
	client *http.Client
}

// NewHTTPSink creates a webhook sink.
func NewHTTPSink(cfg config.HTTPReport) *HTTPSink {
	return &HTTPSink{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	}
}

// Name returns the sink key.
func (s *HTTPSink) Name() string {
	return "http"
}

// Deliver sends the envelope as JSON with configured method and headers.
// Params: context, report, and rendered text.
// Returns: transport or non-2xx status error.
func (s *HTTPSink) Deliver(ctx context.Context, report domain.RunReport, text string) error {
	body, err := json.Marshal(Envelope{Text: text, Report: report})
	if err != nil {
		return fmt.Errorf("encode http report: %w", err)
	}
	method := strings.ToUpper(strings.TrimSpace(s.cfg.Method))
	if method == "" {
		method = http.MethodPost
	}
	request, err := http.NewRequestWithContext(ctx, method, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build http report request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Headers {
		request.Header.Set(key, value)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("http report send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return unexpectedHTTPStatusError("http report", response)
	}
	return nil
}
