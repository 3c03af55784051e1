package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/kmn/visitor-kiosk/internal/domain/model"
	"github.com/kmn/visitor-kiosk/internal/ports"
)

var _ ports.AuditSink = (*HTTPAuditSink)(nil)

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// HTTPAuditSinkOptions configures the HTTP audit forwarder.
type HTTPAuditSinkOptions struct {
	URL       string            // Required: http(s) endpoint
	Body      string            // Optional: JMESPath expression shaping the posted body
	Token     string            // Optional: bearer token
	Timeout   time.Duration     // Defaults to 5s
	Client    *http.Client      // Optional
	Evaluator JMESPathEvaluator // Optional
}

// HTTPAuditSink posts audit events to an external collector.
type HTTPAuditSink struct {
	url    string
	body   string
	token  string
	client *http.Client
	jems   JMESPathEvaluator
}

// NewHTTPAuditSink validates the URL and body expression.
func NewHTTPAuditSink(opts HTTPAuditSinkOptions) (*HTTPAuditSink, error) {
	u, err := url.Parse(strings.TrimSpace(opts.URL))
	if err != nil {
		return nil, fmt.Errorf("invalid audit forward URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid URI scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, errors.New("invalid URI: missing host")
	}

	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}
	body := strings.TrimSpace(opts.Body)
	if err := jems.Validate(body); err != nil {
		return nil, fmt.Errorf("invalid body JMESPath: %w", err)
	}

	hc := opts.Client
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &HTTPAuditSink{
		url:    u.String(),
		body:   body,
		token:  strings.TrimSpace(opts.Token),
		client: hc,
		jems:   jems,
	}, nil
}

// WriteEvent posts ev, shaped by the body expression when one is set.
func (s *HTTPAuditSink) WriteEvent(ctx context.Context, ev model.EventLog) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	body, err := s.deriveBody(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create audit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("audit forward failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("audit forward: unexpected status %s", resp.Status)
	}
	return nil
}

func (s *HTTPAuditSink) deriveBody(payload []byte) ([]byte, error) {
	if s.body == "" {
		return payload, nil
	}
	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	res, err := s.jems.Evaluate(s.body, data)
	if err != nil {
		return nil, fmt.Errorf("evaluate body JMESPath: %w", err)
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal derived body: %w", err)
	}
	return b, nil
}
