package comparator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// FailurePrefix starts every soft failure returned by Compare.
const FailurePrefix = "Request failed: "

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is the outcome of one comparison. Failed is set for soft failures,
// in which case Text carries the "Request failed: ..." message.
type Result struct {
	Text       string
	Failed     bool
	StatusCode int
	Images     [2]ImageInfo
}

// Comparator posts image pairs to a visual identity inference endpoint.
// It holds no mutable state and may be shared between goroutines.
type Comparator struct {
	headers map[string]string
	client  Doer
	logger  *zap.Logger
}

// Option configures a Comparator at construction.
type Option func(*Comparator)

// WithHeaders replaces the default header set. A nil or empty map keeps the
// default.
func WithHeaders(headers map[string]string) Option {
	return func(c *Comparator) {
		if len(headers) == 0 {
			return
		}
		c.headers = copyHeaders(headers)
	}
}

// WithClient overrides the HTTP client.
func WithClient(client Doer) Option {
	return func(c *Comparator) {
		if client != nil {
			c.client = client
		}
	}
}

// WithLogger sets the logger; the default discards output.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Comparator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// DefaultHeaders returns the header set used when none is configured.
func DefaultHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}

// New constructs a Comparator.
func New(opts ...Option) *Comparator {
	c := &Comparator{
		headers: DefaultHeaders(),
		client:  &http.Client{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("comparator")
	return c
}

// Headers returns a copy of the configured header set.
func (c *Comparator) Headers() map[string]string {
	return copyHeaders(c.headers)
}

// Compare sends both images to req.EndpointURL and returns the response as
// text. Missing images are returned as errors; transport failures and
// non-2xx responses are returned as a "Request failed: " string.
func (c *Comparator) Compare(ctx context.Context, req ComparisonRequest) (string, error) {
	result, err := c.Run(ctx, req)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// Run is Compare with the full Result.
func (c *Comparator) Run(ctx context.Context, req ComparisonRequest) (*Result, error) {
	img1, err := loadBase64(req.Image1Path)
	if err != nil {
		return nil, err
	}
	img2, err := loadBase64(req.Image2Path)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(ImagePayload{Image1: img1.encoded, Image2: img2.encoded})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	result := &Result{Images: [2]ImageInfo{img1.info, img2.info}}
	text, status, err := c.post(ctx, req.EndpointURL, body)
	result.StatusCode = status
	if err != nil {
		c.logger.Warn("comparison request failed",
			zap.String("endpoint", req.EndpointURL),
			zap.Int("status", status),
			zap.Error(err),
		)
		result.Failed = true
		result.Text = FailurePrefix + err.Error()
		return result, nil
	}
	result.Text = text
	return result, nil
}

func (c *Comparator) post(ctx context.Context, endpoint string, body []byte) (string, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	for key, value := range c.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", resp.StatusCode, &statusError{code: resp.StatusCode, url: endpoint}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	text, err := formatJSON(raw)
	if err != nil {
		return "", resp.StatusCode, err
	}
	return text, resp.StatusCode, nil
}

type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%d %s for url: %s", e.code, http.StatusText(e.code), e.url)
}

// formatJSON parses an endpoint response and renders it back as compact JSON
// with sorted object keys. Numbers and string contents keep their original
// text; HTML characters are not escaped.
func formatJSON(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}
	if dec.More() {
		return "", fmt.Errorf("invalid JSON response: trailing data")
	}
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return "", fmt.Errorf("format response: %w", err)
	}
	return strings.TrimSuffix(out.String(), "\n"), nil
}

func copyHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = v
	}
	return out
}
