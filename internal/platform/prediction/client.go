// Package prediction talks to the multi-model food classifier over HTTP.
package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/food-passport/api/internal/domain"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultFilename = "image.jpg"
	errorBodyLimit  = 4 << 10
)

var tracer = otel.Tracer("github.com/food-passport/api/internal/platform/prediction")

// HTTPDoer is the subset of http.Client used by Client.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("prediction: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("prediction: unexpected status %d: %s", e.Status, e.Body)
}

// StatusCode exposes the upstream HTTP status.
func (e *StatusError) StatusCode() int { return e.Status }

// ErrMalformedResponse marks a 2xx body that could not be decoded.
var ErrMalformedResponse = errors.New("prediction: malformed response")

// Image is one upload to classify.
type Image struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Client calls POST /predict and GET /health.
type Client struct {
	base    *url.URL
	doer    HTTPDoer
	token   string
	timeout time.Duration
}

// Option customises Client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.doer = doer
		}
	}
}

// WithAuthToken sends the token as a bearer credential.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithTimeout bounds each call. Zero keeps the default.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewClient builds a Client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("prediction: base URL is required")
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("prediction: parse base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("prediction: base URL %q must be absolute", baseURL)
	}
	c := &Client{base: parsed, doer: http.DefaultClient, timeout: defaultTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Predict uploads img as multipart field "file". It makes exactly one attempt.
func (c *Client) Predict(ctx context.Context, img Image) (domain.PredictionSet, error) {
	ctx, span := tracer.Start(ctx, "prediction.Predict", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int("prediction.image_bytes", len(img.Data)))

	body, contentType, err := encodeImage(img)
	if err != nil {
		return domain.PredictionSet{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, "predict", body)
	if err != nil {
		return domain.PredictionSet{}, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.doer.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return domain.PredictionSet{}, fmt.Errorf("prediction: request failed: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := statusError(resp)
		span.SetStatus(codes.Error, err.Error())
		return domain.PredictionSet{}, err
	}

	var payload predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		span.RecordError(err)
		return domain.PredictionSet{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(payload.BestMatch) == "" {
		return domain.PredictionSet{}, fmt.Errorf("%w: best_match is empty", ErrMalformedResponse)
	}
	span.SetAttributes(attribute.String("prediction.best_match", payload.BestMatch))
	return payload.toDomain(), nil
}

// Health reports whether GET /health answers 200.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "health", nil)
	if err != nil {
		return err
	}
	resp, err := c.doer.Do(req)
	if err != nil {
		return fmt.Errorf("prediction: health request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	target := c.base.ResolveReference(&url.URL{Path: endpoint})
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("prediction: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func encodeImage(img Image) (io.Reader, string, error) {
	filename := strings.TrimSpace(img.Filename)
	if filename == "" {
		filename = defaultFilename
	}
	contentType := strings.TrimSpace(img.ContentType)
	if contentType == "" {
		contentType = "image/jpeg"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("prediction: create form part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("prediction: write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("prediction: close form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
