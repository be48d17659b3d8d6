// Package fetch implements engine.Fetcher and engine.Preconnector over HTTP.
//
// A fetch is a GET of the variant locator whose body is read (bounded by
// MaxBytes) and, when Verify is set, checked to be a decodable image header.
// Concurrent fetches of the same URL share one request. Failures carry an
// error code from github.com/jmgilman/go/errors so callers can tell transient
// failures (5xx, 429, timeouts, network) from permanent ones (4xx, bad image).
package fetch

import (
	"bytes"
	"context"
	stderrors "errors"
	"image"
	_ "image/gif" // register decoders for image.DecodeConfig
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jmgilman/go/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/IvanBrykalov/imgprefetch/engine"
	"github.com/IvanBrykalov/imgprefetch/internal/singleflight"
)

const tracerName = "github.com/IvanBrykalov/imgprefetch/fetch"

// Span attribute keys.
const (
	attrURL     = "http.url"
	attrOrigin  = "http.origin"
	attrStatus  = "http.status_code"
	attrBytes   = "image.bytes"
	attrFormat  = "image.format"
	attrShared  = "fetch.shared"
	attrErrCode = "error.code"
)

// Defaults.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxBytes  = 20 << 20
	DefaultUserAgent = "imgprefetch/1"
)

// Options configures the HTTP fetcher. Zero values are safe.
type Options struct {
	// Client performs requests. Nil => a client over a pooled transport.
	Client *http.Client
	// Timeout bounds one attempt. 0 => DefaultTimeout.
	Timeout time.Duration
	// MaxBytes bounds the body read. 0 => DefaultMaxBytes.
	MaxBytes int64
	// Verify decodes the image header and fails the fetch if it is not a
	// supported image (gif, jpeg, png).
	Verify    bool
	UserAgent string

	// Tracer records one span per request. Nil => otel.Tracer(tracerName).
	Tracer trace.Tracer
	Logger *slog.Logger
}

// Result describes one fetched variant.
type Result struct {
	URL         string
	Status      int
	Bytes       int64
	ContentType string
	// Format, Width and Height are set when Options.Verify is on.
	Format string
	Width  int
	Height int
}

// HTTP fetches image variants. Safe for concurrent use.
type HTTP struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	verify   bool
	ua       string
	tracer   trace.Tracer
	logger   *slog.Logger

	sf singleflight.Group[string, Result]
}

// New constructs an HTTP fetcher with the provided Options.
func New(opt Options) *HTTP {
	if opt.Client == nil {
		opt.Client = &http.Client{Transport: newTransport()}
	}
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultTimeout
	}
	if opt.MaxBytes <= 0 {
		opt.MaxBytes = DefaultMaxBytes
	}
	if opt.UserAgent == "" {
		opt.UserAgent = DefaultUserAgent
	}
	if opt.Tracer == nil {
		opt.Tracer = otel.Tracer(tracerName)
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}
	return &HTTP{
		client:   opt.Client,
		timeout:  opt.Timeout,
		maxBytes: opt.MaxBytes,
		verify:   opt.Verify,
		ua:       opt.UserAgent,
		tracer:   opt.Tracer,
		logger:   opt.Logger,
	}
}

// newTransport keeps idle connections around so a Preconnect is reused by
// the fetches that follow it.
func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = 16
	t.IdleConnTimeout = 90 * time.Second
	return t
}

// Fetch implements engine.Fetcher. The request runs on its own goroutine.
func (h *HTTP) Fetch(ctx context.Context, url string, done func(error)) {
	go func() {
		_, err := h.Get(ctx, url)
		done(err)
	}()
}

// Get fetches url, sharing the request with concurrent callers for the same
// url. A follower whose ctx ends returns early; the leader keeps going.
func (h *HTTP) Get(ctx context.Context, url string) (Result, error) {
	res, shared, err := h.sf.Do(ctx, url, func() (Result, error) {
		return h.get(ctx, url)
	})
	if shared {
		trace.SpanFromContext(ctx).AddEvent("fetch coalesced",
			trace.WithAttributes(attribute.String(attrURL, url), attribute.Bool(attrShared, true)))
	}
	return res, err
}

func (h *HTTP) get(ctx context.Context, url string) (res Result, err error) {
	ctx, span := h.tracer.Start(ctx, "fetch.get", trace.WithAttributes(attribute.String(attrURL, url)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String(attrErrCode, string(errors.GetCode(err))))
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, errors.Wrap(err, errors.CodeInvalidInput, "build request")
	}
	req.Header.Set("User-Agent", h.ua)
	req.Header.Set("Accept", "image/*")

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return Result{}, classifyTransport(err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int(attrStatus, resp.StatusCode))
	if err := statusError(resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return Result{}, errors.WithContext(err, "url", url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return Result{}, classifyTransport(err)
	}
	if int64(len(body)) > h.maxBytes {
		return Result{}, errors.Newf(errors.CodeInvalidInput, "body exceeds %d bytes", h.maxBytes)
	}

	res = Result{
		URL:         url,
		Status:      resp.StatusCode,
		Bytes:       int64(len(body)),
		ContentType: resp.Header.Get("Content-Type"),
	}
	if h.verify {
		cfg, format, derr := image.DecodeConfig(bytes.NewReader(body))
		if derr != nil {
			return Result{}, errors.Wrap(derr, errors.CodeInvalidInput, "decode image header")
		}
		res.Format, res.Width, res.Height = format, cfg.Width, cfg.Height
		span.SetAttributes(attribute.String(attrFormat, format))
	}
	span.SetAttributes(attribute.Int64(attrBytes, res.Bytes))
	h.logger.Debug("fetched", "url", url, "bytes", res.Bytes, "took", time.Since(start))
	return res, nil
}

// Preconnect implements engine.Preconnector by issuing a HEAD to the origin;
// the pooled transport keeps the connection for later fetches. Any response
// status counts as success.
func (h *HTTP) Preconnect(ctx context.Context, origin string) (err error) {
	ctx, span := h.tracer.Start(ctx, "fetch.preconnect", trace.WithAttributes(attribute.String(attrOrigin, origin)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, origin+"/", nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "build preconnect request")
	}
	req.Header.Set("User-Agent", h.ua)
	resp, err := h.client.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	span.SetAttributes(attribute.Int(attrStatus, resp.StatusCode))
	return nil
}

// ---- classification ----

// statusError maps a non-2xx status to a classified error.
func statusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound, status == http.StatusGone:
		return errors.Newf(errors.CodeNotFound, "status %d", status)
	case status == http.StatusUnauthorized:
		return errors.Newf(errors.CodeUnauthorized, "status %d", status)
	case status == http.StatusForbidden:
		return errors.Newf(errors.CodeForbidden, "status %d", status)
	case status == http.StatusTooManyRequests:
		return errors.Newf(errors.CodeRateLimit, "status %d", status)
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return errors.Newf(errors.CodeTimeout, "status %d", status)
	case status >= 500:
		return errors.Newf(errors.CodeUnavailable, "status %d", status)
	default:
		return errors.Newf(errors.CodeInvalidInput, "unexpected status %d", status)
	}
}

// classifyTransport wraps a transport-level failure. Cancellation is passed
// through unchanged.
func classifyTransport(err error) error {
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.CodeTimeout, "request timed out")
	}
	var ne net.Error
	if stderrors.As(err, &ne) && ne.Timeout() {
		return errors.Wrap(err, errors.CodeTimeout, "request timed out")
	}
	return errors.Wrap(err, errors.CodeNetwork, "request failed")
}

// Compile-time checks.
var (
	_ engine.Fetcher      = (*HTTP)(nil)
	_ engine.Preconnector = (*HTTP)(nil)
)
