package fetch

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestHTTP_GetVerifiesImage(t *testing.T) {
	t.Parallel()

	img := pngBytes(t, 32, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.UserAgent())
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	}))
	t.Cleanup(srv.Close)

	f := New(Options{Client: srv.Client(), Verify: true})
	res, err := f.Get(context.Background(), srv.URL+"/a.png?w=320")
	require.NoError(t, err)
	assert.Equal(t, "png", res.Format)
	assert.Equal(t, 32, res.Width)
	assert.Equal(t, 16, res.Height)
	assert.Equal(t, int64(len(img)), res.Bytes)
	assert.Equal(t, "image/png", res.ContentType)
}

func TestHTTP_StatusClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status    int
		code      errors.ErrorCode
		retryable bool
	}{
		{http.StatusNotFound, errors.CodeNotFound, false},
		{http.StatusForbidden, errors.CodeForbidden, false},
		{http.StatusUnauthorized, errors.CodeUnauthorized, false},
		{http.StatusTooManyRequests, errors.CodeRateLimit, true},
		{http.StatusGatewayTimeout, errors.CodeTimeout, true},
		{http.StatusServiceUnavailable, errors.CodeUnavailable, true},
		{http.StatusTeapot, errors.CodeInvalidInput, false},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			t.Cleanup(srv.Close)

			_, err := New(Options{Client: srv.Client()}).Get(context.Background(), srv.URL+"/x.jpg")
			require.Error(t, err)
			assert.Equal(t, tc.code, errors.GetCode(err))
			assert.Equal(t, tc.retryable, errors.IsRetryable(err))
		})
	}
}

func TestHTTP_DecodeFailureIsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not an image</html>"))
	}))
	t.Cleanup(srv.Close)

	_, err := New(Options{Client: srv.Client(), Verify: true}).Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	assert.False(t, errors.IsRetryable(err))
}

func TestHTTP_MaxBytes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 2048))
	}))
	t.Cleanup(srv.Close)

	_, err := New(Options{Client: srv.Client(), MaxBytes: 1024}).Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestHTTP_TimeoutIsRetryable(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	_, err := New(Options{Client: srv.Client(), Timeout: 20 * time.Millisecond}).Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, errors.CodeTimeout, errors.GetCode(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestHTTP_NetworkErrorIsRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // nothing listens any more

	_, err := New(Options{}).Get(context.Background(), url+"/a.jpg")
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err), "got %v (%s)", err, errors.GetCode(err))
}

func TestHTTP_CoalescesSameURL(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	f := New(Options{Client: srv.Client()})
	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		f.Fetch(context.Background(), srv.URL+"/same.jpg", func(err error) { errs <- err })
	}
	require.Eventually(t, func() bool { return hits.Load() == 1 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.sf.Waiters(srv.URL+"/same.jpg") == n-1 }, 2*time.Second, time.Millisecond)
	close(release)

	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("fetch did not complete")
		}
	}
	assert.Equal(t, int64(1), hits.Load(), "concurrent fetches of one URL share a request")
	assert.Zero(t, f.sf.InFlight())
}

func TestHTTP_Preconnect(t *testing.T) {
	t.Parallel()

	var method atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method.Store(r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	t.Cleanup(srv.Close)

	err := New(Options{Client: srv.Client()}).Preconnect(context.Background(), srv.URL)
	require.NoError(t, err, "any response status primes the connection")
	assert.Equal(t, http.MethodHead, method.Load())
}
