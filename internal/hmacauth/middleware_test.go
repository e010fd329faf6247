package hmacauth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Unix(1_700_000_000, 0)

func verifier() *Verifier {
	return &Verifier{
		Secret:  "secret",
		MaxSkew: time.Minute,
		Now:     func() time.Time { return now },
	}
}

func signed(v *Verifier, body string, at time.Time) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(body))
	v.SignRequest(req, []byte(body), at)
	return req
}

func TestMiddlewareAllowsValidSignatureAndKeepsBody(t *testing.T) {
	v := verifier()
	body := `{"campaign":"Polyhedra 2024"}`

	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.WriteHeader(http.StatusAccepted)
	})

	rec := httptest.NewRecorder()
	v.Middleware(handler).ServeHTTP(rec, signed(v, body, now))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, body, seen)
}

func TestMiddlewareRejects(t *testing.T) {
	v := verifier()
	ts := strconv.FormatInt(now.Unix(), 10)

	cases := []struct {
		name   string
		req    func() *http.Request
		status int
		err    error
	}{
		{
			name: "bad signature",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
				r.Header.Set(DefaultTimestampHeader, ts)
				r.Header.Set(DefaultSignatureHeader, "deadbeef")
				return r
			},
			status: http.StatusUnauthorized,
			err:    ErrInvalidSignature,
		},
		{
			name: "missing signature",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
				r.Header.Set(DefaultTimestampHeader, ts)
				return r
			},
			status: http.StatusUnauthorized,
			err:    ErrMissingSignature,
		},
		{
			name: "garbled timestamp",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
				r.Header.Set(DefaultTimestampHeader, "yesterday")
				r.Header.Set(DefaultSignatureHeader, "00")
				return r
			},
			status: http.StatusUnauthorized,
			err:    ErrMissingTimestamp,
		},
		{
			name:   "stale",
			req:    func() *http.Request { return signed(v, `{}`, now.Add(-2*time.Minute)) },
			status: http.StatusUnauthorized,
			err:    ErrStaleTimestamp,
		},
		{
			name:   "from the future",
			req:    func() *http.Request { return signed(v, `{}`, now.Add(2*time.Minute)) },
			status: http.StatusUnauthorized,
			err:    ErrStaleTimestamp,
		},
		{
			name: "tampered body",
			req: func() *http.Request {
				r := signed(v, `{"a":1}`, now)
				r.Body = io.NopCloser(strings.NewReader(`{"a":2}`))
				return r
			},
			status: http.StatusUnauthorized,
			err:    ErrInvalidSignature,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, v.Verify(tc.req()), tc.err)

			rec := httptest.NewRecorder()
			v.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("handler should not be called")
			})).ServeHTTP(rec, tc.req())
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.err.Error())
		})
	}
}

func TestMiddlewareBodyLimit(t *testing.T) {
	v := verifier()
	v.MaxBody = 8
	rec := httptest.NewRecorder()
	v.Middleware(http.NotFoundHandler()).ServeHTTP(rec, signed(v, `{"too":"long"}`, now))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCustomHeaders(t *testing.T) {
	v := verifier()
	v.SignatureHeader = "X-Minter-Signature"
	req := signed(v, `{}`, now)
	assert.NotEmpty(t, req.Header.Get("X-Minter-Signature"))
	assert.Empty(t, req.Header.Get(DefaultSignatureHeader))
	require.NoError(t, v.Verify(req))
}

func TestEmptySecretDisablesVerification(t *testing.T) {
	v := &Verifier{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	require.NoError(t, v.Verify(req))
}

func TestSignIsStable(t *testing.T) {
	sig := Sign("secret", "1700000000", []byte("{}"))
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, Sign("secret", "1700000000", []byte("{}")))
	assert.NotEqual(t, sig, Sign("other", "1700000000", []byte("{}")))
}
