package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func serveWith(h Headers, req *http.Request) http.Header {
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr.Result().Header
}

func TestHeadersMiddlewareSetsSecurityHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://example.com", nil)
	req.TLS = &tls.ConnectionState{}

	headers := serveWith(Headers{Enable: true, EnableHSTS: true, HSTSIncludeSubdomains: true}, req)
	require.Equal(t, "nosniff", headers.Get("X-Content-Type-Options"))
	require.Equal(t, "max-age=31536000; includeSubDomains", headers.Get("Strict-Transport-Security"))
	require.Equal(t, "no-store", headers.Get("Cache-Control"))
	require.Equal(t, formPolicy, headers.Get("Content-Security-Policy"))
}

func TestHeadersHSTSBehindProxy(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	require.Empty(t, serveWith(Headers{Enable: true, EnableHSTS: true}, plain).Get("Strict-Transport-Security"))

	proxied := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	proxied.Header.Set("X-Forwarded-Proto", "HTTPS")
	headers := serveWith(Headers{Enable: true, EnableHSTS: true, HSTSMaxAge: 600, ContentSecurityPolicy: "default-src 'none'"}, proxied)
	require.Equal(t, "max-age=600", headers.Get("Strict-Transport-Security"))
	require.Equal(t, "default-src 'none'", headers.Get("Content-Security-Policy"))
}

func TestHeadersMiddlewareDisabled(t *testing.T) {
	headers := serveWith(Headers{Enable: false, EnableHSTS: true}, httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	require.Empty(t, headers.Get("X-Content-Type-Options"))
}
