package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name       string
		proxies    []string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "no proxies ignores headers",
			remoteAddr: "10.0.0.5:4000",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "10.0.0.5:4000",
		},
		{
			name:       "trusted proxy with X-Real-IP",
			proxies:    []string{"10.0.0.0/8"},
			remoteAddr: "10.0.0.5:4000",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
		{
			name:       "trusted single IP with X-Forwarded-For chain",
			proxies:    []string{"127.0.0.1"},
			remoteAddr: "127.0.0.1:4000",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.7, 10.0.0.1"},
			want:       "198.51.100.7",
		},
		{
			name:       "untrusted source",
			proxies:    []string{"10.0.0.0/8"},
			remoteAddr: "192.168.1.2:4000",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "192.168.1.2:4000",
		},
		{
			name:       "invalid header value",
			proxies:    []string{"10.0.0.0/8", "not-a-cidr"},
			remoteAddr: "10.0.0.5:4000",
			headers:    map[string]string{"X-Real-IP": "garbage"},
			want:       "10.0.0.5:4000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(tt.proxies)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoggerCapturesStatus(t *testing.T) {
	var ww *responseWriter
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww = w.(*responseWriter)
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("short and stout"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot || ww.status != http.StatusTeapot {
		t.Errorf("status = %d/%d, want 418", rec.Code, ww.status)
	}
	if ww.bytes != len("short and stout") {
		t.Errorf("bytes = %d", ww.bytes)
	}
}

func TestValidKey(t *testing.T) {
	if !validKey("b", []string{"a", "b"}) {
		t.Error("matching key rejected")
	}
	if validKey("c", []string{"a", "b"}) || validKey("", nil) {
		t.Error("non-matching key accepted")
	}
}
