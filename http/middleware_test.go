package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

func TestChainRunsInDeclarationOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(mark("first"), mark("second"), mark("third"))(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("ran %d middlewares, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	handler := RecoveryMiddleware(zap.NewNop())(panicking)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(rr.Body.String(), "internal server error") {
		t.Errorf("unexpected body: %s", rr.Body.String())
	}
}

func TestLoggerMiddlewareInjectsRequestID(t *testing.T) {
	var gotID string
	var gotStart time.Time
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = GetRequestID(r.Context())
		gotStart = GetStartTime(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	handler := LoggerMiddleware(zap.NewNop())(inner)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if gotID == "" {
		t.Error("request id missing from context")
	}
	if gotStart.IsZero() {
		t.Error("start time missing from context")
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := SecurityHeadersMiddleware(okHandler())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	csp := rr.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "connect-src 'self' ws: wss:") {
		t.Errorf("CSP blocks the preview websocket: %q", csp)
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		wantHeader string
	}{
		{"wildcard", []string{"*"}, "http://a.example", "http://a.example"},
		{"exact match", []string{"http://a.example"}, "http://a.example", "http://a.example"},
		{"mismatch", []string{"http://a.example"}, "http://evil.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CORSMiddleware(tt.allowed)(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Origin", tt.origin)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
		})
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	reached := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	})

	handler := CORSMiddleware([]string{"*"})(inner)
	req := httptest.NewRequest(http.MethodOptions, "/api/assess", nil)
	req.Header.Set("Origin", "http://a.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("preflight status = %d", rr.Code)
	}
	if reached {
		t.Error("preflight request reached the inner handler")
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	})

	handler := TimeoutMiddleware(30 * time.Millisecond)(slow)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/assess", nil))

	if rr.Code != http.StatusGatewayTimeout {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusGatewayTimeout)
	}
	if !strings.Contains(rr.Body.String(), "request timeout") {
		t.Errorf("unexpected body: %s", rr.Body.String())
	}
}

func TestTimeoutMiddlewarePropagatesDeadline(t *testing.T) {
	var hasDeadline bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
		w.WriteHeader(http.StatusOK)
	})

	handler := TimeoutMiddleware(time.Second)(inner)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
	if !hasDeadline {
		t.Error("request context has no deadline")
	}
}

func TestTimeoutMiddlewareSkipsWebSocketUpgrade(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); ok {
			t.Error("upgrade request got a deadline")
		}
		w.WriteHeader(http.StatusSwitchingProtocols)
	})

	handler := TimeoutMiddleware(time.Millisecond)(inner)
	req := httptest.NewRequest(http.MethodGet, "/api/ws/preview", nil)
	req.Header.Set("Upgrade", "websocket")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusSwitchingProtocols {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimitMiddleware(3)(okHandler())

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 3; i++ {
		if code := send("1.2.3.4"); code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, code)
		}
	}
	if code := send("1.2.3.4"); code != http.StatusTooManyRequests {
		t.Errorf("request over limit status = %d, want 429", code)
	}

	// Another client has its own bucket.
	if code := send("5.6.7.8"); code != http.StatusOK {
		t.Errorf("fresh client status = %d", code)
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	handler := RequestSizeMiddleware(16)(inner)

	small := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("tiny"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, small)
	if rr.Code != http.StatusOK {
		t.Errorf("small body status = %d", rr.Code)
	}

	big := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, big)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body status = %d", rr.Code)
	}
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rr, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK) // second call must not overwrite
	rw.Write([]byte("x"))

	if rw.statusCode != http.StatusTeapot {
		t.Errorf("captured status = %d, want %d", rw.statusCode, http.StatusTeapot)
	}
	if rr.Code != http.StatusTeapot {
		t.Errorf("recorded status = %d, want %d", rr.Code, http.StatusTeapot)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"host port", "10.0.0.1:5000", "", "10.0.0.1"},
		{"no port", "10.0.0.1", "", "10.0.0.1"},
		{"forwarded single", "10.0.0.1:5000", "9.9.9.9", "9.9.9.9"},
		{"forwarded chain", "10.0.0.1:5000", "9.9.9.9, 10.0.0.2, 10.0.0.3", "9.9.9.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID on empty context = %q", got)
	}
	if got := GetStartTime(context.Background()); !got.IsZero() {
		t.Errorf("GetStartTime on empty context = %v", got)
	}
}
