package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hamed0406/healthagent/internal/domain"
)

func httpTarget(url string) domain.Target {
	return domain.Target{Name: "web", Kind: domain.KindHTTP, Address: url, Timeout: 2 * time.Second}
}

func TestHTTPChecker_StatusOK(t *testing.T) {
	gotUA := make(chan string, 1)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA <- r.UserAgent()
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("X-Ignored", "1")
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	tgt := httpTarget(s.URL)
	tgt.UserAgent = "healthagent-test"
	out := NewHTTPChecker().Check(context.Background(), tgt)
	if !out.Success {
		t.Fatalf("want success, got %+v", out)
	}
	if out.StatusCode == nil || *out.StatusCode != 200 {
		t.Fatalf("want status 200, got %v", out.StatusCode)
	}
	if out.LatencyMs == nil || *out.LatencyMs < 0 {
		t.Fatalf("latency should be set, got %v", out.LatencyMs)
	}
	if out.TTFBMs == nil || *out.TTFBMs > *out.LatencyMs {
		t.Fatalf("ttfb should be set and <= latency, got %v", out.TTFBMs)
	}
	if ua := <-gotUA; ua != "healthagent-test" {
		t.Fatalf("user agent not sent: %q", ua)
	}
	if out.Headers["Content-Type"] != "text/plain" {
		t.Fatalf("content-type not kept: %v", out.Headers)
	}
	if _, ok := out.Headers["X-Ignored"]; ok {
		t.Fatalf("unexpected header kept: %v", out.Headers)
	}
	if out.TLS != nil {
		t.Fatalf("plain http should have no TLS info")
	}
	if out.TargetName != "web" || out.Kind != domain.KindHTTP || out.CheckedAt.IsZero() {
		t.Fatalf("identity fields not set: %+v", out)
	}
}

func TestHTTPChecker_Status500(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	out := NewHTTPChecker().Check(context.Background(), httpTarget(s.URL))
	if out.Success {
		t.Fatalf("want failure, got %+v", out)
	}
	if out.StatusCode == nil || *out.StatusCode != 500 {
		t.Fatalf("want status 500, got %v", out.StatusCode)
	}
	if ErrorCategory(out.Error) != CatStatus {
		t.Fatalf("want unexpected_status, got %q", out.Error)
	}
}

func TestHTTPChecker_CustomSuccessCodes(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer s.Close()

	tgt := httpTarget(s.URL)
	tgt.ExpectedStatus = domain.StatusRanges{{Min: 418, Max: 418}}
	if out := NewHTTPChecker().Check(context.Background(), tgt); !out.Success {
		t.Fatalf("418 should be accepted, got %+v", out)
	}
}

func TestHTTPChecker_TimeoutReturnsPromptly(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer s.Close()

	tgt := httpTarget(s.URL)
	tgt.Timeout = 100 * time.Millisecond

	start := time.Now()
	out := NewHTTPChecker().Check(context.Background(), tgt)
	elapsed := time.Since(start)

	if out.Success {
		t.Fatalf("want failure due to timeout, got %+v", out)
	}
	if ErrorCategory(out.Error) != CatTimeout {
		t.Fatalf("want timeout category, got %q", out.Error)
	}
	if out.StatusCode != nil || out.LatencyMs != nil {
		t.Fatalf("want nil status and latency on timeout, got %+v", out)
	}
	if elapsed > tgt.Timeout+time.Second {
		t.Fatalf("probe took %v, timeout was %v", elapsed, tgt.Timeout)
	}
}

func TestHTTPChecker_ConnectionRefused(t *testing.T) {
	s := httptest.NewServer(http.NotFoundHandler())
	addr := s.URL
	s.Close()

	out := NewHTTPChecker().Check(context.Background(), httpTarget(addr))
	if out.Success || ErrorCategory(out.Error) != CatRefused {
		t.Fatalf("want connection_refused, got %+v", out)
	}
}

func TestHTTPChecker_RedirectsCounted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/b", http.StatusFound) })
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/c", http.StatusFound) })
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("done")) })
	s := httptest.NewServer(mux)
	defer s.Close()

	out := NewHTTPChecker().Check(context.Background(), httpTarget(s.URL+"/a"))
	if !out.Success {
		t.Fatalf("want success, got %+v", out)
	}
	if out.RedirectCount != 2 {
		t.Fatalf("want 2 redirects, got %d", out.RedirectCount)
	}
	if out.FinalURL != s.URL+"/c" {
		t.Fatalf("want final url %s/c, got %s", s.URL, out.FinalURL)
	}
}

func TestHTTPChecker_RedirectLoop(t *testing.T) {
	var hits atomic.Int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		http.Redirect(w, r, fmt.Sprintf("/loop%d", n), http.StatusFound)
	}))
	defer s.Close()

	out := NewHTTPChecker().Check(context.Background(), httpTarget(s.URL))
	if out.Success || ErrorCategory(out.Error) != CatTooManyRedirects {
		t.Fatalf("want too_many_redirects, got %+v", out)
	}
	if n := hits.Load(); n != defaultMaxRedirects+1 {
		t.Fatalf("want %d requests, got %d", defaultMaxRedirects+1, n)
	}
}

func TestHTTPChecker_TLSInfoFromSameConnection(t *testing.T) {
	s := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("secure"))
	}))
	defer s.Close()

	chk := NewHTTPChecker()
	chk.Client = s.Client()
	out := chk.Check(context.Background(), httpTarget(s.URL))
	if !out.Success {
		t.Fatalf("want success, got %+v", out)
	}
	if out.TLS == nil {
		t.Fatalf("want TLS info")
	}
	if !strings.HasPrefix(out.TLS.Version, "TLS 1.") {
		t.Fatalf("unexpected TLS version %q", out.TLS.Version)
	}
	if out.TLS.Subject == "" || out.TLS.Issuer == "" || out.TLS.NotAfter.IsZero() {
		t.Fatalf("certificate fields missing: %+v", out.TLS)
	}
}

func TestHTTPChecker_UntrustedCertificate(t *testing.T) {
	s := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer s.Close()

	out := NewHTTPChecker().Check(context.Background(), httpTarget(s.URL))
	if out.Success || ErrorCategory(out.Error) != CatTLS {
		t.Fatalf("want tls_error, got %+v", out)
	}
}

func TestHTTPChecker_ContentKeyword(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>status: healthy</html>"))
	}))
	defer s.Close()

	tgt := httpTarget(s.URL)
	tgt.Content = &domain.ContentValidation{Keyword: "healthy"}
	if out := NewHTTPChecker().Check(context.Background(), tgt); !out.Success {
		t.Fatalf("keyword should match, got %+v", out)
	}

	tgt.Content = &domain.ContentValidation{Keyword: "degraded"}
	out := NewHTTPChecker().Check(context.Background(), tgt)
	if out.Success || ErrorCategory(out.Error) != CatContent {
		t.Fatalf("want content_mismatch, got %+v", out)
	}
	if out.LatencyMs == nil {
		t.Fatalf("latency should be recorded on content mismatch")
	}
}

func TestHTTPChecker_ContentBodyCap(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 64)))
		w.Write([]byte("needle"))
	}))
	defer s.Close()

	chk := NewHTTPChecker()
	chk.MaxBody = 32
	tgt := httpTarget(s.URL)
	tgt.Content = &domain.ContentValidation{Keyword: "needle"}
	if out := chk.Check(context.Background(), tgt); out.Success {
		t.Fatalf("keyword beyond the cap must not be seen, got %+v", out)
	}
}

func TestValidateContent_JSONPath(t *testing.T) {
	body := []byte(`{"status":{"ok":true,"db":"up","count":0,"nodes":[{"name":"a"},{"name":"b"}]}}`)
	cases := []struct {
		name string
		cv   domain.ContentValidation
		pass bool
	}{
		{"truthy bool", domain.ContentValidation{JSONPath: "status.ok"}, true},
		{"truthy string", domain.ContentValidation{JSONPath: "status.db"}, true},
		{"zero is falsey", domain.ContentValidation{JSONPath: "status.count"}, false},
		{"array index", domain.ContentValidation{JSONPath: "status.nodes.1.name"}, true},
		{"missing key", domain.ContentValidation{JSONPath: "status.cache"}, false},
		{"index out of range", domain.ContentValidation{JSONPath: "status.nodes.5"}, false},
		{"expected string", domain.ContentValidation{JSONPath: "status.db", JSONExpected: "up"}, true},
		{"expected mismatch", domain.ContentValidation{JSONPath: "status.db", JSONExpected: "down"}, false},
		{"expected bool", domain.ContentValidation{JSONPath: "status.ok", JSONExpected: "true"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			msg := validateContent(c.cv, body)
			if (msg == "") != c.pass {
				t.Fatalf("pass=%v want %v (msg %q)", msg == "", c.pass, msg)
			}
		})
	}

	if msg := validateContent(domain.ContentValidation{JSONPath: "a"}, []byte("not json")); msg == "" {
		t.Fatalf("invalid JSON should fail")
	}
}
