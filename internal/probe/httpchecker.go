package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hamed0406/healthagent/internal/domain"
)

const (
	defaultMaxRedirects = 10
	defaultMaxBody      = 1 << 20 // 1 MiB
)

// keptHeaders is the response header subset stored with each result.
var keptHeaders = []string{"Content-Type", "Content-Length", "Server", "Cache-Control", "Last-Modified", "ETag"}

type HTTPChecker struct {
	Client       *http.Client
	MaxRedirects int
	MaxBody      int64
}

func NewHTTPChecker() *HTTPChecker {
	return &HTTPChecker{
		Client:       &http.Client{},
		MaxRedirects: defaultMaxRedirects,
		MaxBody:      defaultMaxBody,
	}
}

func (h *HTTPChecker) Check(ctx context.Context, t domain.Target) domain.CheckResult {
	res := newResult(t)
	ctx, cancel := withTimeout(ctx, t.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.Address, nil)
	if err != nil {
		return fail(res, CatRequest, err.Error())
	}
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}

	client := *h.Client
	maxRedirects := h.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}
	client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return errTooManyRedirects
		}
		res.RedirectCount = len(via)
		return nil
	}

	start := time.Now()
	var ttfb atomic.Int64
	ttfb.Store(-1)
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() { ttfb.Store(int64(time.Since(start))) },
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	resp, err := client.Do(req)
	if err != nil {
		return fail(res, classify(err), err.Error())
	}
	defer resp.Body.Close()

	if v := ttfb.Load(); v >= 0 {
		res.TTFBMs = domain.Millis(time.Duration(v))
	}
	code := resp.StatusCode
	res.StatusCode = &code
	res.FinalURL = resp.Request.URL.String()
	res.Headers = pickHeaders(resp.Header)
	res.TLS = tlsInfo(resp.TLS)

	codes := t.SuccessCodes()
	if !codes.Contains(code) {
		res.LatencyMs = domain.Millis(time.Since(start))
		return fail(res, CatStatus, fmt.Sprintf("got %d, want %s", code, codes))
	}

	if t.Content != nil {
		limit := h.MaxBody
		if limit <= 0 {
			limit = defaultMaxBody
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
		res.LatencyMs = domain.Millis(time.Since(start))
		if err != nil {
			return fail(res, classify(err), "read body: "+err.Error())
		}
		if msg := validateContent(*t.Content, body); msg != "" {
			return fail(res, CatContent, msg)
		}
		res.Success = true
		return res
	}

	res.LatencyMs = domain.Millis(time.Since(start))
	res.Success = true
	return res
}

func pickHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(keptHeaders))
	for _, k := range keptHeaders {
		if v := h.Get(k); v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func tlsInfo(cs *tls.ConnectionState) *domain.TLSInfo {
	if cs == nil {
		return nil
	}
	info := &domain.TLSInfo{Version: tls.VersionName(cs.Version)}
	if len(cs.PeerCertificates) > 0 {
		leaf := cs.PeerCertificates[0]
		info.Issuer = leaf.Issuer.String()
		info.Subject = leaf.Subject.String()
		info.NotAfter = leaf.NotAfter.UTC()
	}
	return info
}

// validateContent returns an empty string when the body passes.
func validateContent(cv domain.ContentValidation, body []byte) string {
	if cv.Keyword != "" {
		if !bytes.Contains(body, []byte(cv.Keyword)) {
			return fmt.Sprintf("keyword %q not found", cv.Keyword)
		}
		return ""
	}
	if cv.JSONPath == "" {
		return ""
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "body is not valid JSON: " + err.Error()
	}
	leaf, ok := lookupPath(doc, cv.JSONPath)
	if !ok {
		return fmt.Sprintf("json path %q not found", cv.JSONPath)
	}
	if cv.JSONExpected != "" {
		if got := leafString(leaf); got != cv.JSONExpected {
			return fmt.Sprintf("json path %q = %s, want %s", cv.JSONPath, got, cv.JSONExpected)
		}
		return ""
	}
	if !truthy(leaf) {
		return fmt.Sprintf("json path %q is not truthy", cv.JSONPath)
	}
	return ""
}

// lookupPath walks a dot-separated path through objects and array indices.
func lookupPath(doc any, path string) (any, bool) {
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

func leafString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
