package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCheck(t *testing.T, body string) (out, errOut string, failed bool) {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	var o, e bytes.Buffer
	r := &report{out: &o, errOut: &e}
	check(r, p)
	return o.String(), e.String(), r.failed
}

func TestPreflight_ValidConfig(t *testing.T) {
	out, errOut, failed := runCheck(t, `
store:
  driver: memory
api:
  admin_keys: [adm_1]
  public_keys: [pub_1]
targets:
  - name: web
    kind: http
    address: https://example.com
`)
	if failed {
		t.Fatalf("preflight failed:\n%s", errOut)
	}
	if !strings.Contains(out, "✔ config") || !strings.Contains(out, "1 targets") {
		t.Fatalf("missing ok line:\n%s", out)
	}
	if !strings.Contains(errOut, "no webhooks configured") || !strings.Contains(errOut, "store: memory") {
		t.Fatalf("missing warnings:\n%s", errOut)
	}
}

func TestPreflight_ReportsEveryProblem(t *testing.T) {
	_, errOut, failed := runCheck(t, `
workers: 0
targets:
  - name: averyverylongname
    kind: http
    address: ftp://nope
`)
	if !failed {
		t.Fatalf("expected failure")
	}
	lines := strings.Count(errOut, "✖")
	if lines < 3 {
		t.Fatalf("want one ✖ line per problem, got %d:\n%s", lines, errOut)
	}
}

func TestPreflight_OpenAPIOnPublicAddr(t *testing.T) {
	_, errOut, failed := runCheck(t, `
store:
  driver: memory
api:
  addr: 0.0.0.0:8080
targets:
  - name: web
    kind: http
    address: https://example.com
`)
	if !failed || !strings.Contains(errOut, "without any API keys") {
		t.Fatalf("expected exposed API failure:\n%s", errOut)
	}
}
