// cmd/preflight/main.go
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/hamed0406/healthagent/internal/config"
)

type report struct {
	out, errOut io.Writer
	failed      bool
}

func (r *report) ok(msg string)   { fmt.Fprintln(r.out, "✔", msg) }
func (r *report) warn(msg string) { fmt.Fprintln(r.errOut, "⚠", msg) }
func (r *report) fail(msg string) {
	r.failed = true
	fmt.Fprintln(r.errOut, "✖", msg)
}

func main() {
	path := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	r := &report{out: os.Stdout, errOut: os.Stderr}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.warn(".env present but unreadable: " + err.Error())
	}
	check(r, *path)
	if r.failed {
		os.Exit(1)
	}
}

func check(r *report, path string) {
	cfg, err := config.Load(path)
	if err != nil {
		for _, e := range multierr.Errors(unwrapInvalid(err)) {
			r.fail(e.Error())
		}
		return
	}
	r.ok(fmt.Sprintf("config %s: %d targets, %d webhooks", path, len(cfg.Targets), len(cfg.Webhooks)))

	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DSN == "" {
			r.fail("store.dsn is empty for the postgres driver")
		} else {
			r.ok("store: postgres")
		}
	case "sqlite":
		r.ok("store: sqlite at " + cfg.Store.Path)
	case "memory":
		r.warn("store: memory; results are lost on restart")
	}

	if len(cfg.Webhooks) == 0 {
		r.warn("no webhooks configured; state changes will only be logged")
	}

	if !cfg.API.Enabled {
		r.ok("api disabled")
		return
	}
	r.ok("api.addr=" + cfg.API.Addr)
	if len(cfg.API.AdminKeys) == 0 {
		r.warn("api.admin_keys empty; POST /api/targets/{name}/check is open")
	}
	if len(cfg.API.PublicKeys) == 0 && len(cfg.API.AdminKeys) == 0 {
		r.warn("no API keys; read routes are open")
	}
	for _, k := range append(append([]string{}, cfg.API.PublicKeys...), cfg.API.AdminKeys...) {
		if strings.TrimSpace(k) != k || strings.Contains(k, " ") {
			r.warn("an API key contains spaces; use comma-separated keys without spaces")
			break
		}
	}
	if !strings.HasPrefix(cfg.API.Addr, "127.0.0.1:") && !strings.HasPrefix(cfg.API.Addr, "localhost:") {
		if len(cfg.API.PublicKeys) == 0 && len(cfg.API.AdminKeys) == 0 {
			r.fail("api listens on " + cfg.API.Addr + " without any API keys")
		}
	}
	if len(cfg.API.AllowedOrigins) == 0 {
		r.warn("api.allowed_origins empty; any origin may call the API from a browser")
	}
}

// unwrapInvalid strips the ErrInvalid prefix so each joined problem prints
// on its own line.
func unwrapInvalid(err error) error {
	if !errors.Is(err, config.ErrInvalid) {
		return err
	}
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range u.Unwrap() {
			if e != config.ErrInvalid {
				return e
			}
		}
	}
	return err
}
