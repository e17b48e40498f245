package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hamed0406/healthagent/internal/domain"
)

type client struct {
	base string
	key  string
	http *http.Client
}

func main() {
	window := flag.String("window", "24h", "stats window (Go duration)")
	flag.Parse()

	base := os.Getenv("API_BASE")
	if base == "" {
		base = "http://localhost:8080"
	}
	c := &client{base: strings.TrimRight(base, "/"), key: os.Getenv("API_KEY"), http: &http.Client{Timeout: 10 * time.Second}}

	ctx := context.Background()
	if err := run(ctx, c, os.Stdout, *window, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// run prints a stats table for the named targets, or for every target when
// none are given.
func run(ctx context.Context, c *client, out io.Writer, window string, names []string) error {
	if len(names) == 0 {
		var targets []domain.Target
		if err := c.get(ctx, "/api/targets", &targets); err != nil {
			return err
		}
		for _, t := range targets {
			names = append(names, t.Name)
		}
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tCHECKS\tUPTIME\tP50\tP95\tP99\tFAILS\tLAST DOWN")
	for _, name := range names {
		var s domain.Snapshot
		path := fmt.Sprintf("/api/targets/%s/stats?window=%s", url.PathEscape(name), url.QueryEscape(window))
		if err := c.get(ctx, path, &s); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Fprintf(tw, "%s\t%d\t%.2f%%\t%s\t%s\t%s\t%d\t%s\n",
			name, s.Count, s.UptimePercent,
			ms(s.P50LatencyMs), ms(s.P95LatencyMs), ms(s.P99LatencyMs),
			s.ConsecutiveFailures, when(s.LastDowntime))
	}
	return tw.Flush()
}

func (c *client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func ms(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0fms", *v)
}

func when(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
