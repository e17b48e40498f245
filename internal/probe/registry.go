package probe

import (
	"context"
	"fmt"

	"github.com/hamed0406/healthagent/internal/domain"
)

// Registry maps each target kind to its checker.
type Registry struct {
	checkers map[domain.Kind]Checker
}

func NewRegistry() *Registry {
	return &Registry{checkers: make(map[domain.Kind]Checker)}
}

// NewDefaultRegistry wires the HTTP, TCP and DNS checkers, each wrapped in
// per-target retries.
func NewDefaultRegistry(resolver string) *Registry {
	r := NewRegistry()
	r.Register(domain.KindHTTP, &RetryChecker{Inner: NewHTTPChecker()})
	r.Register(domain.KindTCP, &RetryChecker{Inner: NewTCPChecker()})
	r.Register(domain.KindDNS, &RetryChecker{Inner: NewDNSChecker(resolver)})
	return r
}

func (r *Registry) Register(kind domain.Kind, c Checker) {
	r.checkers[kind] = c
}

func (r *Registry) For(kind domain.Kind) (Checker, bool) {
	c, ok := r.checkers[kind]
	return c, ok
}

func (r *Registry) Check(ctx context.Context, t domain.Target) domain.CheckResult {
	c, ok := r.checkers[t.Kind]
	if !ok {
		return fail(newResult(t), CatRequest, fmt.Sprintf("no checker for kind %q", t.Kind))
	}
	return c.Check(ctx, t)
}

var _ Checker = (*Registry)(nil)
