// Package router sends each call to whichever Handler the process currently
// serves through: the local store while it leads, the forwarding client
// while it follows. Transports hold a Router and never see the swap.
package router

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/dreamware/nudge/internal/hint"
	"github.com/dreamware/nudge/internal/rpc"
)

// ErrUnbound is returned while no leader is known.
var ErrUnbound = errors.New("no leader elected yet")

// Router is an rpc.Handler whose target can be replaced at any time.
type Router struct {
	target atomic.Pointer[binding]
}

type binding struct {
	name string
	h    rpc.Handler
}

var _ rpc.Handler = (*Router)(nil)

// New returns an unbound Router.
func New() *Router { return &Router{} }

// Bind routes subsequent calls to h. name is reported by Target and used
// for diagnostics only.
func (r *Router) Bind(name string, h rpc.Handler) {
	if h == nil {
		r.Unbind()
		return
	}
	r.target.Store(&binding{name: name, h: h})
}

// Unbind makes every call fail with a retryable UNAVAILABLE until the next
// Bind.
func (r *Router) Unbind() { r.target.Store(nil) }

// Target returns the name of the current binding, or "" when unbound.
func (r *Router) Target() string {
	if b := r.target.Load(); b != nil {
		return b.name
	}
	return ""
}

func (r *Router) current() (rpc.Handler, error) {
	b := r.target.Load()
	if b == nil {
		return nil, hint.Unavailable(ErrUnbound)
	}
	return b.h, nil
}

func (r *Router) SetHint(ctx context.Context, p rpc.SetHintParams) (*rpc.HintResult, error) {
	h, err := r.current()
	if err != nil {
		return nil, err
	}
	return h.SetHint(ctx, p)
}

func (r *Router) GetHint(ctx context.Context, p rpc.GetHintParams) (*rpc.GetHintResult, error) {
	h, err := r.current()
	if err != nil {
		return nil, err
	}
	return h.GetHint(ctx, p)
}

func (r *Router) Query(ctx context.Context, p rpc.QueryParams) (*rpc.QueryResult, error) {
	h, err := r.current()
	if err != nil {
		return nil, err
	}
	return h.Query(ctx, p)
}

func (r *Router) DeleteHint(ctx context.Context, p rpc.DeleteHintParams) (*rpc.DeleteHintResult, error) {
	h, err := r.current()
	if err != nil {
		return nil, err
	}
	return h.DeleteHint(ctx, p)
}

func (r *Router) ListComponents(ctx context.Context) (*rpc.ListComponentsResult, error) {
	h, err := r.current()
	if err != nil {
		return nil, err
	}
	return h.ListComponents(ctx)
}

func (r *Router) Bump(ctx context.Context, p rpc.BumpParams) (*rpc.HintResult, error) {
	h, err := r.current()
	if err != nil {
		return nil, err
	}
	return h.Bump(ctx, p)
}

func (r *Router) Export(ctx context.Context, p rpc.ExportParams) (*rpc.ExportResult, error) {
	h, err := r.current()
	if err != nil {
		return nil, err
	}
	return h.Export(ctx, p)
}

func (r *Router) Import(ctx context.Context, p rpc.ImportParams) (*rpc.ImportResult, error) {
	h, err := r.current()
	if err != nil {
		return nil, err
	}
	return h.Import(ctx, p)
}
