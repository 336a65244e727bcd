package rpc

import (
	"bytes"
	"context"

	"github.com/dreamware/nudge/internal/hint"
	"github.com/dreamware/nudge/internal/storage"
)

// Local serves the call surface straight from a Store.
type Local struct {
	store *storage.Store
}

var _ Handler = (*Local)(nil)

// NewLocal wraps store.
func NewLocal(store *storage.Store) *Local {
	return &Local{store: store}
}

// Store returns the wrapped store.
func (l *Local) Store() *storage.Store { return l.store }

func (l *Local) SetHint(_ context.Context, p SetHintParams) (*HintResult, error) {
	e, err := l.store.Upsert(storage.UpsertRequest{
		Component:       p.Component,
		Key:             p.Key,
		Value:           p.Value,
		Meta:            p.Meta,
		ExpectedVersion: p.ExpectedVersion,
		AllowSecret:     p.AllowSecret,
	})
	if err != nil {
		return nil, err
	}
	return &HintResult{Hint: e}, nil
}

func (l *Local) GetHint(_ context.Context, p GetHintParams) (*GetHintResult, error) {
	m, err := l.store.Lookup(p.Component, p.Key, derefContext(p.Context))
	if err != nil {
		return nil, err
	}
	return &GetHintResult{Hint: m.Entry, MatchExplain: m.Explain}, nil
}

func (l *Local) Query(_ context.Context, p QueryParams) (*QueryResult, error) {
	pattern := p.Pattern
	if pattern == "" {
		pattern = p.Regex
	}
	matches, err := l.store.Search(storage.SearchQuery{
		Component: p.Component,
		Keys:      p.Keys,
		Tags:      p.Tags,
		Pattern:   pattern,
		Context:   derefContext(p.Context),
		Limit:     p.Limit,
	})
	if err != nil {
		return nil, err
	}
	res := &QueryResult{Hints: make([]QueryHit, 0, len(matches))}
	for _, m := range matches {
		res.Hints = append(res.Hints, QueryHit{
			Component:    m.Entry.Component,
			Key:          m.Entry.Key,
			Hint:         m.Entry,
			Score:        m.Score,
			MatchExplain: m.Explain,
		})
	}
	return res, nil
}

func (l *Local) DeleteHint(_ context.Context, p DeleteHintParams) (*DeleteHintResult, error) {
	prev, err := l.store.Remove(p.Component, p.Key)
	if err != nil {
		return nil, err
	}
	return &DeleteHintResult{Removed: true, Previous: prev}, nil
}

func (l *Local) ListComponents(context.Context) (*ListComponentsResult, error) {
	return &ListComponentsResult{Components: l.store.Enumerate()}, nil
}

func (l *Local) Bump(_ context.Context, p BumpParams) (*HintResult, error) {
	delta := int64(1)
	if p.Delta != nil {
		delta = *p.Delta
	}
	e, err := l.store.Reinforce(p.Component, p.Key, delta)
	if err != nil {
		return nil, err
	}
	return &HintResult{Hint: e}, nil
}

func (l *Local) Export(_ context.Context, p ExportParams) (*ExportResult, error) {
	if p.Format != "" && p.Format != "json" {
		return nil, hint.FieldError(hint.CodeInvalid, "format", "unsupported format %q", p.Format)
	}
	return &ExportResult{Payload: l.store.Export(storage.ExportFilter{Component: p.Component, Tags: p.Tags})}, nil
}

func (l *Local) Import(_ context.Context, p ImportParams) (*ImportResult, error) {
	raw := bytes.TrimSpace(p.Payload)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, hint.FieldError(hint.CodeInvalid, "payload", "payload is required")
	}
	res, err := l.store.Import(raw, storage.ImportOptions{
		Mode:      storage.ImportMode(p.Mode),
		Component: p.Component,
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func derefContext(c *hint.Context) hint.Context {
	if c == nil {
		return hint.Context{}
	}
	return *c
}
