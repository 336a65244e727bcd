package rpc

import (
	"context"
	"encoding/json"

	"github.com/dreamware/nudge/internal/hint"
	"github.com/dreamware/nudge/internal/storage"
)

// Method names shared by the JSON-RPC endpoint and the MCP tools.
const (
	MethodSetHint        = "nudge.set_hint"
	MethodGetHint        = "nudge.get_hint"
	MethodQuery          = "nudge.query"
	MethodDeleteHint     = "nudge.delete_hint"
	MethodListComponents = "nudge.list_components"
	MethodBump           = "nudge.bump"
	MethodExport         = "nudge.export"
	MethodImport         = "nudge.import"
)

// Methods lists every method in a stable order.
var Methods = []string{
	MethodSetHint, MethodGetHint, MethodQuery, MethodDeleteHint,
	MethodListComponents, MethodBump, MethodExport, MethodImport,
}

type SetHintParams struct {
	Component       string     `json:"component"`
	Key             string     `json:"key"`
	Value           hint.Value `json:"value"`
	Meta            hint.Meta  `json:"meta"`
	ExpectedVersion *int64     `json:"expected_version,omitempty"`
	AllowSecret     bool       `json:"allow_secret,omitempty"`
}

type HintResult struct {
	Hint *hint.Entry `json:"hint"`
}

type GetHintParams struct {
	Component string        `json:"component"`
	Key       string        `json:"key"`
	Context   *hint.Context `json:"context,omitempty"`
}

type GetHintResult struct {
	Hint         *hint.Entry      `json:"hint"`
	MatchExplain hint.Explanation `json:"match_explain"`
}

type QueryParams struct {
	Component string        `json:"component,omitempty"`
	Keys      []string      `json:"keys,omitempty"`
	Tags      []string      `json:"tags,omitempty"`
	Pattern   string        `json:"pattern,omitempty"`
	Regex     string        `json:"regex,omitempty"` // alias of Pattern
	Context   *hint.Context `json:"context,omitempty"`
	Limit     int           `json:"limit,omitempty"`
}

type QueryHit struct {
	Component    string           `json:"component"`
	Key          string           `json:"key"`
	Hint         *hint.Entry      `json:"hint"`
	Score        float64          `json:"score"`
	MatchExplain hint.Explanation `json:"match_explain"`
}

type QueryResult struct {
	Hints []QueryHit `json:"hints"`
}

type DeleteHintParams struct {
	Component string `json:"component"`
	Key       string `json:"key"`
}

type DeleteHintResult struct {
	Removed  bool        `json:"removed"`
	Previous *hint.Entry `json:"previous,omitempty"`
}

type ListComponentsResult struct {
	Components []storage.ComponentInfo `json:"components"`
}

type BumpParams struct {
	Component string `json:"component"`
	Key       string `json:"key"`
	Delta     *int64 `json:"delta,omitempty"` // defaults to 1
}

type ExportParams struct {
	Format    string   `json:"format,omitempty"` // only "json"
	Component string   `json:"component,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

type ExportResult struct {
	Payload storage.Payload `json:"payload"`
}

type ImportParams struct {
	Payload   json.RawMessage `json:"payload"`
	Mode      string          `json:"mode,omitempty"`
	Component string          `json:"component,omitempty"`
}

type ImportResult = storage.ImportResult

// Handler is the call surface served on both transports.
type Handler interface {
	SetHint(ctx context.Context, p SetHintParams) (*HintResult, error)
	GetHint(ctx context.Context, p GetHintParams) (*GetHintResult, error)
	Query(ctx context.Context, p QueryParams) (*QueryResult, error)
	DeleteHint(ctx context.Context, p DeleteHintParams) (*DeleteHintResult, error)
	ListComponents(ctx context.Context) (*ListComponentsResult, error)
	Bump(ctx context.Context, p BumpParams) (*HintResult, error)
	Export(ctx context.Context, p ExportParams) (*ExportResult, error)
	Import(ctx context.Context, p ImportParams) (*ImportResult, error)
}

// Dispatch decodes params for method and invokes the matching Handler
// method. Malformed params fail as INVALID.
func Dispatch(ctx context.Context, h Handler, method string, params json.RawMessage) (any, error) {
	switch method {
	case MethodSetHint:
		var p SetHintParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return h.SetHint(ctx, p)
	case MethodGetHint:
		var p GetHintParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return h.GetHint(ctx, p)
	case MethodQuery:
		var p QueryParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return h.Query(ctx, p)
	case MethodDeleteHint:
		var p DeleteHintParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return h.DeleteHint(ctx, p)
	case MethodListComponents:
		return h.ListComponents(ctx)
	case MethodBump:
		var p BumpParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return h.Bump(ctx, p)
	case MethodExport:
		var p ExportParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return h.Export(ctx, p)
	case MethodImport:
		var p ImportParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return h.Import(ctx, p)
	}
	return nil, errUnknownMethod(method)
}

func decodeParams(raw json.RawMessage, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		if he := asHintError(err); he != nil {
			return he
		}
		return hint.FieldError(hint.CodeInvalid, "params", "malformed params: %v", err)
	}
	return nil
}
