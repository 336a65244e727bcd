package rpc

import (
	"encoding/json"
	"errors"

	"github.com/dreamware/nudge/internal/hint"
)

const jsonrpcVersion = "2.0"

// Standard JSON-RPC error codes used for protocol-level failures.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is a JSON-RPC error. Data carries the symbolic code so the
// receiving side can rebuild the original *hint.Error.
type ErrorObject struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

type ErrorData struct {
	Code      hint.Code      `json:"code"`
	Field     string         `json:"field,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}

// methodError marks protocol failures that map onto standard JSON-RPC codes.
type methodError struct {
	rpcCode int
	err     *hint.Error
}

func (e *methodError) Error() string { return e.err.Error() }
func (e *methodError) Unwrap() error { return e.err }

func errUnknownMethod(method string) error {
	return &methodError{
		rpcCode: codeMethodNotFound,
		err:     hint.FieldError(hint.CodeInvalid, "method", "unknown method %q", method),
	}
}

func asHintError(err error) *hint.Error {
	var he *hint.Error
	if errors.As(err, &he) {
		return he
	}
	return nil
}

// NewErrorObject renders any error for the wire. Errors without a hint code
// become INTERNAL. The MCP transport uses the same shape for failed tool
// calls.
func NewErrorObject(err error) *ErrorObject {
	rpcCode := 0
	var me *methodError
	if errors.As(err, &me) {
		rpcCode = me.rpcCode
	}
	he := asHintError(err)
	if he == nil {
		he = &hint.Error{Code: hint.CodeInternal, Message: err.Error()}
	}
	if rpcCode == 0 {
		rpcCode = he.Code.RPCCode()
	}
	return &ErrorObject{
		Code:    rpcCode,
		Message: he.Message,
		Data: &ErrorData{
			Code:      he.Code,
			Field:     he.Field,
			Details:   he.Data,
			Retryable: he.Retryable(),
		},
	}
}

// toHintError rebuilds the *hint.Error described by a wire error.
func (o *ErrorObject) toHintError() *hint.Error {
	he := &hint.Error{Message: o.Message}
	if o.Data != nil && o.Data.Code != "" {
		he.Code = o.Data.Code
		he.Field = o.Data.Field
		he.Data = o.Data.Details
	} else {
		he.Code = hint.CodeFromRPC(o.Code)
	}
	return he
}
