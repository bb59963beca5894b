package dispatcher

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Kind names a job type.
type Kind string

const (
	KindParsePath        Kind = "parse_path"
	KindParseAllPaths    Kind = "parse_all_paths"
	KindParseContext     Kind = "parse_context"
	KindParseAllContexts Kind = "parse_all_contexts"
	KindSearch           Kind = "search"
)

// KeyFielder is implemented by payloads that change a job's result. Their
// fields take part in the debounce key.
type KeyFielder interface {
	KeyFields() []string
}

// Request is one unit of work sent to a worker.
type Request struct {
	Kind    Kind        `json:"kind"`
	Target  string      `json:"target"`
	Payload interface{} `json:"payload,omitempty"`
	Key     string      `json:"key"`
}

// NewRequest builds a request and computes its debounce key.
func NewRequest(kind Kind, target string, payload interface{}) Request {
	return Request{Kind: kind, Target: target, Payload: payload, Key: Key(kind, target, payload)}
}

// Key returns kind|target|hash where hash covers the payload's key fields.
func Key(kind Kind, target string, payload interface{}) string {
	var fields []string
	if kf, ok := payload.(KeyFielder); ok {
		fields = kf.KeyFields()
	}
	h := xxhash.Sum64String(strings.Join(fields, "\x00"))
	return string(kind) + "|" + target + "|" + strconv.FormatUint(h, 16)
}

// Response is a job's outcome. Error is set instead of Result when the job
// failed.
type Response struct {
	Kind   Kind        `json:"kind"`
	Target string      `json:"target"`
	Key    string      `json:"key"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"$error,omitempty"`
}
