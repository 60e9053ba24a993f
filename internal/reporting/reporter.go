// File: internal/reporting/reporter.go

// Package reporting serializes engine results for consumption by people and
// pipelines.
package reporting

import (
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/pngprotect/pngprotect-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reporter consumes result envelopes as the engine produces them.
// Implementations must be safe for concurrent use.
type Reporter interface {
	Report(env *schemas.ResultEnvelope) error
}

// JSONLines writes one JSON object per result to an underlying writer, the
// format batch pipelines expect.
type JSONLines struct {
	mu     sync.Mutex
	w      io.Writer
	pretty bool
}

// NewJSONLines creates a line-delimited JSON reporter.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: w}
}

// NewPrettyJSON creates a reporter that indents each result, for interactive
// single-task output.
func NewPrettyJSON(w io.Writer) *JSONLines {
	return &JSONLines{w: w, pretty: true}
}

// Report serializes one envelope.
func (r *JSONLines) Report(env *schemas.ResultEnvelope) error {
	var (
		data []byte
		err  error
	)
	if r.pretty {
		data, err = json.MarshalIndent(env, "", "  ")
	} else {
		data, err = json.Marshal(env)
	}
	if err != nil {
		return fmt.Errorf("reporting: marshal result %s: %w", env.TaskID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("reporting: write result %s: %w", env.TaskID, err)
	}
	return nil
}
