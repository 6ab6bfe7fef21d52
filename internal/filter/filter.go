// Package filter decides whether a serialized event is delivered.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"

	"github.com/sureshkrishnan-v/botreport/internal/constants"
)

// Filter is evaluated against the serialized event JSON.
// True means the event is delivered.
type Filter interface {
	Eval(serialized string) bool
}

// AllowAll delivers every event.
type AllowAll struct{}

// Eval implements Filter.
func (AllowAll) Eval(string) bool { return true }

// CEL evaluates a boolean CEL expression over the decoded event object,
// bound to the variable "event". For example:
//
//	event.post_type == "message" && event.message_type == "group"
//
// Evaluation is fail-open: an expression that errors (missing key, bad
// JSON, non-bool result) lets the event through.
type CEL struct {
	expr   string
	prg    cel.Program
	logger *zap.Logger
}

var _ Filter = (*CEL)(nil)

// NewCEL compiles expr. An empty expression yields AllowAll.
func NewCEL(expr string, logger *zap.Logger) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return AllowAll{}, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	env, err := cel.NewEnv(
		cel.Variable(constants.FilterVariable, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expr, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("filter %q must be boolean, got %v", expr, out)
	}

	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(constants.FilterCostLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("program filter %q: %w", expr, err)
	}

	return &CEL{expr: expr, prg: prg, logger: logger}, nil
}

// Eval implements Filter.
func (f *CEL) Eval(serialized string) bool {
	var obj map[string]any
	if err := json.Unmarshal([]byte(serialized), &obj); err != nil {
		f.logger.Warn("filter input is not a JSON object, allowing", zap.Error(err))
		return true
	}

	out, _, err := f.prg.Eval(map[string]any{constants.FilterVariable: obj})
	if err != nil {
		f.logger.Debug("filter evaluation failed, allowing",
			zap.String("expr", f.expr), zap.Error(err))
		return true
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		f.logger.Warn("filter result is not bool, allowing",
			zap.String("expr", f.expr), zap.Any("result", out.Value()))
		return true
	}
	return allowed
}
