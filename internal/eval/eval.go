// Package eval evaluates expressions against the bindings of a paused frame
// with an embedded JavaScript runtime.
package eval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/yousuf/scopemap-mcp/internal/model"
)

// DefaultTimeout bounds a single evaluation when none is configured
const DefaultTimeout = 2 * time.Second

// ErrUndefined is returned when an expression evaluates to undefined
var ErrUndefined = errors.New("expression evaluated to undefined")

// Evaluator runs each expression in a fresh goja runtime seeded with the
// frame's generated bindings
type Evaluator struct {
	timeout time.Duration
	logger  *zap.Logger
}

// New creates an evaluator. A zero timeout selects DefaultTimeout.
func New(timeout time.Duration, logger *zap.Logger) *Evaluator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{timeout: timeout, logger: logger}
}

// Evaluate runs expression with the bindings of generated installed as
// globals. Inner scopes shadow outer ones.
func (e *Evaluator) Evaluate(ctx context.Context, frame model.Frame, expression string, generated *model.Scope) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vm := goja.New()
	if err := install(vm, generated); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	value, err := vm.RunString(expression)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			e.logger.Debug("Evaluation interrupted",
				zap.String("frame", frame.ID),
				zap.String("expression", expression))
			return nil, fmt.Errorf("evaluation interrupted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to evaluate %q: %w", expression, err)
	}

	if value == nil || goja.IsUndefined(value) {
		return nil, ErrUndefined
	}
	return value.Export(), nil
}

// install sets every available binding as a global, outermost scope first
func install(vm *goja.Runtime, generated *model.Scope) error {
	chain := generated.Chain()
	for i := len(chain) - 1; i >= 0; i-- {
		for _, b := range chain[i].Bindings {
			if b.Unavailable {
				continue
			}
			if err := vm.Set(b.Name, b.Value); err != nil {
				return fmt.Errorf("failed to set binding %q: %w", b.Name, err)
			}
		}
	}
	return nil
}
