package resilience

import (
	"context"
	"fmt"
	"strings"
)

// Attempt is one named step in an ordered fallback list.
type Attempt[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// ExhaustedError is returned by FirstSuccess when every attempt failed.
// Unwrap yields the last attempt's error.
type ExhaustedError struct {
	Names []string
	Errs  []error
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Names))
	for i, n := range e.Names {
		parts[i] = fmt.Sprintf("%s: %v", n, e.Errs[i])
	}
	return "all attempts failed: " + strings.Join(parts, "; ")
}

func (e *ExhaustedError) Unwrap() error {
	if len(e.Errs) == 0 {
		return nil
	}
	return e.Errs[len(e.Errs)-1]
}

// Last returns the final attempt's error.
func (e *ExhaustedError) Last() error { return e.Unwrap() }

// FirstSuccess runs attempts in order and returns the first success along
// with its index. A cancelled context stops the walk with ctx.Err().
func FirstSuccess[T any](ctx context.Context, attempts []Attempt[T]) (T, int, error) {
	var zero T
	if len(attempts) == 0 {
		return zero, -1, &ExhaustedError{}
	}

	ex := &ExhaustedError{}
	for i, a := range attempts {
		if err := ctx.Err(); err != nil {
			return zero, -1, err
		}
		val, err := a.Run(ctx)
		if err == nil {
			return val, i, nil
		}
		ex.Names = append(ex.Names, a.Name)
		ex.Errs = append(ex.Errs, err)
	}
	return zero, -1, ex
}
