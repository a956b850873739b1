// Package batch runs per-item work on a bounded pool and keeps input order.
package batch

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Workers returns n, or GOMAXPROCS when n is not positive.
func Workers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}

// Map applies fn to every item with at most limit goroutines in flight and
// returns results in input order. A panic inside fn is contained to its item:
// onPanic, when set, supplies that item's result; otherwise the zero value is used.
func Map[T, R any](items []T, limit int, fn func(T) R, onPanic func(int, T, any) R) []R {
	out := make([]R, len(items))
	if len(items) == 0 {
		return out
	}
	var g errgroup.Group
	g.SetLimit(Workers(limit))
	for i, item := range items {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil && onPanic != nil {
					out[i] = onPanic(i, item, p)
				}
			}()
			out[i] = fn(item)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
