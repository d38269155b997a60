// Package bulk runs a function over a set of items, sequentially or on a
// worker pool, and tallies the outcome.
package bulk

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
)

// Operation configures a bulk run.
type Operation struct {
	Jobs            int
	ContinueOnError bool
	Ordered         bool
	// Progress receives a progress bar when it is a terminal.
	Progress *os.File
	Logger   *slog.Logger
}

// Result tallies a bulk run.
type Result struct {
	TotalItems int
	Succeeded  int
	Failed     int
	Errors     []ItemError
}

// ItemError is the failure of one item.
type ItemError struct {
	Item  string
	Error error
}

// Func processes one item.
type Func[T any] func(ctx context.Context, item T) error

// Execute runs fn for every item. name labels items in errors and logs.
// Items not started because ctx was cancelled count as failed with the
// context error.
func Execute[T any](ctx context.Context, op *Operation, items []T, name func(T) string, fn Func[T]) *Result {
	if len(items) == 0 {
		return &Result{}
	}

	jobs := op.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	if op.Ordered || jobs == 1 {
		return executeSequential(ctx, op, items, name, fn)
	}
	return executeParallel(ctx, op, items, name, fn, jobs)
}

func (op *Operation) logger() *slog.Logger {
	if op.Logger == nil {
		return slog.Default()
	}
	return op.Logger
}

func (op *Operation) showProgress() bool {
	return op.Progress != nil && isatty(op.Progress)
}

func executeSequential[T any](ctx context.Context, op *Operation, items []T, name func(T) string, fn Func[T]) *Result {
	result := &Result{TotalItems: len(items)}
	log := op.logger()

	for i, item := range items {
		if op.showProgress() {
			fmt.Fprintf(op.Progress, "\rProcessing %d/%d...", i+1, len(items))
		}

		err := ctx.Err()
		if err == nil {
			err = fn(ctx, item)
		}
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ItemError{Item: name(item), Error: err})
			log.Debug("bulk item failed", "item", name(item), "error", err)
			if !op.ContinueOnError {
				break
			}
			continue
		}
		result.Succeeded++
	}

	if op.showProgress() {
		fmt.Fprintf(op.Progress, "\r\033[K")
	}
	return result
}

func executeParallel[T any](ctx context.Context, op *Operation, items []T, name func(T) string, fn Func[T], workers int) *Result {
	result := &Result{TotalItems: len(items)}
	log := op.logger()

	queue := make(chan T, len(items))
	for _, item := range items {
		queue <- item
	}
	close(queue)

	var (
		completed int32
		succeeded int32
		failed    int32
		stop      int32
		errorsMu  sync.Mutex
	)

	var progressDone chan struct{}
	if op.showProgress() {
		progressDone = make(chan struct{})
		go func() {
			defer close(progressDone)
			for {
				select {
				case <-progressDone:
					return
				default:
					c := atomic.LoadInt32(&completed)
					s := atomic.LoadInt32(&succeeded)
					f := atomic.LoadInt32(&failed)
					pct := int(float64(c) / float64(len(items)) * 100)
					fmt.Fprintf(op.Progress, "\rProcessing with %d workers... [%s] %d/%d (✓ %d ✗ %d)",
						workers, progressBar(pct, 20), c, len(items), s, f)
				}
			}
		}()
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				if !op.ContinueOnError && atomic.LoadInt32(&stop) == 1 {
					break
				}

				err := ctx.Err()
				if err == nil {
					err = fn(ctx, item)
				}
				atomic.AddInt32(&completed, 1)

				if err != nil {
					atomic.AddInt32(&failed, 1)
					errorsMu.Lock()
					result.Errors = append(result.Errors, ItemError{Item: name(item), Error: err})
					errorsMu.Unlock()
					log.Debug("bulk item failed", "item", name(item), "error", err)
					if !op.ContinueOnError {
						atomic.StoreInt32(&stop, 1)
					}
					continue
				}
				atomic.AddInt32(&succeeded, 1)
			}
		}()
	}
	wg.Wait()

	if progressDone != nil {
		progressDone <- struct{}{}
		<-progressDone
		fmt.Fprintf(op.Progress, "\r\033[K")
	}

	result.Succeeded = int(succeeded)
	result.Failed = int(failed)
	return result
}

// ExitCode returns 0 when everything succeeded, 5 on partial success and 1
// when nothing succeeded.
func (r *Result) ExitCode() int {
	if r.Failed == 0 {
		return 0
	}
	if r.Succeeded > 0 {
		return 5
	}
	return 1
}

// PrintSummary prints a human-readable summary of the result
func (r *Result) PrintSummary(w io.Writer) {
	if r.Failed == 0 {
		fmt.Fprintf(w, "\n✓ All %d operations succeeded\n", r.TotalItems)
	} else if r.Succeeded == 0 {
		fmt.Fprintf(w, "\n✗ All %d operations failed\n", r.TotalItems)
	} else {
		fmt.Fprintf(w, "\n⚠ Partial success: %d succeeded, %d failed (out of %d)\n",
			r.Succeeded, r.Failed, r.TotalItems)
	}

	errs := r.Errors
	if len(errs) > 10 {
		fmt.Fprintf(w, "\nShowing first 10 errors (of %d):\n", len(errs))
		errs = errs[:10]
	} else if len(errs) > 0 {
		fmt.Fprintf(w, "\nErrors:\n")
	}
	for _, e := range errs {
		fmt.Fprintf(w, "  %s: %v\n", e.Item, e.Error)
	}
}

func progressBar(percent, width int) string {
	filled := percent * width / 100
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
