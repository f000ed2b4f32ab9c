package gather

import (
	"context"
	"fmt"
	"sync"
	"time"

	"coherence/internal/resolve"
)

const (
	// DefaultPerSourceTimeout bounds each version source call.
	DefaultPerSourceTimeout = 2 * time.Second
)

// FetchFunc retrieves the known versions of a key from a single source.
type FetchFunc func(ctx context.Context, sourceName string) ([]resolve.VersionTag, error)

// Result represents the outcome of a version collection fan-out.
type Result struct {
	Success      bool
	Responses    int
	Required     int
	Sources      int
	Versions     []resolve.VersionTag
	ErrorMessage string
}

// Collect fans out to all version sources in parallel and succeeds once
// `required` sources have responded. required <= 0 defaults to a majority.
// Versions from all responding sources are concatenated; deduplication is
// the caller's concern (resolve.Distinct).
func Collect(ctx context.Context, sources []string, required int, fetchFn FetchFunc) Result {
	if len(sources) == 0 {
		return Result{
			Success:      false,
			ErrorMessage: "no version sources provided",
		}
	}

	if required <= 0 {
		required = (len(sources) / 2) + 1 // default: majority
	}

	if required > len(sources) {
		return Result{
			Success:      false,
			ErrorMessage: fmt.Sprintf("required=%d exceeds source count=%d", required, len(sources)),
		}
	}

	var (
		mu        sync.Mutex
		responses int
		versions  []resolve.VersionTag
		errs      []error
		wg        sync.WaitGroup
	)

	sourceCtx, cancel := context.WithTimeout(ctx, DefaultPerSourceTimeout)
	defer cancel()

	for _, name := range sources {
		wg.Add(1)
		go func(src string) {
			defer wg.Done()

			vs, err := fetchFn(sourceCtx, src)
			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				responses++
				versions = append(versions, vs...)
			} else {
				errs = append(errs, fmt.Errorf("source %s: %w", src, err))
			}
		}(name)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// All sources responded or failed
	case <-ctx.Done():
		mu.Lock()
		defer mu.Unlock()
		return Result{
			Success:      false,
			Responses:    responses,
			Required:     required,
			Sources:      len(sources),
			Versions:     versions,
			ErrorMessage: fmt.Sprintf("context cancelled: %v", ctx.Err()),
		}
	}

	mu.Lock()
	defer mu.Unlock()

	if responses >= required {
		return Result{
			Success:   true,
			Responses: responses,
			Required:  required,
			Sources:   len(sources),
			Versions:  versions,
		}
	}

	errMsg := fmt.Sprintf("insufficient responses: got=%d required=%d sources=%d", responses, required, len(sources))
	if len(errs) > 0 {
		errMsg += fmt.Sprintf(" errors=%v", errs[:min(3, len(errs))])
	}

	return Result{
		Success:      false,
		Responses:    responses,
		Required:     required,
		Sources:      len(sources),
		Versions:     versions,
		ErrorMessage: errMsg,
	}
}
