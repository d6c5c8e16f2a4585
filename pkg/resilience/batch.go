package resilience

import (
	"context"
	"fmt"

	"github.com/erpbridge/platform/pkg/common/logger"
)

// Chunk splits items into contiguous batches of at most size elements,
// preserving order. A non-positive size yields a single chunk.
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]T{items}
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// BatchFailure records one failed chunk by its position in the original list.
type BatchFailure struct {
	Index      int
	StartIndex int
	Size       int
	Err        error
}

// BatchError aggregates chunk failures; it is returned only when every chunk
// failed, so the caller knows nothing was delivered.
type BatchError struct {
	Failures  []BatchFailure
	Succeeded int
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("all %d batches failed (%d succeeded before)", len(e.Failures), e.Succeeded)
}

// BatchReport summarizes a ProcessInBatches call.
type BatchReport struct {
	Batches   int
	Succeeded int
	Failures  []BatchFailure
}

// Err returns an aggregate *BatchError when no chunk succeeded; partial
// failure is not an error at this level, the caller inspects Failures.
func (r BatchReport) Err() error {
	if r.Batches > 0 && r.Succeeded == 0 && len(r.Failures) > 0 {
		return &BatchError{Failures: r.Failures, Succeeded: r.Succeeded}
	}
	return nil
}

// ProcessInBatches sends items chunk by chunk. One failing chunk never aborts
// the rest; each outcome is recorded independently in the report.
func ProcessInBatches[T any](ctx context.Context, items []T, size int, send func(ctx context.Context, batch []T, startIndex int) error) BatchReport {
	chunks := Chunk(items, size)
	report := BatchReport{Batches: len(chunks)}

	start := 0
	for i, chunk := range chunks {
		if err := send(ctx, chunk, start); err != nil {
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"batch": i + 1,
				"size":  len(chunk),
			}).Error("Batch failed")
			report.Failures = append(report.Failures, BatchFailure{
				Index:      i,
				StartIndex: start,
				Size:       len(chunk),
				Err:        err,
			})
		} else {
			report.Succeeded++
		}
		start += len(chunk)
	}
	return report
}
