package resilience

import (
	"context"
	"errors"
	"testing"
)

func TestChunkSizesAndOrder(t *testing.T) {
	items := make([]int, 250)
	for i := range items {
		items[i] = i
	}

	chunks := Chunk(items, 100)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	wantSizes := []int{100, 100, 50}
	next := 0
	for i, chunk := range chunks {
		if len(chunk) != wantSizes[i] {
			t.Fatalf("chunk %d: expected %d items, got %d", i, wantSizes[i], len(chunk))
		}
		for _, v := range chunk {
			if v != next {
				t.Fatalf("chunk %d: expected %d, got %d", i, next, v)
			}
			next++
		}
	}
}

func TestChunkEdgeCases(t *testing.T) {
	if got := Chunk([]int{}, 10); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
	if got := Chunk([]int{1, 2, 3}, 0); len(got) != 1 || len(got[0]) != 3 {
		t.Fatalf("expected one chunk for non-positive size, got %v", got)
	}
	if got := Chunk([]int{1, 2}, 5); len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("expected one short chunk, got %v", got)
	}
}

func TestProcessInBatchesPartialFailure(t *testing.T) {
	items := make([]string, 25)
	boom := errors.New("send failed")

	report := ProcessInBatches(context.Background(), items, 10, func(_ context.Context, batch []string, start int) error {
		if start == 10 {
			return boom
		}
		return nil
	})

	if report.Batches != 3 || report.Succeeded != 2 {
		t.Fatalf("expected 2/3 succeeded, got %d/%d", report.Succeeded, report.Batches)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(report.Failures))
	}
	if f := report.Failures[0]; f.Index != 1 || f.StartIndex != 10 || f.Size != 10 || !errors.Is(f.Err, boom) {
		t.Fatalf("unexpected failure record: %+v", f)
	}
	if report.Err() != nil {
		t.Fatal("partial failure must not surface as an aggregate error")
	}
}

func TestProcessInBatchesAllFailed(t *testing.T) {
	items := make([]string, 15)
	boom := errors.New("send failed")

	report := ProcessInBatches(context.Background(), items, 10, func(context.Context, []string, int) error {
		return boom
	})

	err := report.Err()
	if err == nil {
		t.Fatal("expected an aggregate error when every chunk fails")
	}
	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("expected *BatchError, got %T", err)
	}
	if len(batchErr.Failures) != 2 || batchErr.Succeeded != 0 {
		t.Fatalf("unexpected aggregate: %+v", batchErr)
	}
}

func TestProcessInBatchesEmptyInput(t *testing.T) {
	report := ProcessInBatches(context.Background(), []int(nil), 10, func(context.Context, []int, int) error {
		t.Fatal("send must not be called for empty input")
		return nil
	})
	if report.Batches != 0 || report.Err() != nil {
		t.Fatalf("unexpected report for empty input: %+v", report)
	}
}
