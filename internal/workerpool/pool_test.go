package workerpool

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestRunAllPreservesIndexOrder(t *testing.T) {
	p := New(zap.NewNop(), Config{NumWorkers: 4})
	tasks := make([]Task, 20)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) (any, error) {
			return i * 2, nil
		}
	}
	results := p.RunAll(context.Background(), tasks)
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("task %d unexpected error: %v", i, r.Err)
		}
		if r.Value.(int) != i*2 {
			t.Errorf("task %d: expected %d, got %v", i, i*2, r.Value)
		}
	}
}

func TestRunAllRecoversPanic(t *testing.T) {
	p := New(zap.NewNop(), Config{NumWorkers: 2})
	tasks := []Task{
		func(ctx context.Context) (any, error) { panic("boom") },
		func(ctx context.Context) (any, error) { return 1, nil },
	}
	results := p.RunAll(context.Background(), tasks)
	if results[0].Err == nil {
		t.Errorf("expected panic to surface as an error on task 0")
	}
	if results[1].Err != nil || results[1].Value.(int) != 1 {
		t.Errorf("expected task 1 to complete normally, got %+v", results[1])
	}
	if p.Snapshot().Panicked != 1 {
		t.Errorf("expected panicked metric to be 1")
	}
}

func TestRunAllPropagatesTaskError(t *testing.T) {
	p := New(zap.NewNop(), Config{NumWorkers: 2})
	wantErr := errors.New("trial failed")
	tasks := []Task{
		func(ctx context.Context) (any, error) { return nil, wantErr },
	}
	results := p.RunAll(context.Background(), tasks)
	if !errors.Is(results[0].Err, wantErr) {
		t.Errorf("expected wrapped task error, got %v", results[0].Err)
	}
}
