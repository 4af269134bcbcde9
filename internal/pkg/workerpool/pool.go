package workerpool

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Policy selects how a task failure affects the rest of the fan-out.
type Policy int

const (
	// FailFast propagates the first task error to the caller without
	// waiting for siblings. Already-started siblings run to completion
	// but their results are discarded by the caller.
	FailFast Policy = iota
	// IsolateErrors runs every task to completion and reports each
	// task's error in its own slot; no task aborts another.
	IsolateErrors
)

type Task func(ctx context.Context) error

// Run executes tasks with at most workers running concurrently.
//
// Under IsolateErrors the returned slice holds one entry per task (nil on
// success) and the error return is nil unless the pool itself could not be
// created. Under FailFast the error return is the first task failure and
// the slice is nil when that happens; on full success the slice holds all
// nil entries.
func Run(ctx context.Context, workers int, policy Policy, tasks []Task) ([]error, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	if workers <= 0 || workers > len(tasks) {
		workers = len(tasks)
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		errs  = make([]error, len(tasks))
		first = make(chan error, 1)
	)
	for i, task := range tasks {
		i, task := i, task
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			err := task(ctx)
			if err == nil {
				return
			}
			mu.Lock()
			errs[i] = err
			mu.Unlock()
			select {
			case first <- err:
			default:
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			errs[i] = submitErr
			mu.Unlock()
			select {
			case first <- submitErr:
			default:
			}
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		pool.Release()
		close(done)
	}()

	if policy == FailFast {
		select {
		case err := <-first:
			// Siblings keep running in the background; their results
			// are discarded but their side effects are not rolled back.
			return nil, err
		case <-done:
			select {
			case err := <-first:
				return nil, err
			default:
			}
			return errs, nil
		}
	}

	<-done
	return errs, nil
}
