package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/ethereum-optimism/infra/bettertest/types"
)

// completion is sent by a worker once its test case has put a fragment on the
// result channel
type completion struct {
	workerID int
	test     string
	passed   bool
	// panicked holds the recovered value when the pipeline panicked
	panicked any
}

var errWorkerPanicked = errors.New("worker panicked")

// runParallel runs test cases on a pool of workers. Only the calling goroutine
// drains the result channel, once after each completion, so the sink never
// sees concurrent calls. A panic in a worker stops dispatching and is raised
// again on the calling goroutine once every worker has exited.
func (r *runner) runParallel(ctx context.Context, cases []types.TestCase, results *ResultChannel, consume func(types.ReportFragment) error) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	concurrency := r.determineConcurrency(len(cases))
	r.log.Info("Running tests in parallel", "totalTests", len(cases), "concurrency", concurrency)

	bufferSize := min(concurrency*2, 100)
	workChan := make(chan types.TestCase, bufferSize)
	doneChan := make(chan completion, bufferSize)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go r.worker(ctx, i, &wg, workChan, results, doneChan)
	}

	go func() {
		defer close(workChan)
		for _, tc := range cases {
			select {
			case workChan <- tc:
			case <-ctx.Done():
				r.log.Debug("Context cancelled while dispatching tests")
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(doneChan)
	}()

	var consumeErrs []error
	var panicked any
	completed := 0
	for done := range doneChan {
		if done.panicked != nil {
			if panicked == nil {
				panicked = done.panicked
				cancel(errWorkerPanicked)
			}
			continue
		}
		completed++
		r.log.Debug("Test completed", "workerID", done.workerID, "test", done.test,
			"passed", done.passed, "completed", completed, "total", len(cases))
		if err := results.Drain(consume); err != nil {
			consumeErrs = append(consumeErrs, err)
		}
	}
	// Workers are gone; pick up anything left behind.
	if err := results.Drain(consume); err != nil {
		consumeErrs = append(consumeErrs, err)
	}
	if panicked != nil {
		panic(panicked)
	}

	if len(consumeErrs) > 0 {
		return fmt.Errorf("failed to consume report fragments: %w", errors.Join(consumeErrs...))
	}
	if completed < len(cases) {
		return fmt.Errorf("test run interrupted after %d of %d tests: %w", completed, len(cases), context.Cause(ctx))
	}
	return nil
}

// worker runs test cases until the work channel closes or the context is cancelled
func (r *runner) worker(ctx context.Context, id int, wg *sync.WaitGroup, workChan <-chan types.TestCase, results *ResultChannel, doneChan chan<- completion) {
	defer wg.Done()

	r.log.Trace("Worker starting", "workerID", id)
	defer r.log.Trace("Worker exiting", "workerID", id)

	for {
		select {
		case tc, ok := <-workChan:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			// The consumer drains doneChan until every worker exits, so this never blocks forever.
			done := r.runTest(ctx, id, tc, results)
			doneChan <- done
			if done.panicked != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// runTest runs one pipeline and turns a panic into a completion for the consumer
func (r *runner) runTest(ctx context.Context, id int, tc types.TestCase, results *ResultChannel) (done completion) {
	done = completion{workerID: id, test: tc.Name()}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Test pipeline panicked", "workerID", id, "test", tc.Name(),
				"panic", p, "stack", string(debug.Stack()))
			done.panicked = p
		}
	}()

	r.ui.StartTest(tc.Name())
	done.passed = r.pipeline.Run(ctx, tc, results)
	return done
}
