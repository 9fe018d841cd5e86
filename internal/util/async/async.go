package async

import (
	"context"
	"errors"
	"fmt"
)

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// Run executes tasks concurrently when parallel is true, otherwise one after
// another in order, stopping at the first failure.
func Run(ctx context.Context, tasks []Task, parallel bool) error {
	if parallel {
		return RunParallel(ctx, tasks)
	}
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := task.Func(ctx); err != nil {
			return fmt.Errorf("%s: %w", task.Name, err)
		}
	}
	return nil
}

// RunParallel executes multiple tasks in parallel and returns the first error encountered.
// All tasks are started concurrently, and the function waits for all to complete.
// The context handed to the tasks is cancelled as soon as one of them fails.
//
// Example:
//
//	tasks := []Task{
//	    {Name: "corp", Func: bootstrapCorp},
//	    {Name: "dmz", Func: bootstrapDMZ},
//	}
//	if err := RunParallel(ctx, tasks); err != nil {
//	    return err
//	}
func RunParallel(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		name string
		err  error
	}

	resultChan := make(chan result, len(tasks))

	for _, task := range tasks {
		go func() {
			err := task.Func(ctx)
			if err != nil {
				cancel()
			}
			resultChan <- result{name: task.Name, err: err}
		}()
	}

	// siblings cancelled by a failure report context.Canceled; prefer the cause
	var firstError, firstCancel error
	for range len(tasks) {
		res := <-resultChan
		switch {
		case res.err == nil:
		case errors.Is(res.err, context.Canceled) && ctx.Err() != nil:
			if firstCancel == nil {
				firstCancel = fmt.Errorf("%s: %w", res.name, res.err)
			}
		case firstError == nil:
			firstError = fmt.Errorf("%s: %w", res.name, res.err)
		}
	}

	if firstError != nil {
		return firstError
	}
	return firstCancel
}
