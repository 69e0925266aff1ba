package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Task is a named unit of work.
type Task struct {
	Name string
	Func func(context.Context) error
}

// Run executes tasks with at most limit running at once; limit <= 0 runs
// all of them together. Every task runs to completion. Failures are joined
// in task order, each prefixed with the task name.
//
// Example:
//
//	tasks := []Task{
//	    {Name: "com.example.Sensor@1.0.0", Func: publishSensor},
//	    {Name: "com.example.Bridge@2.1.0", Func: publishBridge},
//	}
//	if err := Run(ctx, 4, tasks); err != nil {
//	    return err
//	}
func Run(ctx context.Context, limit int, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(tasks) {
		limit = len(tasks)
	}

	errs := make([]error, len(tasks))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := task.Func(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", task.Name, err)
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}
