// Package async runs a batch of independent named tasks on a bounded set of workers.
package async

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Task struct {
	Name    string
	Execute func(ctx context.Context) (interface{}, error)
}

type Result struct {
	Name     string
	Data     interface{}
	Err      error
	Duration time.Duration
}

// Pool is safe to reuse; every Execute call gets its own channels.
type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

func (p *Pool) worker(ctx context.Context, tasks <-chan Task, results chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()
	for task := range tasks {
		results <- run(ctx, task)
	}
}

// run executes a single task, turning a panic into an error result.
func run(ctx context.Context, task Task) (result Result) {
	start := time.Now()
	result.Name = task.Name
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
		result.Duration = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}
	result.Data, result.Err = task.Execute(ctx)
	return result
}

// Execute runs every task and returns one Result per task name. Tasks that
// could not start before ctx was cancelled report ctx.Err().
func (p *Pool) Execute(ctx context.Context, tasks []Task) map[string]Result {
	results := make(map[string]Result, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	taskCh := make(chan Task)
	resultCh := make(chan Result, len(tasks))

	workers := p.workerCount
	if workers > len(tasks) {
		workers = len(tasks)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(ctx, taskCh, resultCh, &wg)
	}

	go func() {
		for _, task := range tasks {
			taskCh <- task
		}
		close(taskCh)
	}()

	wg.Wait()
	close(resultCh)

	for result := range resultCh {
		results[result.Name] = result
	}
	return results
}
