package worker

import "context"

// FuncTask wraps a function as a task.
type FuncTask struct {
	id string
	fn func(ctx context.Context) error
}

// NewFuncTask creates a task from a function.
func NewFuncTask(id string, fn func(ctx context.Context) error) *FuncTask {
	return &FuncTask{id: id, fn: fn}
}

// ID returns the task identifier.
func (f *FuncTask) ID() string {
	return f.id
}

// Execute runs the function unless ctx is already done.
func (f *FuncTask) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.fn(ctx)
}
