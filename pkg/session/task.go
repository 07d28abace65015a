package session

import (
	"context"
	"errors"
)

// ErrSuperseded is reported by a Task whose result arrived after a newer request.
var ErrSuperseded = errors.New("session: superseded by a newer request")

// Task is an in-flight photo upload. It completes once the photo is decoded and either
// committed to the session or discarded.
type Task struct {
	id        uint64
	done      chan struct{}
	err       error
	committed bool
}

func newTask(id uint64) *Task {
	return &Task{id: id, done: make(chan struct{})}
}

// ID is the request number; later requests have larger IDs.
func (t *Task) ID() uint64 { return t.id }

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the outcome once Done is closed: nil when committed, ErrSuperseded when a
// newer request won, or the decode error.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Committed reports whether the result became the session's photo.
func (t *Task) Committed() bool {
	select {
	case <-t.done:
		return t.committed
	default:
		return false
	}
}

func (t *Task) finish(committed bool, err error) {
	t.committed = committed
	t.err = err
	close(t.done)
}
