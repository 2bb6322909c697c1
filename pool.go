package wspool

import "context"

// RunPool launches every task concurrently under a fresh Supervisor with
// default configuration and returns when all tasks are terminal or the
// context is cancelled and the grace period has elapsed.
//
// It always returns normally with exactly one Outcome per factory, in no
// particular order; per-task errors live in the outcomes. An empty factory
// list returns an empty list immediately.
func RunPool(ctx context.Context, factories []TaskFactory) []Outcome {
	return NewSupervisor(DefaultConfig(), nil).Run(ctx, factories)
}
