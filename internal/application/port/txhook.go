package port

import (
	"context"
	"sync"
)

type hookKey struct{}

// CommitHooks collects callbacks to run once the surrounding transaction
// commits. The transaction manager installs one per outermost transaction.
type CommitHooks struct {
	mu  sync.Mutex
	fns []func()
}

func (h *CommitHooks) add(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns = append(h.fns, fn)
}

// Run executes the collected hooks in registration order
func (h *CommitHooks) Run() {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// InstallCommitHooks returns a context carrying a fresh hook list. Nested
// transactions must not call this again; hooks belong to the outermost one.
func InstallCommitHooks(ctx context.Context) (context.Context, *CommitHooks) {
	hooks := &CommitHooks{}
	return context.WithValue(ctx, hookKey{}, hooks), hooks
}

// AfterCommit schedules fn to run when the surrounding transaction commits.
// When no transaction is in flight it runs fn immediately.
func AfterCommit(ctx context.Context, fn func()) {
	if hooks, ok := ctx.Value(hookKey{}).(*CommitHooks); ok {
		hooks.add(fn)
		return
	}
	fn()
}
