package journal

import (
	"context"
	"fmt"
)

// Entry kinds. Commit kinds match reactor.CommitKind values.
const (
	KindInitial = "initial"
	KindSync    = "sync"
	KindAsync   = "async"
	KindAction  = "action"
)

// RegisterReactor records a reactor instance. Idempotent.
func (j *Journal) RegisterReactor(ctx context.Context, id, name string) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO reactors (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, name)
	if err != nil {
		return fmt.Errorf("register reactor: %w", err)
	}
	return nil
}

// WriteCommit appends a committed state. Writing the same (reactor, seq)
// twice is silently ignored.
//
// The state is stored as canonical JSON alongside its digest.
func (j *Journal) WriteCommit(ctx context.Context, reactorID string, seq int64, kind string, state any) error {
	switch kind {
	case KindInitial, KindSync, KindAsync:
	default:
		return fmt.Errorf("write commit: invalid kind %q", kind)
	}
	if err := j.insert(ctx, reactorID, seq, kind, state); err != nil {
		return fmt.Errorf("write commit: %w", err)
	}
	return nil
}

// WriteAction appends an action. afterSeq is the seq of the commit that
// was current when the action was sent.
func (j *Journal) WriteAction(ctx context.Context, reactorID string, afterSeq int64, action any) error {
	if err := j.insert(ctx, reactorID, afterSeq, KindAction, action); err != nil {
		return fmt.Errorf("write action: %w", err)
	}
	return nil
}

func (j *Journal) insert(ctx context.Context, reactorID string, seq int64, kind string, v any) error {
	payload, err := Canonical(v)
	if err != nil {
		return err
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO entries (reactor_id, seq, kind, payload, digest)
		VALUES (?, ?, ?, ?, ?)
	`,
		reactorID,
		seq,
		kind,
		string(payload),
		Digest(domainFor(kind), payload),
	)
	return err
}
