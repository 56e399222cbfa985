package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Entry is one journal row.
type Entry struct {
	ID        int64           `json:"id"`
	ReactorID string          `json:"reactor_id"`
	Seq       int64           `json:"seq"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Digest    string          `json:"digest"`
}

// IsCommit reports whether the entry is a committed state.
func (e Entry) IsCommit() bool {
	return e.Kind != KindAction
}

// ReactorInfo summarizes one journaled reactor.
type ReactorInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Commits int    `json:"commits"`
	Actions int    `json:"actions"`
	LastSeq int64  `json:"last_seq"`
}

// ReadEntries returns every entry of a reactor in append order.
// Returns a NotFoundError if the reactor was never registered.
func (j *Journal) ReadEntries(ctx context.Context, reactorID string) ([]Entry, error) {
	if _, err := j.reactorName(ctx, reactorID); err != nil {
		return nil, err
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, reactor_id, seq, kind, payload, digest
		FROM entries
		WHERE reactor_id = ?
		ORDER BY id ASC
	`, reactorID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			payload string
		)
		if err := rows.Scan(&e.ID, &e.ReactorID, &e.Seq, &e.Kind, &payload, &e.Digest); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Reactors lists every registered reactor, ordered by id. UUIDv7 ids make
// this creation order.
func (j *Journal) Reactors(ctx context.Context) ([]ReactorInfo, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT r.id, r.name,
			COUNT(CASE WHEN e.kind != 'action' THEN 1 END),
			COUNT(CASE WHEN e.kind = 'action' THEN 1 END),
			COALESCE(MAX(CASE WHEN e.kind != 'action' THEN e.seq END), 0)
		FROM reactors r
		LEFT JOIN entries e ON e.reactor_id = r.id
		GROUP BY r.id, r.name
		ORDER BY r.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query reactors: %w", err)
	}
	defer rows.Close()

	infos := []ReactorInfo{}
	for rows.Next() {
		var info ReactorInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.Commits, &info.Actions, &info.LastSeq); err != nil {
			return nil, fmt.Errorf("scan reactor: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reactors: %w", err)
	}
	return infos, nil
}

// Restore decodes the latest committed state of a reactor into state and
// returns its seq, so a new reactor can continue from it with
// reactor.WithClock(reactor.NewClockAt(seq)).
func (j *Journal) Restore(ctx context.Context, reactorID string, state any) (int64, error) {
	if _, err := j.reactorName(ctx, reactorID); err != nil {
		return 0, err
	}

	var (
		seq     int64
		payload string
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT seq, payload FROM entries
		WHERE reactor_id = ? AND kind != 'action'
		ORDER BY seq DESC
		LIMIT 1
	`, reactorID).Scan(&seq, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &NotFoundError{ReactorID: reactorID}
	}
	if err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), state); err != nil {
		return 0, fmt.Errorf("restore: decode state: %w", err)
	}
	return seq, nil
}

// Verify recomputes the digest of every entry of a reactor.
// Returns a DigestMismatchError for the first entry that does not match.
func (j *Journal) Verify(ctx context.Context, reactorID string) error {
	entries, err := j.ReadEntries(ctx, reactorID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		actual := Digest(domainFor(e.Kind), e.Payload)
		if actual != e.Digest {
			return &DigestMismatchError{EntryID: e.ID, Expected: e.Digest, Actual: actual}
		}
	}
	return nil
}

func (j *Journal) reactorName(ctx context.Context, reactorID string) (string, error) {
	var name string
	err := j.db.QueryRowContext(ctx, `SELECT name FROM reactors WHERE id = ?`, reactorID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &NotFoundError{ReactorID: reactorID}
	}
	if err != nil {
		return "", fmt.Errorf("read reactor: %w", err)
	}
	return name, nil
}
