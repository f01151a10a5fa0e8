package attendance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"geoattend/internal/roster"
)

// ErrAlreadyDecided is returned by Put when the (identity, class) pair already has an outcome.
var ErrAlreadyDecided = errors.New("attendance already decided")

// Status is the terminal attendance decision.
type Status string

const (
	Present Status = "present"
	Absent  Status = "absent"
)

// Outcome is the single, immutable decision for one student and class.
type Outcome struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	ClassID   string    `json:"class_id"`
	Status    Status    `json:"status"`
	DecidedAt time.Time `json:"decided_at"`
	Reason    string    `json:"reason"`
}

// Ledger records at most one outcome per (identity, classID).
type Ledger interface {
	Get(ctx context.Context, identity, classID string) (*Outcome, error)
	Put(ctx context.Context, o Outcome) error
	List(ctx context.Context, identity string) ([]Outcome, error)
}

// Reporter pages through outcomes of every student, newest first.
type Reporter interface {
	ListAll(ctx context.Context, classID string, limit, offset int) ([]Outcome, error)
}

type ledgerKey struct {
	identity string
	classID  string
}

// MemoryLedger is the in-process ledger.
type MemoryLedger struct {
	mu       sync.RWMutex
	outcomes map[ledgerKey]Outcome
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{outcomes: make(map[ledgerKey]Outcome)}
}

// Get returns nil when the pair is undecided.
func (l *MemoryLedger) Get(_ context.Context, identity, classID string) (*Outcome, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.outcomes[ledgerKey{identity, classID}]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

// Put stores o unless its pair is already decided.
func (l *MemoryLedger) Put(_ context.Context, o Outcome) error {
	k := ledgerKey{o.Identity, o.ClassID}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.outcomes[k]; exists {
		return ErrAlreadyDecided
	}
	l.outcomes[k] = o
	return nil
}

// List returns identity's outcomes ordered by decision time.
func (l *MemoryLedger) List(_ context.Context, identity string) ([]Outcome, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Outcome
	for k, o := range l.outcomes {
		if k.identity == identity {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DecidedAt.Equal(out[j].DecidedAt) {
			return out[i].ClassID < out[j].ClassID
		}
		return out[i].DecidedAt.Before(out[j].DecidedAt)
	})
	return out, nil
}

// ListAll implements Reporter.
func (l *MemoryLedger) ListAll(_ context.Context, classID string, limit, offset int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	l.mu.RLock()
	var out []Outcome
	for k, o := range l.outcomes {
		if classID == "" || k.classID == classID {
			out = append(out, o)
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DecidedAt.After(out[j].DecidedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SweepExpired writes an automatic absent outcome for every ended class of
// identity that has none yet. Repeated sweeps write nothing new.
func SweepExpired(ctx context.Context, l Ledger, identity string, classes []roster.ClassSession, now time.Time) ([]Outcome, error) {
	var written []Outcome
	for _, c := range classes {
		if c.Phase(now) != roster.Ended {
			continue
		}
		existing, err := l.Get(ctx, identity, c.ID)
		if err != nil {
			return written, err
		}
		if existing != nil {
			continue
		}
		o := newOutcome(identity, c.ID, Absent, ReasonClassExpired, now)
		if err := l.Put(ctx, o); err != nil {
			if errors.Is(err, ErrAlreadyDecided) {
				continue
			}
			return written, err
		}
		written = append(written, o)
	}
	return written, nil
}
