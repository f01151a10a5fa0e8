package attendance

import (
	"context"
	"fmt"

	"geoattend/internal/roster"
)

// ClassView is one row of a student's dashboard.
type ClassView struct {
	Class   roster.ClassSession `json:"class"`
	Time    string              `json:"time"`
	Phase   roster.Phase        `json:"phase"`
	Outcome *Outcome            `json:"outcome,omitempty"`
	// CanAttend is true when the class is live and still undecided.
	CanAttend bool `json:"can_attend"`
}

// Sweep marks the student's expired, undecided classes absent.
func (s *Service) Sweep(ctx context.Context, identity string) ([]Outcome, error) {
	classes, err := s.classes.ClassesFor(identity)
	if err != nil {
		return nil, err
	}
	swept, err := SweepExpired(ctx, s.ledger, identity, classes, s.now())
	for _, o := range swept {
		s.recorded(o)
	}
	return swept, err
}

// Dashboard sweeps expired classes and then lists the student's classes with
// their current phase and outcome.
func (s *Service) Dashboard(ctx context.Context, identity string) ([]ClassView, error) {
	if _, err := s.Sweep(ctx, identity); err != nil {
		return nil, fmt.Errorf("attendance: sweep %s: %w", identity, err)
	}
	classes, err := s.classes.ClassesFor(identity)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]ClassView, 0, len(classes))
	for _, c := range classes {
		o, err := s.ledger.Get(ctx, identity, c.ID)
		if err != nil {
			return nil, err
		}
		phase := c.Phase(now)
		views = append(views, ClassView{
			Class:     c,
			Time:      c.Window.String(),
			Phase:     phase,
			Outcome:   o,
			CanAttend: o == nil && phase == roster.Live,
		})
	}
	return views, nil
}
