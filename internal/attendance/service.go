package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"geoattend/internal/authenticator"
	"geoattend/internal/credential"
	"geoattend/internal/geo"
	"geoattend/internal/notify"
	"geoattend/internal/roster"
)

// ErrNotOpen is returned when attendance is requested before a class starts.
var ErrNotOpen = errors.New("class is not open for attendance yet")

const (
	ReasonBiometricVerified   = "biometric verified"
	ReasonClassExpired        = "class time expired"
	ReasonIdentityMissing     = "identity missing"
	ReasonLocationUnavailable = "location unavailable"
	ReasonClassUnlocated      = "class location not configured"
)

// State is a step of the attendance flow.
type State string

const (
	NotStarted       State = "not_started"
	LocationPending  State = "location_pending"
	LocationVerified State = "location_verified"
	BiometricPending State = "biometric_pending"
	Decided          State = "decided"
)

// Verifier is the second factor. *authenticator.Gateway satisfies it.
type Verifier interface {
	HasCredential(ctx context.Context, identity string) (bool, error)
	Register(ctx context.Context, identity string) (credential.Credential, error)
	Authenticate(ctx context.Context, identity string) (authenticator.AssertionResult, error)
}

// Classes resolves class sessions by id. *roster.Roster satisfies it.
type Classes interface {
	Class(id string) (roster.ClassSession, error)
	ClassesFor(roll string) ([]roster.ClassSession, error)
}

// Context is the per-login session handed to Run. Location is nil when the
// device produced no fix.
type Context struct {
	Student  roster.Student
	Location *geo.Point
}

// Observer receives every state transition of a flow.
type Observer func(identity, classID string, from, to State)

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithObserver registers a transition observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithDistanceObserver is called with every computed device-to-class distance.
func WithDistanceObserver(f func(classID string, meters float64)) Option {
	return func(s *Service) { s.onDistance = f }
}

// WithOutcomeObserver is called once for every outcome this service records.
func WithOutcomeObserver(f func(Outcome)) Option {
	return func(s *Service) { s.onOutcome = f }
}

// Service sequences the location check and the biometric ceremony and records
// exactly one outcome per student and class.
type Service struct {
	ledger     Ledger
	classes    Classes
	verifier   Verifier
	notifier   notify.Notifier
	now        func() time.Time
	observer   Observer
	onDistance func(classID string, meters float64)
	onOutcome  func(Outcome)
}

// NewService wires the state machine. A nil notifier disables notifications.
func NewService(ledger Ledger, classes Classes, verifier Verifier, notifier notify.Notifier, opts ...Option) *Service {
	s := &Service{
		ledger:   ledger,
		classes:  classes,
		verifier: verifier,
		notifier: notifier,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// flow tracks one pass through the state machine.
type flow struct {
	s       *Service
	sess    Context
	class   roster.ClassSession
	classID string
	state   State
}

func (f *flow) advance(to State) {
	from := f.state
	f.state = to
	if f.s.observer != nil {
		f.s.observer(f.sess.Student.RollNumber, f.classID, from, to)
	}
}

// Run takes attendance for sess.Student in classID and returns the decided
// outcome. Every check failure becomes an absent outcome; errors are returned
// only when no outcome can be keyed (unknown class, class not yet open) or
// the ledger itself fails.
func (s *Service) Run(ctx context.Context, sess Context, classID string) (Outcome, error) {
	identity := strings.TrimSpace(sess.Student.RollNumber)
	f := &flow{s: s, sess: sess, classID: classID, state: NotStarted}

	class, err := s.classes.Class(classID)
	if err != nil {
		return Outcome{}, err
	}
	f.class = class

	if identity == "" {
		return s.decide(ctx, f, Absent, ReasonIdentityMissing)
	}

	existing, err := s.ledger.Get(ctx, identity, classID)
	if err != nil {
		return Outcome{}, fmt.Errorf("attendance: lookup outcome: %w", err)
	}
	if existing != nil {
		f.advance(Decided)
		return *existing, nil
	}

	now := s.now()
	switch class.Phase(now) {
	case roster.Ended:
		return s.decide(ctx, f, Absent, ReasonClassExpired)
	case roster.Upcoming:
		return Outcome{}, ErrNotOpen
	}

	f.advance(LocationPending)
	if reason, ok := s.checkLocation(f); !ok {
		return s.decide(ctx, f, Absent, reason)
	}
	f.advance(LocationVerified)

	f.advance(BiometricPending)
	if err := s.checkBiometric(ctx, identity); err != nil {
		log.Printf("attendance: biometric check for %s/%s failed: %v", identity, classID, err)
		return s.decide(ctx, f, Absent, authenticator.Reason(err))
	}
	return s.decide(ctx, f, Present, ReasonBiometricVerified)
}

func (s *Service) checkLocation(f *flow) (string, bool) {
	if f.sess.Location == nil {
		return ReasonLocationUnavailable, false
	}
	if f.class.Location == nil {
		return ReasonClassUnlocated, false
	}
	res := geo.Verify(*f.sess.Location, *f.class.Location, f.class.ToleranceMeters)
	if s.onDistance != nil {
		s.onDistance(f.classID, res.DistanceMeters)
	}
	if !res.WithinRange {
		return fmt.Sprintf("Wrong location - %dm away from %s", int64(math.Round(res.DistanceMeters)), f.class.Name), false
	}
	return "", true
}

// checkBiometric registers a credential on first use, then authenticates.
func (s *Service) checkBiometric(ctx context.Context, identity string) error {
	if s.verifier == nil {
		return authenticator.ErrUnsupported
	}
	has, err := s.verifier.HasCredential(ctx, identity)
	if err != nil {
		return &authenticator.Error{Kind: authenticator.KindAuthenticationFailed, Op: authenticator.OpAuthenticate, Err: err}
	}
	if !has {
		if _, err := s.verifier.Register(ctx, identity); err != nil {
			return err
		}
	}
	_, err = s.verifier.Authenticate(ctx, identity)
	return err
}

// decide writes the outcome once. If another flow decided the pair first,
// its outcome wins and nothing else happens.
func (s *Service) decide(ctx context.Context, f *flow, status Status, reason string) (Outcome, error) {
	// The decision stands even if the caller went away mid-ceremony.
	ctx = context.WithoutCancel(ctx)
	identity := strings.TrimSpace(f.sess.Student.RollNumber)
	o := newOutcome(identity, f.classID, status, reason, s.now())
	f.advance(Decided)

	// Without an identity there is no ledger key to write under.
	if identity == "" {
		s.recorded(o)
		s.notifyAbsent(ctx, f, o)
		return o, nil
	}

	if err := s.ledger.Put(ctx, o); err != nil {
		if errors.Is(err, ErrAlreadyDecided) {
			existing, gerr := s.ledger.Get(ctx, identity, f.classID)
			if gerr != nil {
				return Outcome{}, fmt.Errorf("attendance: reload outcome: %w", gerr)
			}
			if existing != nil {
				return *existing, nil
			}
		}
		return Outcome{}, fmt.Errorf("attendance: record outcome: %w", err)
	}

	s.recorded(o)
	if status == Absent {
		s.notifyAbsent(ctx, f, o)
	}
	return o, nil
}

func (s *Service) recorded(o Outcome) {
	if s.onOutcome != nil {
		s.onOutcome(o)
	}
}

func (s *Service) notifyAbsent(ctx context.Context, f *flow, o Outcome) {
	if s.notifier == nil {
		return
	}
	n := notify.Notice{
		StudentName: f.sess.Student.Name,
		RollNumber:  o.Identity,
		ClassName:   f.class.Name,
		ClassID:     o.ClassID,
		Time:        o.DecidedAt,
		Reason:      o.Reason,
		Instructor:  f.class.Instructor,
		ParentEmail: f.sess.Student.ParentEmail,
		MentorEmail: f.sess.Student.MentorEmail,
	}
	if err := s.notifier.NotifyAbsent(ctx, n); err != nil {
		log.Printf("attendance: absence notification for %s/%s failed: %v", o.Identity, o.ClassID, err)
	}
}

func newOutcome(identity, classID string, status Status, reason string, now time.Time) Outcome {
	return Outcome{
		ID:        uuid.NewString(),
		Identity:  identity,
		ClassID:   classID,
		Status:    status,
		DecidedAt: now.UTC(),
		Reason:    reason,
	}
}
