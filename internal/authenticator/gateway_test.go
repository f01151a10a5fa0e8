package authenticator

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"geoattend/internal/credential"
)

type fakePlatform struct {
	mu          sync.Mutex
	unsupported bool
	createErr   error
	getErr      error
	nilAssert   bool
	assertID    string // overrides the returned id when set
	blockGet    bool
	seq         int

	creates []CreationRequest
	gets    []AssertionRequest
}

func (f *fakePlatform) Supported() bool { return !f.unsupported }

func (f *fakePlatform) Create(_ context.Context, req CreationRequest) (*PlatformCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	raw := []byte{byte(f.seq), 0xAA, 0xBB}
	return &PlatformCredential{ID: "cred-" + string(rune('0'+f.seq)), RawID: raw, Type: "public-key"}, nil
}

func (f *fakePlatform) Get(ctx context.Context, req AssertionRequest) (*PlatformCredential, error) {
	f.mu.Lock()
	f.gets = append(f.gets, req)
	block, getErr, nilAssert, assertID, seq := f.blockGet, f.getErr, f.nilAssert, f.assertID, f.seq
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if getErr != nil {
		return nil, getErr
	}
	if nilAssert {
		return nil, nil
	}
	id := "cred-" + string(rune('0'+seq))
	if assertID != "" {
		id = assertID
	}
	return &PlatformCredential{ID: id, RawID: req.Options.AllowedCredentials[0].CredentialID, Type: "public-key"}, nil
}

func newTestGateway(p Platform, store credential.Store, uv protocol.UserVerificationRequirement) *Gateway {
	fixed := time.Date(2024, time.January, 2, 9, 0, 0, 0, time.UTC)
	return New(p, store, Config{RPID: "localhost", RPName: "Smart Attendance System", UserVerification: uv},
		WithClock(func() time.Time { return fixed }))
}

func TestRegister_BuildsOptionsAndPersists(t *testing.T) {
	p := &fakePlatform{}
	store := credential.NewMemoryStore()
	g := newTestGateway(p, store, protocol.VerificationRequired)

	cred, err := g.Register(context.Background(), "CS001")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if cred.Owner != "CS001" || cred.ID != "cred-1" {
		t.Errorf("unexpected credential %+v", cred)
	}

	if len(p.creates) != 1 {
		t.Fatalf("expected one create call, got %d", len(p.creates))
	}
	opts := p.creates[0].Options
	if len(opts.Challenge) != 32 {
		t.Errorf("expected 32-byte challenge, got %d", len(opts.Challenge))
	}
	if len(opts.Parameters) != 2 ||
		opts.Parameters[0].Algorithm != webauthncose.AlgES256 ||
		opts.Parameters[1].Algorithm != webauthncose.AlgRS256 {
		t.Errorf("unexpected algorithms %+v", opts.Parameters)
	}
	if opts.AuthenticatorSelection.UserVerification != protocol.VerificationRequired {
		t.Errorf("expected required user verification, got %q", opts.AuthenticatorSelection.UserVerification)
	}
	if rk := opts.AuthenticatorSelection.RequireResidentKey; rk == nil || *rk {
		t.Errorf("resident key must not be required")
	}
	if opts.Attestation != protocol.PreferNoAttestation {
		t.Errorf("expected no attestation, got %q", opts.Attestation)
	}
	if opts.Timeout != 60000 {
		t.Errorf("expected 60000ms timeout, got %d", opts.Timeout)
	}
	if opts.RelyingParty.ID != "localhost" {
		t.Errorf("unexpected rp id %q", opts.RelyingParty.ID)
	}

	stored, err := store.Load(context.Background(), "CS001")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	raw, _ := stored.RawBytes()
	if !bytes.Equal(raw, []byte{1, 0xAA, 0xBB}) {
		t.Errorf("raw id not round-tripped: %v", raw)
	}
}

func TestRegister_TwiceKeepsOnlySecond(t *testing.T) {
	store := credential.NewMemoryStore()
	g := newTestGateway(&fakePlatform{}, store, "")
	ctx := context.Background()

	if _, err := g.Register(ctx, "CS001"); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	second, err := g.Register(ctx, "CS001")
	if err != nil {
		t.Fatalf("second Register failed: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one stored credential, got %d", store.Len())
	}
	got, _ := store.Load(ctx, "CS001")
	if got != second {
		t.Errorf("expected stored credential %+v, got %+v", second, got)
	}
}

func TestRegister_Preconditions(t *testing.T) {
	store := credential.NewMemoryStore()
	ctx := context.Background()

	_, err := newTestGateway(&fakePlatform{unsupported: true}, store, "").Register(ctx, "CS001")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}

	_, err = newTestGateway(&fakePlatform{}, store, "").Register(ctx, "  ")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	if store.Len() != 0 {
		t.Errorf("nothing should be persisted")
	}
}

func TestRegister_PlatformFailureIsNotPersisted(t *testing.T) {
	store := credential.NewMemoryStore()
	cause := &PlatformError{Name: NameNotAllowed, Message: "user dismissed"}
	g := newTestGateway(&fakePlatform{createErr: cause}, store, "")

	_, err := g.Register(context.Background(), "CS001")
	if !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("expected ErrRegistrationFailed, got %v", err)
	}
	var pe *PlatformError
	if !errors.As(err, &pe) || pe.Name != NameNotAllowed {
		t.Errorf("cause should be preserved, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("failed registration must not persist")
	}
}

func TestAuthenticate_Success(t *testing.T) {
	p := &fakePlatform{}
	store := credential.NewMemoryStore()
	g := newTestGateway(p, store, "")
	ctx := context.Background()

	cred, err := g.Register(ctx, "CS001")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	res, err := g.Authenticate(ctx, "CS001")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !res.Verified || res.CredentialID != cred.ID {
		t.Errorf("unexpected result %+v", res)
	}

	req := p.gets[0].Options
	if len(req.AllowedCredentials) != 1 {
		t.Fatalf("expected exactly one allowed credential, got %d", len(req.AllowedCredentials))
	}
	raw, _ := cred.RawBytes()
	if !bytes.Equal(req.AllowedCredentials[0].CredentialID, raw) {
		t.Errorf("allow list does not carry the stored raw id")
	}
	if req.UserVerification != protocol.VerificationPreferred {
		t.Errorf("expected preferred user verification, got %q", req.UserVerification)
	}
	if bytes.Equal(req.Challenge, p.creates[0].Options.Challenge) {
		t.Errorf("challenges must not be reused across ceremonies")
	}
}

func TestAuthenticate_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("no credential", func(t *testing.T) {
		g := newTestGateway(&fakePlatform{}, credential.NewMemoryStore(), "")
		if _, err := g.Authenticate(ctx, "CS001"); !errors.Is(err, ErrNoCredential) {
			t.Errorf("expected ErrNoCredential, got %v", err)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		g := newTestGateway(&fakePlatform{unsupported: true}, credential.NewMemoryStore(), "")
		if _, err := g.Authenticate(ctx, "CS001"); !errors.Is(err, ErrUnsupported) {
			t.Errorf("expected ErrUnsupported, got %v", err)
		}
	})

	t.Run("empty identity", func(t *testing.T) {
		g := newTestGateway(&fakePlatform{}, credential.NewMemoryStore(), "")
		if _, err := g.Authenticate(ctx, ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		p := &fakePlatform{assertID: "someone-else"}
		g := newTestGateway(p, credential.NewMemoryStore(), "")
		if _, err := g.Register(ctx, "CS001"); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		_, err := g.Authenticate(ctx, "CS001")
		if !errors.Is(err, ErrCredentialMismatch) {
			t.Errorf("expected ErrCredentialMismatch, got %v", err)
		}
		if KindOf(err) != KindCredentialMismatch {
			t.Errorf("unexpected kind %v", KindOf(err))
		}
	})

	t.Run("no assertion", func(t *testing.T) {
		p := &fakePlatform{nilAssert: true}
		g := newTestGateway(p, credential.NewMemoryStore(), "")
		if _, err := g.Register(ctx, "CS001"); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if _, err := g.Authenticate(ctx, "CS001"); !errors.Is(err, ErrNoAssertion) {
			t.Errorf("expected ErrNoAssertion, got %v", err)
		}
	})
}

func TestAuthenticate_PlatformCategories(t *testing.T) {
	cases := []struct {
		err  error
		want *Error
	}{
		{&PlatformError{Name: NameNotAllowed}, ErrUserCancelled},
		{&PlatformError{Name: NameNotSupported}, ErrPlatformUnsupported},
		{&PlatformError{Name: NameSecurity}, ErrSecurityViolation},
		{&PlatformError{Name: NameInvalidState}, ErrInvalidPlatformState},
		{&PlatformError{Name: "AbortError"}, ErrAuthenticationFailed},
		{errors.New("boom"), ErrAuthenticationFailed},
	}
	for _, tc := range cases {
		p := &fakePlatform{}
		g := newTestGateway(p, credential.NewMemoryStore(), "")
		if _, err := g.Register(context.Background(), "CS001"); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		p.getErr = tc.err
		_, err := g.Authenticate(context.Background(), "CS001")
		if !errors.Is(err, tc.want) {
			t.Errorf("%v: expected %v, got %v", tc.err, tc.want.Kind, err)
		}
	}
}

func TestAuthenticate_TimeoutIsOrdinaryFailure(t *testing.T) {
	p := &fakePlatform{}
	store := credential.NewMemoryStore()
	g := New(p, store, Config{RPID: "localhost", Timeout: 20 * time.Millisecond})
	if _, err := g.Register(context.Background(), "CS001"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	p.blockGet = true

	_, err := g.Authenticate(context.Background(), "CS001")
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline cause, got %v", err)
	}
}

func TestGateway_ObserverSeesStates(t *testing.T) {
	var states []CeremonyState
	g := New(&fakePlatform{}, credential.NewMemoryStore(), Config{RPID: "localhost"},
		WithObserver(func(op string, s CeremonyState, err error) {
			if op == OpRegister {
				states = append(states, s)
			}
		}))
	if _, err := g.Register(context.Background(), "CS001"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	want := []CeremonyState{StateIdle, StateAwaitingPlatform, StateSucceeded}
	if len(states) != len(want) {
		t.Fatalf("expected %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("state %d: expected %s, got %s", i, want[i], states[i])
		}
	}
}

func TestReason(t *testing.T) {
	if r := Reason(&Error{Kind: KindUserCancelled, Op: OpAuthenticate}); r != "biometric authentication was cancelled or failed" {
		t.Errorf("unexpected reason %q", r)
	}
	if r := Reason(errors.New("plain")); r != "biometric authentication failed" {
		t.Errorf("unexpected fallback reason %q", r)
	}
}
