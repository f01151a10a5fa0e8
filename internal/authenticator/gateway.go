package authenticator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"geoattend/internal/credential"
)

// CeremonyState is the per-invocation progress of a ceremony.
type CeremonyState string

const (
	StateIdle             CeremonyState = "idle"
	StateAwaitingPlatform CeremonyState = "awaiting_platform"
	StateSucceeded        CeremonyState = "succeeded"
	StateFailed           CeremonyState = "failed"
)

const (
	OpRegister     = "register"
	OpAuthenticate = "authenticate"
)

// DefaultTimeout bounds each ceremony.
const DefaultTimeout = 60 * time.Second

// Config scopes credentials to a relying party and sets the ceremony policy.
type Config struct {
	RPID             string
	RPName           string
	UserVerification protocol.UserVerificationRequirement
	Timeout          time.Duration
}

// AssertionResult is returned by a successful Authenticate.
type AssertionResult struct {
	CredentialID string `json:"credential_id"`
	Verified     bool   `json:"verified"`
}

// Observer is told about every ceremony state change.
type Observer func(op string, state CeremonyState, err error)

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock overrides the time source used for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithObserver registers a ceremony observer.
func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

// Gateway runs the registration and assertion ceremonies against a Platform
// and keeps the resulting credential in a Store. It never retries.
//
// Only the returned credential id is compared with the stored one; assertion
// signatures are not verified server side.
type Gateway struct {
	platform Platform
	store    credential.Store
	cfg      Config
	now      func() time.Time
	observer Observer
}

// New builds a gateway.
func New(platform Platform, store credential.Store, cfg Config, opts ...Option) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserVerification == "" {
		cfg.UserVerification = protocol.VerificationPreferred
	}
	if cfg.RPName == "" {
		cfg.RPName = "Smart Attendance System"
	}
	g := &Gateway{platform: platform, store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// HasCredential reports whether identity has a stored credential.
func (g *Gateway) HasCredential(ctx context.Context, identity string) (bool, error) {
	return g.store.Has(ctx, identity)
}

// Register enrolls a new credential for identity, replacing any previous one.
func (g *Gateway) Register(ctx context.Context, identity string) (credential.Credential, error) {
	g.observe(OpRegister, StateIdle, nil)
	if g.platform == nil || !g.platform.Supported() {
		return credential.Credential{}, g.fail(OpRegister, KindUnsupported, nil)
	}
	if strings.TrimSpace(identity) == "" {
		return credential.Credential{}, g.fail(OpRegister, KindInvalidInput, errors.New("identity is required"))
	}

	challenge, err := protocol.CreateChallenge()
	if err != nil {
		return credential.Credential{}, g.fail(OpRegister, KindRegistrationFailed, err)
	}

	residentKey := false
	opts := protocol.PublicKeyCredentialCreationOptions{
		RelyingParty: protocol.RelyingPartyEntity{
			ID:               g.cfg.RPID,
			CredentialEntity: protocol.CredentialEntity{Name: g.cfg.RPName},
		},
		User: protocol.UserEntity{
			ID:               []byte(identity),
			DisplayName:      identity,
			CredentialEntity: protocol.CredentialEntity{Name: identity},
		},
		Challenge: challenge,
		Parameters: []protocol.CredentialParameter{
			{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
			{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgRS256},
		},
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			RequireResidentKey: &residentKey,
			UserVerification:   g.cfg.UserVerification,
		},
		Timeout:     int(g.cfg.Timeout / time.Millisecond),
		Attestation: protocol.PreferNoAttestation,
	}

	g.observe(OpRegister, StateAwaitingPlatform, nil)
	cctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	created, err := g.platform.Create(cctx, CreationRequest{Identity: identity, Options: opts})
	if err != nil {
		return credential.Credential{}, g.fail(OpRegister, KindRegistrationFailed, err)
	}
	if created == nil || created.ID == "" {
		return credential.Credential{}, g.fail(OpRegister, KindRegistrationFailed, errors.New("failed to create credential"))
	}

	cred := credential.Credential{
		ID:        created.ID,
		RawID:     credential.EncodeRaw(created.RawID),
		Type:      created.Type,
		Owner:     identity,
		CreatedAt: g.now().UTC(),
	}
	if cred.Type == "" {
		cred.Type = string(protocol.PublicKeyCredentialType)
	}
	if err := g.store.Save(ctx, identity, cred); err != nil {
		return credential.Credential{}, g.fail(OpRegister, KindRegistrationFailed, err)
	}

	g.observe(OpRegister, StateSucceeded, nil)
	return cred, nil
}

// Authenticate asks the platform to assert the credential stored for identity.
func (g *Gateway) Authenticate(ctx context.Context, identity string) (AssertionResult, error) {
	g.observe(OpAuthenticate, StateIdle, nil)
	if g.platform == nil || !g.platform.Supported() {
		return AssertionResult{}, g.fail(OpAuthenticate, KindUnsupported, nil)
	}
	if strings.TrimSpace(identity) == "" {
		return AssertionResult{}, g.fail(OpAuthenticate, KindInvalidInput, errors.New("identity is required"))
	}

	stored, err := g.store.Load(ctx, identity)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return AssertionResult{}, g.fail(OpAuthenticate, KindNoCredential, nil)
		}
		return AssertionResult{}, g.fail(OpAuthenticate, KindAuthenticationFailed, err)
	}
	raw, err := stored.RawBytes()
	if err != nil {
		return AssertionResult{}, g.fail(OpAuthenticate, KindAuthenticationFailed, err)
	}

	challenge, err := protocol.CreateChallenge()
	if err != nil {
		return AssertionResult{}, g.fail(OpAuthenticate, KindAuthenticationFailed, err)
	}

	opts := protocol.PublicKeyCredentialRequestOptions{
		Challenge:      challenge,
		Timeout:        int(g.cfg.Timeout / time.Millisecond),
		RelyingPartyID: g.cfg.RPID,
		AllowedCredentials: []protocol.CredentialDescriptor{
			{Type: protocol.PublicKeyCredentialType, CredentialID: raw},
		},
		UserVerification: g.cfg.UserVerification,
	}

	g.observe(OpAuthenticate, StateAwaitingPlatform, nil)
	cctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	assertion, err := g.platform.Get(cctx, AssertionRequest{Identity: identity, Options: opts})
	if err != nil {
		return AssertionResult{}, g.fail(OpAuthenticate, classify(err, KindAuthenticationFailed), err)
	}
	if assertion == nil {
		return AssertionResult{}, g.fail(OpAuthenticate, KindNoAssertion, nil)
	}
	if assertion.ID != stored.ID {
		return AssertionResult{}, g.fail(OpAuthenticate, KindCredentialMismatch, nil)
	}

	g.observe(OpAuthenticate, StateSucceeded, nil)
	return AssertionResult{CredentialID: assertion.ID, Verified: true}, nil
}

func (g *Gateway) fail(op string, kind Kind, cause error) error {
	err := &Error{Kind: kind, Op: op, Err: cause}
	g.observe(op, StateFailed, err)
	return err
}

func (g *Gateway) observe(op string, state CeremonyState, err error) {
	if g.observer != nil {
		g.observer(op, state, err)
	}
}
