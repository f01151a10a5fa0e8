package authenticator

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// Virtual is an in-process software authenticator for headless demo runs.
// It holds no keys; it only remembers which credential ids it issued.
type Virtual struct {
	mu     sync.Mutex
	issued map[string]string // public id -> relying party id
}

// NewVirtual returns an empty virtual authenticator.
func NewVirtual() *Virtual {
	return &Virtual{issued: make(map[string]string)}
}

func (v *Virtual) Supported() bool { return true }

func (v *Virtual) Create(ctx context.Context, req CreationRequest) (*PlatformCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !acceptsAlgorithm(req.Options.Parameters) {
		return nil, &PlatformError{Name: NameNotSupported, Message: "no supported algorithm"}
	}
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	id := base64.RawURLEncoding.EncodeToString(raw)

	v.mu.Lock()
	v.issued[id] = req.Options.RelyingParty.ID
	v.mu.Unlock()

	return &PlatformCredential{ID: id, RawID: raw, Type: string(protocol.PublicKeyCredentialType)}, nil
}

func (v *Virtual) Get(ctx context.Context, req AssertionRequest) (*PlatformCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, desc := range req.Options.AllowedCredentials {
		id := base64.RawURLEncoding.EncodeToString(desc.CredentialID)
		if rp, ok := v.issued[id]; ok && rp == req.Options.RelyingPartyID {
			return &PlatformCredential{ID: id, RawID: desc.CredentialID, Type: string(desc.Type)}, nil
		}
	}
	return nil, &PlatformError{Name: NameNotAllowed, Message: "no matching credential on this device"}
}

func acceptsAlgorithm(params []protocol.CredentialParameter) bool {
	for _, p := range params {
		if p.Algorithm == webauthncose.AlgES256 || p.Algorithm == webauthncose.AlgRS256 {
			return true
		}
	}
	return false
}
