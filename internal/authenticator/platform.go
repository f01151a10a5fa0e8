package authenticator

import (
	"context"

	"github.com/go-webauthn/webauthn/protocol"
)

// CreationRequest asks the platform to create a credential for Identity.
type CreationRequest struct {
	Identity string                                      `json:"identity"`
	Options  protocol.PublicKeyCredentialCreationOptions `json:"publicKey"`
}

// AssertionRequest asks the platform to assert one of the allowed credentials.
type AssertionRequest struct {
	Identity string                                     `json:"identity"`
	Options  protocol.PublicKeyCredentialRequestOptions `json:"publicKey"`
}

// PlatformCredential is what the platform hands back from either ceremony.
// ID is the public identifier; RawID the raw identifier bytes.
type PlatformCredential struct {
	ID    string                    `json:"id"`
	RawID protocol.URLEncodedBase64 `json:"rawId"`
	Type  string                    `json:"type"`
}

// Platform is the public-key credential capability of the client device.
// Both calls suspend until the user completes or abandons the ceremony.
// Failures should be *PlatformError where the platform reports a category.
type Platform interface {
	Supported() bool
	Create(ctx context.Context, req CreationRequest) (*PlatformCredential, error)
	Get(ctx context.Context, req AssertionRequest) (*PlatformCredential, error)
}
