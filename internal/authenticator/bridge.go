package authenticator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrCeremonyGone is returned when resolving a ceremony that is no longer waiting,
// either because it was already resolved or because its caller gave up.
var ErrCeremonyGone = errors.New("ceremony is no longer pending")

// CeremonyType distinguishes credential creation from assertion.
type CeremonyType string

const (
	CeremonyCreate CeremonyType = "create"
	CeremonyGet    CeremonyType = "get"
)

// Ceremony is a platform call waiting on a remote client.
type Ceremony struct {
	ID        string       `json:"id"`
	Identity  string       `json:"identity"`
	Type      CeremonyType `json:"type"`
	Options   any          `json:"publicKey"`
	CreatedAt time.Time    `json:"created_at"`
}

// Response is what the remote client reports back. A Response with neither
// field set stands for a ceremony that produced no result.
type Response struct {
	Credential *PlatformCredential `json:"credential,omitempty"`
	Error      *PlatformError      `json:"error,omitempty"`
}

type pending struct {
	Ceremony
	done chan Response
}

// Bridge is a Platform whose ceremonies run in a browser. Create and Get park
// the request until Resolve is called with the browser's answer or ctx ends.
type Bridge struct {
	mu      sync.Mutex
	waiting map[string]*pending
	now     func() time.Time
}

// NewBridge creates an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{waiting: make(map[string]*pending), now: time.Now}
}

// Supported is always true; capability checks happen in the browser.
func (b *Bridge) Supported() bool { return true }

func (b *Bridge) Create(ctx context.Context, req CreationRequest) (*PlatformCredential, error) {
	return b.await(ctx, req.Identity, CeremonyCreate, req.Options)
}

func (b *Bridge) Get(ctx context.Context, req AssertionRequest) (*PlatformCredential, error) {
	return b.await(ctx, req.Identity, CeremonyGet, req.Options)
}

func (b *Bridge) await(ctx context.Context, identity string, typ CeremonyType, options any) (*PlatformCredential, error) {
	p := &pending{
		Ceremony: Ceremony{
			ID:        uuid.NewString(),
			Identity:  identity,
			Type:      typ,
			Options:   options,
			CreatedAt: b.now().UTC(),
		},
		done: make(chan Response, 1),
	}

	b.mu.Lock()
	b.waiting[p.ID] = p
	b.mu.Unlock()

	select {
	case resp := <-p.done:
		return unpack(resp)
	case <-ctx.Done():
		b.mu.Lock()
		_, still := b.waiting[p.ID]
		delete(b.waiting, p.ID)
		b.mu.Unlock()
		if still {
			return nil, ctx.Err()
		}
		// Resolve won the race and has already handed over its answer.
		return unpack(<-p.done)
	}
}

func unpack(resp Response) (*PlatformCredential, error) {
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Credential, nil
}

// Resolve delivers the client's answer for ceremony id.
func (b *Bridge) Resolve(id string, resp Response) error {
	b.mu.Lock()
	p, ok := b.waiting[id]
	delete(b.waiting, id)
	b.mu.Unlock()
	if !ok {
		return ErrCeremonyGone
	}
	p.done <- resp
	return nil
}

// Pending lists the open ceremonies for identity, oldest first.
func (b *Bridge) Pending(identity string) []Ceremony {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Ceremony
	for _, p := range b.waiting {
		if p.Identity == identity {
			out = append(out, p.Ceremony)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Owner returns the identity a pending ceremony belongs to.
func (b *Bridge) Owner(id string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.waiting[id]
	if !ok {
		return "", false
	}
	return p.Identity, true
}
