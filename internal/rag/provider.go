package rag

import (
	"context"
	"sync"
	"sync/atomic"
)

// Embedder turns text into vectors. Every vector from one Embedder has the
// same length.
type Embedder interface {
	Name() string
	ModelName() string
	Dimensions() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type ProviderKind int32

const (
	ProviderPrimary ProviderKind = iota
	ProviderFallback
)

func (k ProviderKind) String() string {
	if k == ProviderFallback {
		return "fallback"
	}
	return "primary"
}

// Providers is the ordered pair of embedding providers for a session.
// Fallback may be nil.
type Providers struct {
	Primary  Embedder
	Fallback Embedder
}

func (p Providers) Get(kind ProviderKind) Embedder {
	if kind == ProviderFallback {
		return p.Fallback
	}
	return p.Primary
}

// Label names the provider for logs and index tags, e.g. "openai/text-embedding-3-small".
func (p Providers) Label(kind ProviderKind) string {
	e := p.Get(kind)
	if e == nil {
		return kind.String()
	}
	return e.Name() + "/" + e.ModelName()
}

// ProviderState records which provider is active. It only ever moves from
// primary to fallback.
type ProviderState struct {
	kind   atomic.Int32
	mu     sync.Mutex
	reason string
}

func NewProviderState(start ProviderKind, reason string) *ProviderState {
	s := &ProviderState{reason: reason}
	s.kind.Store(int32(start))
	return s
}

func (s *ProviderState) Active() ProviderKind {
	return ProviderKind(s.kind.Load())
}

// SwitchToFallback moves the session to the fallback provider. It returns
// true only for the call that made the switch.
func (s *ProviderState) SwitchToFallback(reason string) bool {
	if !s.kind.CompareAndSwap(int32(ProviderPrimary), int32(ProviderFallback)) {
		return false
	}
	s.mu.Lock()
	s.reason = reason
	s.mu.Unlock()
	return true
}

// Reason returns why the session is on the fallback provider, if it is.
func (s *ProviderState) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}
