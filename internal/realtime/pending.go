// ABOUTME: Tracks optimistic outgoing messages until the server acknowledges them
// ABOUTME: Matches acks by client id when echoed, otherwise the oldest entry of the same kind

package realtime

import (
	"container/list"
	"sync"
	"time"
)

// OutgoingKind separates direct and group sends, which are acknowledged by
// different events.
type OutgoingKind int

const (
	KindDirect OutgoingKind = iota
	KindGroup
)

func (k OutgoingKind) String() string {
	if k == KindGroup {
		return "group"
	}
	return "direct"
}

// Outgoing is an optimistic local entry for an emitted message.
type Outgoing struct {
	ClientID  string
	Kind      OutgoingKind
	PeerID    string // receiver for direct messages, group id for group messages
	Body      string
	EmittedAt time.Time
}

// Pending holds unacknowledged sends in emission order.
type Pending struct {
	mu    sync.Mutex
	byID  map[string]*list.Element
	order *list.List // *Outgoing, oldest at front
}

// NewPending creates an empty tracker.
func NewPending() *Pending {
	return &Pending{
		byID:  make(map[string]*list.Element),
		order: list.New(),
	}
}

// Add tracks o until it is resolved.
func (p *Pending) Add(o Outgoing) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byID[o.ClientID]; exists {
		return
	}
	p.byID[o.ClientID] = p.order.PushBack(&o)
}

// Resolve removes and returns the entry an acknowledgement refers to: the
// one with clientID when it is known, else the oldest entry of kind.
func (p *Pending) Resolve(kind OutgoingKind, clientID string) (Outgoing, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if clientID != "" {
		if elem, ok := p.byID[clientID]; ok {
			return p.removeLocked(elem), true
		}
	}

	for elem := p.order.Front(); elem != nil; elem = elem.Next() {
		if elem.Value.(*Outgoing).Kind == kind {
			return p.removeLocked(elem), true
		}
	}
	return Outgoing{}, false
}

// ResolveOldest removes and returns the oldest entry of any kind. Used for
// errors, which do not say which send failed.
func (p *Pending) ResolveOldest() (Outgoing, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	front := p.order.Front()
	if front == nil {
		return Outgoing{}, false
	}
	return p.removeLocked(front), true
}

// Len returns the number of unacknowledged sends.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.Len()
}

func (p *Pending) removeLocked(elem *list.Element) Outgoing {
	o := elem.Value.(*Outgoing)
	p.order.Remove(elem)
	delete(p.byID, o.ClientID)
	return *o
}
