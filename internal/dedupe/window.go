// ABOUTME: Size-bounded TTL window that reports whether a key was already seen
// ABOUTME: Expired entries are pruned lazily on insert, so no goroutine is needed

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key    string
	seenAt time.Time
}

// Window remembers keys for ttl, holding at most maxSize of them. The list
// is ordered by last sighting, oldest at the front.
type Window struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// NewWindow creates a Window. maxSize <= 0 means unbounded.
func NewWindow(ttl time.Duration, maxSize int) *Window {
	return &Window{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Seen reports whether key was seen within the window and records the
// sighting. Check and record happen atomically.
func (w *Window) Seen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.pruneLocked(now)

	if elem, ok := w.index[key]; ok {
		elem.Value.(*entry).seenAt = now
		w.order.MoveToBack(elem)
		return true
	}

	if w.maxSize > 0 && w.order.Len() >= w.maxSize {
		w.removeLocked(w.order.Front())
	}
	w.index[key] = w.order.PushBack(&entry{key: key, seenAt: now})
	return false
}

// Contains reports whether key is inside the window without recording it.
func (w *Window) Contains(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	elem, ok := w.index[key]
	return ok && w.now().Sub(elem.Value.(*entry).seenAt) < w.ttl
}

// Len returns the number of keys held, including any not yet pruned.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.order.Len()
}

// pruneLocked drops expired entries from the front. Must be called with mu held.
func (w *Window) pruneLocked(now time.Time) {
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		if now.Sub(front.Value.(*entry).seenAt) < w.ttl {
			return
		}
		w.removeLocked(front)
	}
}

func (w *Window) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	w.order.Remove(elem)
	delete(w.index, elem.Value.(*entry).key)
}
