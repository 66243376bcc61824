// ABOUTME: Resolves message sender references into display profiles
// ABOUTME: Warms the cache from embedded records and looks up each unknown sender once per batch

package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lavoro/lavoro-chat/internal/chat"
)

// DefaultLookupConcurrency bounds concurrent profile lookups in one batch.
const DefaultLookupConcurrency = 8

// ErrNoSender is returned for a reference that carries no id.
var ErrNoSender = errors.New("message has no sender")

// ProfileFetcher performs the direct profile lookup (GET /users/{id}).
type ProfileFetcher interface {
	User(ctx context.Context, id string) (*chat.RawUser, error)
}

// Enricher attaches sender displays to messages.
type Enricher struct {
	fetcher     ProfileFetcher
	cache       *Cache
	concurrency int
	logger      *slog.Logger
}

// New creates an Enricher. A nil cache gets a fresh unbounded one.
func New(fetcher ProfileFetcher, cache *Cache, logger *slog.Logger) *Enricher {
	if cache == nil {
		cache = NewCache(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		fetcher:     fetcher,
		cache:       cache,
		concurrency: DefaultLookupConcurrency,
		logger:      logger.With("component", "enrich"),
	}
}

// Cache returns the cache the enricher reads and warms.
func (e *Enricher) Cache() *Cache {
	return e.cache
}

// GetUserByID resolves ref. A full embedded record is synthesized locally and
// written to the cache; anything else goes to the profile endpoint.
func (e *Enricher) GetUserByID(ctx context.Context, ref chat.UserRef) (chat.UserDisplay, error) {
	if ref.Kind == chat.RefEmbeddedFull && ref.User != nil {
		display := ref.User.EmbeddedDisplay()
		e.cache.Put(display.ID, display)
		return display, nil
	}
	if ref.ID == "" {
		return chat.UserDisplay{}, ErrNoSender
	}

	user, err := e.fetcher.User(ctx, ref.ID)
	if err != nil {
		return chat.UserDisplay{}, fmt.Errorf("looking up user %s: %w", ref.ID, err)
	}
	if user == nil {
		return chat.UserDisplay{}, fmt.Errorf("looking up user %s: empty profile", ref.ID)
	}
	display := user.Display()
	if display.ID == "" {
		display.ID = ref.ID
	}
	return display, nil
}

// CachedUser returns the cached display for id, looking it up on a miss.
func (e *Enricher) CachedUser(ctx context.Context, id string) (chat.UserDisplay, error) {
	if display, ok := e.cache.Get(id); ok {
		return display, nil
	}
	display, err := e.GetUserByID(ctx, chat.IDRef(id))
	if err != nil {
		return chat.UserDisplay{}, err
	}
	e.cache.Put(id, display)
	return display, nil
}

// EnrichMessage enriches a single message, typically one pushed in real time.
func (e *Enricher) EnrichMessage(ctx context.Context, msg chat.Message) chat.Message {
	return e.EnrichMessages(ctx, []chat.Message{msg})[0]
}

// EnrichMessages returns copies of msgs with SenderDisplay set on every one.
// Each unique sender missing from the cache is looked up at most once; a
// failed lookup yields the unknown-user placeholder for that sender only.
func (e *Enricher) EnrichMessages(ctx context.Context, msgs []chat.Message) []chat.Message {
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)

	// Embedded records and previously resolved displays warm the cache first
	// so they never cost a lookup. A partial display decoded off the wire is
	// ignored and its sender goes through the lookup instead.
	for _, m := range out {
		switch {
		case m.Sender.Kind == chat.RefEmbeddedFull && m.Sender.User != nil:
			display := m.Sender.User.EmbeddedDisplay()
			e.cache.Put(display.ID, display)
		case m.SenderDisplay != nil && m.SenderDisplay.Complete() && !m.SenderDisplay.IsUnknown() &&
			m.SenderDisplay.ID == m.Sender.ID:
			if _, ok := e.cache.Get(m.Sender.ID); !ok {
				e.cache.Put(m.Sender.ID, *m.SenderDisplay)
			}
		}
	}

	var missing []string
	seen := make(map[string]struct{})
	for _, m := range out {
		id := m.Sender.ID
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := e.cache.Get(id); !ok {
			missing = append(missing, id)
		}
	}

	resolved := e.lookupAll(ctx, missing)

	for i := range out {
		display := e.displayFor(out[i], resolved)
		out[i].SenderDisplay = &display
	}
	return out
}

// lookupAll fetches each id concurrently and records successes in the cache.
func (e *Enricher) lookupAll(ctx context.Context, ids []string) map[string]chat.UserDisplay {
	resolved := make(map[string]chat.UserDisplay, len(ids))
	if len(ids) == 0 {
		return resolved
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, id := range ids {
		g.Go(func() error {
			display, err := e.GetUserByID(gctx, chat.IDRef(id))
			if err != nil {
				e.logger.Warn("sender lookup failed", "user_id", id, "error", err)
				return nil
			}
			e.cache.Put(id, display)

			mu.Lock()
			resolved[id] = display
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Debug("resolved senders", "requested", len(ids), "resolved", len(resolved))
	return resolved
}

func (e *Enricher) displayFor(m chat.Message, resolved map[string]chat.UserDisplay) chat.UserDisplay {
	if m.Sender.Kind == chat.RefEmbeddedFull && m.Sender.User != nil {
		return m.Sender.User.EmbeddedDisplay()
	}
	id := m.Sender.ID
	if display, ok := resolved[id]; ok {
		return display
	}
	if display, ok := e.cache.Get(id); ok {
		return display
	}
	return chat.UnknownUser(id)
}
