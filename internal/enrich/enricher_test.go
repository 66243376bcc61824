// ABOUTME: Tests for sender enrichment against a counting profile fetcher
// ABOUTME: Verifies one lookup per unique sender, idempotency and placeholder fallback

package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavoro/lavoro-chat/internal/chat"
)

type fakeFetcher struct {
	mu    sync.Mutex
	users map[string]chat.RawUser
	calls map[string]int
}

func newFakeFetcher(users ...chat.RawUser) *fakeFetcher {
	f := &fakeFetcher{users: make(map[string]chat.RawUser), calls: make(map[string]int)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeFetcher) User(_ context.Context, id string) (*chat.RawUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return &u, nil
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeFetcher) callsFor(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func idMessage(id, sender string) chat.Message {
	return chat.Message{ID: id, Sender: chat.IDRef(sender), Body: "hello"}
}

func TestGetUserByID_EmbeddedFullSkipsNetwork(t *testing.T) {
	fetcher := newFakeFetcher()
	e := New(fetcher, nil, nil)

	display, err := e.GetUserByID(t.Context(), chat.EmbeddedRef(chat.RawUser{ID: "u1", FirstName: "Ann"}))
	require.NoError(t, err)

	assert.Equal(t, "Ann ", display.Name)
	assert.Equal(t, "u1", display.ID)
	assert.Equal(t, chat.AvatarURL("Ann"), display.ProfileImageURL)
	assert.Equal(t, 0, fetcher.total())

	cached, ok := e.Cache().Get("u1")
	assert.True(t, ok)
	assert.Equal(t, display, cached)
}

func TestGetUserByID_PartialLooksUp(t *testing.T) {
	fetcher := newFakeFetcher(chat.RawUser{ID: "u2", FirstName: "Bo", LastName: "Lee"})
	e := New(fetcher, nil, nil)

	display, err := e.GetUserByID(t.Context(), chat.EmbeddedRef(chat.RawUser{ID: "u2", Email: "bo@example.com"}))
	require.NoError(t, err)
	assert.Equal(t, "Bo Lee", display.Name)
	assert.Equal(t, 1, fetcher.callsFor("u2"))
}

func TestGetUserByID_NoID(t *testing.T) {
	e := New(newFakeFetcher(), nil, nil)
	_, err := e.GetUserByID(t.Context(), chat.UserRef{})
	assert.ErrorIs(t, err, ErrNoSender)
}

func TestCachedUser(t *testing.T) {
	fetcher := newFakeFetcher(chat.RawUser{ID: "u3", Name: "Cy"})
	e := New(fetcher, nil, nil)

	for range 3 {
		display, err := e.CachedUser(t.Context(), "u3")
		require.NoError(t, err)
		assert.Equal(t, "Cy", display.Name)
	}
	assert.Equal(t, 1, fetcher.callsFor("u3"))
}

func TestEnrichMessages_OneLookupPerUniqueSender(t *testing.T) {
	fetcher := newFakeFetcher(
		chat.RawUser{ID: "u9", FirstName: "Bo", LastName: "Lee"},
		chat.RawUser{ID: "u8", FirstName: "Di"},
	)
	e := New(fetcher, nil, nil)

	var msgs []chat.Message
	for i := range 50 {
		sender := "u9"
		if i%5 == 0 {
			sender = "u8"
		}
		msgs = append(msgs, idMessage("m", sender))
	}

	out := e.EnrichMessages(t.Context(), msgs)

	require.Len(t, out, 50)
	assert.Equal(t, 1, fetcher.callsFor("u9"))
	assert.Equal(t, 1, fetcher.callsFor("u8"))
	for _, m := range out {
		require.NotNil(t, m.SenderDisplay)
	}
}

func TestEnrichMessages_SharedBareSender(t *testing.T) {
	fetcher := newFakeFetcher(chat.RawUser{ID: "u9", FirstName: "Bo", LastName: "Lee"})
	e := New(fetcher, nil, nil)

	out := e.EnrichMessages(t.Context(), []chat.Message{idMessage("m1", "u9"), idMessage("m2", "u9")})

	assert.Equal(t, "Bo Lee", out[0].SenderDisplay.Name)
	assert.Equal(t, "Bo Lee", out[1].SenderDisplay.Name)
	assert.Equal(t, 1, fetcher.callsFor("u9"))
}

func TestEnrichMessages_Idempotent(t *testing.T) {
	fetcher := newFakeFetcher(chat.RawUser{ID: "u9", FirstName: "Bo", LastName: "Lee"})
	e := New(fetcher, nil, nil)

	msgs := []chat.Message{
		{ID: "m1", Sender: chat.EmbeddedRef(chat.RawUser{ID: "u1", FirstName: "Ann", LastName: "Kay"})},
		idMessage("m2", "u9"),
	}

	first := e.EnrichMessages(t.Context(), msgs)
	callsAfterFirst := fetcher.total()
	second := e.EnrichMessages(t.Context(), first)

	assert.Equal(t, 1, callsAfterFirst)
	assert.Equal(t, callsAfterFirst, fetcher.total(), "second pass must not look anything up")
	for i := range first {
		assert.Equal(t, *first[i].SenderDisplay, *second[i].SenderDisplay)
	}
}

func TestEnrichMessages_TrustsPriorDisplayOnFreshCache(t *testing.T) {
	fetcher := newFakeFetcher(chat.RawUser{ID: "u9", FirstName: "Bo", LastName: "Lee"})
	enriched := New(fetcher, nil, nil).EnrichMessages(t.Context(), []chat.Message{idMessage("m1", "u9")})

	fresh := New(fetcher, nil, nil)
	again := fresh.EnrichMessages(t.Context(), enriched)

	assert.Equal(t, 1, fetcher.callsFor("u9"))
	assert.Equal(t, "Bo Lee", again[0].SenderDisplay.Name)
}

func TestEnrichMessages_PartialWireDisplayIsLookedUp(t *testing.T) {
	fetcher := newFakeFetcher(chat.RawUser{ID: "u9", FirstName: "Bo", LastName: "Lee", Image: "http://img/u9"})
	e := New(fetcher, nil, nil)

	var msg chat.Message
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"m1","sender_id":"u9","sender":{"id":"u9"}}`), &msg))

	out := e.EnrichMessage(t.Context(), msg)
	assert.Equal(t, 1, fetcher.callsFor("u9"))
	assert.Equal(t, "Bo Lee", out.SenderDisplay.Name)
	assert.Equal(t, "http://img/u9", out.SenderDisplay.ProfileImageURL)
	assert.True(t, out.SenderDisplay.Complete())

	later := e.EnrichMessage(t.Context(), idMessage("m2", "u9"))
	assert.Equal(t, "Bo Lee", later.SenderDisplay.Name)
	assert.Equal(t, 1, fetcher.callsFor("u9"))
}

func TestEnrichMessages_EmbeddedOverridesWireDisplay(t *testing.T) {
	e := New(newFakeFetcher(), nil, nil)

	stale := chat.UserDisplay{ID: "u1", Name: "Old Name", ProfileImageURL: "x", Status: "online"}
	msg := chat.Message{
		ID:            "m1",
		Sender:        chat.EmbeddedRef(chat.RawUser{ID: "u1", FirstName: "Ann", LastName: "Lee"}),
		SenderDisplay: &stale,
	}

	out := e.EnrichMessage(t.Context(), msg)
	assert.Equal(t, "Ann Lee", out.SenderDisplay.Name)
}

func TestEnrichMessages_FailedLookupGetsPlaceholder(t *testing.T) {
	fetcher := newFakeFetcher(chat.RawUser{ID: "ok", FirstName: "Ok"})
	e := New(fetcher, nil, nil)

	out := e.EnrichMessages(t.Context(), []chat.Message{
		idMessage("m1", "missing"),
		idMessage("m2", "ok"),
		{ID: "m3"}, // no sender at all
	})

	require.Len(t, out, 3)
	for _, m := range out {
		require.NotNil(t, m.SenderDisplay)
		assert.NotEmpty(t, m.SenderDisplay.Name)
		assert.NotEmpty(t, m.SenderDisplay.ProfileImageURL)
	}
	assert.Equal(t, chat.UnknownUserName, out[0].SenderDisplay.Name)
	assert.Equal(t, "missing", out[0].SenderDisplay.ID)
	assert.Equal(t, "Ok", out[1].SenderDisplay.Name)
	assert.True(t, out[2].SenderDisplay.IsUnknown())

	_, cached := e.Cache().Get("missing")
	assert.False(t, cached, "failures are not cached")
}

func TestEnrichMessages_DoesNotMutateInput(t *testing.T) {
	e := New(newFakeFetcher(chat.RawUser{ID: "u1", Name: "Ann"}), nil, nil)

	in := []chat.Message{idMessage("m1", "u1")}
	out := e.EnrichMessages(t.Context(), in)

	assert.Nil(t, in[0].SenderDisplay)
	assert.NotNil(t, out[0].SenderDisplay)
}

func TestEnrichMessages_CappedCacheStillResolves(t *testing.T) {
	fetcher := newFakeFetcher(
		chat.RawUser{ID: "a", Name: "A"},
		chat.RawUser{ID: "b", Name: "B"},
		chat.RawUser{ID: "c", Name: "C"},
	)
	e := New(fetcher, NewCache(1), nil)

	out := e.EnrichMessages(t.Context(), []chat.Message{idMessage("1", "a"), idMessage("2", "b"), idMessage("3", "c")})

	assert.Equal(t, "A", out[0].SenderDisplay.Name)
	assert.Equal(t, "B", out[1].SenderDisplay.Name)
	assert.Equal(t, "C", out[2].SenderDisplay.Name)
	assert.Equal(t, 1, e.Cache().Len())
}
