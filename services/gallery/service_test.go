package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skullzarmy/collekt-go/services/gallery/connection"
	"github.com/skullzarmy/collekt-go/services/gallery/filter"
	"github.com/skullzarmy/collekt-go/services/gallery/galleryevent"
)

func newTestService(t *testing.T, fetcher *fakeFetcher) *Service {
	t.Helper()
	manager := newTestManager(t, newMemoryCache(), fetcher, filter.DefaultConfig())
	service := NewService(manager, zap.NewNop())
	service.Start()
	t.Cleanup(service.Stop)
	return service
}

func waitForEvent(t *testing.T, ch <-chan galleryevent.Event) galleryevent.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for gallery event")
		return galleryevent.Event{}
	}
}

func TestService_AsyncLoadPublishesResult(t *testing.T) {
	fetcher := &fakeFetcher{id: "tzkt-wallet", tokens: makeTokens(3), connected: true}
	service := newTestService(t, fetcher)

	events := make(chan galleryevent.Event, 2)
	sub := service.SubscribeToEvents(events)
	defer sub.Unsubscribe()

	service.GetWalletCollectionAsync("tz1abc", PageRequest{}, DefaultOptions())

	ev := waitForEvent(t, events)
	assert.Equal(t, EventCollectionReady, ev.Type)
	assert.Equal(t, []string{"tz1abc"}, ev.Subjects)

	var result Result
	require.NoError(t, json.Unmarshal([]byte(ev.Message), &result))
	assert.Len(t, result.Tokens, 3)
	assert.Equal(t, "tz1abc", result.Subject)
}

func TestService_AsyncLoadPublishesFailure(t *testing.T) {
	fetcher := &fakeFetcher{id: "tzkt-wallet", err: errors.New("indexer down")}
	service := newTestService(t, fetcher)

	events := make(chan galleryevent.Event, 2)
	sub := service.SubscribeToEvents(events)
	defer sub.Unsubscribe()

	service.GetWalletCollectionAsync("tz1abc", PageRequest{}, DefaultOptions())

	ev := waitForEvent(t, events)
	assert.Equal(t, EventCollectionFailed, ev.Type)
	assert.Contains(t, ev.Message, "indexer down")
}

func TestService_SyncPassthrough(t *testing.T) {
	fetcher := &fakeFetcher{id: "tzkt-wallet", tokens: makeTokens(2), connected: true}
	service := newTestService(t, fetcher)

	result, err := service.GetWalletCollection(context.Background(), "tz1abc", PageRequest{}, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, result.Tokens, 2)
}

func TestService_ClearSubjectCachePublishesEvent(t *testing.T) {
	fetcher := &fakeFetcher{id: "tzkt-wallet", tokens: makeTokens(2), connected: true}
	service := newTestService(t, fetcher)

	_, err := service.GetWalletCollection(context.Background(), "tz1abc", PageRequest{}, DefaultOptions())
	require.NoError(t, err)

	events := make(chan galleryevent.Event, 2)
	sub := service.SubscribeToEvents(events)
	defer sub.Unsubscribe()

	cleared := service.ClearSubjectCache(context.Background(), "tz1abc")
	assert.Equal(t, 1, cleared)

	ev := waitForEvent(t, events)
	assert.Equal(t, EventCacheCleared, ev.Type)
}

func TestService_ProviderStatusEvents(t *testing.T) {
	fetcher := &fakeFetcher{id: "tzkt-wallet", tokens: makeTokens(1), connected: true}
	service := newTestService(t, fetcher)

	events := make(chan galleryevent.Event, 2)
	sub := service.SubscribeToEvents(events)
	defer sub.Unsubscribe()

	status := connection.NewStatus()
	service.WatchProviderStatus("tzkt", status)
	status.SetIsConnected(false)

	ev := waitForEvent(t, events)
	assert.Equal(t, EventProviderStatusChanged, ev.Type)
	assert.Contains(t, ev.Message, "tzkt")
}

func TestService_WarmCacheRetriesUntilBuilt(t *testing.T) {
	fetcher := &fakeFetcher{id: "tzkt-wallet", tokens: makeTokens(2), connected: true, failFirst: 2}
	service := newTestService(t, fetcher)

	service.WarmCache("tz1abc", time.Millisecond)

	require.Eventually(t, func() bool {
		return fetcher.fetchCount() >= 3
	}, 5*time.Second, time.Millisecond, "warmup should retry past transient failures")

	// The warmed entry serves the next synchronous read from cache.
	require.Eventually(t, func() bool {
		result, err := service.GetWalletCollection(context.Background(), "tz1abc", PageRequest{}, DefaultOptions())
		return err == nil && result.Cache.Hit
	}, 5*time.Second, time.Millisecond)
}

func TestService_WatchCollectionPublishesRefreshes(t *testing.T) {
	fetcher := &fakeFetcher{id: "tzkt-wallet", tokens: makeTokens(2), connected: true}
	service := newTestService(t, fetcher)

	events := make(chan galleryevent.Event, 16)
	sub := service.SubscribeToEvents(events)
	defer sub.Unsubscribe()

	service.WatchCollection("tz1abc", 5*time.Millisecond, PageRequest{}, DefaultOptions())

	first := waitForEvent(t, events)
	assert.Equal(t, EventCollectionReady, first.Type)
	second := waitForEvent(t, events)
	assert.Equal(t, EventCollectionReady, second.Type)

	// Each tick force-refreshes, so the provider is hit every time.
	assert.GreaterOrEqual(t, fetcher.fetchCount(), 2)
}

func TestService_AsyncBeforeStartIsNoop(t *testing.T) {
	fetcher := &fakeFetcher{id: "tzkt-wallet", tokens: makeTokens(1), connected: true}
	manager := newTestManager(t, newMemoryCache(), fetcher, filter.DefaultConfig())
	service := NewService(manager, zap.NewNop())

	// Must not panic or fetch.
	service.GetWalletCollectionAsync("tz1abc", PageRequest{}, DefaultOptions())
	assert.Equal(t, 0, fetcher.fetchCount())
}
