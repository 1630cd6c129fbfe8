package gallery

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"github.com/skullzarmy/collekt-go/services/gallery/async"
	"github.com/skullzarmy/collekt-go/services/gallery/connection"
	"github.com/skullzarmy/collekt-go/services/gallery/galleryevent"
)

// Event types published on the service feed.
const (
	EventCollectionReady       galleryevent.EventType = "gallery-collection-ready"
	EventCollectionFailed      galleryevent.EventType = "gallery-collection-failed"
	EventCacheCleared          galleryevent.EventType = "gallery-cache-cleared"
	EventProviderStatusChanged galleryevent.EventType = "gallery-provider-status-changed"
)

// Service wraps the manager with a lifecycle and an event feed for
// callers that want asynchronous collection loads.
type Service struct {
	manager        *Manager
	feed           *event.Feed
	group          *async.Group
	statuses       sync.Map
	statusNotifier *connection.StatusNotifier
	logger         *zap.Logger
}

func NewService(manager *Manager, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		manager: manager,
		feed:    &event.Feed{},
		logger:  logger.Named("gallery-service"),
	}
	s.statusNotifier = connection.NewStatusNotifier(&s.statuses, EventProviderStatusChanged, s.feed)
	return s
}

// WatchProviderStatus publishes an aggregate provider-status event on
// the feed whenever the given provider's connection state flips.
func (s *Service) WatchProviderStatus(providerID string, status *connection.Status) {
	s.statusNotifier.Watch(providerID, status)
}

func (s *Service) Start() {
	s.group = async.NewGroup(context.Background())
}

// stopTimeout bounds how long Stop blocks on in-flight background
// commands before giving up on them.
const stopTimeout = 5 * time.Second

func (s *Service) Stop() {
	if s.group == nil {
		return
	}
	s.group.Stop()
	select {
	case <-s.group.WaitAsync():
	case <-time.After(stopTimeout):
		s.logger.Warn("timed out waiting for background commands to finish")
	}
	s.group = nil
}

func (s *Service) Manager() *Manager {
	return s.manager
}

// SubscribeToEvents delivers completion events for asynchronous loads.
func (s *Service) SubscribeToEvents(ch chan<- galleryevent.Event) event.Subscription {
	return s.feed.Subscribe(ch)
}

// GetWalletCollection is the synchronous passthrough.
func (s *Service) GetWalletCollection(ctx context.Context, address string, page PageRequest, opts Options) (*Result, error) {
	return s.manager.GetWalletCollection(ctx, address, page, opts)
}

func (s *Service) GetContractCollection(ctx context.Context, contract string, page PageRequest, opts Options) (*Result, error) {
	return s.manager.GetContractCollection(ctx, contract, page, opts)
}

func (s *Service) GetCurationCollection(ctx context.Context, curationID string, page PageRequest, opts Options) (*Result, error) {
	return s.manager.GetCurationCollection(ctx, curationID, page, opts)
}

// GetWalletCollectionAsync schedules the load on the service group and
// publishes the outcome on the event feed.
func (s *Service) GetWalletCollectionAsync(address string, page PageRequest, opts Options) {
	s.scheduleLoad(address, func(ctx context.Context) (*Result, error) {
		return s.manager.GetWalletCollection(ctx, address, page, opts)
	})
}

func (s *Service) GetCurationCollectionAsync(curationID string, page PageRequest, opts Options) {
	s.scheduleLoad(curationID, func(ctx context.Context) (*Result, error) {
		return s.manager.GetCurationCollection(ctx, curationID, page, opts)
	})
}

// ClearSubjectCache drops every cached variant of the subject and
// announces the eviction on the feed.
func (s *Service) ClearSubjectCache(ctx context.Context, subjectID string) int {
	cleared := s.manager.ClearAllForSubject(ctx, subjectID)
	s.feed.Send(galleryevent.Event{
		Type:     EventCacheCleared,
		Subjects: []string{subjectID},
		At:       time.Now().Unix(),
	})
	return cleared
}

// WarmCache builds the wallet's cache entry in the background,
// retrying at the given interval until a build succeeds or the service
// stops. No events are published; this is a silent cache warmer.
func (s *Service) WarmCache(address string, retryInterval time.Duration) {
	if s.group == nil {
		s.logger.Warn("cache warm requested before Start", zap.String("subject", address))
		return
	}
	s.group.Add(async.FiniteCommand{
		Interval: retryInterval,
		Runable: func(ctx context.Context) error {
			_, err := s.manager.GetWalletCollection(ctx, address, PageRequest{}, DefaultOptions())
			return err
		},
	}.Run)
}

// WatchCollection force-refreshes the wallet's collection at the given
// interval until the service stops, publishing each refreshed page on
// the feed. Keeps a displayed gallery current without client polling.
func (s *Service) WatchCollection(address string, interval time.Duration, page PageRequest, opts Options) {
	if s.group == nil {
		s.logger.Warn("collection watch requested before Start", zap.String("subject", address))
		return
	}
	opts.ForceRefresh = true
	s.group.Add(async.InfiniteCommand{
		Interval: interval,
		Runable: func(ctx context.Context) error {
			result, err := s.manager.GetWalletCollection(ctx, address, page, opts)
			return s.publishOutcome(address, result, err)
		},
	}.Run)
}

func (s *Service) scheduleLoad(subjectID string, load func(context.Context) (*Result, error)) {
	if s.group == nil {
		s.logger.Warn("async load requested before Start", zap.String("subject", subjectID))
		return
	}
	s.group.Add(func(ctx context.Context) error {
		result, err := load(ctx)
		return s.publishOutcome(subjectID, result, err)
	})
}

// publishOutcome turns one load result into a feed event.
func (s *Service) publishOutcome(subjectID string, result *Result, err error) error {
	if err != nil {
		s.logger.Error("async collection load failed",
			zap.String("subject", subjectID), zap.Error(err))
		s.feed.Send(galleryevent.Event{
			Type:     EventCollectionFailed,
			Subjects: []string{subjectID},
			Message:  err.Error(),
			At:       time.Now().Unix(),
		})
		return err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	s.feed.Send(galleryevent.Event{
		Type:     EventCollectionReady,
		Subjects: []string{subjectID},
		Message:  string(payload),
		At:       time.Now().Unix(),
	})
	return nil
}
