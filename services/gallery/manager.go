package gallery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skullzarmy/collekt-go/services/gallery/cache"
	"github.com/skullzarmy/collekt-go/services/gallery/filter"
	"github.com/skullzarmy/collekt-go/services/gallery/thirdparty"
	"github.com/skullzarmy/collekt-go/services/gallery/token"
)

// Content types partition the cache keyspace by subject category.
const (
	ContentWallet   = "wallet"
	ContentCuration = "curation"
	ContentContract = "collection"
)

const (
	defaultPageSize = 20
	maxPageSize     = 500

	// Key of an unfiltered collection variant.
	noFilterSegment = "nofilter"
)

// CollectionCache is the slice of the cache store the orchestrator
// needs. Satisfied by *cache.Store; tests substitute an in-memory fake.
type CollectionCache interface {
	Enabled() bool
	DefaultTTL() time.Duration
	Get(ctx context.Context, key string, out any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool
	Invalidate(ctx context.Context, key string) bool
	InvalidatePattern(ctx context.Context, pattern string) int
	HealthCheck(ctx context.Context) bool
	Stats() *cache.Stats
}

type PageRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

type Options struct {
	ForceRefresh bool
	ApplyFilters bool
	CacheResults bool
	Sort         bool
}

func DefaultOptions() Options {
	return Options{
		ApplyFilters: true,
		CacheResults: true,
		Sort:         true,
	}
}

type Pagination struct {
	Page            int  `json:"page"`
	PageSize        int  `json:"pageSize"`
	TotalItems      int  `json:"totalItems"`
	TotalPages      int  `json:"totalPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

type CacheInfo struct {
	Hit        bool   `json:"hit"`
	Key        string `json:"key"`
	DurationMs int64  `json:"durationMs"`
}

// Result is one page of a subject's collection plus the provenance of
// how it was produced.
type Result struct {
	RequestID      uuid.UUID     `json:"requestId"`
	Subject        string        `json:"subject"`
	ContentType    string        `json:"contentType"`
	Tokens         []token.Token `json:"tokens"`
	Pagination     Pagination    `json:"pagination"`
	Cache          CacheInfo     `json:"cache"`
	FilterStats    *filter.Stats `json:"filterStats,omitempty"`
	FiltersApplied []string      `json:"filtersApplied,omitempty"`
	FilterHash     string        `json:"filterHash,omitempty"`
	Source         string        `json:"source"`
	FetchedAt      time.Time     `json:"fetchedAt"`
}

// collectionSnapshot is the cached form of a fully-built collection
// variant: fetched, filtered, sorted. Pagination never touches the
// cache layout, every page reads the same snapshot.
type collectionSnapshot struct {
	Tokens         []token.Token `json:"tokens"`
	FilterStats    *filter.Stats `json:"filterStats,omitempty"`
	FiltersApplied []string      `json:"filtersApplied,omitempty"`
	FilterHash     string        `json:"filterHash,omitempty"`
	Source         string        `json:"source"`
	FetchedAt      time.Time     `json:"fetchedAt"`
}

type Health struct {
	Cache     bool            `json:"cache"`
	Providers map[string]bool `json:"providers"`
	Filters   bool            `json:"filters"`
	Overall   bool            `json:"overall"`
}

// Manager orchestrates cache, providers and filtering into paged
// collection reads. Fetches always retrieve the complete collection;
// filters and pagination are applied on the full set so page boundaries
// stay stable. Concurrent cold misses for one subject build
// independently; cache writes are whole-value, so the last write wins.
type Manager struct {
	cache           CollectionCache
	walletFetcher   thirdparty.CollectionFetcher
	contractFetcher thirdparty.CollectionFetcher
	curationFetcher thirdparty.CollectionFetcher

	mu     sync.RWMutex
	engine *filter.Engine

	logger *zap.Logger
}

func NewManager(
	collectionCache CollectionCache,
	walletFetcher thirdparty.CollectionFetcher,
	contractFetcher thirdparty.CollectionFetcher,
	curationFetcher thirdparty.CollectionFetcher,
	filterConfig filter.Config,
	logger *zap.Logger,
) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine, err := filter.NewEngine(filterConfig, logger)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cache:           collectionCache,
		walletFetcher:   walletFetcher,
		contractFetcher: contractFetcher,
		curationFetcher: curationFetcher,
		engine:          engine,
		logger:          logger.Named("gallery"),
	}, nil
}

// GetWalletCollection returns one page of the tokens held by a wallet.
func (m *Manager) GetWalletCollection(ctx context.Context, address string, page PageRequest, opts Options) (*Result, error) {
	return m.orchestrate(ctx, ContentWallet, address, m.walletFetcher, page, opts)
}

// GetContractCollection returns one page of a contract's circulating
// collection.
func (m *Manager) GetContractCollection(ctx context.Context, contract string, page PageRequest, opts Options) (*Result, error) {
	return m.orchestrate(ctx, ContentContract, contract, m.contractFetcher, page, opts)
}

// GetCurationCollection returns one page of a curated gallery.
func (m *Manager) GetCurationCollection(ctx context.Context, curationID string, page PageRequest, opts Options) (*Result, error) {
	return m.orchestrate(ctx, ContentCuration, curationID, m.curationFetcher, page, opts)
}

func (m *Manager) orchestrate(ctx context.Context, contentType, subjectID string, fetcher thirdparty.CollectionFetcher, page PageRequest, opts Options) (*Result, error) {
	page, err := normalizePage(page)
	if err != nil {
		return nil, newOrchestrationError(subjectID, "paginate", err)
	}

	engine := m.filterEngine()
	filterHash := noFilterSegment
	applyFilters := opts.ApplyFilters && engine.HasActiveFilters()
	if applyFilters {
		filterHash = engine.Hash()
	}
	key := cacheKey(contentType, subjectID, filterHash)

	if opts.ForceRefresh {
		cleared := m.cache.InvalidatePattern(ctx, subjectPattern(contentType, subjectID))
		m.logger.Info("force refresh cleared cache variants",
			zap.String("subject", subjectID),
			zap.Int("cleared", cleared))
	}

	var snapshot collectionSnapshot
	cacheHit := !opts.ForceRefresh && m.cache.Get(ctx, key, &snapshot)

	var buildDuration time.Duration
	if !cacheHit {
		buildStart := time.Now()
		tokens, err := fetcher.FetchCompleteCollection(ctx, subjectID)
		if err != nil {
			return nil, newOrchestrationError(subjectID, "fetch",
				fmt.Errorf("%w: %v", ErrCollectionUnavailable, err))
		}

		snapshot = collectionSnapshot{
			Tokens:    tokens,
			Source:    fetcher.ID(),
			FetchedAt: time.Now().UTC(),
		}
		if applyFilters {
			filtered := engine.Apply(tokens)
			snapshot.Tokens = filtered.Tokens
			snapshot.FilterStats = &filtered.Stats
			snapshot.FiltersApplied = filtered.FiltersApplied
			snapshot.FilterHash = filtered.Hash
		}
		if opts.Sort {
			token.SortChronologically(snapshot.Tokens)
		}

		buildDuration = time.Since(buildStart)
		m.cache.Stats().RecordBuild(buildDuration.Milliseconds())

		if opts.CacheResults {
			m.cache.Set(ctx, key, snapshot, m.cache.DefaultTTL())
		}
	}

	paged, pagination := paginate(snapshot.Tokens, page)

	return &Result{
		RequestID:   uuid.New(),
		Subject:     subjectID,
		ContentType: contentType,
		Tokens:      paged,
		Pagination:  pagination,
		Cache: CacheInfo{
			Hit:        cacheHit,
			Key:        key,
			DurationMs: buildDuration.Milliseconds(),
		},
		FilterStats:    snapshot.FilterStats,
		FiltersApplied: snapshot.FiltersApplied,
		FilterHash:     snapshot.FilterHash,
		Source:         snapshot.Source,
		FetchedAt:      snapshot.FetchedAt,
	}, nil
}

// UpdateFilters swaps in a new filter configuration. Previously cached
// variants stay keyed under their old hash and simply stop being read.
func (m *Manager) UpdateFilters(cfg filter.Config) error {
	engine, err := filter.NewEngine(cfg, m.logger)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.engine = engine
	m.mu.Unlock()
	return nil
}

// CurrentFilterHash exposes the active configuration's identity, mainly
// for diagnostics and cache-key introspection.
func (m *Manager) CurrentFilterHash() string {
	return m.filterEngine().Hash()
}

// InvalidateCache drops the cached variant of the subject under the
// active filter configuration.
func (m *Manager) InvalidateCache(ctx context.Context, contentType, subjectID string) bool {
	engine := m.filterEngine()
	filterHash := noFilterSegment
	if engine.HasActiveFilters() {
		filterHash = engine.Hash()
	}
	return m.cache.Invalidate(ctx, cacheKey(contentType, subjectID, filterHash))
}

// ClearAllForSubject drops every cached variant of the subject across
// content types and filter configurations. Returns the number of
// entries removed. When pattern deletion removes nothing, the
// current-configuration keys are invalidated individually as a
// fallback.
func (m *Manager) ClearAllForSubject(ctx context.Context, subjectID string) int {
	cleared := m.cache.InvalidatePattern(ctx, fmt.Sprintf("gallery:*:%s:*", subjectID))
	if cleared > 0 {
		return cleared
	}
	for _, contentType := range []string{ContentWallet, ContentCuration, ContentContract} {
		if m.InvalidateCache(ctx, contentType, subjectID) {
			cleared++
		}
	}
	return cleared
}

func (m *Manager) HealthCheck(ctx context.Context) Health {
	health := Health{
		Cache:     m.cache.HealthCheck(ctx),
		Providers: make(map[string]bool),
		Filters:   true,
	}
	for _, fetcher := range []thirdparty.CollectionFetcher{m.walletFetcher, m.contractFetcher, m.curationFetcher} {
		if fetcher != nil {
			health.Providers[fetcher.ID()] = fetcher.IsConnected()
		}
	}
	health.Overall = health.Cache && health.Filters
	for _, connected := range health.Providers {
		if !connected {
			health.Overall = false
		}
	}
	return health
}

func (m *Manager) CacheStats() cache.StatsSnapshot {
	return m.cache.Stats().Snapshot()
}

func (m *Manager) filterEngine() *filter.Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engine
}

func cacheKey(contentType, subjectID, filterHash string) string {
	return fmt.Sprintf("gallery:%s:%s:%s", contentType, subjectID, filterHash)
}

func subjectPattern(contentType, subjectID string) string {
	return fmt.Sprintf("gallery:%s:%s:*", contentType, subjectID)
}

func normalizePage(page PageRequest) (PageRequest, error) {
	if page.Page == 0 {
		page.Page = 1
	}
	if page.PageSize == 0 {
		page.PageSize = defaultPageSize
	}
	if page.Page < 1 {
		return page, fmt.Errorf("%w: page %d", ErrInvalidPageRequest, page.Page)
	}
	if page.PageSize < 1 || page.PageSize > maxPageSize {
		return page, fmt.Errorf("%w: page size %d", ErrInvalidPageRequest, page.PageSize)
	}
	return page, nil
}

// paginate slices one page out of the full collection. A page past the
// end is a valid empty page, never an error.
func paginate(tokens []token.Token, page PageRequest) ([]token.Token, Pagination) {
	totalItems := len(tokens)
	totalPages := (totalItems + page.PageSize - 1) / page.PageSize

	start := (page.Page - 1) * page.PageSize
	end := start + page.PageSize
	if start > totalItems {
		start = totalItems
	}
	if end > totalItems {
		end = totalItems
	}

	return tokens[start:end], Pagination{
		Page:            page.Page,
		PageSize:        page.PageSize,
		TotalItems:      totalItems,
		TotalPages:      totalPages,
		HasNextPage:     page.Page < totalPages,
		HasPreviousPage: page.Page > 1 && totalItems > 0,
	}
}
