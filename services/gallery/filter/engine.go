package filter

import (
	"math/big"
	"strings"

	mapset "github.com/deckarep/golang-set"
	"go.uber.org/zap"

	"github.com/skullzarmy/collekt-go/services/gallery/token"
)

// Stage names, in execution order. The order is a design decision: each
// stage narrows the output of the previous one, so a token removed early is
// never counted again by a later stage.
const (
	StageRequireMetadata = "require-metadata"
	StageMinBalance      = "min-balance"
	StageUtilityTokens   = "utility-tokens"
	StageContractLists   = "contract-lists"
	StageRequireImage    = "require-image"
	StageRequireName     = "require-name"
)

// Stats holds per-stage removal counts for one Apply run.
type Stats struct {
	NoMetadata    int `json:"noMetadata"`
	BelowBalance  int `json:"belowBalance"`
	UtilityTokens int `json:"utilityTokens"`
	ContractLists int `json:"contractLists"`
	NoImage       int `json:"noImage"`
	NoName        int `json:"noName"`
}

// Total is the number of tokens removed across all stages.
func (s Stats) Total() int {
	return s.NoMetadata + s.BelowBalance + s.UtilityTokens + s.ContractLists + s.NoImage + s.NoName
}

// Result bundles the filtered list with its removal statistics.
type Result struct {
	Tokens         []token.Token `json:"tokens"`
	OriginalCount  int           `json:"originalCount"`
	FilteredCount  int           `json:"filteredCount"`
	Stats          Stats         `json:"stats"`
	FiltersApplied []string      `json:"filtersApplied"`
	Hash           string        `json:"hash"`
}

// Engine applies a fixed-order pipeline of predicate filters to a token
// list. The engine is immutable after construction; configuration changes
// are made by building a new engine, which also changes the hash.
type Engine struct {
	cfg      Config
	hash     string
	allowSet mapset.Set
	denySet  mapset.Set
	logger   *zap.Logger
}

func NewEngine(cfg Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	allowSet := mapset.NewSet()
	for _, contract := range cfg.Contracts.Allow {
		allowSet.Add(strings.ToLower(contract))
	}
	denySet := mapset.NewSet()
	for _, contract := range cfg.Contracts.Deny {
		denySet.Add(strings.ToLower(contract))
	}

	return &Engine{
		cfg:      cfg,
		hash:     hashConfig(cfg),
		allowSet: allowSet,
		denySet:  denySet,
		logger:   logger.Named("filter"),
	}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Hash is the deterministic fingerprint of the active configuration, used
// verbatim as a cache-key segment.
func (e *Engine) Hash() string {
	return e.hash
}

// HasActiveFilters reports whether Apply would do anything at all, letting
// the orchestrator skip the pass (and its cache-key segment) entirely.
func (e *Engine) HasActiveFilters() bool {
	return e.cfg.Basic.RequireMetadata ||
		e.cfg.Basic.RequireBalance ||
		e.cfg.Utility.ExcludePreferSymbol ||
		e.cfg.Utility.ExcludeDecimalsAboveZero ||
		e.cfg.Metadata.RequireImage ||
		e.cfg.Metadata.RequireName ||
		e.allowSet.Cardinality() > 0 ||
		e.denySet.Cardinality() > 0
}

// Apply runs the pipeline. Stages execute in fixed order, each consuming
// the previous stage's output.
func (e *Engine) Apply(tokens []token.Token) Result {
	result := Result{
		OriginalCount:  len(tokens),
		FiltersApplied: make([]string, 0, 6),
		Hash:           e.hash,
	}

	current := tokens

	if e.cfg.Basic.RequireMetadata {
		current, result.Stats.NoMetadata = keep(current, func(t token.Token) bool {
			return t.HasMetadata
		})
		result.FiltersApplied = append(result.FiltersApplied, StageRequireMetadata)
	}

	if e.cfg.Basic.RequireBalance {
		minBalance := big.NewInt(e.cfg.Basic.MinBalance)
		current, result.Stats.BelowBalance = keep(current, func(t token.Token) bool {
			balance, ok := new(big.Int).SetString(t.Balance, 10)
			return ok && balance.Cmp(minBalance) > 0
		})
		result.FiltersApplied = append(result.FiltersApplied, StageMinBalance)
	}

	if e.cfg.Utility.ExcludePreferSymbol || e.cfg.Utility.ExcludeDecimalsAboveZero {
		current, result.Stats.UtilityTokens = keep(current, func(t token.Token) bool {
			if e.cfg.Utility.ExcludePreferSymbol && t.Metadata != nil && t.Metadata.ShouldPreferSymbol {
				return false
			}
			if e.cfg.Utility.ExcludeDecimalsAboveZero && t.Decimals() > 0 {
				return false
			}
			return true
		})
		result.FiltersApplied = append(result.FiltersApplied, StageUtilityTokens)
	}

	if e.allowSet.Cardinality() > 0 || e.denySet.Cardinality() > 0 {
		current, result.Stats.ContractLists = keep(current, e.contractAllowed)
		result.FiltersApplied = append(result.FiltersApplied, StageContractLists)
	}

	if e.cfg.Metadata.RequireImage {
		current, result.Stats.NoImage = keep(current, func(t token.Token) bool {
			return t.HasImage
		})
		result.FiltersApplied = append(result.FiltersApplied, StageRequireImage)
	}

	if e.cfg.Metadata.RequireName {
		current, result.Stats.NoName = keep(current, func(t token.Token) bool {
			return t.Metadata != nil && t.Metadata.Name != ""
		})
		result.FiltersApplied = append(result.FiltersApplied, StageRequireName)
	}

	result.Tokens = current
	result.FilteredCount = len(current)

	e.logger.Debug("filter pipeline done",
		zap.Int("original", result.OriginalCount),
		zap.Int("filtered", result.FilteredCount),
		zap.Strings("applied", result.FiltersApplied))

	return result
}

// contractAllowed implements the allow/deny stage. A non-empty allow list
// fully overrides the deny list.
func (e *Engine) contractAllowed(t token.Token) bool {
	contract := strings.ToLower(t.Contract)
	if e.allowSet.Cardinality() > 0 {
		return e.allowSet.Contains(contract)
	}
	return !e.denySet.Contains(contract)
}

func keep(tokens []token.Token, pred func(token.Token) bool) ([]token.Token, int) {
	kept := make([]token.Token, 0, len(tokens))
	for _, t := range tokens {
		if pred(t) {
			kept = append(kept, t)
		}
	}
	return kept, len(tokens) - len(kept)
}
