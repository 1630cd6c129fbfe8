package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/skullzarmy/collekt-go/services/gallery/thirdparty"
)

// Kind is the resolved category of a user-supplied gallery subject.
type Kind string

const (
	KindWallet   Kind = "wallet"
	KindContract Kind = "contract"
	KindDomain   Kind = "domain"
	KindCuration Kind = "curation"
	KindUnknown  Kind = "unknown"
)

// Subject is a classified input. For domains, ID carries the resolved
// wallet address and Domain keeps the original name.
type Subject struct {
	Kind   Kind   `json:"kind"`
	ID     string `json:"id"`
	Domain string `json:"domain,omitempty"`
	Route  string `json:"route"`
}

var (
	walletPattern   = regexp.MustCompile(`^tz[123][1-9A-HJ-NP-Za-km-z]{33}$`)
	contractPattern = regexp.MustCompile(`^KT1[1-9A-HJ-NP-Za-km-z]{33}$`)
	domainPattern   = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]*(\.[a-z0-9][a-z0-9\-]*)*\.tez$`)
	curationPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)
)

const domainCacheTTL = 10 * time.Minute

var ErrUnresolvableDomain = fmt.Errorf("domain does not resolve to an address")

// Classifier maps raw user input (wallet address, contract address,
// naming-service domain, or curated-gallery id) to a typed subject.
// Domain lookups hit the resolver's API, so results are memoized.
type Classifier struct {
	resolver    thirdparty.DomainResolver
	domainCache *ttlcache.Cache[string, string]
	logger      *zap.Logger
}

func New(resolver thirdparty.DomainResolver, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](domainCacheTTL),
	)
	go cache.Start()
	return &Classifier{
		resolver:    resolver,
		domainCache: cache,
		logger:      logger.Named("classifier"),
	}
}

func (c *Classifier) Stop() {
	c.domainCache.Stop()
}

// Classify inspects the input and returns its subject. Address and
// domain shapes are decided syntactically; anything else that looks like
// an identifier is treated as a curated-gallery id.
func (c *Classifier) Classify(ctx context.Context, input string) (Subject, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Subject{Kind: KindUnknown}, fmt.Errorf("empty input")
	}

	switch {
	case walletPattern.MatchString(trimmed):
		return Subject{
			Kind:  KindWallet,
			ID:    trimmed,
			Route: "/wallet/" + trimmed,
		}, nil

	case contractPattern.MatchString(trimmed):
		return Subject{
			Kind:  KindContract,
			ID:    trimmed,
			Route: "/collection/" + trimmed,
		}, nil

	case domainPattern.MatchString(strings.ToLower(trimmed)):
		name := strings.ToLower(trimmed)
		address, err := c.resolveDomain(ctx, name)
		if err != nil {
			return Subject{Kind: KindDomain, Domain: name}, err
		}
		return Subject{
			Kind:   KindDomain,
			ID:     address,
			Domain: name,
			Route:  "/wallet/" + address,
		}, nil

	// A string shaped like an address prefix but failing address
	// validation is a typo, not a gallery id.
	case looksLikeAddress(trimmed):
		return Subject{Kind: KindUnknown}, fmt.Errorf("malformed address %q", trimmed)

	case curationPattern.MatchString(trimmed):
		return Subject{
			Kind:  KindCuration,
			ID:    trimmed,
			Route: "/gallery/" + trimmed,
		}, nil
	}

	return Subject{Kind: KindUnknown}, fmt.Errorf("unrecognized input %q", trimmed)
}

func looksLikeAddress(input string) bool {
	for _, prefix := range []string{"tz1", "tz2", "tz3", "KT"} {
		if strings.HasPrefix(input, prefix) {
			return true
		}
	}
	return false
}

func (c *Classifier) resolveDomain(ctx context.Context, name string) (string, error) {
	if item := c.domainCache.Get(name); item != nil {
		return item.Value(), nil
	}

	address, err := c.resolver.ResolveDomain(ctx, name)
	if err != nil {
		return "", err
	}
	if address == "" {
		return "", ErrUnresolvableDomain
	}

	c.domainCache.Set(name, address, ttlcache.DefaultTTL)
	return address, nil
}
