package filter

import (
	"regexp"

	"github.com/pkg/errors"
	validator "gopkg.in/go-playground/validator.v9"
)

// kt1AddressPattern matches a base58check Tezos originated-contract address.
var kt1AddressPattern = regexp.MustCompile(`^KT1[1-9A-HJ-NP-Za-km-z]{33}$`)

// BasicRules are the baseline requirements every displayed token must meet.
type BasicRules struct {
	RequireMetadata bool  `json:"requireMetadata"`
	RequireBalance  bool  `json:"requireBalance"`
	MinBalance      int64 `json:"minBalance" validate:"gte=0"`
}

// UtilityRules drop fungible-like tokens that superficially resemble NFTs.
type UtilityRules struct {
	ExcludePreferSymbol      bool `json:"excludePreferSymbol"`
	ExcludeDecimalsAboveZero bool `json:"excludeDecimalsAboveZero"`
}

// MetadataRules require derived display fields to be present.
type MetadataRules struct {
	RequireImage bool `json:"requireImage"`
	RequireName  bool `json:"requireName"`
}

// ContractRules hold the allow/deny contract lists. A non-empty allow list
// fully overrides the deny list.
type ContractRules struct {
	Allow []string `json:"allow" validate:"dive,kt1addr"`
	Deny  []string `json:"deny" validate:"dive,kt1addr"`
}

// Config is the static, versioned filter configuration. It is validated
// eagerly at engine construction and hashed deterministically to partition
// cache entries.
type Config struct {
	Version   string        `json:"version"`
	Basic     BasicRules    `json:"basic"`
	Utility   UtilityRules  `json:"utility"`
	Metadata  MetadataRules `json:"metadata"`
	Contracts ContractRules `json:"contracts"`
}

// DefaultConfig mirrors the gallery defaults: metadata, a positive balance
// and a displayable image are required, utility tokens are excluded.
func DefaultConfig() Config {
	return Config{
		Version: "1",
		Basic: BasicRules{
			RequireMetadata: true,
			RequireBalance:  true,
		},
		Utility: UtilityRules{
			ExcludePreferSymbol:      true,
			ExcludeDecimalsAboveZero: true,
		},
		Metadata: MetadataRules{
			RequireImage: true,
		},
	}
}

func newValidate() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("kt1addr", func(fl validator.FieldLevel) bool {
		return kt1AddressPattern.MatchString(fl.Field().String())
	})
	return validate
}

// Validate fails fast on malformed configuration. An invalid configuration
// must never silently degrade into a permissive filter.
func (c Config) Validate() error {
	if err := newValidate().Struct(c); err != nil {
		return errors.Wrap(err, "invalid filter configuration")
	}
	return nil
}
