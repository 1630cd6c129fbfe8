package token

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Standard is the token standard tag reported by the indexer.
type Standard string

const (
	StandardFA2     Standard = "fa2"
	StandardFA12    Standard = "fa1.2"
	StandardUnknown Standard = "unknown"
)

func StandardFromString(s string) Standard {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fa2":
		return StandardFA2
	case "fa1.2", "fa12":
		return StandardFA12
	}
	return StandardUnknown
}

// Format is one entry of the metadata formats list. When present it is the
// authoritative source for the media type of a URI.
type Format struct {
	URI        string `json:"uri"`
	MimeType   string `json:"mimeType"`
	FileSize   int64  `json:"fileSize,omitempty"`
	Dimensions string `json:"dimensions,omitempty"`
}

type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Metadata is the optional metadata sub-record of a token.
type Metadata struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Symbol      string `json:"symbol,omitempty"`
	Decimals    *int   `json:"decimals,omitempty"`

	Image        string `json:"image,omitempty"`
	ArtifactURI  string `json:"artifactUri,omitempty"`
	DisplayURI   string `json:"displayUri,omitempty"`
	ThumbnailURI string `json:"thumbnailUri,omitempty"`

	Formats    []Format    `json:"formats,omitempty"`
	Creators   []string    `json:"creators,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	Tags       []string    `json:"tags,omitempty"`
	Supply     string      `json:"supply,omitempty"`

	ShouldPreferSymbol bool `json:"shouldPreferSymbol,omitempty"`
	IsBooleanAmount    bool `json:"isBooleanAmount,omitempty"`
}

// Provenance records which provider produced a token.
type Provenance struct {
	Provider string `json:"provider"`
	Endpoint string `json:"endpoint"`
	Priority int    `json:"priority"`
}

// Token is the normalized record for one owned/curated/collected NFT.
// Tokens are immutable after normalization; a refetch produces a new value
// that displaces a cached one by identical ID.
type Token struct {
	ID            string   `json:"id"` // contract:tokenId
	Contract      string   `json:"contract"`
	ContractAlias string   `json:"contractAlias,omitempty"`
	TokenID       string   `json:"tokenId"`
	Balance       string   `json:"balance"`
	Standard      Standard `json:"standard"`

	Metadata   *Metadata  `json:"metadata,omitempty"`
	Provenance Provenance `json:"provenance"`
	FetchedAt  time.Time  `json:"fetchedAt"`

	// Chronology as reported by the indexer.
	MintedAt       time.Time `json:"mintedAt"`
	LastTransferAt time.Time `json:"lastTransferAt"`

	// Derived fields, computed once at normalization time.
	DisplayImage string `json:"displayImage,omitempty"`
	DisplayName  string `json:"displayName"`
	SortKey      string `json:"sortKey"`

	IsValid     bool `json:"isValid"`
	HasImage    bool `json:"hasImage"`
	HasMetadata bool `json:"hasMetadata"`
}

// New builds a normalized Token and computes its derived fields.
func New(contract, contractAlias, tokenID, balance string, standard Standard, metadata *Metadata, provenance Provenance, mintedAt, lastTransferAt time.Time) Token {
	t := Token{
		ID:             MakeID(contract, tokenID),
		Contract:       contract,
		ContractAlias:  contractAlias,
		TokenID:        tokenID,
		Balance:        balance,
		Standard:       standard,
		Metadata:       metadata,
		Provenance:     provenance,
		FetchedAt:      time.Now().UTC(),
		MintedAt:       mintedAt,
		LastTransferAt: lastTransferAt,
	}

	t.DisplayImage = bestImage(metadata)
	t.DisplayName = bestName(metadata, tokenID)
	t.SortKey = t.ID
	t.HasMetadata = metadata != nil
	t.HasImage = t.DisplayImage != ""
	t.IsValid = t.Contract != "" && t.TokenID != ""

	return t
}

func MakeID(contract, tokenID string) string {
	return fmt.Sprintf("%s:%s", contract, tokenID)
}

// bestImage picks the display image using a fixed priority order.
func bestImage(m *Metadata) string {
	if m == nil {
		return ""
	}
	for _, uri := range []string{m.DisplayURI, m.ArtifactURI, m.Image, m.ThumbnailURI} {
		if uri != "" {
			return uri
		}
	}
	return ""
}

func bestName(m *Metadata, tokenID string) string {
	if m != nil && m.Name != "" {
		return m.Name
	}
	return fmt.Sprintf("Token #%s", tokenID)
}

// Decimals returns the metadata decimals, or 0 when absent.
func (t Token) Decimals() int {
	if t.Metadata == nil || t.Metadata.Decimals == nil {
		return 0
	}
	return *t.Metadata.Decimals
}

// SortChronologically orders tokens by last transfer time ascending, then
// mint time ascending, then sort key. The sort is stable.
func SortChronologically(tokens []Token) {
	sort.SliceStable(tokens, func(i, j int) bool {
		if !tokens[i].LastTransferAt.Equal(tokens[j].LastTransferAt) {
			return tokens[i].LastTransferAt.Before(tokens[j].LastTransferAt)
		}
		if !tokens[i].MintedAt.Equal(tokens[j].MintedAt) {
			return tokens[i].MintedAt.Before(tokens[j].MintedAt)
		}
		return tokens[i].SortKey < tokens[j].SortKey
	})
}
