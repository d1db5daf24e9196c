package config

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/apexarb/dexarb/types"
	"github.com/apexarb/dexarb/venue"
)

// Catalog is the on-disk venue and token inventory.
type Catalog struct {
	Venues []VenueEntry `yaml:"venues"`
	Tokens []TokenEntry `yaml:"tokens"`
}

type VenueEntry struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Router   string `yaml:"router"`
	Factory  string `yaml:"factory"`
	FeeRate  string `yaml:"fee_rate"`
	Verified bool   `yaml:"verified"`
}

type TokenEntry struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
	PriceKey string `yaml:"price_key"`
}

// LoadCatalog reads and validates the venue catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read venue catalog: %w", err)
	}

	var catalog Catalog
	if err := yaml.UnmarshalStrict(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse venue catalog: %w", err)
	}
	if len(catalog.Venues) == 0 {
		return nil, fmt.Errorf("%w: venue catalog %s lists no venues", types.ErrConfigInvalid, path)
	}
	return &catalog, nil
}

// BuildVenues converts the catalog entries into registry venues.
func (c *Catalog) BuildVenues() ([]venue.Venue, error) {
	out := make([]venue.Venue, 0, len(c.Venues))
	for _, e := range c.Venues {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: venue with empty id", types.ErrConfigInvalid)
		}
		if !common.IsHexAddress(e.Router) {
			return nil, fmt.Errorf("%w: venue %s router %q is not an address", types.ErrConfigInvalid, e.ID, e.Router)
		}
		if !common.IsHexAddress(e.Factory) {
			return nil, fmt.Errorf("%w: venue %s factory %q is not an address", types.ErrConfigInvalid, e.ID, e.Factory)
		}
		fee, err := decimal.NewFromString(e.FeeRate)
		if err != nil {
			return nil, fmt.Errorf("%w: venue %s fee rate %q: %v", types.ErrConfigInvalid, e.ID, e.FeeRate, err)
		}
		out = append(out, venue.Venue{
			ID:       e.ID,
			Name:     e.Name,
			Router:   common.HexToAddress(e.Router),
			Factory:  common.HexToAddress(e.Factory),
			FeeRate:  fee,
			Verified: e.Verified,
		})
	}
	return out, nil
}

// BuildTokens converts the catalog entries into token references, keyed by
// symbol.
func (c *Catalog) BuildTokens() (map[string]types.TokenRef, error) {
	out := make(map[string]types.TokenRef, len(c.Tokens))
	for _, e := range c.Tokens {
		if e.Symbol == "" {
			return nil, fmt.Errorf("%w: token with empty symbol", types.ErrConfigInvalid)
		}
		if !common.IsHexAddress(e.Address) {
			return nil, fmt.Errorf("%w: token %s address %q is not an address", types.ErrConfigInvalid, e.Symbol, e.Address)
		}
		if e.PriceKey == "" {
			return nil, fmt.Errorf("%w: token %s has no price key", types.ErrConfigInvalid, e.Symbol)
		}
		if _, dup := out[e.Symbol]; dup {
			return nil, fmt.Errorf("%w: duplicate token symbol %s", types.ErrConfigInvalid, e.Symbol)
		}
		out[e.Symbol] = types.TokenRef{
			Symbol:   e.Symbol,
			Address:  common.HexToAddress(e.Address),
			Decimals: e.Decimals,
			PriceKey: e.PriceKey,
		}
	}
	return out, nil
}
