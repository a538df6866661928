// Package partsearch defines the port for looking up purchasable parts.
package partsearch

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a query matches no part.
var ErrNotFound = errors.New("part not found")

// ErrUnavailable is returned when the backing service is temporarily
// refusing calls (for example while its circuit breaker is open).
var ErrUnavailable = errors.New("part search unavailable")

// PartInfo describes the best offer found for a query.
type PartInfo struct {
	Query        string  `json:"query"`
	MPN          string  `json:"mpn"`
	GenericMPN   string  `json:"generic_mpn,omitempty"`
	Manufacturer string  `json:"manufacturer"`
	Description  string  `json:"description"`
	Seller       string  `json:"seller,omitempty"`
	Price        float64 `json:"price,omitempty"`
	Link         string  `json:"link,omitempty"`
}

// Searcher looks up a single part by free-text query or MPN.
type Searcher interface {
	Search(ctx context.Context, query string) (*PartInfo, error)
}
