package research

import (
	"fmt"
	"strings"
	"time"
)

// Identity is the caller-supplied product identity.
type Identity struct {
	URL           string
	Marketplace   string
	MarketplaceID string
	SKU           string
}

// Record is the identity-resolved research state of one product.
type Record struct {
	SKU           string
	URL           string
	Marketplace   string
	MarketplaceID string
	Description   string
	Brand         string
	Category      string
	Sellers       []SellerOffer
	ConductedAt   *time.Time
}

type resolveStep func(*Record, *Registry) error

// resolution is the fixed order in which a record's identity is completed.
var resolution = []resolveStep{
	requireIdentity,
	deriveURL,
	deriveMarketplace,
	deriveMarketplaceID,
}

// NewRecord resolves id into a Record. Missing url, marketplace or
// marketplace id are derived from the fields that were supplied; anything
// that cannot be resolved fails with ErrInvalidInput.
func NewRecord(registry *Registry, id Identity) (*Record, error) {
	r := &Record{
		SKU:           strings.TrimSpace(id.SKU),
		URL:           strings.TrimSpace(id.URL),
		Marketplace:   strings.TrimSpace(id.Marketplace),
		MarketplaceID: strings.TrimSpace(id.MarketplaceID),
	}
	for _, step := range resolution {
		if err := step(r, registry); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func requireIdentity(r *Record, _ *Registry) error {
	if r.URL == "" && (r.Marketplace == "" || r.MarketplaceID == "") {
		return fmt.Errorf("%w: url or marketplace and marketplace_id are required", ErrInvalidInput)
	}
	return nil
}

func deriveURL(r *Record, registry *Registry) error {
	if r.Marketplace == "" {
		return nil
	}
	m, ok := registry.Lookup(r.Marketplace)
	if !ok {
		return fmt.Errorf("%w: unknown marketplace %q", ErrInvalidInput, r.Marketplace)
	}
	r.Marketplace = m.Name
	r.MarketplaceID = m.NormalizeID(r.MarketplaceID)
	if r.URL != "" {
		return nil
	}
	if built, ok := m.BuildURL(r.MarketplaceID); ok {
		r.URL = built
	}
	return nil
}

func deriveMarketplace(r *Record, registry *Registry) error {
	if r.Marketplace != "" {
		return nil
	}
	m, ok := registry.Match(r.URL)
	if !ok {
		return fmt.Errorf("%w: no marketplace matches url %q", ErrInvalidInput, r.URL)
	}
	r.Marketplace = m.Name
	return nil
}

func deriveMarketplaceID(r *Record, registry *Registry) error {
	if r.MarketplaceID != "" || r.URL == "" {
		return nil
	}
	own, _ := registry.Lookup(r.Marketplace)
	if id, ok := own.ExtractID(r.URL); ok {
		r.MarketplaceID = id
		return nil
	}
	// Other marketplaces only match through their anchored templates; their
	// loose id patterns would misread ids embedded in foreign URLs.
	for _, m := range registry.All() {
		if m.Name == own.Name {
			continue
		}
		if id, ok := m.MatchTemplate(r.URL); ok {
			r.MarketplaceID = id
			return nil
		}
	}
	if !own.Addressable() {
		return nil
	}
	return fmt.Errorf("%w: cannot extract %s id from url %q", ErrInvalidInput, own.Name, r.URL)
}

// UpdateFromCollection merges freshly collected sellers into the record.
// An empty list leaves the record untouched and reports false.
func (r *Record) UpdateFromCollection(sellers []SellerOffer, now time.Time) bool {
	if len(sellers) == 0 {
		return false
	}
	r.Sellers = cloneSellers(sellers)
	first := sellers[0]
	if first.Description != "" {
		r.Description = first.Description
	}
	if first.Brand != "" {
		r.Brand = first.Brand
	}
	if first.Category != "" {
		r.Category = first.Category
	}
	if r.MarketplaceID == "" && first.MarketplaceID != "" {
		r.MarketplaceID = first.MarketplaceID
	}
	ts := now.UTC()
	r.ConductedAt = &ts
	return true
}

// IsExpired reports whether the record is older than delay. A record that
// was never researched is always expired.
func (r *Record) IsExpired(now time.Time, delay time.Duration) bool {
	if r.ConductedAt == nil {
		return true
	}
	return now.Sub(*r.ConductedAt) > delay
}

// Snapshot captures the persisted fields of the record.
func (r *Record) Snapshot(id string, strategy Strategy) Snapshot {
	snap := Snapshot{
		ID:            id,
		SKU:           r.SKU,
		URL:           r.URL,
		Marketplace:   r.Marketplace,
		MarketplaceID: r.MarketplaceID,
		Description:   r.Description,
		Brand:         r.Brand,
		Category:      r.Category,
		Strategy:      strategy.String(),
		Sellers:       cloneSellers(r.Sellers),
	}
	if r.ConductedAt != nil {
		snap.ConductedAt = r.ConductedAt.UTC()
	}
	return snap
}

// RecordFromSnapshot rebuilds a record from a stored snapshot.
func RecordFromSnapshot(snap Snapshot) *Record {
	r := &Record{
		SKU:           snap.SKU,
		URL:           snap.URL,
		Marketplace:   snap.Marketplace,
		MarketplaceID: snap.MarketplaceID,
		Description:   snap.Description,
		Brand:         snap.Brand,
		Category:      snap.Category,
		Sellers:       cloneSellers(snap.Sellers),
	}
	if !snap.ConductedAt.IsZero() {
		ts := snap.ConductedAt.UTC()
		r.ConductedAt = &ts
	}
	return r
}
