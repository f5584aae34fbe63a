package research

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// SellerOffer is one seller's listing for a product. Every field is optional.
type SellerOffer struct {
	ProductURL    string `json:"product_url"`
	MarketplaceID string `json:"marketplace_id"`
	Brand         string `json:"brand"`
	Description   string `json:"description"`
	Price         string `json:"price"`
	SellerID      string `json:"seller_id"`
	SellerName    string `json:"seller_name"`
	SellerURL     string `json:"seller_url"`
	SKU           string `json:"sku,omitempty"`
	Category      string `json:"category,omitempty"`
}

// RawPage is a page captured by a collector, kept for archiving.
type RawPage struct {
	URL         string
	ContentType string
	Body        []byte
}

// Collection is the outcome of one collector execution.
type Collection struct {
	Sellers []SellerOffer
	Pages   []RawPage
}

// Collector fetches seller offers for a single target.
type Collector interface {
	Execute(ctx context.Context) (Collection, error)
}

// CollectorSelector maps a strategy and target to a Collector.
type CollectorSelector interface {
	Select(strategy Strategy, url, marketplace string) (Collector, error)
}

// Snapshot is the persisted form of a Record.
type Snapshot struct {
	ID            string        `json:"id" db:"id"`
	SKU           string        `json:"sku" db:"sku"`
	URL           string        `json:"url" db:"url"`
	Marketplace   string        `json:"marketplace" db:"marketplace"`
	MarketplaceID string        `json:"marketplace_id" db:"marketplace_id"`
	Description   string        `json:"description" db:"description"`
	Brand         string        `json:"brand" db:"brand"`
	Category      string        `json:"category" db:"category"`
	Strategy      string        `json:"strategy" db:"strategy"`
	Sellers       []SellerOffer `json:"sellers" db:"-"`
	ConductedAt   time.Time     `json:"conducted_at" db:"conducted_at"`
}

// Criteria filters stored snapshots by exact column match.
type Criteria map[string]string

// Changes lists column updates applied by Storage.Update.
type Changes map[string]any

var filterColumns = map[string]struct{}{
	"id":             {},
	"sku":            {},
	"url":            {},
	"marketplace":    {},
	"marketplace_id": {},
	"strategy":       {},
}

var updatableColumns = map[string]struct{}{
	"sku":            {},
	"url":            {},
	"marketplace":    {},
	"marketplace_id": {},
	"description":    {},
	"brand":          {},
	"category":       {},
	"strategy":       {},
	"sellers":        {},
	"conducted_at":   {},
}

// Columns validates the criteria and returns its keys in sorted order.
// Empty criteria are accepted only when allowEmpty is set.
func (c Criteria) Columns(allowEmpty bool) ([]string, error) {
	if len(c) == 0 {
		if allowEmpty {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: criteria are required", ErrInvalidInput)
	}
	cols := make([]string, 0, len(c))
	for col := range c {
		if _, ok := filterColumns[col]; !ok {
			return nil, fmt.Errorf("%w: unknown criteria column %q", ErrInvalidInput, col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols, nil
}

// Matches reports whether snap satisfies every criterion.
func (c Criteria) Matches(snap Snapshot) bool {
	for col, want := range c {
		if snap.column(col) != want {
			return false
		}
	}
	return true
}

// Columns validates the changes and returns their keys in sorted order.
func (c Changes) Columns() ([]string, error) {
	if len(c) == 0 {
		return nil, fmt.Errorf("%w: changes are required", ErrInvalidInput)
	}
	cols := make([]string, 0, len(c))
	for col := range c {
		if _, ok := updatableColumns[col]; !ok {
			return nil, fmt.Errorf("%w: unknown column %q", ErrInvalidInput, col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols, nil
}

// Apply writes the changes onto snap.
func (c Changes) Apply(snap *Snapshot) error {
	for col, value := range c {
		switch col {
		case "sellers":
			sellers, ok := value.([]SellerOffer)
			if !ok {
				return fmt.Errorf("%w: sellers must be []SellerOffer, got %T", ErrInvalidInput, value)
			}
			snap.Sellers = cloneSellers(sellers)
		case "conducted_at":
			ts, ok := value.(time.Time)
			if !ok {
				return fmt.Errorf("%w: conducted_at must be time.Time, got %T", ErrInvalidInput, value)
			}
			snap.ConductedAt = ts.UTC()
		default:
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidInput, col, value)
			}
			if !snap.setColumn(col, s) {
				return fmt.Errorf("%w: unknown column %q", ErrInvalidInput, col)
			}
		}
	}
	return nil
}

func (s Snapshot) column(col string) string {
	switch col {
	case "id":
		return s.ID
	case "sku":
		return s.SKU
	case "url":
		return s.URL
	case "marketplace":
		return s.Marketplace
	case "marketplace_id":
		return s.MarketplaceID
	case "description":
		return s.Description
	case "brand":
		return s.Brand
	case "category":
		return s.Category
	case "strategy":
		return s.Strategy
	}
	return ""
}

func (s *Snapshot) setColumn(col, value string) bool {
	switch col {
	case "sku":
		s.SKU = value
	case "url":
		s.URL = value
	case "marketplace":
		s.Marketplace = value
	case "marketplace_id":
		s.MarketplaceID = value
	case "description":
		s.Description = value
	case "brand":
		s.Brand = value
	case "category":
		s.Category = value
	case "strategy":
		s.Strategy = value
	default:
		return false
	}
	return true
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	s.Sellers = cloneSellers(s.Sellers)
	return s
}

// Storage persists research snapshots.
type Storage interface {
	Save(ctx context.Context, snap Snapshot) error
	// Retrieve returns matching snapshots ordered by conducted_at, newest first.
	// Empty criteria match every row.
	Retrieve(ctx context.Context, criteria Criteria) ([]Snapshot, error)
	Update(ctx context.Context, criteria Criteria, changes Changes) (int64, error)
	Delete(ctx context.Context, criteria Criteria) (int64, error)
}

// StorageSelector resolves a Storage for a configured mode.
type StorageSelector interface {
	Select(ctx context.Context, mode StorageMode) (Storage, error)
}

// Archiver stores the raw pages behind a snapshot.
type Archiver interface {
	Archive(ctx context.Context, snap Snapshot, pages []RawPage) error
}

// Notifier announces stored snapshots to downstream consumers.
type Notifier interface {
	Notify(ctx context.Context, snap Snapshot) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator creates snapshot identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

func cloneSellers(src []SellerOffer) []SellerOffer {
	if src == nil {
		return nil
	}
	out := make([]SellerOffer, len(src))
	copy(out, src)
	return out
}
