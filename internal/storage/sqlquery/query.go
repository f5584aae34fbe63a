// Package sqlquery builds the research table statements shared by the relational stores.
//
// Statements use '?' placeholders; callers rebind them for their driver with
// sqlx.Rebind.
package sqlquery

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/pricing-research/internal/research"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "research"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Columns lists the research table columns in select order.
var Columns = []string{
	"id",
	"sku",
	"url",
	"marketplace",
	"marketplace_id",
	"description",
	"brand",
	"category",
	"strategy",
	"sellers",
	"conducted_at",
}

// Table validates name and falls back to DefaultTable when empty.
func Table(name string) (string, error) {
	if name == "" {
		return DefaultTable, nil
	}
	if !validTableName.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return name, nil
}

// Insert returns the insert statement and arguments for snap.
func Insert(table string, snap research.Snapshot) (string, []any, error) {
	if snap.ID == "" {
		return "", nil, fmt.Errorf("snapshot id is required")
	}
	sellers, err := EncodeSellers(snap.Sellers)
	if err != nil {
		return "", nil, err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(Columns)), ",")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(Columns, ", "), placeholders)
	args := []any{
		snap.ID,
		snap.SKU,
		snap.URL,
		snap.Marketplace,
		snap.MarketplaceID,
		snap.Description,
		snap.Brand,
		snap.Category,
		snap.Strategy,
		sellers,
		snap.ConductedAt.UTC(),
	}
	return query, args, nil
}

// Select returns a query for the rows matching criteria, newest first.
// selectList lets a dialect wrap columns, for example with COALESCE.
func Select(table, selectList string, criteria research.Criteria) (string, []any, error) {
	where, args, err := whereClause(criteria, true)
	if err != nil {
		return "", nil, err
	}
	if selectList == "" {
		selectList = strings.Join(Columns, ", ")
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY conducted_at DESC", selectList, table, where)
	return query, args, nil
}

// Update returns an update statement applying changes to rows matching criteria.
func Update(table string, criteria research.Criteria, changes research.Changes) (string, []any, error) {
	cols, err := changes.Columns()
	if err != nil {
		return "", nil, err
	}
	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+len(criteria))
	for _, col := range cols {
		value, err := changeValue(col, changes[col])
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, col+" = ?")
		args = append(args, value)
	}
	where, whereArgs, err := whereClause(criteria, false)
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf("UPDATE %s SET %s%s", table, strings.Join(sets, ", "), where)
	return query, append(args, whereArgs...), nil
}

// Delete returns a delete statement for rows matching criteria.
func Delete(table string, criteria research.Criteria) (string, []any, error) {
	where, args, err := whereClause(criteria, false)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("DELETE FROM %s%s", table, where), args, nil
}

// EncodeSellers serializes sellers for the sellers column.
func EncodeSellers(sellers []research.SellerOffer) (string, error) {
	if sellers == nil {
		sellers = []research.SellerOffer{}
	}
	raw, err := json.Marshal(sellers)
	if err != nil {
		return "", fmt.Errorf("marshal sellers: %w", err)
	}
	return string(raw), nil
}

// DecodeSellers parses the sellers column. Empty input yields no sellers.
func DecodeSellers(raw []byte) ([]research.SellerOffer, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var sellers []research.SellerOffer
	if err := json.Unmarshal(raw, &sellers); err != nil {
		return nil, fmt.Errorf("unmarshal sellers: %w", err)
	}
	return sellers, nil
}

func whereClause(criteria research.Criteria, allowEmpty bool) (string, []any, error) {
	cols, err := criteria.Columns(allowEmpty)
	if err != nil {
		return "", nil, err
	}
	if len(cols) == 0 {
		return "", nil, nil
	}
	conds := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		conds = append(conds, col+" = ?")
		args = append(args, criteria[col])
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func changeValue(col string, value any) (any, error) {
	switch col {
	case "sellers":
		sellers, ok := value.([]research.SellerOffer)
		if !ok {
			return nil, fmt.Errorf("%w: sellers must be []SellerOffer, got %T", research.ErrInvalidInput, value)
		}
		return EncodeSellers(sellers)
	case "conducted_at":
		ts, ok := value.(time.Time)
		if !ok {
			return nil, fmt.Errorf("%w: conducted_at must be time.Time, got %T", research.ErrInvalidInput, value)
		}
		return ts.UTC(), nil
	default:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a string, got %T", research.ErrInvalidInput, col, value)
		}
		return s, nil
	}
}
