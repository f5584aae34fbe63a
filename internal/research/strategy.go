package research

import (
	"fmt"
	"strings"
)

// Strategy enumerates the ways sellers can be collected.
type Strategy int

// Known strategies. The numeric values are the collector options accepted by the API.
const (
	StrategyWebScraping Strategy = iota
	StrategyGoogleShopping
)

var strategyNames = map[Strategy]string{
	StrategyWebScraping:    "WEB_SCRAPING",
	StrategyGoogleShopping: "GOOGLE_SHOPPING",
}

// ParseStrategy converts a collector option into a Strategy.
func ParseStrategy(option int) (Strategy, error) {
	s := Strategy(option)
	if !s.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidStrategy, option)
	}
	return s, nil
}

// Valid reports whether s belongs to the enumeration.
func (s Strategy) Valid() bool {
	_, ok := strategyNames[s]
	return ok
}

// String returns the canonical name persisted with snapshots.
func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STRATEGY(%d)", int(s))
}

// StorageMode enumerates the storage backends a service can bind to.
type StorageMode int

// Known storage modes. Values match the storage.mode configuration key.
const (
	StorageSQLite StorageMode = iota
	StoragePostgreSQL
	StorageMySQL
	StorageSQLServer
	StorageOracle
	StorageMemory
)

var storageModeNames = map[StorageMode]string{
	StorageSQLite:     "SQLITE",
	StoragePostgreSQL: "POSTGRESQL",
	StorageMySQL:      "MYSQL",
	StorageSQLServer:  "SQLSERVER",
	StorageOracle:     "PLSQL",
	StorageMemory:     "MEMORY",
}

// String returns the canonical storage mode name.
func (m StorageMode) String() string {
	if name, ok := storageModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("STORAGE(%d)", int(m))
}

// ParseStorageMode accepts either the numeric mode or its canonical name.
func ParseStorageMode(raw string) (StorageMode, error) {
	raw = strings.TrimSpace(raw)
	for mode, name := range storageModeNames {
		if strings.EqualFold(name, raw) || fmt.Sprint(int(mode)) == raw {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedStorageMode, raw)
}
