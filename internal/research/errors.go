package research

import "errors"

// Sentinel errors returned by the research core. Callers match them with errors.Is.
var (
	// ErrInvalidInput reports an identity that cannot be resolved.
	ErrInvalidInput = errors.New("invalid input")
	// ErrMissingRequiredInput reports a request lacking the identifiers needed to proceed.
	ErrMissingRequiredInput = errors.New("missing required input")
	// ErrInvalidStrategy reports a collector option outside the known enumeration.
	ErrInvalidStrategy = errors.New("invalid collector option")
	// ErrUnsupportedStrategy reports a known strategy that has no implementation.
	ErrUnsupportedStrategy = errors.New("unsupported strategy")
	// ErrUnsupportedMarketplace reports a target that no collector is registered for.
	ErrUnsupportedMarketplace = errors.New("unsupported marketplace")
	// ErrUnsupportedStorageMode reports a storage mode without a registered backend.
	ErrUnsupportedStorageMode = errors.New("unsupported storage mode")
	// ErrResearchFailed wraps any failure raised while collecting sellers.
	ErrResearchFailed = errors.New("research failed")
	// ErrPersistenceFailed wraps failures while saving a research snapshot.
	ErrPersistenceFailed = errors.New("persistence failed")
)
