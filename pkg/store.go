package femto

// AddressStore persists cached address records. Implementations are simple
// key-value stores: the key is the script-hash display hex, the value the
// encoded address record. Every write must be flushed to disk before the
// call returns (write-through durability) — the engine relies on this to
// keep in-memory and on-disk state synchronized record-by-record.
//
// The reserved keys "height" and "desc" live in the same namespace as the
// address records; LoadAddresses must skip them.
type AddressStore interface {
	// SaveAddress upserts the full record under its script-hash key.
	// There is no partial update: saving and updating are the same
	// operation and always rewrite the whole record.
	SaveAddress(addr *CachedAddress) error
	// LoadAddresses returns every persisted address record. Any record
	// that fails to parse makes the whole load fail — a corrupt record
	// could silently misrepresent wallet state.
	LoadAddresses() ([]*CachedAddress, error)
	// GetCacheHeight returns the last fully-scanned block height, or a
	// WalletNotInitialized error if no height was ever persisted.
	GetCacheHeight() (uint32, error)
	SetCacheHeight(height uint32) error
	// SaveDescriptor / GetDescriptor persist the wallet descriptor string.
	SaveDescriptor(descriptor string) error
	GetDescriptor() (string, error)
	Close() error
}

// ChainStore persists the accumulator snapshot string.
type ChainStore interface {
	SaveRoots(acc string) error
	// LoadRoots returns the stored snapshot, or a NotFound error when none
	// has ever been saved (a fresh accumulator).
	LoadRoots() (string, error)
}
