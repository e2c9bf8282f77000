package femto

import (
	"bytes"
	"encoding/hex"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// txEntry locates a cached transaction: the address that owns it and its
// index into that address's Transactions slice.
type txEntry struct {
	scriptHash chainhash.Hash
	index      int
}

/*
 * AddressCache holds every watched script and its transaction history, plus
 * the rolling utreexo accumulator, as an in-memory mirror of the store.
 *
 * The three indices (addressMap, scriptSet, txIndex) cross-reference each
 * other and are updated non-atomically, so they form a single consistency
 * unit behind one RWMutex: mutations take the write lock, queries the read
 * lock. Mutating methods are expected to be driven by a single sync loop.
 *
 * INVARIANT: every txIndex entry points at a valid index into the owning
 * address's Transactions slice, and the store already contains any record
 * visible in memory (writes go to the store before the indices are updated).
 */
type AddressCache struct {
	store AddressStore
	chain ChainStore
	sync  AccumulatorUpdater

	mu         sync.RWMutex
	addressMap map[chainhash.Hash]*CachedAddress
	scriptSet  map[string]bool // key: raw script bytes
	txIndex    map[chainhash.Hash]txEntry
	acc        Accumulator
}

// NewAddressCache loads all persisted addresses and the accumulator snapshot
// and rebuilds the in-memory indices from scratch. Any unparseable record
// fails the whole load: the process cannot start with a corrupt database.
func NewAddressCache(store AddressStore, chain ChainStore, updater AccumulatorUpdater) (*AddressCache, error) {
	addresses, err := store.LoadAddresses()
	if err != nil {
		return nil, err
	}
	c := &AddressCache{
		store:      store,
		chain:      chain,
		sync:       updater,
		addressMap: make(map[chainhash.Hash]*CachedAddress, len(addresses)),
		scriptSet:  make(map[string]bool, len(addresses)),
		txIndex:    make(map[chainhash.Hash]txEntry),
	}
	for _, addr := range addresses {
		for i := range addr.Transactions {
			c.txIndex[addr.Transactions[i].TxID] = txEntry{addr.ScriptHash, i}
		}
		c.scriptSet[string(addr.Script)] = true
		c.addressMap[addr.ScriptHash] = addr
	}
	c.acc, err = loadAcc(chain)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func loadAcc(chain ChainStore) (Accumulator, error) {
	value, err := chain.LoadRoots()
	if err != nil {
		if IsNotFoundError(err) {
			return Accumulator{}, nil // fresh accumulator.
		}
		return Accumulator{}, err
	}
	return DecodeAccumulator(value)
}

// SaveAcc persists the current accumulator snapshot through the chain store.
func (c *AddressCache) SaveAcc() error {
	c.mu.RLock()
	encoded := c.acc.Encode()
	c.mu.RUnlock()
	if err := c.chain.SaveRoots(encoded); err != nil {
		return NewErr(StoreWriteFailed, "save accumulator: %v", err)
	}
	return nil
}

// Acc returns a copy of the current accumulator snapshot.
func (c *AddressCache) Acc() Accumulator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	acc := Accumulator{Leaves: c.acc.Leaves}
	acc.Roots = append(acc.Roots, c.acc.Roots...)
	return acc
}

// WatchScript starts watching an output script. If the script is already
// watched this is a no-op; otherwise an empty-history, zero-balance record
// is persisted before the indices are updated.
func (c *AddressCache) WatchScript(script []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash := ScriptHash(script)
	if _, ok := c.addressMap[hash]; ok {
		return nil
	}
	addr := &CachedAddress{
		ScriptHash: hash,
		Script:     append([]byte(nil), script...),
	}
	if err := c.store.SaveAddress(addr); err != nil {
		return NewErr(StoreWriteFailed, "save address %v: %v", hash, err)
	}
	c.addressMap[hash] = addr
	c.scriptSet[string(addr.Script)] = true
	return nil
}

// BlockProcess applies one block to the cache: it advances the accumulator
// via the sync engine's update routine, then scans the block's transactions
// in order, caching every output that pays a watched script together with a
// compact merkle proof of the transaction's inclusion.
//
// Blocks must be supplied in increasing height order. An accumulator update
// failure aborts the call before any transaction is cached — there is no
// fallback proof source to recover with. Matched (transaction, output) pairs
// are returned for consumers layered above (notifications, balance logic).
func (c *AddressCache) BlockProcess(block *wire.MsgBlock, height uint32, proof UtreexoProof, delHashes []chainhash.Hash) ([]TxMatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	acc, err := c.sync.UpdateAcc(c.acc, block, height, proof, delHashes)
	if err != nil {
		return nil, NewErr(AccUpdateFailed, "accumulator update at height %d: %v", height, err)
	}
	c.acc = acc

	var matches []TxMatch
	for position, tx := range block.Transactions {
		for _, out := range tx.TxOut {
			if !c.scriptSet[string(out.PkScript)] {
				continue
			}
			matches = append(matches, TxMatch{Tx: tx, Out: out})
			mb := merkleBlockFor(block, tx.TxHash())
			if err := c.cacheTransaction(tx, height, out, mb, uint32(position)); err != nil {
				return matches, err
			}
		}
	}
	return matches, nil
}

// CacheTransaction caches a single transaction for the address paying the
// given output. Re-applying an identical record is a no-op, so reprocessing
// a block (reorg replay, duplicate notification) or seeing two outputs of
// one transaction pay the same address never duplicates history.
//
// This may be called for a script we don't follow yet: the script is watched
// from now on with a single-transaction history, which lets callers
// pre-populate the cache for known transactions without a full rescan (the
// older history only appears after one).
func (c *AddressCache) CacheTransaction(tx *wire.MsgTx, height uint32, out *wire.TxOut, proof *wire.MsgMerkleBlock, position uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cacheTransaction(tx, height, out, proof, position)
}

// cacheTransaction needs c.mu held for writing.
func (c *AddressCache) cacheTransaction(tx *wire.MsgTx, height uint32, out *wire.TxOut, proof *wire.MsgMerkleBlock, position uint32) error {
	proofHex, err := EncodeMerkleBlock(proof)
	if err != nil {
		return NewErr(UnknownError, "encode merkle proof: %v", err)
	}
	record := CachedTx{
		TxHex:    txHex(tx),
		Height:   height,
		ProofHex: proofHex,
		TxID:     tx.TxHash(),
		Position: position,
	}
	hash := ScriptHash(out.PkScript)
	if addr, ok := c.addressMap[hash]; ok {
		for i := range addr.Transactions {
			if addr.Transactions[i].Equal(&record) {
				return nil // already cached.
			}
		}
		addr.Transactions = append(addr.Transactions, record)
		if err := c.store.SaveAddress(addr); err != nil {
			// Abort the mutation: the record must never be visible in
			// memory without being on disk.
			addr.Transactions = addr.Transactions[:len(addr.Transactions)-1]
			return NewErr(StoreWriteFailed, "update address %v: %v", hash, err)
		}
		c.txIndex[record.TxID] = txEntry{hash, len(addr.Transactions) - 1}
		return nil
	}
	addr := &CachedAddress{
		ScriptHash:   hash,
		Script:       append([]byte(nil), out.PkScript...),
		Transactions: []CachedTx{record},
	}
	if err := c.store.SaveAddress(addr); err != nil {
		return NewErr(StoreWriteFailed, "save address %v: %v", hash, err)
	}
	c.addressMap[hash] = addr
	c.scriptSet[string(addr.Script)] = true
	c.txIndex[record.TxID] = txEntry{hash, 0}
	return nil
}

// txHex serializes a transaction to hex. Writing to a bytes.Buffer cannot
// fail.
func txHex(tx *wire.MsgTx) string {
	var buf bytes.Buffer
	tx.Serialize(&buf)
	return hex.EncodeToString(buf.Bytes())
}

// getTransaction needs c.mu held.
func (c *AddressCache) getTransaction(txid *chainhash.Hash) (CachedTx, bool) {
	if entry, ok := c.txIndex[*txid]; ok {
		if addr, ok := c.addressMap[entry.scriptHash]; ok {
			if entry.index < len(addr.Transactions) {
				return addr.Transactions[entry.index], true
			}
		}
	}
	return CachedTx{}, false
}

// GetAddressHistory returns all cached transactions for a script hash, in
// first-seen order. Unknown script hashes return an empty history.
func (c *AddressCache) GetAddressHistory(scriptHash *chainhash.Hash) []CachedTx {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if addr, ok := c.addressMap[*scriptHash]; ok {
		history := make([]CachedTx, len(addr.Transactions))
		copy(history, addr.Transactions)
		return history
	}
	return nil
}

// GetAddressBalance returns the stored balance field. NOTE: the balance is
// a placeholder written at address creation; it is not maintained as
// transactions are cached.
func (c *AddressCache) GetAddressBalance(scriptHash *chainhash.Hash) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if addr, ok := c.addressMap[*scriptHash]; ok {
		return addr.Balance
	}
	return 0
}

// GetHeight returns the confirmation height of a cached transaction.
func (c *AddressCache) GetHeight(txid *chainhash.Hash) (uint32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if tx, ok := c.getTransaction(txid); ok {
		return tx.Height, nil
	}
	return 0, NewErr(NotFound, "tx not cached: %v", txid)
}

// GetCachedTx returns the serialized transaction hex for a cached txid.
func (c *AddressCache) GetCachedTx(txid *chainhash.Hash) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if tx, ok := c.getTransaction(txid); ok {
		return tx.TxHex, nil
	}
	return "", NewErr(NotFound, "tx not cached: %v", txid)
}

// GetMerkleProof returns the sibling hashes (display hex) and block position
// proving a cached transaction's inclusion in its block. The target's own
// hash is excluded from the sibling list: Bitcoin Core includes it in the
// partial merkle tree, but Electrum clients don't want it.
func (c *AddressCache) GetMerkleProof(txid *chainhash.Hash) ([]string, uint32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tx, ok := c.getTransaction(txid)
	if !ok {
		return nil, 0, NewErr(NotFound, "tx not cached: %v", txid)
	}
	mb, err := tx.MerkleBlock()
	if err != nil {
		return nil, 0, err
	}
	var hashes []string
	for _, hash := range mb.Hashes {
		if *hash == *txid {
			continue
		}
		hashes = append(hashes, hash.String())
	}
	return hashes, tx.Position, nil
}

// GetSyncLimits returns the inclusive height window [lastCached+1, current]
// still needing a rescan. The window may be empty (start > end) when the
// cache is already at or beyond the current height; that is not an error.
// A cache that never persisted a height returns WalletNotInitialized.
func (c *AddressCache) GetSyncLimits(currentHeight uint32) (start, end uint32, err error) {
	height, err := c.store.GetCacheHeight()
	if err != nil {
		return 0, 0, err
	}
	return height + 1, currentHeight, nil
}

// GetCacheHeight returns the last fully-scanned block height.
func (c *AddressCache) GetCacheHeight() (uint32, error) {
	return c.store.GetCacheHeight()
}

// Setup is the first call on a fresh cache: it zeroes the cache height and
// persists the wallet descriptor. Must run before any BlockProcess.
func (c *AddressCache) Setup(descriptor string) error {
	if err := c.store.SetCacheHeight(0); err != nil {
		return NewErr(StoreWriteFailed, "set cache height: %v", err)
	}
	if err := c.store.SaveDescriptor(descriptor); err != nil {
		return NewErr(StoreWriteFailed, "save descriptor: %v", err)
	}
	return nil
}

// BumpHeight persists the last fully-scanned height. The sync loop calls
// this after it has processed a block and saved the accumulator, so callers
// control exactly when a height becomes durable.
func (c *AddressCache) BumpHeight(height uint32) error {
	if err := c.store.SetCacheHeight(height); err != nil {
		return NewErr(StoreWriteFailed, "set cache height: %v", err)
	}
	return nil
}

// CacheStats is a point-in-time summary of the cache, for status surfaces.
type CacheStats struct {
	Addresses    int    `json:"addresses"`
	Transactions int    `json:"transactions"`
	AccLeaves    uint64 `json:"acc_leaves"`
	AccRoots     int    `json:"acc_roots"`
}

func (c *AddressCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Addresses:    len(c.addressMap),
		Transactions: len(c.txIndex),
		AccLeaves:    c.acc.Leaves,
		AccRoots:     len(c.acc.Roots),
	}
}
