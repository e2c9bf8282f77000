package femto

import (
	"errors"
	"strconv"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// memStore is a minimal in-memory AddressStore + ChainStore for engine
// tests. Records round-trip through the text codec like the real backends.
type memStore struct {
	addresses  map[string]string
	chainstate map[string]string
	failWrites bool
}

func newMemStore() *memStore {
	return &memStore{
		addresses:  make(map[string]string),
		chainstate: make(map[string]string),
	}
}

func (m *memStore) writeErr() error {
	if m.failWrites {
		return NewErr(NotAvailable, "store: writes disabled")
	}
	return nil
}

func (m *memStore) SaveAddress(addr *CachedAddress) error {
	if err := m.writeErr(); err != nil {
		return err
	}
	m.addresses[addr.ScriptHash.String()] = addr.Encode()
	return nil
}

func (m *memStore) LoadAddresses() ([]*CachedAddress, error) {
	var addresses []*CachedAddress
	for key, value := range m.addresses {
		if key == "height" || key == "desc" {
			continue
		}
		addr, err := DecodeCachedAddress(value)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

func (m *memStore) GetCacheHeight() (uint32, error) {
	value, ok := m.addresses["height"]
	if !ok {
		return 0, NewErr(WalletNotInitialized, "no cache height stored")
	}
	height, _ := strconv.ParseUint(value, 10, 32)
	return uint32(height), nil
}

func (m *memStore) SetCacheHeight(height uint32) error {
	if err := m.writeErr(); err != nil {
		return err
	}
	m.addresses["height"] = strconv.FormatUint(uint64(height), 10)
	return nil
}

func (m *memStore) SaveDescriptor(descriptor string) error {
	if err := m.writeErr(); err != nil {
		return err
	}
	m.addresses["desc"] = descriptor
	return nil
}

func (m *memStore) GetDescriptor() (string, error) {
	value, ok := m.addresses["desc"]
	if !ok {
		return "", NewErr(NotFound, "no descriptor stored")
	}
	return value, nil
}

func (m *memStore) Close() error {
	return nil
}

func (m *memStore) SaveRoots(acc string) error {
	if err := m.writeErr(); err != nil {
		return err
	}
	m.chainstate["roots"] = acc
	return nil
}

func (m *memStore) LoadRoots() (string, error) {
	value, ok := m.chainstate["roots"]
	if !ok {
		return "", NewErr(NotFound, "no roots stored")
	}
	return value, nil
}

// fakeUpdater advances the leaf count by the number of transaction outputs
// in the block, so tests can assert the snapshot moved.
type fakeUpdater struct {
	fail bool
}

func (u *fakeUpdater) UpdateAcc(acc Accumulator, block *wire.MsgBlock, height uint32, proof UtreexoProof, delHashes []chainhash.Hash) (Accumulator, error) {
	if u.fail {
		return Accumulator{}, errors.New("invalid proof")
	}
	next := Accumulator{Leaves: acc.Leaves}
	for _, tx := range block.Transactions {
		next.Leaves += uint64(len(tx.TxOut))
	}
	hash := block.BlockHash()
	next.Roots = []chainhash.Hash{hash}
	return next, nil
}

func newTestCache(t *testing.T, db *memStore) *AddressCache {
	cache, err := NewAddressCache(db, db, &fakeUpdater{})
	if err != nil {
		t.Fatalf("NewAddressCache: %v", err)
	}
	return cache
}

func TestWatchScript(t *testing.T) {
	db := newMemStore()
	cache := newTestCache(t, db)
	script := []byte{0x51}
	if err := cache.WatchScript(script); err != nil {
		t.Fatalf("WatchScript: %v", err)
	}
	// Watching again is a no-op.
	if err := cache.WatchScript(script); err != nil {
		t.Fatalf("WatchScript again: %v", err)
	}
	hash := ScriptHash(script)
	if history := cache.GetAddressHistory(&hash); len(history) != 0 {
		t.Fatalf("new watch should have empty history: %v", history)
	}
	// The record was persisted before it became visible.
	if _, ok := db.addresses[hash.String()]; !ok {
		t.Fatalf("watch was not persisted")
	}
	// A reloaded cache still watches the script.
	cache2 := newTestCache(t, db)
	if cache2.Stats().Addresses != 1 {
		t.Fatalf("reloaded cache lost the watch")
	}
}

func TestBlockProcess(t *testing.T) {
	db := newMemStore()
	cache := newTestCache(t, db)
	watched := []byte{0x76, 0xa9, 0x14}
	other := []byte{0x6a}
	if err := cache.WatchScript(watched); err != nil {
		t.Fatalf("WatchScript: %v", err)
	}

	paying := testTx(5000, watched)
	unrelated := testTx(9000, other)
	block := testBlock(unrelated, paying)

	matches, err := cache.BlockProcess(block, 100, UtreexoProof{}, nil)
	if err != nil {
		t.Fatalf("BlockProcess: %v", err)
	}
	if len(matches) != 1 || matches[0].Tx.TxHash() != paying.TxHash() {
		t.Fatalf("expected one match for the watched script: %v", matches)
	}

	hash := ScriptHash(watched)
	history := cache.GetAddressHistory(&hash)
	if len(history) != 1 {
		t.Fatalf("expected one cached transaction: %v", history)
	}
	if history[0].Height != 100 || history[0].Position != 1 {
		t.Fatalf("cached transaction has wrong block info: %+v", history[0])
	}
	if history[0].ProofHex == "" {
		t.Fatalf("cached transaction is missing its merkle proof")
	}

	// The unrelated script was never indexed.
	otherHash := ScriptHash(other)
	if h := cache.GetAddressHistory(&otherHash); len(h) != 0 {
		t.Fatalf("unwatched script has history: %v", h)
	}

	// The accumulator advanced and Acc returns a copy.
	if cache.Acc().Leaves == 0 {
		t.Fatalf("accumulator did not advance")
	}

	txid := paying.TxHash()
	height, err := cache.GetHeight(&txid)
	if err != nil || height != 100 {
		t.Fatalf("GetHeight: %v %v", height, err)
	}
	txHexGot, err := cache.GetCachedTx(&txid)
	if err != nil || txHexGot != txHex(paying) {
		t.Fatalf("GetCachedTx: %v %v", txHexGot, err)
	}
}

func TestBlockProcessIdempotent(t *testing.T) {
	db := newMemStore()
	cache := newTestCache(t, db)
	watched := []byte{0x51}
	if err := cache.WatchScript(watched); err != nil {
		t.Fatalf("WatchScript: %v", err)
	}
	paying := testTx(5000, watched)
	block := testBlock(paying)

	if _, err := cache.BlockProcess(block, 7, UtreexoProof{}, nil); err != nil {
		t.Fatalf("BlockProcess: %v", err)
	}
	// Reprocessing the same block (reorg replay, duplicate notification)
	// must not duplicate history.
	if _, err := cache.BlockProcess(block, 7, UtreexoProof{}, nil); err != nil {
		t.Fatalf("BlockProcess again: %v", err)
	}
	hash := ScriptHash(watched)
	if history := cache.GetAddressHistory(&hash); len(history) != 1 {
		t.Fatalf("reprocessing duplicated history: %v", history)
	}
}

func TestBlockProcessTwoOutputsSameScript(t *testing.T) {
	db := newMemStore()
	cache := newTestCache(t, db)
	watched := []byte{0x51}
	if err := cache.WatchScript(watched); err != nil {
		t.Fatalf("WatchScript: %v", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(5000, watched))
	tx.AddTxOut(wire.NewTxOut(7000, watched))
	block := testBlock(tx)

	matches, err := cache.BlockProcess(block, 9, UtreexoProof{}, nil)
	if err != nil {
		t.Fatalf("BlockProcess: %v", err)
	}
	// Both outputs match, but the transaction is cached once.
	if len(matches) != 2 {
		t.Fatalf("expected two matches: %v", matches)
	}
	hash := ScriptHash(watched)
	if history := cache.GetAddressHistory(&hash); len(history) != 1 {
		t.Fatalf("same tx cached twice: %v", history)
	}
}

func TestCacheTransactionAutoSubscribe(t *testing.T) {
	db := newMemStore()
	cache := newTestCache(t, db)
	script := []byte{0x52}
	tx := testTx(5000, script)
	err := cache.CacheTransaction(tx, 50, tx.TxOut[0], nil, 0)
	if err != nil {
		t.Fatalf("CacheTransaction: %v", err)
	}
	// The unknown script is now watched, with this tx as its history.
	hash := ScriptHash(script)
	history := cache.GetAddressHistory(&hash)
	if len(history) != 1 || history[0].Height != 50 {
		t.Fatalf("auto-subscribe did not cache the transaction: %v", history)
	}
	// And it matches in subsequent block scans.
	tx2 := testTx(6000, script)
	matches, err := cache.BlockProcess(testBlock(tx2), 51, UtreexoProof{}, nil)
	if err != nil || len(matches) != 1 {
		t.Fatalf("auto-subscribed script did not match: %v %v", matches, err)
	}
}

func TestGetMerkleProofExcludesTarget(t *testing.T) {
	db := newMemStore()
	cache := newTestCache(t, db)
	watched := []byte{0x51}
	if err := cache.WatchScript(watched); err != nil {
		t.Fatalf("WatchScript: %v", err)
	}
	paying := testTx(5000, watched)
	sibling := testTx(9000, []byte{0x6a})
	block := testBlock(sibling, paying)
	if _, err := cache.BlockProcess(block, 3, UtreexoProof{}, nil); err != nil {
		t.Fatalf("BlockProcess: %v", err)
	}
	txid := paying.TxHash()
	merkle, pos, err := cache.GetMerkleProof(&txid)
	if err != nil {
		t.Fatalf("GetMerkleProof: %v", err)
	}
	if pos != 1 {
		t.Fatalf("wrong block position: %d", pos)
	}
	for _, h := range merkle {
		if h == txid.String() {
			t.Fatalf("merkle branch contains the target txid")
		}
	}
	siblingID := sibling.TxHash()
	found := false
	for _, h := range merkle {
		if h == siblingID.String() {
			found = true
		}
	}
	if !found {
		t.Fatalf("merkle branch is missing the sibling hash: %v", merkle)
	}
}

func TestSyncLimits(t *testing.T) {
	db := newMemStore()
	cache := newTestCache(t, db)
	// Before Setup, the store has no height.
	if _, _, err := cache.GetSyncLimits(10); !IsWalletNotInitializedError(err) {
		t.Fatalf("expected WalletNotInitialized, got: %v", err)
	}
	if err := cache.Setup("wpkh(test)"); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	start, end, err := cache.GetSyncLimits(10)
	if err != nil || start != 1 || end != 10 {
		t.Fatalf("GetSyncLimits after Setup: %d %d %v", start, end, err)
	}
	if err := cache.BumpHeight(10); err != nil {
		t.Fatalf("BumpHeight: %v", err)
	}
	// Already at the tip: the window is empty (start > end).
	start, end, err = cache.GetSyncLimits(10)
	if err != nil || start != 11 || end != 10 {
		t.Fatalf("GetSyncLimits at tip: %d %d %v", start, end, err)
	}
	if desc, _ := db.GetDescriptor(); desc != "wpkh(test)" {
		t.Fatalf("descriptor was not persisted: %q", desc)
	}
}

func TestCachePersistenceReload(t *testing.T) {
	db := newMemStore()
	cache := newTestCache(t, db)
	watched := []byte{0x51}
	if err := cache.WatchScript(watched); err != nil {
		t.Fatalf("WatchScript: %v", err)
	}
	paying := testTx(5000, watched)
	block := testBlock(paying)
	if _, err := cache.BlockProcess(block, 12, UtreexoProof{}, nil); err != nil {
		t.Fatalf("BlockProcess: %v", err)
	}
	if err := cache.SaveAcc(); err != nil {
		t.Fatalf("SaveAcc: %v", err)
	}
	savedAcc := cache.Acc()

	// A fresh engine over the same store sees identical state.
	cache2 := newTestCache(t, db)
	hash := ScriptHash(watched)
	history := cache2.GetAddressHistory(&hash)
	if len(history) != 1 || history[0].Height != 12 {
		t.Fatalf("history did not survive reload: %v", history)
	}
	txid := paying.TxHash()
	if _, err := cache2.GetCachedTx(&txid); err != nil {
		t.Fatalf("tx index did not survive reload: %v", err)
	}
	acc2 := cache2.Acc()
	if !acc2.Equal(&savedAcc) {
		t.Fatalf("accumulator did not survive reload: %v vs %v", acc2, savedAcc)
	}
}

func TestBlockProcessStoreWriteFailure(t *testing.T) {
	db := newMemStore()
	cache := newTestCache(t, db)
	watched := []byte{0x51}
	if err := cache.WatchScript(watched); err != nil {
		t.Fatalf("WatchScript: %v", err)
	}
	db.failWrites = true
	paying := testTx(5000, watched)
	if _, err := cache.BlockProcess(testBlock(paying), 5, UtreexoProof{}, nil); !IsStoreWriteError(err) {
		t.Fatalf("expected StoreWriteFailed, got: %v", err)
	}
	// The in-memory history rolled back: nothing visible that isn't on disk.
	hash := ScriptHash(watched)
	if history := cache.GetAddressHistory(&hash); len(history) != 0 {
		t.Fatalf("failed write left history visible: %v", history)
	}
	txid := paying.TxHash()
	if _, err := cache.GetHeight(&txid); !IsNotFoundError(err) {
		t.Fatalf("failed write left tx indexed: %v", err)
	}
	// Once the store recovers, the same block applies cleanly.
	db.failWrites = false
	if _, err := cache.BlockProcess(testBlock(paying), 5, UtreexoProof{}, nil); err != nil {
		t.Fatalf("BlockProcess after recovery: %v", err)
	}
	if history := cache.GetAddressHistory(&hash); len(history) != 1 {
		t.Fatalf("recovery did not cache the transaction: %v", history)
	}
}

func TestBlockProcessAccUpdateFailure(t *testing.T) {
	db := newMemStore()
	updater := &fakeUpdater{fail: true}
	cache, err := NewAddressCache(db, db, updater)
	if err != nil {
		t.Fatalf("NewAddressCache: %v", err)
	}
	watched := []byte{0x51}
	if err := cache.WatchScript(watched); err != nil {
		t.Fatalf("WatchScript: %v", err)
	}
	paying := testTx(5000, watched)
	_, err = cache.BlockProcess(testBlock(paying), 5, UtreexoProof{}, nil)
	if !IsError(err, AccUpdateFailed) {
		t.Fatalf("expected AccUpdateFailed, got: %v", err)
	}
	// Nothing was cached: the update failure aborts before the scan.
	hash := ScriptHash(watched)
	if history := cache.GetAddressHistory(&hash); len(history) != 0 {
		t.Fatalf("failed accumulator update still cached transactions: %v", history)
	}
	if cache.Acc().Leaves != 0 {
		t.Fatalf("failed accumulator update moved the snapshot")
	}
}

func TestGetAddressBalanceUnknown(t *testing.T) {
	db := newMemStore()
	cache := newTestCache(t, db)
	hash := ScriptHash([]byte{0x51})
	if bal := cache.GetAddressBalance(&hash); bal != 0 {
		t.Fatalf("unknown script has non-zero balance: %d", bal)
	}
}
