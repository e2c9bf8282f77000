package store

import (
	"path/filepath"
	"testing"

	femto "github.com/femtowallet/femtowallet/pkg"
)

// testStore is the full storage surface the cache engine uses; the suite
// below runs against every backend.
type testStore interface {
	femto.AddressStore
	femto.ChainStore
}

func withStores(t *testing.T, fn func(t *testing.T, db testStore)) {
	t.Run("sqlite", func(t *testing.T) {
		db, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStore: %v", err)
		}
		defer db.Close()
		fn(t, db)
	})
	t.Run("bolt", func(t *testing.T) {
		db, err := NewBoltStore(filepath.Join(t.TempDir(), "test.bolt"))
		if err != nil {
			t.Fatalf("NewBoltStore: %v", err)
		}
		defer db.Close()
		fn(t, db)
	})
	t.Run("mock", func(t *testing.T) {
		db := NewMockStore()
		defer db.Close()
		fn(t, db)
	})
}

func testAddress(script []byte, balance uint64) *femto.CachedAddress {
	return &femto.CachedAddress{
		ScriptHash: femto.ScriptHash(script),
		Balance:    balance,
		Script:     script,
	}
}

func TestSaveLoadAddresses(t *testing.T) {
	withStores(t, func(t *testing.T, db testStore) {
		a1 := testAddress([]byte{0x51}, 0)
		a2 := testAddress([]byte{0x52}, 99)
		if err := db.SaveAddress(a1); err != nil {
			t.Fatalf("SaveAddress: %v", err)
		}
		if err := db.SaveAddress(a2); err != nil {
			t.Fatalf("SaveAddress: %v", err)
		}
		addresses, err := db.LoadAddresses()
		if err != nil {
			t.Fatalf("LoadAddresses: %v", err)
		}
		if len(addresses) != 2 {
			t.Fatalf("expected 2 addresses, got %d", len(addresses))
		}
		byHash := make(map[string]*femto.CachedAddress)
		for _, a := range addresses {
			byHash[a.ScriptHash.String()] = a
		}
		got := byHash[a2.ScriptHash.String()]
		if got == nil || got.Balance != 99 {
			t.Fatalf("address did not round-trip: %+v", got)
		}
	})
}

func TestSaveAddressUpsert(t *testing.T) {
	withStores(t, func(t *testing.T, db testStore) {
		script := []byte{0x51}
		addr := testAddress(script, 0)
		if err := db.SaveAddress(addr); err != nil {
			t.Fatalf("SaveAddress: %v", err)
		}
		// Saving again always rewrites the whole record.
		addr.Balance = 7
		if err := db.SaveAddress(addr); err != nil {
			t.Fatalf("SaveAddress again: %v", err)
		}
		addresses, err := db.LoadAddresses()
		if err != nil {
			t.Fatalf("LoadAddresses: %v", err)
		}
		if len(addresses) != 1 || addresses[0].Balance != 7 {
			t.Fatalf("upsert did not replace the record: %+v", addresses)
		}
	})
}

func TestReservedKeysSkipped(t *testing.T) {
	withStores(t, func(t *testing.T, db testStore) {
		// The height and descriptor share the addresses namespace but are
		// not address records.
		if err := db.SetCacheHeight(123); err != nil {
			t.Fatalf("SetCacheHeight: %v", err)
		}
		if err := db.SaveDescriptor("wpkh(test)"); err != nil {
			t.Fatalf("SaveDescriptor: %v", err)
		}
		if err := db.SaveAddress(testAddress([]byte{0x51}, 0)); err != nil {
			t.Fatalf("SaveAddress: %v", err)
		}
		addresses, err := db.LoadAddresses()
		if err != nil {
			t.Fatalf("LoadAddresses: %v", err)
		}
		if len(addresses) != 1 {
			t.Fatalf("reserved keys leaked into LoadAddresses: %+v", addresses)
		}
	})
}

func TestCacheHeight(t *testing.T) {
	withStores(t, func(t *testing.T, db testStore) {
		if _, err := db.GetCacheHeight(); !femto.IsWalletNotInitializedError(err) {
			t.Fatalf("expected WalletNotInitialized, got: %v", err)
		}
		if err := db.SetCacheHeight(0); err != nil {
			t.Fatalf("SetCacheHeight: %v", err)
		}
		height, err := db.GetCacheHeight()
		if err != nil || height != 0 {
			t.Fatalf("GetCacheHeight: %d %v", height, err)
		}
		if err := db.SetCacheHeight(850000); err != nil {
			t.Fatalf("SetCacheHeight: %v", err)
		}
		height, err = db.GetCacheHeight()
		if err != nil || height != 850000 {
			t.Fatalf("GetCacheHeight: %d %v", height, err)
		}
	})
}

func TestDescriptor(t *testing.T) {
	withStores(t, func(t *testing.T, db testStore) {
		if _, err := db.GetDescriptor(); err == nil {
			t.Fatalf("expected an error for a missing descriptor")
		}
		if err := db.SaveDescriptor("wpkh([d34db33f/84h/0h/0h]xpub.../0/*)"); err != nil {
			t.Fatalf("SaveDescriptor: %v", err)
		}
		desc, err := db.GetDescriptor()
		if err != nil || desc != "wpkh([d34db33f/84h/0h/0h]xpub.../0/*)" {
			t.Fatalf("GetDescriptor: %q %v", desc, err)
		}
	})
}

func TestRoots(t *testing.T) {
	withStores(t, func(t *testing.T, db testStore) {
		if _, err := db.LoadRoots(); !femto.IsNotFoundError(err) {
			t.Fatalf("expected NotFound, got: %v", err)
		}
		acc := femto.Accumulator{Leaves: 42}
		if err := db.SaveRoots(acc.Encode()); err != nil {
			t.Fatalf("SaveRoots: %v", err)
		}
		value, err := db.LoadRoots()
		if err != nil || value != "42 " {
			t.Fatalf("LoadRoots: %q %v", value, err)
		}
	})
}

func TestMockStoreFailWrites(t *testing.T) {
	db := NewMockStore()
	db.FailWrites = true
	if err := db.SaveAddress(testAddress([]byte{0x51}, 0)); err == nil {
		t.Fatalf("expected write failure")
	}
	if err := db.SetCacheHeight(1); err == nil {
		t.Fatalf("expected write failure")
	}
	if err := db.SaveRoots("0 "); err == nil {
		t.Fatalf("expected write failure")
	}
}
