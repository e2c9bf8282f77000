package store

import (
	"database/sql"
	"fmt"

	femto "github.com/femtowallet/femtowallet/pkg"

	_ "github.com/mattn/go-sqlite3"
)

var SETUP_SQL string = `
CREATE TABLE IF NOT EXISTS addresses (
	key TEXT NOT NULL PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chainstate (
	key TEXT NOT NULL PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Reserved keys in the addresses namespace (skipped when loading records)
// and the chainstate key owned by the ChainStore side.
const (
	heightKey = "height"
	descKey   = "desc"
	rootsKey  = "roots"
)

// interface guards ensure SQLiteStore implements both store boundaries
var _ femto.AddressStore = &SQLiteStore{}
var _ femto.ChainStore = &SQLiteStore{}

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore returns an AddressStore/ChainStore backed by sqlite.
// synchronous=FULL makes every statement durable before Exec returns, which
// is the write-through flush contract the cache engine relies on.
func NewSQLiteStore(fileName string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_synchronous=FULL", fileName)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// init tables / indexes
	if _, err = db.Exec(SETUP_SQL); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Defer this until shutdown
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) set(table, key, value string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO "+table+" (key, value) VALUES (?, ?)", key, value)
	return err
}

func (s *SQLiteStore) get(table, key string) (string, bool, error) {
	row := s.db.QueryRow("SELECT value FROM "+table+" WHERE key = ?", key)
	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) SaveAddress(addr *femto.CachedAddress) error {
	return s.set("addresses", addr.ScriptHash.String(), addr.Encode())
}

func (s *SQLiteStore) LoadAddresses() ([]*femto.CachedAddress, error) {
	rows, err := s.db.Query("SELECT key, value FROM addresses")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var addresses []*femto.CachedAddress
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		if key == heightKey || key == descKey {
			continue
		}
		addr, err := femto.DecodeCachedAddress(value)
		if err != nil {
			return nil, femto.NewErr(femto.DBParseError, "address record %q: %v", key, err)
		}
		addresses = append(addresses, addr)
	}
	return addresses, rows.Err()
}

func (s *SQLiteStore) GetCacheHeight() (uint32, error) {
	value, found, err := s.get("addresses", heightKey)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, femto.NewErr(femto.WalletNotInitialized, "no cache height stored")
	}
	var height uint32
	if _, err := fmt.Sscanf(value, "%d", &height); err != nil {
		return 0, femto.NewErr(femto.DBParseError, "cache height %q: %v", value, err)
	}
	return height, nil
}

func (s *SQLiteStore) SetCacheHeight(height uint32) error {
	return s.set("addresses", heightKey, fmt.Sprintf("%d", height))
}

func (s *SQLiteStore) SaveDescriptor(descriptor string) error {
	return s.set("addresses", descKey, descriptor)
}

func (s *SQLiteStore) GetDescriptor() (string, error) {
	value, found, err := s.get("addresses", descKey)
	if err != nil {
		return "", err
	}
	if !found {
		return "", femto.NewErr(femto.WalletNotInitialized, "no descriptor stored")
	}
	return value, nil
}

func (s *SQLiteStore) SaveRoots(acc string) error {
	return s.set("chainstate", rootsKey, acc)
}

func (s *SQLiteStore) LoadRoots() (string, error) {
	value, found, err := s.get("chainstate", rootsKey)
	if err != nil {
		return "", err
	}
	if !found {
		return "", femto.NewErr(femto.NotFound, "no accumulator snapshot stored")
	}
	return value, nil
}
