package store

import (
	"fmt"

	femto "github.com/femtowallet/femtowallet/pkg"
	bolt "go.etcd.io/bbolt"
)

var (
	addressesBucket  = []byte("addresses")
	chainstateBucket = []byte("chainstate")
)

// interface guards ensure BoltStore implements both store boundaries
var _ femto.AddressStore = &BoltStore{}
var _ femto.ChainStore = &BoltStore{}

// BoltStore is an embedded kv backend with the same key scheme as the
// sqlite store. Every Update commit fsyncs before returning, satisfying the
// write-through flush contract.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(fileName string) (*BoltStore, error) {
	db, err := bolt.Open(fileName, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(addressesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(chainstateBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) set(bucket []byte, key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), []byte(value))
	})
}

func (s *BoltStore) get(bucket []byte, key string) (string, bool, error) {
	var value string
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get([]byte(key)); v != nil {
			value = string(v)
			found = true
		}
		return nil
	})
	return value, found, err
}

func (s *BoltStore) SaveAddress(addr *femto.CachedAddress) error {
	return s.set(addressesBucket, addr.ScriptHash.String(), addr.Encode())
}

func (s *BoltStore) LoadAddresses() ([]*femto.CachedAddress, error) {
	var addresses []*femto.CachedAddress
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(addressesBucket).ForEach(func(k, v []byte) error {
			key := string(k)
			if key == heightKey || key == descKey {
				return nil
			}
			addr, err := femto.DecodeCachedAddress(string(v))
			if err != nil {
				return femto.NewErr(femto.DBParseError, "address record %q: %v", key, err)
			}
			addresses = append(addresses, addr)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return addresses, nil
}

func (s *BoltStore) GetCacheHeight() (uint32, error) {
	value, found, err := s.get(addressesBucket, heightKey)
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

func (s *BoltStore) SetCacheHeight(height uint32) error {
	return s.set(addressesBucket, heightKey, fmt.Sprintf("%d", height))
}

func (s *BoltStore) SaveDescriptor(descriptor string) error {
	return s.set(addressesBucket, descKey, descriptor)
}

func (s *BoltStore) GetDescriptor() (string, error) {
	value, found, err := s.get(addressesBucket, descKey)
	if err != nil {
		return "", err
	}
	if !found {
		return "", femto.NewErr(femto.WalletNotInitialized, "no descriptor stored")
	}
	return value, nil
}

func (s *BoltStore) SaveRoots(acc string) error {
	return s.set(chainstateBucket, rootsKey, acc)
}

func (s *BoltStore) LoadRoots() (string, error) {
	value, found, err := s.get(chainstateBucket, rootsKey)
	if err != nil {
		return "", err
	}
	if !found {
		return "", femto.NewErr(femto.NotFound, "no accumulator snapshot stored")
	}
	return value, nil
}
