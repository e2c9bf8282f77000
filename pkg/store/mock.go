package store

import (
	"strconv"

	femto "github.com/femtowallet/femtowallet/pkg"
)

// interface guards ensure MockStore implements both store boundaries
var _ femto.AddressStore = &MockStore{}
var _ femto.ChainStore = &MockStore{}

// MockStore keeps records in memory, for tests. Records round-trip through
// the text codec like the real backends, so codec mistakes still surface.
// Set FailWrites to make every write return an error.
type MockStore struct {
	addresses  map[string]string
	chainstate map[string]string
	FailWrites bool
}

func NewMockStore() *MockStore {
	return &MockStore{
		addresses:  make(map[string]string, 10),
		chainstate: make(map[string]string, 10),
	}
}

func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) writeErr() error {
	if m.FailWrites {
		return femto.NewErr(femto.NotAvailable, "mock store: writes disabled")
	}
	return nil
}

func (m *MockStore) SaveAddress(addr *femto.CachedAddress) error {
	if err := m.writeErr(); err != nil {
		return err
	}
	m.addresses[addr.ScriptHash.String()] = addr.Encode()
	return nil
}

func (m *MockStore) LoadAddresses() ([]*femto.CachedAddress, error) {
	var addresses []*femto.CachedAddress
	for key, value := range m.addresses {
		if key == heightKey || key == descKey {
			continue
		}
		addr, err := femto.DecodeCachedAddress(value)
		if err != nil {
			return nil, femto.NewErr(femto.DBParseError, "address record %q: %v", key, err)
		}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

func (m *MockStore) GetCacheHeight() (uint32, error) {
	value, ok := m.addresses[heightKey]
	if !ok {
		return 0, femto.NewErr(femto.WalletNotInitialized, "no cache height stored")
	}
	height, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, femto.NewErr(femto.DBParseError, "cache height %q: %v", value, err)
	}
	return uint32(height), nil
}

func (m *MockStore) SetCacheHeight(height uint32) error {
	if err := m.writeErr(); err != nil {
		return err
	}
	m.addresses[heightKey] = strconv.FormatUint(uint64(height), 10)
	return nil
}

func (m *MockStore) SaveDescriptor(descriptor string) error {
	if err := m.writeErr(); err != nil {
		return err
	}
	m.addresses[descKey] = descriptor
	return nil
}

func (m *MockStore) GetDescriptor() (string, error) {
	value, ok := m.addresses[descKey]
	if !ok {
		return "", femto.NewErr(femto.WalletNotInitialized, "no descriptor stored")
	}
	return value, nil
}

func (m *MockStore) SaveRoots(acc string) error {
	if err := m.writeErr(); err != nil {
		return err
	}
	m.chainstate[rootsKey] = acc
	return nil
}

func (m *MockStore) LoadRoots() (string, error) {
	value, ok := m.chainstate[rootsKey]
	if !ok {
		return "", femto.NewErr(femto.NotFound, "no accumulator snapshot stored")
	}
	return value, nil
}
