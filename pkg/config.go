package femto

type Config struct {
	Femto struct {
		// Network is informational: mainnet, testnet, regtest.
		Network string
		// Descriptor is persisted on first run via AddressCache.Setup.
		Descriptor string
	}

	Store struct {
		// Driver selects the kv backend: "sqlite" or "bolt".
		Driver string
		DBFile string
	}

	// Core is the full node we follow (JSON-RPC + ZMQ).
	Core struct {
		RPCHost string
		RPCPort int
		RPCUser string
		RPCPass string
		ZMQPort int
	}

	// Bridge is the utreexo bridge node supplying accumulator roots.
	Bridge struct {
		RPCHost string
		RPCPort int
		RPCUser string
		RPCPass string
	}

	WebAPI struct {
		Bind string
		Port string
	}

	Logging struct {
		// EventLog is the rotated file the bus logger writes to.
		EventLog string
	}
}

// TestConfig returns a config suitable for tests.
func TestConfig() Config {
	c := Config{}
	c.Femto.Network = "regtest"
	c.Store.Driver = "sqlite"
	c.Store.DBFile = ":memory:"
	c.WebAPI.Bind = "localhost"
	c.WebAPI.Port = "8099"
	return c
}
