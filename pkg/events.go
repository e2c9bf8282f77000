package femto

// Event types published on the message bus.

// Interface for any event
type EventType interface {
	Type() string
}

// slice of all msg types for config funcs lookup
var EVENT_TYPES []EventType = []EventType{
	EVENT_ALL("ALL"),
	EVENT_SYS("SYS"),
	EVENT_TX("TX"),
	EVENT_CHAIN("CHAIN"),
}

// Special category, do not use directly, represents *
type EVENT_ALL string

func (e EVENT_ALL) Type() string {
	return "ALL"
}

// System Events
type EVENT_SYS string

func (e EVENT_SYS) Type() string {
	return "SYS"
}

const (
	SYS_STARTUP EVENT_SYS = "STARTUP"
	SYS_ERR     EVENT_SYS = "ERR"
	SYS_MSG     EVENT_SYS = "MSG"
)

// Transaction Events
type EVENT_TX string

func (e EVENT_TX) Type() string {
	return "TX"
}

const (
	// TX_FOUND is sent for each (transaction, output) pair the block scan
	// matched against a watched script.
	TX_FOUND EVENT_TX = "FOUND"
)

// TxFoundEvent is the TX_FOUND payload.
type TxFoundEvent struct {
	TxID       string `json:"txid"`
	ScriptHash string `json:"script_hash"`
	Height     uint32 `json:"height"`
	Value      int64  `json:"value"`
}

// Chain Events
type EVENT_CHAIN string

func (e EVENT_CHAIN) Type() string {
	return "CHAIN"
}

const (
	CHAIN_BLOCK  EVENT_CHAIN = "BLOCK"
	CHAIN_SYNCED EVENT_CHAIN = "SYNCED"
)

// ChainEvent is the payload for CHAIN_BLOCK and CHAIN_SYNCED.
type ChainEvent struct {
	Height uint32 `json:"height"`
	Hash   string `json:"hash,omitempty"`
}
