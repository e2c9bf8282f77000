package femto

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// L1 represents access to the Bitcoin node we follow. Implemented via
// JSON-RPC against a full node (see pkg/core); the cache engine itself never
// talks to L1 — only the chain tracker does.
type L1 interface {
	GetBlockCount() (int64, error)
	GetBestBlockHash() (string, error)
	GetBlockHash(height int64) (string, error)
	GetBlock(blockHash string) (*wire.MsgBlock, error)
}

// UtreexoProof is a batch inclusion proof for the accumulator leaves deleted
// by a block (the UTXOs its transactions spend). Targets are leaf positions
// in the forest; Hashes are the proof path.
type UtreexoProof struct {
	Targets []uint64
	Hashes  []chainhash.Hash
}

// AccumulatorUpdater applies one block's worth of leaf additions and
// deletions to an accumulator snapshot. This is the sync engine's
// verification/update routine: a failure means the proof or block is invalid
// relative to the current snapshot, which the cache engine treats as fatal
// for the in-flight block.
type AccumulatorUpdater interface {
	UpdateAcc(acc Accumulator, block *wire.MsgBlock, height uint32, proof UtreexoProof, delHashes []chainhash.Hash) (Accumulator, error)
}

// ProofSource supplies the deletion proof for a block, typically from a
// utreexo bridge node.
type ProofSource interface {
	GetBlockProof(blockHash string) (UtreexoProof, []chainhash.Hash, error)
}

// TxMatch is a transaction found by the block scan, paired with the matched
// output paying a watched script.
type TxMatch struct {
	Tx  *wire.MsgTx
	Out *wire.TxOut
}

// NodeEventType is the type of event a Bitcoin node has announced.
type NodeEventType int

const (
	Block NodeEventType = iota
	TX
)

// NodeEvent is an event announced by the node, e.g. via the ZMQ interface.
type NodeEvent struct {
	Type NodeEventType
	ID   string // block hash or txid, hex
	Data string
}

// NodeEmitter emits NodeEvents as they are received from a node.
type NodeEmitter interface {
	Subscribe(chan<- NodeEvent)
}
