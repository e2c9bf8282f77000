package core

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	femto "github.com/femtowallet/femtowallet/pkg"
)

// interface guards
var _ femto.AccumulatorUpdater = &BridgeUpdater{}
var _ femto.ProofSource = &BridgeUpdater{}

/*
 * BridgeUpdater advances the accumulator by asking a utreexo bridge node
 * for the forest state after each block, instead of verifying the deletion
 * proof locally. This is trusted-bridge mode: the bridge maintains the full
 * forest and is assumed honest. A locally-verifying sync engine satisfies
 * the same femto.AccumulatorUpdater interface and can be swapped in without
 * touching the cache engine.
 */
type BridgeUpdater struct {
	rpc rpcClient
}

func NewBridgeUpdater(config femto.Config) (*BridgeUpdater, error) {
	addr := fmt.Sprintf("http://%s:%d", config.Bridge.RPCHost, config.Bridge.RPCPort)
	return &BridgeUpdater{rpcClient{url: addr, user: config.Bridge.RPCUser, pass: config.Bridge.RPCPass, id: 1}}, nil
}

type utreexoRootsResult struct {
	NumLeaves uint64   `json:"numleaves"`
	Roots     []string `json:"roots"`
}

type blockProofResult struct {
	Targets     []uint64 `json:"targets"`
	ProofHashes []string `json:"proofhashes"`
	DelHashes   []string `json:"delhashes"`
}

func (b *BridgeUpdater) UpdateAcc(acc femto.Accumulator, block *wire.MsgBlock, height uint32, proof femto.UtreexoProof, delHashes []chainhash.Hash) (femto.Accumulator, error) {
	blockHash := block.BlockHash()
	var res utreexoRootsResult
	if err := b.rpc.request("getutreexoroots", []any{blockHash.String()}, &res); err != nil {
		return femto.Accumulator{}, err
	}
	if res.NumLeaves < acc.Leaves {
		return femto.Accumulator{}, fmt.Errorf("bridge reported %d leaves at height %d, below current %d", res.NumLeaves, height, acc.Leaves)
	}
	next := femto.Accumulator{Leaves: res.NumLeaves}
	for _, root := range res.Roots {
		h, err := parseForestHash(root)
		if err != nil {
			return femto.Accumulator{}, fmt.Errorf("bridge root %q: %v", root, err)
		}
		next.Roots = append(next.Roots, h)
	}
	return next, nil
}

// GetBlockProof fetches the deletion proof for a block. Unused in
// trusted-bridge mode but required by verifying updaters.
func (b *BridgeUpdater) GetBlockProof(blockHash string) (femto.UtreexoProof, []chainhash.Hash, error) {
	var res blockProofResult
	if err := b.rpc.request("getblockproof", []any{blockHash}, &res); err != nil {
		return femto.UtreexoProof{}, nil, err
	}
	proof := femto.UtreexoProof{Targets: res.Targets}
	for _, s := range res.ProofHashes {
		h, err := parseForestHash(s)
		if err != nil {
			return femto.UtreexoProof{}, nil, fmt.Errorf("proof hash %q: %v", s, err)
		}
		proof.Hashes = append(proof.Hashes, h)
	}
	var dels []chainhash.Hash
	for _, s := range res.DelHashes {
		h, err := parseForestHash(s)
		if err != nil {
			return femto.UtreexoProof{}, nil, fmt.Errorf("del hash %q: %v", s, err)
		}
		dels = append(dels, h)
	}
	return proof, dels, nil
}

// parseForestHash parses a forest-order hash (not reversed for display).
func parseForestHash(s string) (chainhash.Hash, error) {
	var h chainhash.Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(raw) != chainhash.HashSize {
		return h, fmt.Errorf("hash is %d bytes, want %d", len(raw), chainhash.HashSize)
	}
	copy(h[:], raw)
	return h, nil
}
