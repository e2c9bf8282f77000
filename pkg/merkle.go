package femto

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

/*
	BIP-37 partial merkle tree construction for a single transaction.

	A leaf is marked matched iff its hash equals the target txid, so no
	unrelated transaction can ever be folded into the proof — a filter-based
	builder admits false positives, and a false positive here would persist a
	proof whose sibling list contains foreign txids and no longer verifies
	for the client.
*/
type partialMerkle struct {
	numTx       uint32
	allHashes   []*chainhash.Hash
	matchedBits []byte
	finalHashes []*chainhash.Hash
	bits        []byte
}

// calcTreeWidth is the number of nodes at the given tree height,
// height 0 being the leaves.
func (m *partialMerkle) calcTreeWidth(height uint32) uint32 {
	return (m.numTx + (1 << height) - 1) >> height
}

// calcHash computes the node hash at (height, pos), duplicating the left
// child when a right child is missing.
func (m *partialMerkle) calcHash(height, pos uint32) *chainhash.Hash {
	if height == 0 {
		return m.allHashes[pos]
	}
	var right *chainhash.Hash
	left := m.calcHash(height-1, pos*2)
	if pos*2+1 < m.calcTreeWidth(height-1) {
		right = m.calcHash(height-1, pos*2+1)
	} else {
		right = left
	}
	return hashMerkleBranches(left, right)
}

// traverseAndBuild walks the tree depth-first, emitting one flag bit per
// visited node and a hash for every node whose subtree contains no match
// (plus the matched leaves themselves).
func (m *partialMerkle) traverseAndBuild(height, pos uint32) {
	var isParent byte
	for i := pos << height; i < (pos+1)<<height && i < m.numTx; i++ {
		isParent |= m.matchedBits[i]
	}
	m.bits = append(m.bits, isParent)
	if height == 0 || isParent == 0x00 {
		m.finalHashes = append(m.finalHashes, m.calcHash(height, pos))
		return
	}
	m.traverseAndBuild(height-1, pos*2)
	if pos*2+1 < m.calcTreeWidth(height-1) {
		m.traverseAndBuild(height-1, pos*2+1)
	}
}

func hashMerkleBranches(left, right *chainhash.Hash) *chainhash.Hash {
	var buf [chainhash.HashSize * 2]byte
	copy(buf[:chainhash.HashSize], left[:])
	copy(buf[chainhash.HashSize:], right[:])
	h := chainhash.DoubleHashH(buf[:])
	return &h
}

// merkleBlockFor builds the partial merkle tree isolating txid's inclusion
// in the block. Exactly the transactions whose hash equals txid are matched.
func merkleBlockFor(block *wire.MsgBlock, txid chainhash.Hash) *wire.MsgMerkleBlock {
	numTx := uint32(len(block.Transactions))
	m := partialMerkle{
		numTx:       numTx,
		allHashes:   make([]*chainhash.Hash, 0, numTx),
		matchedBits: make([]byte, 0, numTx),
	}
	for _, tx := range block.Transactions {
		hash := tx.TxHash()
		if hash == txid {
			m.matchedBits = append(m.matchedBits, 0x01)
		} else {
			m.matchedBits = append(m.matchedBits, 0x00)
		}
		m.allHashes = append(m.allHashes, &hash)
	}

	height := uint32(0)
	for m.calcTreeWidth(height) > 1 {
		height++
	}
	m.traverseAndBuild(height, 0)

	mb := &wire.MsgMerkleBlock{
		Header:       block.Header,
		Transactions: m.numTx,
		Hashes:       make([]*chainhash.Hash, 0, len(m.finalHashes)),
		Flags:        make([]byte, (len(m.bits)+7)/8),
	}
	for _, hash := range m.finalHashes {
		mb.AddTxHash(hash)
	}
	for i := uint32(0); i < uint32(len(m.bits)); i++ {
		mb.Flags[i/8] |= m.bits[i] << (i % 8)
	}
	return mb
}
