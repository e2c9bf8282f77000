package femto

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Accumulator is a snapshot of the utreexo forest after the last processed
// block: the total leaf count plus the forest roots in order (largest tree
// first). It stands in for the full UTXO set; the zero value is a fresh,
// empty accumulator.
type Accumulator struct {
	Leaves uint64
	Roots  []chainhash.Hash
}

// Encode renders the snapshot as "<leafCount> <root><root>...", each root as
// exactly 64 hex characters with no separator. Roots are stored in forest
// order, not reversed for display. The trailing space after the leaf count is
// always present, even with no roots.
func (a *Accumulator) Encode() string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(a.Leaves, 10))
	sb.WriteByte(' ')
	for i := range a.Roots {
		sb.WriteString(hex.EncodeToString(a.Roots[i][:]))
	}
	return sb.String()
}

// DecodeAccumulator parses an encoded snapshot. Roots are consumed in whole
// 64-character chunks; a shorter trailing remainder is silently ignored
// rather than treated as corruption, matching the historical decoder.
func DecodeAccumulator(value string) (Accumulator, error) {
	head, rest, _ := strings.Cut(value, " ")
	leaves, err := strconv.ParseUint(head, 10, 64)
	if err != nil {
		return Accumulator{}, NewErr(DBParseError, "accumulator leaf count %q: %v", head, err)
	}
	acc := Accumulator{Leaves: leaves}
	for len(rest) >= chainhash.HashSize*2 {
		chunk := rest[:chainhash.HashSize*2]
		rest = rest[chainhash.HashSize*2:]
		raw, err := hex.DecodeString(chunk)
		if err != nil {
			return Accumulator{}, NewErr(DBParseError, "accumulator root %q: %v", chunk, err)
		}
		var root chainhash.Hash
		copy(root[:], raw)
		acc.Roots = append(acc.Roots, root)
	}
	return acc, nil
}

// Equal reports whether two snapshots are byte-identical.
func (a *Accumulator) Equal(other *Accumulator) bool {
	if a.Leaves != other.Leaves || len(a.Roots) != len(other.Roots) {
		return false
	}
	for i := range a.Roots {
		if a.Roots[i] != other.Roots[i] {
			return false
		}
	}
	return true
}
