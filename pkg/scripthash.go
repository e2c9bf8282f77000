package femto

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ScriptHash returns the identity key for a watched output script: a single
// SHA-256 over the raw script bytes (the Electrum convention). chainhash.Hash
// renders in reversed byte order, which is the display form Electrum clients
// expect, so sh.String() is directly usable in protocol responses and as a
// database key.
func ScriptHash(script []byte) chainhash.Hash {
	return chainhash.Hash(sha256.Sum256(script))
}
