package femto

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

/*
	Cached records are persisted as plain text with a two-level delimiter
	scheme: address fields are joined with ':' and transaction fields with
	';'. Transaction records are embedded inside address records, which works
	because every variable-length field is hex (a literal ':' or ';' is never
	valid hex). This is the on-disk compatibility contract — do not change
	either delimiter or the trailing-separator behaviour.

	transaction: txHex;height;position;merkleProofHex
	address:     scriptHashHex:balance:scriptHex:[txRecord:]*
*/

// CachedTx is one confirmed transaction paying a watched script.
type CachedTx struct {
	TxHex    string // full serialized transaction, hex
	Height   uint32 // confirmation height; 0 is reserved for "not yet confirmed"
	ProofHex string // serialized merkle block isolating this tx, hex ("" if absent)
	TxID     chainhash.Hash
	Position uint32 // index within the block's transaction list
}

// Equal reports full field equality. TxID is excluded because it is derived
// from TxHex.
func (t *CachedTx) Equal(other *CachedTx) bool {
	return t.TxHex == other.TxHex &&
		t.Height == other.Height &&
		t.Position == other.Position &&
		t.ProofHex == other.ProofHex
}

func (t *CachedTx) Encode() string {
	return fmt.Sprintf("%s;%d;%d;%s", t.TxHex, t.Height, t.Position, t.ProofHex)
}

// MerkleBlock decodes the cached merkle proof.
func (t *CachedTx) MerkleBlock() (*wire.MsgMerkleBlock, error) {
	if t.ProofHex == "" {
		return nil, NewErr(NotFound, "no merkle proof cached for tx %v", t.TxID)
	}
	raw, err := hex.DecodeString(t.ProofHex)
	if err != nil {
		return nil, NewErr(DBParseError, "merkle proof for tx %v: %v", t.TxID, err)
	}
	mb := &wire.MsgMerkleBlock{}
	if err := mb.BtcDecode(bytes.NewReader(raw), wire.ProtocolVersion, wire.LatestEncoding); err != nil {
		return nil, NewErr(DBParseError, "merkle proof for tx %v: %v", t.TxID, err)
	}
	return mb, nil
}

// EncodeMerkleBlock serializes a merkle block to the hex form stored in
// CachedTx.ProofHex. A nil merkle block encodes to "" (proof absent).
func EncodeMerkleBlock(mb *wire.MsgMerkleBlock) (string, error) {
	if mb == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := mb.BtcEncode(&buf, wire.ProtocolVersion, wire.LatestEncoding); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// DecodeCachedTx parses a transaction record. The stored txid is never
// trusted: it is recomputed from the transaction bytes, so a record whose
// txHex does not deserialize is a parse error.
func DecodeCachedTx(value string) (CachedTx, error) {
	fields := strings.Split(value, ";")
	if len(fields) < 4 {
		return CachedTx{}, NewErr(DBParseError, "transaction record has %d fields, want 4", len(fields))
	}
	raw, err := hex.DecodeString(fields[0])
	if err != nil {
		return CachedTx{}, NewErr(DBParseError, "transaction hex: %v", err)
	}
	var msg wire.MsgTx
	if err := msg.Deserialize(bytes.NewReader(raw)); err != nil {
		return CachedTx{}, NewErr(DBParseError, "transaction bytes: %v", err)
	}
	height, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return CachedTx{}, NewErr(DBParseError, "transaction height %q: %v", fields[1], err)
	}
	position, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return CachedTx{}, NewErr(DBParseError, "transaction position %q: %v", fields[2], err)
	}
	tx := CachedTx{
		TxHex:    fields[0],
		Height:   uint32(height),
		ProofHex: fields[3],
		TxID:     msg.TxHash(),
		Position: uint32(position),
	}
	if tx.ProofHex != "" {
		if _, err := tx.MerkleBlock(); err != nil {
			return CachedTx{}, err
		}
	}
	return tx, nil
}

// CachedAddress is a watched script with its transaction history.
type CachedAddress struct {
	ScriptHash chainhash.Hash
	// Balance is written once at creation and round-tripped through the
	// codec; it is not recomputed as transactions arrive. See
	// AddressCache.GetAddressBalance.
	Balance uint64
	Script  []byte
	// Transactions is in first-seen insertion order, not height order.
	Transactions []CachedTx
}

// Encode always emits a ':' after the script hex and after each transaction
// record, so an empty history encodes as "hash:0:script:". The decoder skips
// the empty segments this produces.
func (a *CachedAddress) Encode() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:%d:%s:", a.ScriptHash.String(), a.Balance, hex.EncodeToString(a.Script))
	for i := range a.Transactions {
		sb.WriteString(a.Transactions[i].Encode())
		sb.WriteByte(':')
	}
	return sb.String()
}

// DecodeCachedAddress parses an address record.
func DecodeCachedAddress(value string) (*CachedAddress, error) {
	fields := strings.Split(value, ":")
	if len(fields) < 3 {
		return nil, NewErr(DBParseError, "address record has %d fields, want 3", len(fields))
	}
	scriptHash, err := chainhash.NewHashFromStr(fields[0])
	if err != nil {
		return nil, NewErr(DBParseError, "address script hash %q: %v", fields[0], err)
	}
	balance, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return nil, NewErr(DBParseError, "address balance %q: %v", fields[1], err)
	}
	script, err := hex.DecodeString(fields[2])
	if err != nil {
		return nil, NewErr(DBParseError, "address script hex: %v", err)
	}
	addr := &CachedAddress{
		ScriptHash: *scriptHash,
		Balance:    balance,
		Script:     script,
	}
	for _, field := range fields[3:] {
		if field == "" {
			continue
		}
		tx, err := DecodeCachedTx(field)
		if err != nil {
			return nil, err
		}
		addr.Transactions = append(addr.Transactions, tx)
	}
	return addr, nil
}
