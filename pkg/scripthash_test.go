package femto

import (
	"encoding/hex"
	"testing"
)

func TestScriptHash(t *testing.T) {
	// sha256 of the empty string, in display (reversed) byte order.
	empty := ScriptHash([]byte{})
	if empty.String() != "55b852781b9995a44c939b64e441ae2724b96f99c8f4fb9a141cfc9842c4b0e3" {
		t.Fatalf("ScriptHash of empty script is wrong: %s", empty.String())
	}

	// sha256 of a single zero byte (OP_FALSE), reversed for display.
	opFalse := ScriptHash([]byte{0x00})
	if opFalse.String() != "1da0af1706a31185763837b33f1d90782c0a78bbe644a59c987ab3ff9c0b346e" {
		t.Fatalf("ScriptHash of OP_FALSE is wrong: %s", opFalse.String())
	}

	// The raw digest is stored in forward order; only String() reverses.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if hex.EncodeToString(empty[:]) != want {
		t.Fatalf("ScriptHash bytes are not forward order: %x", empty[:])
	}
}
