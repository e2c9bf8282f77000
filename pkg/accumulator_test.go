package femto

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func TestAccumulatorEncode(t *testing.T) {
	fresh := Accumulator{}
	if fresh.Encode() != "0 " {
		t.Fatalf("fresh accumulator encoding is wrong: %q", fresh.Encode())
	}

	var r1, r2 chainhash.Hash
	r1[0] = 0xab
	r2[31] = 0x01
	acc := Accumulator{Leaves: 1000, Roots: []chainhash.Hash{r1, r2}}
	encoded := acc.Encode()
	if !strings.HasPrefix(encoded, "1000 ab") {
		t.Fatalf("accumulator encoding is wrong: %q", encoded)
	}
	// leaf count + space + two roots of 64 hex chars, no separator between roots.
	if len(encoded) != 4+1+64+64 {
		t.Fatalf("accumulator encoding has wrong length: %d", len(encoded))
	}
}

func TestAccumulatorRoundTrip(t *testing.T) {
	var r1, r2 chainhash.Hash
	for i := range r1 {
		r1[i] = byte(i)
		r2[i] = byte(255 - i)
	}
	acc := Accumulator{Leaves: 123456789, Roots: []chainhash.Hash{r1, r2}}
	decoded, err := DecodeAccumulator(acc.Encode())
	if err != nil {
		t.Fatalf("DecodeAccumulator: %v", err)
	}
	if !decoded.Equal(&acc) {
		t.Fatalf("accumulator did not round-trip: %v vs %v", decoded, acc)
	}
}

func TestDecodeAccumulatorFresh(t *testing.T) {
	acc, err := DecodeAccumulator("0 ")
	if err != nil {
		t.Fatalf("DecodeAccumulator: %v", err)
	}
	if acc.Leaves != 0 || len(acc.Roots) != 0 {
		t.Fatalf("fresh accumulator decoded wrong: %v", acc)
	}
}

func TestDecodeAccumulatorIgnoresRemainder(t *testing.T) {
	var r1 chainhash.Hash
	r1[0] = 0xcd
	full := Accumulator{Leaves: 5, Roots: []chainhash.Hash{r1}}
	// A trailing fragment shorter than one root is not corruption.
	acc, err := DecodeAccumulator(full.Encode() + "abc")
	if err != nil {
		t.Fatalf("DecodeAccumulator: %v", err)
	}
	if len(acc.Roots) != 1 || acc.Roots[0] != r1 {
		t.Fatalf("remainder was not ignored: %v", acc.Roots)
	}
}

func TestDecodeAccumulatorBadLeafCount(t *testing.T) {
	_, err := DecodeAccumulator("zzz ")
	if !IsDBParseError(err) {
		t.Fatalf("expected DBParseError, got: %v", err)
	}
	_, err = DecodeAccumulator("")
	if !IsDBParseError(err) {
		t.Fatalf("expected DBParseError for empty input, got: %v", err)
	}
}
