package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mr-tron/base58"
)

func TestPublicKeyFromBase58RoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	encoded := base58.Encode(pub)

	pk, err := PublicKeyFromBase58(encoded)
	if err != nil {
		t.Fatalf("PublicKeyFromBase58: %v", err)
	}
	if pk.String() != encoded {
		t.Errorf("round trip = %q, want %q", pk.String(), encoded)
	}
	if !bytes.Equal(pk.Bytes(), pub) {
		t.Error("decoded bytes differ from the key material")
	}
}

func TestPublicKeyFromBase58Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not base58", "0OIl"},
		{"wrong length", "abc"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := PublicKeyFromBase58(tt.input); err == nil {
				t.Errorf("expected error for %q", tt.input)
			}
		})
	}
}

func TestIsValidSignature(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sig := base58.Encode(ed25519.Sign(priv, []byte("message")))

	if !IsValidSignature(sig) {
		t.Error("a real 64-byte signature should validate")
	}
	if IsValidSignature("abc") {
		t.Error("short input should not validate")
	}
	if IsValidSignature("0OIl") {
		t.Error("non-base58 input should not validate")
	}
}

func TestFindProgramAddressIsDeterministicAndOffCurve(t *testing.T) {
	programID, err := PublicKeyFromBase58(TokenMetadataProgramID)
	if err != nil {
		t.Fatalf("decode program id: %v", err)
	}
	seeds := [][]byte{[]byte("symbiote_state"), make([]byte, 32)}

	first, bump1, err := FindProgramAddress(seeds, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	second, bump2, err := FindProgramAddress(seeds, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}

	if first != second || bump1 != bump2 {
		t.Error("derivation should be deterministic")
	}
	if isOnCurve(first[:]) {
		t.Error("derived address must be off the ed25519 curve")
	}
}

func TestAppendShortvec(t *testing.T) {
	tests := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{255, []byte{0xff, 0x01}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}

	for _, tt := range tests {
		if got := appendShortvec(nil, tt.n); !bytes.Equal(got, tt.want) {
			t.Errorf("appendShortvec(%d) = %x, want %x", tt.n, got, tt.want)
		}
	}
}

func TestTokenBalanceAmount(t *testing.T) {
	var b TokenBalance
	if b.Amount() != 0 {
		t.Error("null uiAmount should read as zero")
	}

	v := 12.5
	b.UITokenAmount.UIAmount = &v
	if b.Amount() != 12.5 {
		t.Errorf("Amount() = %v, want 12.5", b.Amount())
	}
}

func TestConfirmedTransactionPredicates(t *testing.T) {
	tx := &ConfirmedTransaction{
		Signers:    []string{"A", "B"},
		ProgramIDs: []string{JupiterProgramID},
	}

	if !tx.HasSigner("A") || !tx.HasSigner("B") {
		t.Error("declared signers should match")
	}
	if tx.HasSigner("C") {
		t.Error("undeclared signer should not match")
	}
	if !tx.InvokesProgram(JupiterProgramID) {
		t.Error("invoked program should match")
	}
	if tx.InvokesProgram(TokenMetadataProgramID) {
		t.Error("uninvoked program should not match")
	}
}

func encodeStateAccount(owner, authority, mint []byte, level uint16, xp uint64, personality, uri string) []byte {
	var data []byte
	data = append(data, stateDiscriminator...)
	data = append(data, 0xfe) // bump
	data = append(data, owner...)
	data = append(data, authority...)
	data = append(data, mint...)
	data = binary.LittleEndian.AppendUint16(data, level)
	data = binary.LittleEndian.AppendUint64(data, xp)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(personality)))
	data = append(data, personality...)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(uri)))
	data = append(data, uri...)
	return data
}

func TestDecodeState(t *testing.T) {
	owner := bytes.Repeat([]byte{1}, 32)
	authority := bytes.Repeat([]byte{2}, 32)
	mint := bytes.Repeat([]byte{3}, 32)
	data := encodeStateAccount(owner, authority, mint, 7, 6500, "Bold", "https://example.com/meta.json")

	state, err := decodeState(data)
	if err != nil {
		t.Fatalf("decodeState: %v", err)
	}

	if state.Owner != base58.Encode(owner) {
		t.Errorf("owner = %q", state.Owner)
	}
	if state.EvolutionAuthority != base58.Encode(authority) {
		t.Errorf("authority = %q", state.EvolutionAuthority)
	}
	if state.Mint != base58.Encode(mint) {
		t.Errorf("mint = %q", state.Mint)
	}
	if state.Level != 7 {
		t.Errorf("level = %d, want 7", state.Level)
	}
	if state.XP != 6500 {
		t.Errorf("xp = %d, want 6500", state.XP)
	}
	if state.Personality != "Bold" {
		t.Errorf("personality = %q, want Bold", state.Personality)
	}
	if state.URI != "https://example.com/meta.json" {
		t.Errorf("uri = %q", state.URI)
	}
}

func TestDecodeStateRejectsWrongDiscriminator(t *testing.T) {
	data := encodeStateAccount(make([]byte, 32), make([]byte, 32), make([]byte, 32), 1, 0, "", "")
	data[0] ^= 0xff

	if _, err := decodeState(data); err == nil {
		t.Error("foreign account data should not decode")
	}
}

func TestDecodeStateRejectsTruncatedData(t *testing.T) {
	data := encodeStateAccount(make([]byte, 32), make([]byte, 32), make([]byte, 32), 1, 0, "Bold", "")

	if _, err := decodeState(data[:len(data)-3]); err == nil {
		t.Error("truncated account data should not decode")
	}
}

func TestLoadKeypairFromBase58Secret(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	loaded, err := LoadKeypair(base58.Encode(priv), "")
	if err != nil {
		t.Fatalf("LoadKeypair: %v", err)
	}
	if KeypairAddress(loaded) != base58.Encode(pub) {
		t.Error("loaded keypair does not match the secret")
	}
}

func TestLoadKeypairFromJSONFile(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	// Same shape as solana-keygen output: a JSON array of byte values.
	values := make([]int, len(priv))
	for i, b := range priv {
		values[i] = int(b)
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		t.Fatalf("encode keypair: %v", err)
	}
	file := filepath.Join(t.TempDir(), "id.json")
	if err := os.WriteFile(file, encoded, 0o600); err != nil {
		t.Fatalf("write keypair file: %v", err)
	}

	loaded, err := LoadKeypair("", file)
	if err != nil {
		t.Fatalf("LoadKeypair: %v", err)
	}
	if KeypairAddress(loaded) != base58.Encode(pub) {
		t.Error("loaded keypair does not match the file")
	}
}

func TestLoadKeypairFromSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, ed25519.SeedSize)
	want := ed25519.NewKeyFromSeed(seed)

	loaded, err := LoadKeypair(base58.Encode(seed), "")
	if err != nil {
		t.Fatalf("LoadKeypair: %v", err)
	}
	if KeypairAddress(loaded) != KeypairAddress(want) {
		t.Error("seed should expand to the same keypair")
	}
}

func TestLoadKeypairRejectsBadLength(t *testing.T) {
	if _, err := LoadKeypair(base58.Encode([]byte{1, 2, 3}), ""); err == nil {
		t.Error("a 3-byte secret should not load")
	}
}
