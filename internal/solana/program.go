package solana

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"symbiote/internal/apperr"

	"github.com/mr-tron/base58"
)

const maxPersonalityLength = 64

var (
	stateSeed           = []byte("symbiote_state")
	metadataSeed        = []byte("metadata")
	stateDiscriminator  = anchorDiscriminator("account:SymbioteState")
	evolveDiscriminator = anchorDiscriminator("global:evolve_symbiote")
)

func anchorDiscriminator(name string) []byte {
	h := sha256.Sum256([]byte(name))
	return h[:8]
}

// Program reads and mutates symbiote pet accounts. Mutation is signed with
// the backend's evolution-authority keypair.
type Program struct {
	rpc       *Client
	programID PublicKey
	metadata  PublicKey
	authority ed25519.PrivateKey
}

func NewProgram(rpc *Client, programID string, authority ed25519.PrivateKey) (*Program, error) {
	id, err := PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid symbiote program id: %w", err)
	}
	metadata, err := PublicKeyFromBase58(TokenMetadataProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid token metadata program id: %w", err)
	}
	return &Program{rpc: rpc, programID: id, metadata: metadata, authority: authority}, nil
}

// SymbioteState is the decoded on-chain pet account.
type SymbioteState struct {
	Mint               string `json:"mint"`
	Owner              string `json:"owner"`
	EvolutionAuthority string `json:"evolutionAuthority"`
	Level              int    `json:"level"`
	XP                 int64  `json:"xp"`
	Personality        string `json:"personality"`
	URI                string `json:"uri"`
	StateAddress       string `json:"statePda"`
}

// Stats are the evolve instruction arguments.
type Stats struct {
	Level       uint16
	XP          uint64
	Personality string
}

func (p *Program) stateAddress(mint PublicKey) (PublicKey, error) {
	pda, _, err := FindProgramAddress([][]byte{stateSeed, mint.Bytes()}, p.programID)
	return pda, err
}

func (p *Program) metadataAddress(mint PublicKey) (PublicKey, error) {
	pda, _, err := FindProgramAddress([][]byte{metadataSeed, p.metadata.Bytes(), mint.Bytes()}, p.metadata)
	return pda, err
}

// FetchState reads and decodes the pet state account for the given mint. A
// missing account is a NotFound error.
func (p *Program) FetchState(ctx context.Context, mint string) (*SymbioteState, error) {
	mintKey, err := PublicKeyFromBase58(mint)
	if err != nil {
		return nil, apperr.Validationf(apperr.CodeMalformedInput, "invalid symbiote mint: %v", err)
	}
	pda, err := p.stateAddress(mintKey)
	if err != nil {
		return nil, err
	}

	data, err := p.rpc.GetAccountInfo(ctx, pda.String())
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, apperr.NotFoundf(apperr.CodeUnknownSymbiote, "symbiote not found")
	}

	state, err := decodeState(data)
	if err != nil {
		return nil, apperr.Externalf(apperr.CodeLedgerUnreachable, err, "failed to decode symbiote state")
	}
	state.StateAddress = pda.String()
	return state, nil
}

// decodeState parses the borsh-encoded account: discriminator, bump, owner,
// evolution authority, mint, level (u16), xp (u64), personality, uri.
func decodeState(data []byte) (*SymbioteState, error) {
	r := borshReader{data: data}

	discriminator, err := r.bytes(8)
	if err != nil {
		return nil, err
	}
	for i, b := range stateDiscriminator {
		if discriminator[i] != b {
			return nil, fmt.Errorf("account is not a symbiote state")
		}
	}

	if _, err := r.u8(); err != nil { // bump
		return nil, err
	}
	owner, err := r.pubkey()
	if err != nil {
		return nil, err
	}
	authority, err := r.pubkey()
	if err != nil {
		return nil, err
	}
	mint, err := r.pubkey()
	if err != nil {
		return nil, err
	}
	level, err := r.u16()
	if err != nil {
		return nil, err
	}
	xp, err := r.u64()
	if err != nil {
		return nil, err
	}
	personality, err := r.str()
	if err != nil {
		return nil, err
	}
	uri, err := r.str()
	if err != nil {
		return nil, err
	}

	return &SymbioteState{
		Mint:               mint,
		Owner:              owner,
		EvolutionAuthority: authority,
		Level:              int(level),
		XP:                 int64(xp),
		Personality:        personality,
		URI:                uri,
	}, nil
}

// ApplyEvolution submits the evolve instruction for the given mint and
// returns the transaction signature.
func (p *Program) ApplyEvolution(ctx context.Context, mint string, stats Stats) (string, error) {
	mintKey, err := PublicKeyFromBase58(mint)
	if err != nil {
		return "", apperr.Validationf(apperr.CodeMalformedInput, "invalid symbiote mint: %v", err)
	}
	if len(stats.Personality) > maxPersonalityLength {
		stats.Personality = stats.Personality[:maxPersonalityLength]
	}

	statePDA, err := p.stateAddress(mintKey)
	if err != nil {
		return "", err
	}
	metadataPDA, err := p.metadataAddress(mintKey)
	if err != nil {
		return "", err
	}

	var authorityKey PublicKey
	copy(authorityKey[:], p.authority.Public().(ed25519.PublicKey))

	data := make([]byte, 0, 8+32+2+8+4+len(stats.Personality))
	data = append(data, evolveDiscriminator...)
	data = append(data, mintKey.Bytes()...)
	data = binary.LittleEndian.AppendUint16(data, stats.Level)
	data = binary.LittleEndian.AppendUint64(data, stats.XP)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(stats.Personality)))
	data = append(data, stats.Personality...)

	blockhash, err := p.rpc.LatestBlockhash(ctx)
	if err != nil {
		return "", err
	}
	blockhashBytes, err := base58.Decode(blockhash)
	if err != nil || len(blockhashBytes) != 32 {
		return "", apperr.Externalf(apperr.CodeLedgerUnreachable, err, "invalid blockhash from rpc")
	}

	// Account order: writable signer, writable non-signers, then readonly
	// non-signers. The authority pays the fee.
	keys := []PublicKey{authorityKey, statePDA, metadataPDA, p.metadata, p.programID}

	var message []byte
	message = append(message, 1, 0, 2) // signatures, readonly signed, readonly unsigned
	message = appendShortvec(message, len(keys))
	for _, key := range keys {
		message = append(message, key.Bytes()...)
	}
	message = append(message, blockhashBytes...)
	message = appendShortvec(message, 1)
	message = append(message, 4) // program id index
	message = appendShortvec(message, 4)
	message = append(message, 0, 1, 2, 3)
	message = appendShortvec(message, len(data))
	message = append(message, data...)

	signature := ed25519.Sign(p.authority, message)

	var tx []byte
	tx = appendShortvec(tx, 1)
	tx = append(tx, signature...)
	tx = append(tx, message...)

	return p.rpc.SendTransaction(ctx, base64.StdEncoding.EncodeToString(tx))
}

// appendShortvec writes a compact-u16 length prefix.
func appendShortvec(dst []byte, n int) []byte {
	for {
		if n < 0x80 {
			return append(dst, byte(n))
		}
		dst = append(dst, byte(n&0x7f)|0x80)
		n >>= 7
	}
}

type borshReader struct {
	data []byte
	pos  int
}

func (r *borshReader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("truncated account data at offset %d", r.pos)
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *borshReader) u8() (uint8, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *borshReader) u16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *borshReader) u64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *borshReader) pubkey() (string, error) {
	b, err := r.bytes(32)
	if err != nil {
		return "", err
	}
	return base58.Encode(b), nil
}

func (r *borshReader) str() (string, error) {
	b, err := r.bytes(4)
	if err != nil {
		return "", err
	}
	n := int(binary.LittleEndian.Uint32(b))
	s, err := r.bytes(n)
	if err != nil {
		return "", err
	}
	return string(s), nil
}
