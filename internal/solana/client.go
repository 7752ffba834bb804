package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"symbiote/internal/apperr"
)

// Client is a minimal Solana JSON-RPC client covering the calls the service
// consumes: confirmed transaction lookups, address signature history,
// account reads, blockhash retrieval and transaction submission.
type Client struct {
	url        string
	httpClient *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return apperr.Externalf(apperr.CodeLedgerUnreachable, err, "failed to build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Externalf(apperr.CodeLedgerUnreachable, err, "rpc %s failed", method)
	}
	defer res.Body.Close()

	var envelope rpcResponse
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return apperr.Externalf(apperr.CodeLedgerUnreachable, err, "rpc %s returned malformed response", method)
	}
	if envelope.Error != nil {
		return apperr.Externalf(apperr.CodeLedgerUnreachable,
			fmt.Errorf("rpc error %d: %s", envelope.Error.Code, envelope.Error.Message),
			"rpc %s failed", method)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return apperr.Externalf(apperr.CodeLedgerUnreachable, err, "rpc %s returned unexpected result", method)
		}
	}
	return nil
}

// TokenBalance mirrors one entry of the RPC pre/postTokenBalances arrays.
type TokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	UITokenAmount struct {
		UIAmount *float64 `json:"uiAmount"`
	} `json:"uiTokenAmount"`
}

// Amount returns the UI amount, treating a null balance as zero.
func (b TokenBalance) Amount() float64 {
	if b.UITokenAmount.UIAmount == nil {
		return 0
	}
	return *b.UITokenAmount.UIAmount
}

// ConfirmedTransaction is the settlement-facing view of a finalized
// transaction.
type ConfirmedTransaction struct {
	Signature         string
	Slot              uint64
	BlockTime         int64
	FeeLamports       uint64
	Succeeded         bool
	Signers           []string
	ProgramIDs        []string
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// HasSigner reports whether walletAddress is one of the declared signers.
func (t *ConfirmedTransaction) HasSigner(walletAddress string) bool {
	for _, signer := range t.Signers {
		if signer == walletAddress {
			return true
		}
	}
	return false
}

// InvokesProgram reports whether any instruction targets programID.
func (t *ConfirmedTransaction) InvokesProgram(programID string) bool {
	for _, id := range t.ProgramIDs {
		if id == programID {
			return true
		}
	}
	return false
}

type getTransactionResult struct {
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Meta      *struct {
		Err               json.RawMessage `json:"err"`
		Fee               uint64          `json:"fee"`
		PreTokenBalances  []TokenBalance  `json:"preTokenBalances"`
		PostTokenBalances []TokenBalance  `json:"postTokenBalances"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys []struct {
				Pubkey string `json:"pubkey"`
				Signer bool   `json:"signer"`
			} `json:"accountKeys"`
			Instructions []struct {
				ProgramID string `json:"programId"`
			} `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

// GetTransaction fetches a transaction by signature at confirmed commitment.
// An unknown signature is a NotFound error, not a nil result.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*ConfirmedTransaction, error) {
	params := []any{signature, map[string]any{
		"encoding":                       "jsonParsed",
		"commitment":                     "confirmed",
		"maxSupportedTransactionVersion": 0,
	}}

	var raw json.RawMessage
	if err := c.call(ctx, "getTransaction", params, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, apperr.NotFoundf(apperr.CodeUnknownTransaction, "transaction not found")
	}

	var result getTransactionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, apperr.Externalf(apperr.CodeLedgerUnreachable, err, "rpc getTransaction returned unexpected result")
	}

	tx := &ConfirmedTransaction{
		Signature: signature,
		Slot:      result.Slot,
		Succeeded: true,
	}
	if result.BlockTime != nil {
		tx.BlockTime = *result.BlockTime
	}
	if result.Meta != nil {
		tx.FeeLamports = result.Meta.Fee
		tx.Succeeded = len(result.Meta.Err) == 0 || string(result.Meta.Err) == "null"
		tx.PreTokenBalances = result.Meta.PreTokenBalances
		tx.PostTokenBalances = result.Meta.PostTokenBalances
	}
	for _, key := range result.Transaction.Message.AccountKeys {
		if key.Signer {
			tx.Signers = append(tx.Signers, key.Pubkey)
		}
	}
	for _, ix := range result.Transaction.Message.Instructions {
		tx.ProgramIDs = append(tx.ProgramIDs, ix.ProgramID)
	}

	return tx, nil
}

// HistoryEntry is a compact view of one historical transaction, shaped for
// the inference prompts.
type HistoryEntry struct {
	Signature   string   `json:"signature"`
	Slot        uint64   `json:"slot"`
	BlockTime   int64    `json:"blockTime"`
	FeeLamports uint64   `json:"feeLamports"`
	Failed      bool     `json:"failed"`
	Programs    []string `json:"programs"`
}

// TradeHistory fetches the wallet's most recent transactions in compact form.
// Signatures that cannot be resolved anymore are skipped.
func (c *Client) TradeHistory(ctx context.Context, walletAddress string, limit int) ([]HistoryEntry, error) {
	params := []any{walletAddress, map[string]any{
		"limit":      limit,
		"commitment": "confirmed",
	}}

	var infos []struct {
		Signature string `json:"signature"`
	}
	if err := c.call(ctx, "getSignaturesForAddress", params, &infos); err != nil {
		return nil, err
	}

	history := make([]HistoryEntry, 0, len(infos))
	for _, info := range infos {
		tx, err := c.GetTransaction(ctx, info.Signature)
		if err != nil {
			if apperr.HasCode(err, apperr.CodeUnknownTransaction) {
				continue
			}
			return nil, err
		}
		history = append(history, HistoryEntry{
			Signature:   tx.Signature,
			Slot:        tx.Slot,
			BlockTime:   tx.BlockTime,
			FeeLamports: tx.FeeLamports,
			Failed:      !tx.Succeeded,
			Programs:    tx.ProgramIDs,
		})
	}

	return history, nil
}

// GetAccountInfo returns the raw account data for address, or nil when the
// account does not exist.
func (c *Client) GetAccountInfo(ctx context.Context, address string) ([]byte, error) {
	params := []any{address, map[string]any{
		"encoding":   "base64",
		"commitment": "confirmed",
	}}

	var result struct {
		Value *struct {
			Data []string `json:"data"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil || len(result.Value.Data) == 0 {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
	if err != nil {
		return nil, apperr.Externalf(apperr.CodeLedgerUnreachable, err, "account data is not valid base64")
	}
	return data, nil
}

// LatestBlockhash returns a recent blockhash for transaction assembly.
func (c *Client) LatestBlockhash(ctx context.Context) (string, error) {
	params := []any{map[string]any{"commitment": "confirmed"}}

	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return "", err
	}
	return result.Value.Blockhash, nil
}

// SendTransaction submits a signed, base64-encoded transaction and returns
// its signature.
func (c *Client) SendTransaction(ctx context.Context, txBase64 string) (string, error) {
	params := []any{txBase64, map[string]any{
		"encoding":            "base64",
		"preflightCommitment": "confirmed",
	}}

	var signature string
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}
