// Package jupiter builds ready-to-sign swap transactions through the
// Jupiter v6 quote and swap endpoints.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"symbiote/internal/apperr"
)

type Client struct {
	base               string
	feeBps             int
	referralFeeAccount string
	httpClient         *http.Client
}

func NewClient(base string, feeBps int, referralFeeAccount string) *Client {
	return &Client{
		base:               base,
		feeBps:             feeBps,
		referralFeeAccount: referralFeeAccount,
		httpClient:         &http.Client{Timeout: 30 * time.Second},
	}
}

// SwapPlan is an unsigned swap the user's wallet can sign and submit.
type SwapPlan struct {
	Quote                 json.RawMessage `json:"quote"`
	SwapTransactionBase64 string          `json:"swapTransactionBase64"`
	LastValidBlockHeight  uint64          `json:"lastValidBlockHeight"`
	ReferralFeeAccount    string          `json:"referralFeeAccount,omitempty"`
}

// BuildSwapPlan fetches a quote for the intent and asks Jupiter to assemble
// the unsigned swap transaction for the user's public key.
func (c *Client) BuildSwapPlan(ctx context.Context, userPublicKey, inputMint, outputMint, amount string) (*SwapPlan, error) {
	query := url.Values{}
	query.Set("inputMint", inputMint)
	query.Set("outputMint", outputMint)
	query.Set("amount", amount)
	query.Set("slippageBps", "50")
	query.Set("platformFeeBps", strconv.Itoa(c.feeBps))

	quote, err := c.getJSON(ctx, c.base+"/quote?"+query.Encode())
	if err != nil {
		return nil, err
	}

	swapBody, err := json.Marshal(map[string]any{
		"quoteResponse":             json.RawMessage(quote),
		"userPublicKey":             userPublicKey,
		"wrapAndUnwrapSol":          true,
		"feeAccount":                c.referralFeeAccount,
		"dynamicComputeUnitLimit":   true,
		"prioritizationFeeLamports": "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode swap request: %w", err)
	}

	raw, err := c.postJSON(ctx, c.base+"/swap", swapBody)
	if err != nil {
		return nil, err
	}

	var swap struct {
		SwapTransaction      string `json:"swapTransaction"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	}
	if err := json.Unmarshal(raw, &swap); err != nil {
		return nil, apperr.Externalf(apperr.CodeSwapBuilderFailure, err, "swap build returned malformed response")
	}
	if swap.SwapTransaction == "" {
		return nil, apperr.Externalf(apperr.CodeSwapBuilderFailure, nil, "swap build returned no transaction")
	}

	return &SwapPlan{
		Quote:                 quote,
		SwapTransactionBase64: swap.SwapTransaction,
		LastValidBlockHeight:  swap.LastValidBlockHeight,
		ReferralFeeAccount:    c.referralFeeAccount,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Externalf(apperr.CodeSwapBuilderFailure, err, "failed to build quote request")
	}
	return c.do(req, "quote failed")
}

func (c *Client) postJSON(ctx context.Context, url string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Externalf(apperr.CodeSwapBuilderFailure, err, "failed to build swap request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, "swap build failed")
}

func (c *Client) do(req *http.Request, failure string) (json.RawMessage, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Externalf(apperr.CodeSwapBuilderFailure, err, "%s", failure)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, apperr.Externalf(apperr.CodeSwapBuilderFailure, err, "%s", failure)
	}
	if res.StatusCode != http.StatusOK {
		return nil, apperr.Externalf(apperr.CodeSwapBuilderFailure,
			fmt.Errorf("status %d: %s", res.StatusCode, body), "%s", failure)
	}
	return body, nil
}
