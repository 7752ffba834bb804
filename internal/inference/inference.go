// Package inference wraps the model collaborator. Model output is treated
// as untrusted: every field is extracted individually and falls back to a
// fixed default, so a malformed completion can never break a caller.
package inference

import (
	"context"
	"encoding/json"
	"fmt"

	"symbiote/internal/apperr"
	"symbiote/internal/solana"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Client struct {
	api   openai.Client
	model string
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		api:   openai.NewClient(option.WithAPIKey(apiKey)),
		model: model,
	}
}

// TradeIntent is a model-suggested swap.
type TradeIntent struct {
	Text       string `json:"text"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	Amount     string `json:"amount"`
}

// Personality is the post-trade personality update.
type Personality struct {
	Personality string `json:"personality"`
	Reason      string `json:"reason"`
}

// Turn is one generated game turn.
type Turn struct {
	GameName      string      `json:"gameName"`
	Objective     string      `json:"objective"`
	MoveText      string      `json:"moveText"`
	OutcomeText   string      `json:"outcomeText"`
	Archetype     string      `json:"archetype"`
	RequiresTrade bool        `json:"requiresTrade"`
	Trade         TradeIntent `json:"trade"`
}

// Reading is the wallet-behavior read used by trade suggestions.
type Reading struct {
	RiskProfile    string      `json:"riskProfile"`
	Personality    string      `json:"personality"`
	Reaction       string      `json:"reaction"`
	Recommendation TradeIntent `json:"recommendation"`
}

func (c *Client) complete(ctx context.Context, temperature float64, system, user string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(user))

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", apperr.Externalf(apperr.CodeInferenceUnreachable, err, "inference request failed")
	}
	if len(resp.Choices) == 0 {
		return "", apperr.Externalf(apperr.CodeInferenceUnreachable, nil, "inference returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// InferPersonality asks the model for the personality after a settled trade.
func (c *Client) InferPersonality(ctx context.Context, walletAddress string, volumeUSD float64, currentPersonality string) (Personality, error) {
	prompt := fmt.Sprintf(`Wallet: %s
Current personality: %s
Latest trade volume usd: %v
Generate JSON: {"personality":"...","reason":"..."}`, walletAddress, currentPersonality, volumeUSD)

	raw, err := c.complete(ctx, 0.5, "", prompt)
	if err != nil {
		return Personality{}, err
	}

	obj := parseObject(raw)
	return Personality{
		Personality: stringField(obj, "personality", currentPersonality),
		Reason:      stringField(obj, "reason", "Updated from latest trade behavior."),
	}, nil
}

const turnSystemPrompt = `You are a game master for an autonomous on-chain companion.
Create one turn for a persistent game where the Symbiote plays for its owner.
Return strict JSON:
{
  "game_name": "string",
  "objective": "string",
  "move_text": "string",
  "outcome_text": "string",
  "archetype": "string",
  "requires_trade": true|false,
  "trade": {
    "text": "string",
    "input_mint": "mint address",
    "output_mint": "mint address",
    "amount_lamports_or_units": "integer string amount"
  }
}
Use SOL mint ` + solana.SOLMint + `
Use USDC mint ` + solana.USDCMint

// InferTurn generates one game turn from the wallet's context.
func (c *Client) InferTurn(ctx context.Context, walletAddress string, symbiote *solana.SymbioteState, history []solana.HistoryEntry, memory any) (Turn, error) {
	payload, err := json.Marshal(map[string]any{
		"walletAddress": walletAddress,
		"symbiote":      symbiote,
		"history":       history,
		"memory":        memory,
	})
	if err != nil {
		return Turn{}, fmt.Errorf("failed to encode turn context: %w", err)
	}

	raw, err := c.complete(ctx, 0.6, turnSystemPrompt, string(payload))
	if err != nil {
		return Turn{}, err
	}
	return parseTurn(raw), nil
}

func parseTurn(raw string) Turn {
	obj := parseObject(raw)
	return Turn{
		GameName:      stringField(obj, "game_name", "Symbiote Arena"),
		Objective:     stringField(obj, "objective", "Preserve energy while compounding XP."),
		MoveText:      stringField(obj, "move_text", "The Symbiote scouts liquidity corridors."),
		OutcomeText:   stringField(obj, "outcome_text", "No catastrophic encounter this round."),
		Archetype:     stringField(obj, "archetype", "Explorer"),
		RequiresTrade: obj.Get("requires_trade").Bool(),
		Trade:         parseTradeIntent(obj, "trade"),
	}
}

const readingSystemPrompt = `You are Symbiote, an autonomous Solana trading companion.
Return strict JSON with this shape:
{
  "risk_profile": "Conservative|Balanced|Aggressive|Degen",
  "personality": "short unique label",
  "reaction": "one sentence in-character reaction",
  "recommendation": {
    "text": "next trade suggestion",
    "input_mint": "mint address (default SOL)",
    "output_mint": "mint address (default USDC)",
    "amount_lamports_or_units": "integer string amount"
  }
}
Use mints:
SOL ` + solana.SOLMint + `
USDC ` + solana.USDCMint

// InferReading reads the wallet's recent behavior and suggests a trade.
func (c *Client) InferReading(ctx context.Context, history []solana.HistoryEntry, memory any) (Reading, error) {
	payload, err := json.Marshal(map[string]any{
		"history": history,
		"memory":  memory,
	})
	if err != nil {
		return Reading{}, fmt.Errorf("failed to encode reading context: %w", err)
	}

	raw, err := c.complete(ctx, 0.3, readingSystemPrompt, string(payload))
	if err != nil {
		return Reading{}, err
	}
	return parseReading(raw), nil
}

func parseReading(raw string) Reading {
	obj := parseObject(raw)
	return Reading{
		RiskProfile:    stringField(obj, "risk_profile", "Balanced"),
		Personality:    stringField(obj, "personality", "Adaptive"),
		Reaction:       stringField(obj, "reaction", "I am adapting to your current market tempo."),
		Recommendation: parseTradeIntent(obj, "recommendation"),
	}
}
