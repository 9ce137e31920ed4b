package protocols

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/pkg/models"
)

const (
	defaultJupiterURL  = "https://quote-api.jup.ag/v6"
	defaultSlippageBps = 50
	jupiterTimeout     = 10 * time.Second

	// Lamports held back when swapping a full SOL balance, so the wallet
	// can still pay fees and rent afterwards.
	solSwapBuffer = 10_000_000
)

// jupiterHandler routes swaps through the Jupiter aggregator. Unlike the
// instruction-emitting handlers it receives a fully assembled transaction
// from the aggregator API and returns that as-is.
type jupiterHandler struct {
	chain   *chain.Client
	baseURL string
	http    *http.Client
}

func NewJupiterHandler(c *chain.Client, baseURL string) Handler {
	if baseURL == "" {
		baseURL = defaultJupiterURL
	}
	return &jupiterHandler{
		chain:   c,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: jupiterTimeout},
	}
}

func (h *jupiterHandler) Name() string        { return "jupiter" }
func (h *jupiterHandler) Description() string { return "Jupiter swap aggregator" }

func (h *jupiterHandler) SupportedActions() []string { return []string{"swap"} }

func (h *jupiterHandler) Validate(intent string, params models.Params) error {
	if intent != "swap" {
		return fmt.Errorf("unsupported jupiter intent %q", intent)
	}
	from, err := requireMint(params, "from")
	if err != nil {
		return err
	}
	to, err := requireMint(params, "to")
	if err != nil {
		return err
	}
	if from.Equals(to) {
		return fmt.Errorf("swap needs two different tokens")
	}
	_, err = requireAmount(params, true)
	return err
}

func (h *jupiterHandler) Build(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	if err := h.Validate(req.Intent, req.Params); err != nil {
		return nil, err
	}
	inputMint, _ := requireMint(req.Params, "from")
	outputMint, _ := requireMint(req.Params, "to")
	amount, _ := req.Params.Float("amount")

	rawAmount, err := h.inputUnits(ctx, req, inputMint, amount)
	if err != nil {
		return nil, err
	}

	slippageBps := defaultSlippageBps
	if v, ok := req.Params.Float("slippageBps"); ok && v > 0 {
		slippageBps = int(v)
	}

	quote, err := h.fetchQuote(ctx, inputMint, outputMint, rawAmount, slippageBps)
	if err != nil {
		return nil, err
	}
	encoded, err := h.fetchSwapTransaction(ctx, quote, req.Payer, req.PriorityFee)
	if err != nil {
		return nil, err
	}

	txBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(txBytes))
	if err != nil {
		return nil, fmt.Errorf("parse swap transaction: %w", err)
	}
	return &BuildOutput{Transaction: tx}, nil
}

// inputUnits converts the intent amount to base units of the input mint,
// expanding the full-balance sentinel from on-chain balances.
func (h *jupiterHandler) inputUnits(ctx context.Context, req *BuildRequest, inputMint solana.PublicKey, amount float64) (uint64, error) {
	if amount != models.AmountAll {
		decimals, err := mintDecimals(ctx, h.chain, req.Network, inputMint)
		if err != nil {
			return 0, err
		}
		return tokenUnits(amount, decimals), nil
	}

	if h.chain == nil {
		return 0, fmt.Errorf("full-balance swaps need an RPC connection")
	}
	if inputMint.Equals(chain.WrappedSOLMint) {
		balance, err := h.chain.Balance(ctx, req.Network, req.Payer)
		if err != nil {
			return 0, fmt.Errorf("read SOL balance: %w", err)
		}
		if balance <= solSwapBuffer {
			return 0, fmt.Errorf("balance %d lamports is too low to swap", balance)
		}
		return balance - solSwapBuffer, nil
	}
	balance, _, err := h.chain.TokenBalance(ctx, req.Network, req.Payer, inputMint)
	if err != nil {
		return 0, fmt.Errorf("read token balance: %w", err)
	}
	if balance == 0 {
		return 0, fmt.Errorf("no %s balance to swap", inputMint)
	}
	return balance, nil
}

func (h *jupiterHandler) fetchQuote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint.String())
	q.Set("outputMint", outputMint.String())
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))

	body, err := h.call(ctx, http.MethodGet, "/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("jupiter quote: %w", err)
	}

	var probe struct {
		OutAmount string `json:"outAmount"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	if probe.OutAmount == "" {
		return nil, fmt.Errorf("no swap route for %s -> %s", inputMint, outputMint)
	}
	return json.RawMessage(body), nil
}

// fetchSwapTransaction posts the untouched quote back to the swap endpoint.
// The quote is round-tripped as raw JSON so aggregator fields the engine
// does not model survive intact.
func (h *jupiterHandler) fetchSwapTransaction(ctx context.Context, quote json.RawMessage, payer solana.PublicKey, priorityFee uint64) (string, error) {
	payload := struct {
		QuoteResponse                 json.RawMessage `json:"quoteResponse"`
		UserPublicKey                 string          `json:"userPublicKey"`
		WrapAndUnwrapSOL              bool            `json:"wrapAndUnwrapSol"`
		UseSharedAccounts             bool            `json:"useSharedAccounts"`
		ComputeUnitPriceMicroLamports uint64          `json:"computeUnitPriceMicroLamports,omitempty"`
	}{
		QuoteResponse:                 quote,
		UserPublicKey:                 payer.String(),
		WrapAndUnwrapSOL:              true,
		UseSharedAccounts:             false,
		ComputeUnitPriceMicroLamports: priorityFee,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode swap request: %w", err)
	}

	resp, err := h.call(ctx, http.MethodPost, "/swap", body)
	if err != nil {
		return "", fmt.Errorf("jupiter swap: %w", err)
	}

	var out struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("decode swap response: %w", err)
	}
	if out.SwapTransaction == "" {
		return "", fmt.Errorf("swap response carried no transaction")
	}
	return out.SwapTransaction, nil
}

func (h *jupiterHandler) call(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return data, nil
}

func (h *jupiterHandler) RequiredAccounts(intent string, params models.Params, payer solana.PublicKey) []string {
	accounts := []string{payer.String()}
	for _, key := range []string{"from", "to"} {
		if v := params.Str(key); v != "" {
			accounts = append(accounts, v)
		}
	}
	return accounts
}
