package builder

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/internal/protocols"
	"github.com/rawblock/intent-engine/pkg/models"
)

const (
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	wsolMint = "So11111111111111111111111111111111111111112"
)

// Any canonical 32-byte base58 string works as a recent blockhash here.
var testBlockhash = solana.MustHashFromBase58(wsolMint)

// defaultRPCResults answers the JSON-RPC methods a build touches. Tests
// override single methods to steer one call while the rest stay sane.
var defaultRPCResults = map[string]string{
	"getLatestBlockhash":                 `{"context":{"slot":1},"value":{"blockhash":"So11111111111111111111111111111111111111112","lastValidBlockHeight":100}}`,
	"simulateTransaction":                `{"context":{"slot":1},"value":{"err":null,"logs":["Program 11111111111111111111111111111111 success"],"unitsConsumed":450}}`,
	"getRecentPrioritizationFees":        `[{"slot":1,"prioritizationFee":800},{"slot":2,"prioritizationFee":1000},{"slot":3,"prioritizationFee":1200}]`,
	"getMinimumBalanceForRentExemption":  `2039280`,
	"getHealth":                          `"ok"`,
	"getAccountInfo":                     `{"context":{"slot":1},"value":null}`,
	"getBalance":                         `{"context":{"slot":1},"value":5000000000}`,
	"getTokenSupply":                     `{"context":{"slot":1},"value":{"amount":"1000000000","decimals":5,"uiAmount":10000,"uiAmountString":"10000"}}`,
}

func fakeRPC(t *testing.T, overrides map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			ID     any    `json:"id"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("fake rpc: bad request body: %v", err)
		}
		result, ok := overrides[req.Method]
		if !ok {
			result = defaultRPCResults[req.Method]
		}
		if result == "" {
			result = "null"
		}
		id, _ := json.Marshal(req.ID)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, id, result)
	}))
}

func testChain(t *testing.T, rpcURL string) *chain.Client {
	t.Helper()
	c, err := chain.NewClient(chain.Config{MainnetRPC: rpcURL})
	if err != nil {
		t.Fatalf("chain client: %v", err)
	}
	return c
}

func testMemoIx(payer solana.PublicKey, msg string) solana.Instruction {
	return solana.NewInstruction(
		chain.MemoProgram,
		solana.AccountMetaSlice{solana.NewAccountMeta(payer, false, true)},
		[]byte(msg),
	)
}

// prebuiltTx assembles, serializes and base64-encodes a transaction the way
// the aggregator would return one.
func prebuiltTx(t *testing.T, payer solana.PublicKey, ixs []solana.Instruction) string {
	t.Helper()
	tx, err := solana.NewTransaction(ixs, testBlockhash, solana.TransactionPayer(payer))
	if err != nil {
		t.Fatalf("assemble transaction: %v", err)
	}
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("serialize transaction: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestFromParsedRewritesBuyAndSell(t *testing.T) {
	req := &models.NaturalIntent{Payer: wsolMint, Network: "devnet"}

	buy := FromParsed(&models.ParsedIntent{
		Protocol: "jupiter", Action: "buy",
		Params: models.Params{"token": bonkMint, "amount": 1.0},
	}, req)
	if buy.Intent != "swap" {
		t.Errorf("Expected intent swap. Got: %s", buy.Intent)
	}
	if buy.Params.Str("from") != wsolMint || buy.Params.Str("to") != bonkMint {
		t.Errorf("buy should spend SOL into the token. Got from=%s to=%s", buy.Params.Str("from"), buy.Params.Str("to"))
	}
	if buy.Params.Has("token") {
		t.Error("token param should be consumed by the rewrite")
	}
	if buy.Network != "devnet" || buy.Payer != wsolMint {
		t.Error("request-level payer and network should carry over")
	}

	sell := FromParsed(&models.ParsedIntent{
		Protocol: "raydium", Action: "sell",
		Params: models.Params{"token": bonkMint, "amount": models.AmountAll},
	}, req)
	if sell.Intent != "swap" {
		t.Errorf("venue sells funnel to swap. Got: %s", sell.Intent)
	}
	if sell.Params.Str("from") != bonkMint || sell.Params.Str("to") != wsolMint {
		t.Errorf("sell should exit into SOL. Got from=%s to=%s", sell.Params.Str("from"), sell.Params.Str("to"))
	}
}

func TestFromParsedLeavesDirectSwapsAlone(t *testing.T) {
	req := &models.NaturalIntent{Payer: wsolMint}

	swap := FromParsed(&models.ParsedIntent{
		Protocol: "jupiter", Action: "swap",
		Params: models.Params{"from": wsolMint, "to": bonkMint, "amount": 2.0},
	}, req)
	if swap.Params.Str("from") != wsolMint || swap.Params.Str("to") != bonkMint {
		t.Error("explicit from/to must pass through untouched")
	}

	// A venue-qualified swap keeps its venue key; the funnel happens at
	// dispatch, not here.
	venue := FromParsed(&models.ParsedIntent{
		Protocol: "raydium", Action: "swap",
		Params: models.Params{"from": wsolMint, "to": bonkMint, "amount": 2.0},
	}, req)
	if venue.Intent != "raydium-swap" {
		t.Errorf("Expected raydium-swap. Got: %s", venue.Intent)
	}
}

func TestFromParsedPriorityFeeHoist(t *testing.T) {
	parsed := func() *models.ParsedIntent {
		return &models.ParsedIntent{
			Protocol: "system", Action: "transfer",
			Params: models.Params{"amount": 1.0, "to": bonkMint, "priorityFee": 5000.0},
		}
	}

	intent := FromParsed(parsed(), &models.NaturalIntent{Payer: wsolMint})
	if intent.PriorityFee != 5000 {
		t.Errorf("Expected hoisted priority fee 5000. Got: %d", intent.PriorityFee)
	}
	if intent.Params.Has("priorityFee") {
		t.Error("priorityFee param should be removed after hoisting")
	}

	// The request-level fee wins over the prompt modifier.
	intent = FromParsed(parsed(), &models.NaturalIntent{Payer: wsolMint, PriorityFee: 9000})
	if intent.PriorityFee != 9000 {
		t.Errorf("Expected request-level fee 9000 to win. Got: %d", intent.PriorityFee)
	}
}

func TestBuildTransfer(t *testing.T) {
	srv := fakeRPC(t, nil)
	defer srv.Close()

	c := testChain(t, srv.URL)
	registry := protocols.NewRegistry(protocols.Deps{Chain: c})
	b := New(c, registry, nil)

	recipient := solana.NewWallet().PublicKey()
	result := b.Build(context.Background(), &models.BuildIntent{
		Intent: "transfer",
		Params: models.Params{"amount": 0.1, "to": recipient.String()},
		Payer:  solana.NewWallet().PublicKey().String(),
	})
	if !result.Success {
		t.Fatalf("Expected success. Got error: %s", result.Error)
	}
	if result.ID == "" {
		t.Error("every build needs an id")
	}

	// Compute limit + priority price + the transfer itself.
	if result.Details.InstructionCount != 3 {
		t.Errorf("Expected 3 instructions. Got: %d", result.Details.InstructionCount)
	}
	if result.Details.ComputeUnits != chain.DefaultComputeUnits {
		t.Errorf("Expected default compute limit. Got: %d", result.Details.ComputeUnits)
	}
	// Median of the fake node's samples.
	if result.Details.PriorityFee != 1000 {
		t.Errorf("Expected median priority fee 1000. Got: %d", result.Details.PriorityFee)
	}
	// 1 sig * 5000 + ceil(200000 * 1000 / 1e6) = 5200 lamports.
	if result.Details.EstimatedFee != "0.000005200" {
		t.Errorf("Expected fee 0.000005200. Got: %s", result.Details.EstimatedFee)
	}
	if result.Simulation == nil || !result.Simulation.Success || result.Simulation.UnitsConsumed != 450 {
		t.Errorf("Expected a successful simulation report. Got: %+v", result.Simulation)
	}

	// The payload must round-trip the wire format with empty signature
	// slots sized to the header.
	raw, err := base64.StdEncoding.DecodeString(result.Transaction)
	if err != nil {
		t.Fatalf("transaction is not base64: %v", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		t.Fatalf("transaction does not deserialize: %v", err)
	}
	if len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		t.Errorf("Expected %d signature slots. Got: %d", tx.Message.Header.NumRequiredSignatures, len(tx.Signatures))
	}
	if len(tx.Message.Instructions) != 3 {
		t.Errorf("Expected 3 compiled instructions. Got: %d", len(tx.Message.Instructions))
	}
}

func TestBuildWithoutPriorityFeeSkipsPriceInstruction(t *testing.T) {
	srv := fakeRPC(t, map[string]string{"getRecentPrioritizationFees": `[]`})
	defer srv.Close()

	c := testChain(t, srv.URL)
	registry := protocols.NewRegistry(protocols.Deps{Chain: c})
	b := New(c, registry, nil)

	result := b.Build(context.Background(), &models.BuildIntent{
		Intent: "memo",
		Params: models.Params{"message": "hello"},
		Payer:  solana.NewWallet().PublicKey().String(),
	})
	if !result.Success {
		t.Fatalf("Expected success. Got error: %s", result.Error)
	}
	if result.Details.InstructionCount != 2 {
		t.Errorf("Expected limit + memo only. Got: %d instructions", result.Details.InstructionCount)
	}
	if result.Details.PriorityFee != 0 {
		t.Errorf("Expected zero priority fee. Got: %d", result.Details.PriorityFee)
	}
	if result.Details.EstimatedFee != "0.000005000" {
		t.Errorf("Expected the bare base fee. Got: %s", result.Details.EstimatedFee)
	}
}

func TestBuildComputeBudgetOverride(t *testing.T) {
	srv := fakeRPC(t, nil)
	defer srv.Close()

	c := testChain(t, srv.URL)
	registry := protocols.NewRegistry(protocols.Deps{Chain: c})
	b := New(c, registry, nil)

	result := b.Build(context.Background(), &models.BuildIntent{
		Intent:        "memo",
		Params:        models.Params{"message": "hello"},
		Payer:         solana.NewWallet().PublicKey().String(),
		ComputeBudget: 50_000,
		PriorityFee:   2_000,
	})
	if !result.Success {
		t.Fatalf("Expected success. Got error: %s", result.Error)
	}
	if result.Details.ComputeUnits != 50_000 {
		t.Errorf("Expected caller's compute limit. Got: %d", result.Details.ComputeUnits)
	}
	if result.Details.PriorityFee != 2_000 {
		t.Errorf("Expected caller's priority fee. Got: %d", result.Details.PriorityFee)
	}
	// 5000 + ceil(50000 * 2000 / 1e6) = 5100 lamports.
	if result.Details.EstimatedFee != "0.000005100" {
		t.Errorf("Expected fee 0.000005100. Got: %s", result.Details.EstimatedFee)
	}
}

func TestBuildFailuresStayInResult(t *testing.T) {
	srv := fakeRPC(t, nil)
	defer srv.Close()

	c := testChain(t, srv.URL)
	registry := protocols.NewRegistry(protocols.Deps{Chain: c})
	b := New(c, registry, nil)
	payer := solana.NewWallet().PublicKey().String()

	cases := []struct {
		name    string
		intent  *models.BuildIntent
		wantErr string
	}{
		{"bad payer", &models.BuildIntent{Intent: "memo", Params: models.Params{"message": "x"}, Payer: "not-a-key"}, "invalid payer"},
		{"unknown intent", &models.BuildIntent{Intent: "teleport", Payer: payer}, "unsupported intent"},
		{"bad params", &models.BuildIntent{Intent: "transfer", Params: models.Params{"to": bonkMint}, Payer: payer}, "invalid parameters"},
	}
	for _, tc := range cases {
		result := b.Build(context.Background(), tc.intent)
		if result.Success {
			t.Errorf("%s: expected failure", tc.name)
		}
		if !strings.Contains(result.Error, tc.wantErr) {
			t.Errorf("%s: expected error containing %q. Got: %s", tc.name, tc.wantErr, result.Error)
		}
		if result.ID == "" {
			t.Errorf("%s: failed builds still need an id", tc.name)
		}
	}
}

func TestBuildWithoutRPC(t *testing.T) {
	registry := protocols.NewRegistry(protocols.Deps{})
	b := New(nil, registry, nil)

	result := b.Build(context.Background(), &models.BuildIntent{
		Intent: "memo",
		Params: models.Params{"message": "x"},
		Payer:  solana.NewWallet().PublicKey().String(),
	})
	if result.Success {
		t.Fatal("building with no RPC connection should fail")
	}
	if !strings.Contains(result.Error, "no RPC connection") {
		t.Errorf("Expected a no-RPC error. Got: %s", result.Error)
	}
}

func TestBuildSimulationFailure(t *testing.T) {
	simErr := `{"context":{"slot":1},"value":{"err":{"InstructionError":[0,{"Custom":1}]},"logs":["Program failed"],"unitsConsumed":200}}`
	srv := fakeRPC(t, map[string]string{"simulateTransaction": simErr})
	defer srv.Close()

	c := testChain(t, srv.URL)
	registry := protocols.NewRegistry(protocols.Deps{Chain: c})
	b := New(c, registry, nil)
	payer := solana.NewWallet().PublicKey().String()

	result := b.Build(context.Background(), &models.BuildIntent{
		Intent: "memo",
		Params: models.Params{"message": "x"},
		Payer:  payer,
	})
	if result.Success {
		t.Fatal("a failed simulation must fail the build")
	}
	if !strings.Contains(result.Error, "simulation failed") {
		t.Errorf("Expected a simulation error. Got: %s", result.Error)
	}
	// The transaction and report are still returned for inspection.
	if result.Transaction == "" || result.Simulation == nil {
		t.Error("failed simulations should still return the transaction and report")
	}

	// Skipping simulation sidesteps the failure.
	result = b.Build(context.Background(), &models.BuildIntent{
		Intent:         "memo",
		Params:         models.Params{"message": "x"},
		Payer:          payer,
		SkipSimulation: true,
	})
	if !result.Success {
		t.Errorf("Expected success with simulation skipped. Got: %s", result.Error)
	}
	if result.Simulation != nil {
		t.Error("skipped simulation should not produce a report")
	}
}

func TestBuildBatchKeepsOrderAndProceedsPastFailures(t *testing.T) {
	srv := fakeRPC(t, nil)
	defer srv.Close()

	c := testChain(t, srv.URL)
	registry := protocols.NewRegistry(protocols.Deps{Chain: c})
	b := New(c, registry, nil)
	payer := solana.NewWallet().PublicKey().String()

	results := b.BuildBatch(context.Background(), []*models.BuildIntent{
		{Intent: "memo", Params: models.Params{"message": "first"}, Payer: payer},
		{Intent: "teleport", Payer: payer},
		{Intent: "memo", Params: models.Params{"message": "third"}, Payer: payer},
	})
	if len(results) != 3 {
		t.Fatalf("Expected 3 results. Got: %d", len(results))
	}
	if !results[0].Success || !results[2].Success {
		t.Error("valid intents around a failure should still build")
	}
	if results[1].Success || !strings.Contains(results[1].Error, "unsupported intent") {
		t.Errorf("Expected slot 1 to fail in place. Got: %+v", results[1])
	}
}

func TestSwapFunnelRoutesVenueIntentsThroughAggregator(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	prebuilt := prebuiltTx(t, payer, []solana.Instruction{
		protocols.ComputeUnitLimitInstruction(400_000),
		protocols.ComputeUnitPriceInstruction(88),
		testMemoIx(payer, "swap"),
	})

	var quotedInput, quotedOutput string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/quote":
			quotedInput = r.URL.Query().Get("inputMint")
			quotedOutput = r.URL.Query().Get("outputMint")
			fmt.Fprint(w, `{"outAmount":"123456","inputMint":"`+quotedInput+`"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/swap":
			fmt.Fprintf(w, `{"swapTransaction":%q}`, prebuilt)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	registry := protocols.NewRegistry(protocols.Deps{JupiterURL: srv.URL})
	b := New(nil, registry, nil)

	result := b.Build(context.Background(), &models.BuildIntent{
		Intent: "raydium-swap",
		Params: models.Params{"amount": 5.0, "from": bonkMint, "to": wsolMint},
		Payer:  payer.String(),
	})
	if !result.Success {
		t.Fatalf("Expected funnelled build to succeed. Got: %s", result.Error)
	}
	if result.Details.Protocol != "jupiter" {
		t.Errorf("Expected the aggregator to build it. Got: %s", result.Details.Protocol)
	}
	if quotedInput != bonkMint || quotedOutput != wsolMint {
		t.Errorf("Expected quote for %s -> %s. Got: %s -> %s", bonkMint, wsolMint, quotedInput, quotedOutput)
	}
	// Details come from the budget stamped on the aggregator transaction.
	if result.Details.ComputeUnits != 400_000 {
		t.Errorf("Expected stamped compute limit 400000. Got: %d", result.Details.ComputeUnits)
	}
	if result.Details.PriorityFee != 88 {
		t.Errorf("Expected stamped priority fee 88. Got: %d", result.Details.PriorityFee)
	}
	// 5000 + ceil(400000 * 88 / 1e6) = 5036 lamports.
	if result.Details.EstimatedFee != "0.000005036" {
		t.Errorf("Expected fee 0.000005036. Got: %s", result.Details.EstimatedFee)
	}
}

func TestSwapFunnelRewritesPumpFunBuy(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	prebuilt := prebuiltTx(t, payer, []solana.Instruction{testMemoIx(payer, "buy")})

	var quotedInput, quotedOutput string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/quote" {
			quotedInput = r.URL.Query().Get("inputMint")
			quotedOutput = r.URL.Query().Get("outputMint")
			fmt.Fprint(w, `{"outAmount":"99"}`)
			return
		}
		fmt.Fprintf(w, `{"swapTransaction":%q}`, prebuilt)
	}))
	defer srv.Close()

	registry := protocols.NewRegistry(protocols.Deps{JupiterURL: srv.URL})
	b := New(nil, registry, nil)

	result := b.Build(context.Background(), &models.BuildIntent{
		Intent: "pumpfun-buy",
		Params: models.Params{"amount": 0.5, "token": bonkMint},
		Payer:  payer.String(),
	})
	if !result.Success {
		t.Fatalf("Expected funnelled buy to succeed. Got: %s", result.Error)
	}
	// Buys spend SOL into the token.
	if quotedInput != wsolMint || quotedOutput != bonkMint {
		t.Errorf("Expected SOL -> token quote. Got: %s -> %s", quotedInput, quotedOutput)
	}
}

func TestSwapFunnelFallsBackToNativeVenue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no route"}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	registry := protocols.NewRegistry(protocols.Deps{JupiterURL: srv.URL})
	b := New(nil, registry, nil)

	result := b.Build(context.Background(), &models.BuildIntent{
		Intent: "raydium-swap",
		Params: models.Params{"amount": 1.0, "from": bonkMint, "to": wsolMint},
		Payer:  solana.NewWallet().PublicKey().String(),
	})
	if result.Success {
		t.Fatal("native raydium builds are not implemented, expected failure")
	}
	if !strings.Contains(result.Error, "not implemented") {
		t.Errorf("Expected the native venue's not-implemented error. Got: %s", result.Error)
	}
}

func TestFunnelParams(t *testing.T) {
	buy := funnelParams("buy", models.Params{"token": bonkMint, "amount": 1.0})
	if buy.Str("from") != wsolMint || buy.Str("to") != bonkMint || buy.Has("token") {
		t.Errorf("buy rewrite wrong: %v", buy)
	}
	sell := funnelParams("sell", models.Params{"token": bonkMint, "amount": 1.0})
	if sell.Str("from") != bonkMint || sell.Str("to") != wsolMint {
		t.Errorf("sell rewrite wrong: %v", sell)
	}

	// Explicit from/to wins over a stray token param.
	explicit := funnelParams("buy", models.Params{"token": "x", "from": wsolMint, "to": bonkMint})
	if explicit.Str("from") != wsolMint || explicit.Str("token") != "x" {
		t.Errorf("explicit routing should pass through: %v", explicit)
	}

	// The original map must stay untouched.
	original := models.Params{"token": bonkMint, "amount": 1.0}
	funnelParams("sell", original)
	if !original.Has("token") || original.Has("from") {
		t.Error("funnelParams must not mutate its input")
	}
}

func TestStampedBudget(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	tx, err := solana.NewTransaction([]solana.Instruction{
		protocols.ComputeUnitLimitInstruction(600_000),
		protocols.ComputeUnitPriceInstruction(250),
		testMemoIx(payer, "x"),
	}, testBlockhash, solana.TransactionPayer(payer))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	limit, price := stampedBudget(tx)
	if limit != 600_000 {
		t.Errorf("Expected stamped limit 600000. Got: %d", limit)
	}
	if price != 250 {
		t.Errorf("Expected stamped price 250. Got: %d", price)
	}

	// No compute-budget instructions -> nothing stamped.
	bare, err := solana.NewTransaction([]solana.Instruction{testMemoIx(payer, "x")}, testBlockhash, solana.TransactionPayer(payer))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if limit, price = stampedBudget(bare); limit != 0 || price != 0 {
		t.Errorf("Expected zero budget on a bare transaction. Got: %d/%d", limit, price)
	}
}

func TestCeilDiv(t *testing.T) {
	cases := []struct{ a, b, want uint64 }{
		{0, 1_000_000, 0},
		{1, 1_000_000, 1},
		{1_000_000, 1_000_000, 1},
		{1_000_001, 1_000_000, 2},
		{35_200_000, 1_000_000, 36},
		{5, 0, 0},
	}
	for _, tc := range cases {
		if got := ceilDiv(tc.a, tc.b); got != tc.want {
			t.Errorf("ceilDiv(%d, %d): expected %d, got %d", tc.a, tc.b, tc.want, got)
		}
	}
}

func TestLamportsToSOL(t *testing.T) {
	cases := map[uint64]string{
		0:             "0.000000000",
		5_000:         "0.000005000",
		890_880:       "0.000890880",
		1_000_000_000: "1.000000000",
		1_500_000_123: "1.500000123",
	}
	for in, want := range cases {
		if got := lamportsToSOL(in); got != want {
			t.Errorf("lamportsToSOL(%d): expected %s, got %s", in, want, got)
		}
	}
}
