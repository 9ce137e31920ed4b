package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"github.com/rawblock/intent-engine/internal/builder"
	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/internal/parser"
	"github.com/rawblock/intent-engine/internal/protocols"
	"github.com/rawblock/intent-engine/pkg/models"
)

type fakeFees struct {
	snap models.FeeSnapshot
	ok   bool
}

func (f fakeFees) Snapshot(string) (models.FeeSnapshot, bool) { return f.snap, f.ok }

// testRouter builds a router with auth disabled and a working parser; tests
// override the rest per scenario.
func testRouter(t *testing.T, deps Deps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("API_AUTH_TOKEN", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	if deps.Parser == nil {
		deps.Parser = parser.New(nil, nil, nil)
	}
	return SetupRouter(deps)
}

func do(r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v\nbody: %s", err, w.Body.String())
	}
	return out
}

func encodedMemoTx(t *testing.T) string {
	t.Helper()
	payer := solana.NewWallet().PublicKey()
	ix := solana.NewInstruction(chain.MemoProgram,
		solana.AccountMetaSlice{solana.NewAccountMeta(payer, false, true)},
		[]byte("hi"))
	tx, err := solana.NewTransaction([]solana.Instruction{ix},
		solana.MustHashFromBase58("So11111111111111111111111111111111111111112"),
		solana.TransactionPayer(payer))
	if err != nil {
		t.Fatalf("assemble tx: %v", err)
	}
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("serialize tx: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestHealthEndpoint(t *testing.T) {
	registry := protocols.NewRegistry(protocols.Deps{})
	r := testRouter(t, Deps{Registry: registry})

	w := do(r, http.MethodGet, "/api/v1/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200. Got: %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "operational" {
		t.Errorf("Expected operational status. Got: %v", body["status"])
	}
	if body["rpc"] != "unconfigured" {
		t.Errorf("Expected unconfigured rpc without a chain client. Got: %v", body["rpc"])
	}
	if body["dbConnected"] != false {
		t.Errorf("Expected dbConnected false. Got: %v", body["dbConnected"])
	}
	caps, ok := body["capabilities"].(map[string]any)
	if !ok {
		t.Fatalf("Expected a capabilities object. Got: %v", body["capabilities"])
	}
	names, ok := caps["protocols"].([]any)
	if !ok || len(names) != len(registry.Names()) {
		t.Errorf("Expected all %d protocols advertised. Got: %v", len(registry.Names()), caps["protocols"])
	}
	if caps["feeMarket"] != false || caps["simulation"] != false {
		t.Errorf("Expected fee market and simulation off. Got: %v", caps)
	}
}

func TestRequestIDHeader(t *testing.T) {
	r := testRouter(t, Deps{})

	w := do(r, http.MethodGet, "/api/v1/health", "", map[string]string{"X-Request-ID": "trace-42"})
	if got := w.Header().Get("X-Request-ID"); got != "trace-42" {
		t.Errorf("Expected the inbound request id echoed back. Got: %q", got)
	}

	w = do(r, http.MethodGet, "/api/v1/health", "", nil)
	if got := w.Header().Get("X-Request-ID"); got == "" {
		t.Error("Expected a generated request id")
	}
}

func TestParseEndpoint(t *testing.T) {
	r := testRouter(t, Deps{})
	recipient := solana.NewWallet().PublicKey().String()

	w := do(r, http.MethodPost, "/api/v1/parse", fmt.Sprintf(`{"prompt":"send 1 SOL to %s"}`, recipient), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200. Got: %d (%s)", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Errorf("Expected a parsed prompt. Got: %s", w.Body.String())
	}
	intents, ok := body["intents"].([]any)
	if !ok || len(intents) != 1 {
		t.Fatalf("Expected one segment. Got: %v", body["intents"])
	}
	seg := intents[0].(map[string]any)
	intent, ok := seg["intent"].(map[string]any)
	if !ok || intent["protocol"] != "system" || intent["action"] != "transfer" {
		t.Errorf("Expected a system transfer. Got: %v", seg)
	}
}

func TestParseEndpointFailedSegment(t *testing.T) {
	r := testRouter(t, Deps{})

	w := do(r, http.MethodPost, "/api/v1/parse", `{"prompt":"florble the bingus"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unparseable prompts report per segment, not via status. Got: %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["success"] != false {
		t.Error("Expected success false for an unparseable prompt")
	}
	seg := body["intents"].([]any)[0].(map[string]any)
	if seg["error"] == nil || !strings.Contains(seg["error"].(string), "could not parse") {
		t.Errorf("Expected a segment error. Got: %v", seg)
	}
}

func TestParseEndpointRejectsEmptyPrompt(t *testing.T) {
	r := testRouter(t, Deps{})

	w := do(r, http.MethodPost, "/api/v1/parse", `{"prompt":"   "}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty prompt. Got: %d", w.Code)
	}

	w = do(r, http.MethodPost, "/api/v1/parse", `{not json`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON. Got: %d", w.Code)
	}
}

func TestBuildEndpointValidation(t *testing.T) {
	registry := protocols.NewRegistry(protocols.Deps{})
	r := testRouter(t, Deps{Builder: builder.New(nil, registry, nil), Registry: registry})
	payer := solana.NewWallet().PublicKey().String()

	w := do(r, http.MethodPost, "/api/v1/build", `{"params":{}}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without an intent. Got: %d", w.Code)
	}

	w = do(r, http.MethodPost, "/api/v1/build", `{"intent":"memo","params":{"message":"x"}}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without a payer. Got: %d", w.Code)
	}

	// A valid request flows into the builder; with no RPC configured the
	// failure rides inside the result.
	w = do(r, http.MethodPost, "/api/v1/build",
		fmt.Sprintf(`{"intent":"memo","params":{"message":"x"},"payer":"%s"}`, payer), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200. Got: %d (%s)", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != false {
		t.Error("Expected the build to fail without an RPC connection")
	}
	if errMsg, _ := body["error"].(string); !strings.Contains(errMsg, "no RPC connection") {
		t.Errorf("Expected a no-RPC error. Got: %v", body["error"])
	}
}

func TestBuildNaturalEndpointValidation(t *testing.T) {
	registry := protocols.NewRegistry(protocols.Deps{})
	r := testRouter(t, Deps{Builder: builder.New(nil, registry, nil), Registry: registry})
	payer := solana.NewWallet().PublicKey().String()

	w := do(r, http.MethodPost, "/api/v1/build/natural", fmt.Sprintf(`{"payer":"%s"}`, payer), nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without a prompt. Got: %d", w.Code)
	}

	w = do(r, http.MethodPost, "/api/v1/build/natural", `{"prompt":"memo \"gm\"","payer":"not-base58"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad payer. Got: %d", w.Code)
	}

	// Parse succeeds, build fails on the missing RPC; one result per
	// segment either way.
	w = do(r, http.MethodPost, "/api/v1/build/natural",
		fmt.Sprintf(`{"prompt":"memo \"gm\"","payer":"%s"}`, payer), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200. Got: %d (%s)", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	results, ok := body["results"].([]any)
	if !ok || len(results) != 1 {
		t.Fatalf("Expected one result. Got: %v", body["results"])
	}
	result := results[0].(map[string]any)
	if errMsg, _ := result["error"].(string); !strings.Contains(errMsg, "no RPC connection") {
		t.Errorf("Expected the build error in the result. Got: %v", result)
	}
}

func TestBuildBatchEndpointValidation(t *testing.T) {
	registry := protocols.NewRegistry(protocols.Deps{})
	r := testRouter(t, Deps{Builder: builder.New(nil, registry, nil), Registry: registry})

	w := do(r, http.MethodPost, "/api/v1/build/batch", `{"intents":[]}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty batch. Got: %d", w.Code)
	}

	var entries []string
	for i := 0; i <= maxBatchIntents; i++ {
		entries = append(entries, `{"intent":"memo","params":{"message":"x"}}`)
	}
	oversized := `{"payer":"x","intents":[` + strings.Join(entries, ",") + `]}`
	w = do(r, http.MethodPost, "/api/v1/build/batch", oversized, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for an oversized batch. Got: %d", w.Code)
	}
	body := decodeBody(t, w)
	if errMsg, _ := body["error"].(string); !strings.Contains(errMsg, "max is 20") {
		t.Errorf("Expected the batch cap in the error. Got: %v", body["error"])
	}
}

func TestDecodeEndpoint(t *testing.T) {
	registry := protocols.NewRegistry(protocols.Deps{})
	r := testRouter(t, Deps{Registry: registry})

	w := do(r, http.MethodPost, "/api/v1/decode", `{"transaction":""}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty payload. Got: %d", w.Code)
	}

	w = do(r, http.MethodPost, "/api/v1/decode", `{"transaction":"!!!not-base64!!!"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for garbage. Got: %d", w.Code)
	}

	w = do(r, http.MethodPost, "/api/v1/decode",
		fmt.Sprintf(`{"transaction":"%s"}`, encodedMemoTx(t)), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200. Got: %d (%s)", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	decoded, ok := body["decoded"].(map[string]any)
	if !ok || decoded["version"] != "legacy" {
		t.Errorf("Expected a decoded legacy transaction. Got: %v", body["decoded"])
	}
}

func TestEstimateEndpoint(t *testing.T) {
	registry := protocols.NewRegistry(protocols.Deps{})
	r := testRouter(t, Deps{Builder: builder.New(nil, registry, nil), Registry: registry})

	w := do(r, http.MethodPost, "/api/v1/estimate", `{}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without intents. Got: %d", w.Code)
	}

	w = do(r, http.MethodPost, "/api/v1/estimate", `{"intent":"transfer","params":{"amount":1}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200. Got: %d (%s)", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	estimate, ok := body["estimate"].(map[string]any)
	if !ok {
		t.Fatalf("Expected an estimate object. Got: %v", body)
	}
	if estimate["computeUnits"] != float64(2150) {
		t.Errorf("Expected 2150 compute units for a transfer. Got: %v", estimate["computeUnits"])
	}
}

func TestResolveEndpoint(t *testing.T) {
	r := testRouter(t, Deps{})

	w := do(r, http.MethodGet, "/api/v1/resolve/SOL", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for SOL. Got: %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["mint"] != "So11111111111111111111111111111111111111112" {
		t.Errorf("Expected the wrapped SOL mint. Got: %v", body["mint"])
	}

	// Symbols resolve case-insensitively, with or without the $ prefix.
	w = do(r, http.MethodGet, "/api/v1/resolve/$bonk", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for $bonk. Got: %d", w.Code)
	}
	body = decodeBody(t, w)
	if body["symbol"] != "BONK" {
		t.Errorf("Expected BONK. Got: %v", body["symbol"])
	}

	// A known mint address reverse-resolves to its symbol.
	w = do(r, http.MethodGet, "/api/v1/resolve/DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for the BONK mint. Got: %d", w.Code)
	}
	body = decodeBody(t, w)
	if body["symbol"] != "BONK" {
		t.Errorf("Expected BONK from the mint. Got: %v", body["symbol"])
	}

	w = do(r, http.MethodGet, "/api/v1/resolve/ZZZZZZ", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown symbol. Got: %d", w.Code)
	}
}

func TestFeesEndpoint(t *testing.T) {
	r := testRouter(t, Deps{})
	w := do(r, http.MethodGet, "/api/v1/fees", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a poller. Got: %d", w.Code)
	}

	r = testRouter(t, Deps{Fees: fakeFees{snap: models.FeeSnapshot{Network: "mainnet", Median: 1234, Samples: 10}, ok: true}})
	w = do(r, http.MethodGet, "/api/v1/fees", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 with a poller. Got: %d", w.Code)
	}
	body := decodeBody(t, w)
	fees, ok := body["fees"].(map[string]any)
	if !ok || fees["median"] != float64(1234) {
		t.Errorf("Expected the snapshot in the response. Got: %v", body["fees"])
	}

	// A poller with no samples yet is also a 503.
	r = testRouter(t, Deps{Fees: fakeFees{}})
	w = do(r, http.MethodGet, "/api/v1/fees", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before the first sample. Got: %d", w.Code)
	}
}

func TestHistoryEndpointWithoutDB(t *testing.T) {
	r := testRouter(t, Deps{})
	w := do(r, http.MethodGet, "/api/v1/history", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200. Got: %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["count"] != float64(0) {
		t.Errorf("Expected an empty history. Got: %v", body)
	}
	if _, ok := body["builds"].([]any); !ok {
		t.Errorf("Expected an empty builds array. Got: %v", body["builds"])
	}
}

func TestAuthProtectsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("API_AUTH_TOKEN", "sekret")
	r := SetupRouter(Deps{Parser: parser.New(nil, nil, nil)})

	w := do(r, http.MethodGet, "/api/v1/fees", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a token. Got: %d", w.Code)
	}

	w = do(r, http.MethodGet, "/api/v1/fees", "", map[string]string{"Authorization": "Basic foo"})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for a non-bearer scheme. Got: %d", w.Code)
	}

	w = do(r, http.MethodGet, "/api/v1/fees", "", map[string]string{"Authorization": "Bearer wrong"})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for a wrong token. Got: %d", w.Code)
	}

	// The right token clears auth; the 503 proves the handler itself ran.
	w = do(r, http.MethodGet, "/api/v1/fees", "", map[string]string{"Authorization": "Bearer sekret"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected the handler to run with a valid token. Got: %d", w.Code)
	}

	// Health stays public.
	w = do(r, http.MethodGet, "/api/v1/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected the health endpoint to stay public. Got: %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := testRouter(t, Deps{})

	w := do(r, http.MethodOptions, "/api/v1/parse", "", map[string]string{"Origin": "http://localhost:3000"})
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight. Got: %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard origin by default. Got: %q", got)
	}
}
