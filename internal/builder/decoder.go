package builder

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/internal/protocols"
	"github.com/rawblock/intent-engine/pkg/models"
)

// DecodeTransaction parses a base64 serialized transaction into a readable
// summary. Legacy and versioned payloads both decode. Account positions
// that point into an address lookup table are labeled by slot instead of
// resolved, since resolution needs chain state.
func DecodeTransaction(encoded string, registry *protocols.Registry) (*models.DecodedTransaction, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("transaction is not valid base64: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("deserialize transaction: %w", err)
	}

	msg := &tx.Message
	out := &models.DecodedTransaction{
		Version:         "legacy",
		RecentBlockhash: msg.RecentBlockhash.String(),
		Signatures:      int(msg.Header.NumRequiredSignatures),
		Instructions:    make([]models.DecodedInstruction, 0, len(msg.Instructions)),
	}
	if msg.GetVersion() == solana.MessageVersionV0 {
		out.Version = "v0"
	}
	if len(msg.AccountKeys) > 0 {
		out.FeePayer = msg.AccountKeys[0].String()
	}

	for _, ci := range msg.Instructions {
		decoded := models.DecodedInstruction{DataHex: hex.EncodeToString(ci.Data)}
		if int(ci.ProgramIDIndex) < len(msg.AccountKeys) {
			program := msg.AccountKeys[ci.ProgramIDIndex]
			decoded.ProgramID = program.String()
			decoded.ProgramName = chain.ProgramLabel(program.String())
			decoded.RecognizedVenue = recognizeVenue(decoded.ProgramName, registry)
		}
		for _, idx := range ci.Accounts {
			if int(idx) < len(msg.AccountKeys) {
				decoded.Accounts = append(decoded.Accounts, msg.AccountKeys[idx].String())
			} else {
				decoded.Accounts = append(decoded.Accounts, fmt.Sprintf("lookup[%d]", idx))
			}
		}
		out.Instructions = append(out.Instructions, decoded)
	}
	return out, nil
}

// recognizeVenue matches a labeled program against registered handler names,
// e.g. "Raydium AMM V4" -> raydium. Comparison squashes case and
// punctuation so "Pump.fun" still meets "pumpfun". The longest match wins:
// "Marinade Liquid Staking" is marinade, not stake.
func recognizeVenue(programName string, registry *protocols.Registry) string {
	if programName == "" || registry == nil {
		return ""
	}
	label := squash(programName)
	best := ""
	for _, name := range registry.Names() {
		if strings.Contains(label, squash(name)) && len(name) > len(best) {
			best = name
		}
	}
	return best
}

func squash(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
