package protocols

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/rawblock/intent-engine/pkg/models"
)

// jitoTipAccounts are the block-engine tip accounts. Any of them works; the
// pick is spread by payer so a busy payer does not hammer a single account.
var jitoTipAccounts = []solana.PublicKey{
	solana.MustPublicKeyFromBase58("96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"),
	solana.MustPublicKeyFromBase58("HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe"),
	solana.MustPublicKeyFromBase58("Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY"),
	solana.MustPublicKeyFromBase58("ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49"),
	solana.MustPublicKeyFromBase58("DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh"),
	solana.MustPublicKeyFromBase58("ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt"),
	solana.MustPublicKeyFromBase58("DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL"),
	solana.MustPublicKeyFromBase58("3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT"),
}

type jitoHandler struct{}

func NewJitoHandler() Handler { return &jitoHandler{} }

func (h *jitoHandler) Name() string        { return "jito" }
func (h *jitoHandler) Description() string { return "Validator tips via the Jito block engine" }

func (h *jitoHandler) SupportedActions() []string { return []string{"jito-tip"} }

func (h *jitoHandler) Validate(intent string, params models.Params) error {
	_, err := requireAmount(params, false)
	return err
}

func (h *jitoHandler) Build(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	amount, err := requireAmount(req.Params, false)
	if err != nil {
		return nil, err
	}
	tip := tipAccountFor(req.Payer)
	ix := system.NewTransferInstruction(solToLamports(amount), req.Payer, tip).Build()
	return &BuildOutput{Instructions: []solana.Instruction{ix}}, nil
}

func (h *jitoHandler) RequiredAccounts(intent string, params models.Params, payer solana.PublicKey) []string {
	return []string{payer.String(), tipAccountFor(payer).String()}
}

// tipAccountFor spreads payers across the tip account set deterministically.
func tipAccountFor(payer solana.PublicKey) solana.PublicKey {
	var sum int
	for _, b := range payer {
		sum += int(b)
	}
	return jitoTipAccounts[sum%len(jitoTipAccounts)]
}
