package protocols

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/pkg/models"
)

// maxMemoBytes is the memo program's payload cap.
const maxMemoBytes = 566

type memoHandler struct{}

func NewMemoHandler() Handler { return &memoHandler{} }

func (h *memoHandler) Name() string        { return "memo" }
func (h *memoHandler) Description() string { return "On-chain text memos" }

func (h *memoHandler) SupportedActions() []string { return []string{"memo"} }

func (h *memoHandler) Validate(intent string, params models.Params) error {
	msg := params.Str("message")
	if msg == "" {
		return fmt.Errorf("missing required param: message")
	}
	if len(msg) > maxMemoBytes {
		return fmt.Errorf("memo exceeds %d bytes", maxMemoBytes)
	}
	return nil
}

func (h *memoHandler) Build(ctx context.Context, req *BuildRequest) (*BuildOutput, error) {
	if err := h.Validate(req.Intent, req.Params); err != nil {
		return nil, err
	}
	ix := solana.NewInstruction(
		chain.MemoProgram,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(req.Payer, false, true),
		},
		[]byte(req.Params.Str("message")),
	)
	return &BuildOutput{Instructions: []solana.Instruction{ix}}, nil
}

func (h *memoHandler) RequiredAccounts(intent string, params models.Params, payer solana.PublicKey) []string {
	return []string{payer.String()}
}
