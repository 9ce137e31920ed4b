package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rawblock/intent-engine/pkg/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Protocol references
// ─────────────────────────────────────────────────────────────────────────────

// protoKind separates concrete protocol targets from deferred-resolution
// markers. Markers never leave this package: resolution rewrites them into a
// concrete protocol before a ParsedIntent is returned.
type protoKind int

const (
	protoConcrete protoKind = iota
	protoResolveToken // venue unknown, resolve by token mint
	protoResolvePair  // venue unknown, resolve by pair address
)

type protoRef struct {
	kind protoKind
	name string
}

func proto(name string) protoRef { return protoRef{kind: protoConcrete, name: name} }

var (
	resolveToken = protoRef{kind: protoResolveToken}
	resolvePair  = protoRef{kind: protoResolvePair}
)

// ─────────────────────────────────────────────────────────────────────────────
// Pattern bank
// ─────────────────────────────────────────────────────────────────────────────

// pattern is one recognition rule. The bank is ordered and the first match
// wins, so specific rules must sit above the general ones they would
// otherwise lose to.
type pattern struct {
	re      *regexp.Regexp
	proto   protoRef
	action  string
	extract func(m []string) models.Params
}

// Reusable fragments. Token symbols allow an optional $ prefix outside the
// capture so "$BONK" and "BONK" extract the same text.
const (
	reAmt  = `([\d,]*\.?\d+)`                // 5, 0.5, .5, 1,000
	reAddr = `([1-9A-HJ-NP-Za-km-z]{32,44})` // base58 account address
	reSym  = `([A-Za-z][A-Za-z0-9]{1,9})`    // short ticker symbol
	reTok  = `([A-Za-z0-9]{2,44})`           // ticker or raw mint address
)

func rule(expr string, ref protoRef, action string, extract func(m []string) models.Params) pattern {
	return pattern{re: regexp.MustCompile(`(?i)^` + expr + `$`), proto: ref, action: action, extract: extract}
}

// num parses a matched amount, tolerating thousands separators.
func num(s string) float64 {
	v, _ := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return v
}

var patternBank = buildPatternBank()

// buildPatternBank assembles the ordered recognition rules. Ordering
// constraints that matter:
//
//   - venue-named lending sits above the generic lending rules and above the
//     "put N sol into X" buy form, so "put 100 USDC into kamino" lends while
//     "put 2 SOL into BONK" buys
//   - unstake rules sit above every stake rule
//   - address-token transfers sit above symbol-token transfers
//   - "create token account" sits above the bare "create account"
//   - venue-qualified swaps sit above the aggregator swaps
//
// Priority modifiers ("with high priority", "urgently") never appear here:
// they are stripped before the bank runs.
func buildPatternBank() []pattern {
	var bank []pattern
	add := func(p pattern) { bank = append(bank, p) }

	// ── Memo ────────────────────────────────────────────────────────────────
	memoPrefix := `(?:write\s+)?(?:an?\s+)?(?:onchain\s+|on-chain\s+)?memo[:\s]\s*`
	add(rule(memoPrefix+`"([^"]+)"`, proto("memo"), "memo", func(m []string) models.Params {
		return models.Params{"message": m[1]}
	}))
	add(rule(memoPrefix+`'([^']+)'`, proto("memo"), "memo", func(m []string) models.Params {
		return models.Params{"message": m[1]}
	}))
	add(rule(memoPrefix+`(.+)`, proto("memo"), "memo", func(m []string) models.Params {
		return models.Params{"message": strings.TrimSpace(m[1])}
	}))

	// ── Jito tips ───────────────────────────────────────────────────────────
	add(rule(`(?:send\s+(?:a\s+)?)?jito\s+tip(?:\s+of)?\s+`+reAmt+`(?:\s+sol)?`, proto("jito"), "tip", func(m []string) models.Params {
		return models.Params{"amount": num(m[1])}
	}))
	add(rule(`tip\s+`+reAmt+`\s+sol\s+to\s+jito`, proto("jito"), "tip", func(m []string) models.Params {
		return models.Params{"amount": num(m[1])}
	}))
	add(rule(`tip\s+jito\s+`+reAmt+`(?:\s+sol)?`, proto("jito"), "tip", func(m []string) models.Params {
		return models.Params{"amount": num(m[1])}
	}))
	add(rule(`(?:send\s+(?:a\s+)?)?jito\s+tip`, proto("jito"), "tip", func(m []string) models.Params {
		return models.Params{"amount": 0.001}
	}))

	// ── Unstake (must precede all stake rules) ──────────────────────────────
	add(rule(`(?:native\s+)?unstake\s+(?:stake\s+)?(?:account\s+)?`+reAddr, proto("stake"), "deactivate", func(m []string) models.Params {
		return models.Params{"stakeAccount": m[1]}
	}))
	add(rule(`deactivate\s+(?:stake\s+)?(?:account\s+)?`+reAddr, proto("stake"), "deactivate", func(m []string) models.Params {
		return models.Params{"stakeAccount": m[1]}
	}))
	add(rule(`withdraw\s+`+reAmt+`\s+sol\s+from\s+(?:stake\s+)?(?:account\s+)?`+reAddr, proto("stake"), "withdraw", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "stakeAccount": m[2]}
	}))
	add(rule(`(?:liquid\s+)?unstake\s+`+reAmt+`\s+\$?`+reSym+`(?:\s+(?:from|with|on|via)\s+marinade)?`, proto("marinade"), "unstake", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": strings.ToUpper(m[2])}
	}))

	// ── Stake ───────────────────────────────────────────────────────────────
	add(rule(`(?:liquid\s+)?stake\s+`+reAmt+`\s+sol\s+(?:with|on|to|via|at)\s+marinade`, proto("marinade"), "stake", func(m []string) models.Params {
		return models.Params{"amount": num(m[1])}
	}))
	add(rule(`liquid\s+stake\s+`+reAmt+`(?:\s+sol)?`, proto("marinade"), "stake", func(m []string) models.Params {
		return models.Params{"amount": num(m[1])}
	}))
	add(rule(`deposit\s+`+reAmt+`\s+sol\s+(?:to|into|in|with)\s+marinade`, proto("marinade"), "stake", func(m []string) models.Params {
		return models.Params{"amount": num(m[1])}
	}))
	add(rule(`(?:native\s+)?stake\s+`+reAmt+`\s+sol\s+(?:to|with|on)\s+(?:validator\s+)?`+reAddr, proto("stake"), "stake", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "validator": m[2]}
	}))
	add(rule(`delegate\s+`+reAmt+`\s+sol\s+to\s+(?:validator\s+)?`+reAddr, proto("stake"), "delegate", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "validator": m[2]}
	}))
	add(rule(`native\s+stake\s+`+reAmt+`\s+sol`, proto("stake"), "stake", func(m []string) models.Params {
		return models.Params{"amount": num(m[1])}
	}))
	// Bare "stake N sol" defaults to liquid staking: no validator needed.
	add(rule(`stake\s+`+reAmt+`\s+sol`, proto("marinade"), "stake", func(m []string) models.Params {
		return models.Params{"amount": num(m[1])}
	}))

	// ── Lending, venue named ────────────────────────────────────────────────
	for _, venue := range []string{"kamino", "marginfi", "solend"} {
		v := venue
		add(rule(`(?:supply|deposit|lend|put|invest|lock)\s+`+reAmt+`\s+\$?`+reTok+`\s+(?:to|on|into|in|at|with)\s+`+v, proto(v), "supply", func(m []string) models.Params {
			return models.Params{"amount": num(m[1]), "token": m[2]}
		}))
		add(rule(`borrow\s+`+reAmt+`\s+\$?`+reTok+`\s+(?:from|on|at|with|using|against\s+(?:my\s+)?collateral\s+on)\s+`+v, proto(v), "borrow", func(m []string) models.Params {
			return models.Params{"amount": num(m[1]), "token": m[2]}
		}))
		add(rule(`(?:take\s+(?:out\s+)?a\s+loan\s+of|loan\s+me|get\s+a\s+loan\s+of)\s+`+reAmt+`\s+\$?`+reTok+`\s+(?:from|on|at)\s+`+v, proto(v), "borrow", func(m []string) models.Params {
			return models.Params{"amount": num(m[1]), "token": m[2]}
		}))
		add(rule(`(?:repay|pay\s+back|pay\s+off|settle|return)\s+`+reAmt+`\s+\$?`+reTok+`\s+(?:to|on|at)\s+`+v, proto(v), "repay", func(m []string) models.Params {
			return models.Params{"amount": num(m[1]), "token": m[2]}
		}))
		add(rule(`(?:repay|pay\s+off|settle)\s+my\s+`+v+`\s+loan\s+of\s+`+reAmt+`\s+\$?`+reTok, proto(v), "repay", func(m []string) models.Params {
			return models.Params{"amount": num(m[1]), "token": m[2]}
		}))
		add(rule(`(?:withdraw|pull\s+out|take\s+out|pull)\s+`+reAmt+`\s+\$?`+reTok+`\s+(?:from|off|out\s+of)\s+`+v, proto(v), "withdraw", func(m []string) models.Params {
			return models.Params{"amount": num(m[1]), "token": m[2]}
		}))
	}

	// ── Lending, generic (defaults to kamino) ───────────────────────────────
	add(rule(`(?:supply|deposit|lend|put|invest|lock)\s+`+reAmt+`\s+\$?`+reTok+`\s+(?:to|in|into)\s+(?:a\s+)?lending(?:\s+(?:pool|market))?`, proto("kamino"), "supply", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`(?:supply|lend)\s+`+reAmt+`\s+\$?`+reTok, proto("kamino"), "supply", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`borrow\s+`+reAmt+`\s+\$?`+reTok, proto("kamino"), "borrow", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`(?:take\s+(?:out\s+)?a\s+loan\s+of|loan\s+me|get\s+a\s+loan\s+of)\s+`+reAmt+`\s+\$?`+reTok, proto("kamino"), "borrow", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`(?:repay|pay\s+back|pay\s+off)\s+`+reAmt+`\s+\$?`+reTok, proto("kamino"), "repay", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`(?:withdraw|pull\s+out)\s+`+reAmt+`\s+\$?`+reTok+`\s+from\s+lending`, proto("kamino"), "withdraw", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`withdraw\s+`+reAmt+`\s+\$?`+reTok, proto("kamino"), "withdraw", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))

	// ── Liquidity positions ─────────────────────────────────────────────────
	add(rule(`provide\s+`+reAmt+`\s+\$?`+reTok+`\s+liquidity\s+(?:on|to|at)\s+orca`, proto("orca"), "addLiquidity", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`open\s+(?:an?\s+)?orca\s+position\s+(?:for\s+|on\s+)?\$?`+reTok+`\s*/\s*\$?`+reTok, proto("orca"), "openPosition", func(m []string) models.Params {
		return models.Params{"tokenA": m[1], "tokenB": m[2]}
	}))
	add(rule(`close\s+(?:my\s+)?orca\s+position\s+`+reAddr, proto("orca"), "closePosition", func(m []string) models.Params {
		return models.Params{"position": m[1]}
	}))
	add(rule(`add\s+liquidity\s+`+reAmt+`\s+\$?`+reTok+`\s+and\s+`+reAmt+`\s+\$?`+reTok+`\s+(?:to|on)\s+meteora(?:\s+pool\s+`+reAddr+`)?`, proto("meteora"), "addLiquidity", func(m []string) models.Params {
		params := models.Params{"amountA": num(m[1]), "tokenA": m[2], "amountB": num(m[3]), "tokenB": m[4]}
		if m[5] != "" {
			params["pool"] = m[5]
		}
		return params
	}))
	add(rule(`remove\s+(\d+)%\s+(?:of\s+)?(?:my\s+)?liquidity\s+from\s+meteora\s+position\s+`+reAddr, proto("meteora"), "removeLiquidity", func(m []string) models.Params {
		return models.Params{"percent": num(m[1]), "position": m[2]}
	}))
	add(rule(`remove\s+liquidity\s+from\s+meteora\s+position\s+`+reAddr, proto("meteora"), "removeLiquidity", func(m []string) models.Params {
		return models.Params{"percent": float64(100), "position": m[1]}
	}))
	add(rule(`add\s+liquidity\s+to\s+(?:pool\s+)?`+reAddr, resolvePair, "addLiquidity", func(m []string) models.Params {
		return models.Params{"pair": m[1]}
	}))
	add(rule(`remove\s+liquidity\s+from\s+(?:pool\s+)?`+reAddr, resolvePair, "removeLiquidity", func(m []string) models.Params {
		return models.Params{"pair": m[1]}
	}))

	// ── Account and token creation ──────────────────────────────────────────
	add(rule(`create\s+(?:a\s+)?(?:token\s+account|ata)\s+for\s+\$?`+reTok, proto("spl-token"), "createAccount", func(m []string) models.Params {
		return models.Params{"token": m[1]}
	}))
	add(rule(`create\s+(?:an?\s+)?associated\s+token\s+account\s+for\s+\$?`+reTok, proto("spl-token"), "createAccount", func(m []string) models.Params {
		return models.Params{"token": m[1]}
	}))
	add(rule(`(?:create|launch)\s+(?:a\s+)?(?:new\s+)?(?:token|coin)\s+(?:on\s+pump\.?fun\s+)?called\s+"([^"]+)"\s+(?:with\s+)?(?:symbol|ticker)\s+\$?(\w+)`, proto("pumpfun"), "create", func(m []string) models.Params {
		return models.Params{"name": m[1], "symbol": strings.ToUpper(m[2])}
	}))
	add(rule(`(?:create|launch)\s+(?:a\s+)?(?:new\s+)?(?:token|coin)\s+(?:on\s+pump\.?fun\s+)?called\s+([A-Za-z0-9 ]+?)\s+(?:with\s+)?(?:symbol|ticker)\s+\$?(\w+)`, proto("pumpfun"), "create", func(m []string) models.Params {
		return models.Params{"name": strings.TrimSpace(m[1]), "symbol": strings.ToUpper(m[2])}
	}))
	add(rule(`create\s+(?:a\s+)?(?:new\s+)?account`, proto("system"), "createAccount", func(m []string) models.Params {
		return models.Params{}
	}))

	// ── Token-2022 transfers (above the plain transfer rules) ───────────────
	add(rule(`(?:send|transfer)\s+`+reAmt+`\s+\$?`+reTok+`\s+to\s+`+reAddr+`\s+(?:using|with|via)\s+token[-\s]?2022`, proto("token-2022"), "transfer", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2], "to": m[3]}
	}))
	add(rule(`(?:send|transfer)\s+`+reAmt+`\s+token[-\s]?2022\s+\$?`+reTok+`\s+to\s+`+reAddr, proto("token-2022"), "transfer", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2], "to": m[3]}
	}))

	// ── Transfers ───────────────────────────────────────────────────────────
	add(rule(`(?:send|transfer)\s+`+reAmt+`\s+sol\s+to\s+`+reAddr, proto("system"), "transfer", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "to": m[2]}
	}))
	// Token given as a full mint address, above the symbol form.
	add(rule(`(?:send|transfer)\s+`+reAmt+`\s+(?:of\s+)?`+reAddr+`\s+to\s+`+reAddr, proto("spl-token"), "transfer", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2], "to": m[3]}
	}))
	add(rule(`(?:send|transfer)\s+`+reAmt+`\s+\$?`+reSym+`(?:\s+tokens?)?\s+to\s+`+reAddr, proto("spl-token"), "transfer", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2], "to": m[3]}
	}))
	add(rule(`pay\s+`+reAddr+`\s+`+reAmt+`\s+sol`, proto("system"), "transfer", func(m []string) models.Params {
		return models.Params{"to": m[1], "amount": num(m[2])}
	}))
	add(rule(`pay\s+`+reAddr+`\s+`+reAmt+`\s+\$?`+reSym, proto("spl-token"), "transfer", func(m []string) models.Params {
		return models.Params{"to": m[1], "amount": num(m[2]), "token": m[3]}
	}))

	// ── Venue-qualified swaps (above the aggregator swaps) ──────────────────
	for _, venue := range []string{"raydium", "orca", "meteora"} {
		v := venue
		add(rule(`(?:swap|trade|exchange|convert)\s+`+reAmt+`\s+\$?`+reTok+`\s+(?:for|to|into)\s+\$?`+reTok+`\s+(?:on|via|using|through)\s+`+v, proto(v), "swap", func(m []string) models.Params {
			return models.Params{"amount": num(m[1]), "from": m[2], "to": m[3]}
		}))
	}
	add(rule(`buy\s+`+reAmt+`\s+sol\s+(?:worth\s+)?(?:of\s+)?\$?`+reTok+`\s+on\s+pump\.?fun`, proto("pumpfun"), "buy", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`sell\s+all\s+(?:my\s+)?\$?`+reTok+`\s+on\s+pump\.?fun`, proto("pumpfun"), "sell", func(m []string) models.Params {
		return models.Params{"amount": models.AmountAll, "token": m[1]}
	}))
	add(rule(`sell\s+`+reAmt+`\s+\$?`+reTok+`\s+on\s+pump\.?fun`, proto("pumpfun"), "sell", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))

	// ── Buys and sells by pair address ──────────────────────────────────────
	add(rule(`buy\s+`+reAmt+`\s+sol\s+(?:worth\s+)?(?:of\s+|from\s+)?pair\s+`+reAddr, resolvePair, "buy", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "pair": m[2]}
	}))
	add(rule(`sell\s+`+reAmt+`\s+(?:from\s+)?pair\s+`+reAddr, resolvePair, "sell", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "pair": m[2]}
	}))
	add(rule(`sell\s+(?:from\s+)?pair\s+`+reAddr, resolvePair, "sell", func(m []string) models.Params {
		return models.Params{"amount": models.AmountAll, "pair": m[1]}
	}))

	// ── Buys ────────────────────────────────────────────────────────────────
	add(rule(`buy\s+`+reAmt+`\s+sol\s+(?:worth\s+)?of\s+`+reAddr, resolveToken, "buy", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`buy\s+`+reAmt+`\s+sol\s+(?:worth\s+)?of\s+\$?`+reSym, proto("jupiter"), "buy", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`buy\s+`+reAddr+`\s+with\s+`+reAmt+`\s+sol`, resolveToken, "buy", func(m []string) models.Params {
		return models.Params{"token": m[1], "amount": num(m[2])}
	}))
	add(rule(`buy\s+\$?`+reSym+`\s+with\s+`+reAmt+`\s+sol`, proto("jupiter"), "buy", func(m []string) models.Params {
		return models.Params{"token": m[1], "amount": num(m[2])}
	}))
	add(rule(`spend\s+`+reAmt+`\s+sol\s+on\s+`+reAddr, resolveToken, "buy", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`spend\s+`+reAmt+`\s+sol\s+on\s+\$?`+reSym, proto("jupiter"), "buy", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`put\s+`+reAmt+`\s+sol\s+(?:into|in)\s+`+reAddr, resolveToken, "buy", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`put\s+`+reAmt+`\s+sol\s+(?:into|in)\s+\$?`+reSym, proto("jupiter"), "buy", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`(?:ape|yolo)\s+`+reAmt+`\s+sol\s+(?:into\s+)?`+reAddr, resolveToken, "buy", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`(?:ape|yolo)\s+`+reAmt+`\s+sol\s+(?:into\s+)?\$?`+reSym, proto("jupiter"), "buy", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`(?:ape|yolo)\s+(?:into\s+)?`+reAddr, resolveToken, "buy", func(m []string) models.Params {
		return models.Params{"amount": 0.1, "token": m[1]}
	}))
	add(rule(`(?:ape|yolo)\s+(?:into\s+)?\$?`+reSym, proto("jupiter"), "buy", func(m []string) models.Params {
		return models.Params{"amount": 0.1, "token": m[1]}
	}))
	add(rule(`long\s+\$?`+reSym+`\s+with\s+`+reAmt+`\s+sol`, proto("jupiter"), "buy", func(m []string) models.Params {
		return models.Params{"token": m[1], "amount": num(m[2])}
	}))
	add(rule(`long\s+\$?`+reSym, proto("jupiter"), "buy", func(m []string) models.Params {
		return models.Params{"token": m[1], "amount": float64(1)}
	}))
	add(rule(`short\s+\$?`+reSym, proto("jupiter"), "sell", func(m []string) models.Params {
		return models.Params{"token": m[1], "amount": models.AmountAll}
	}))

	// ── Sells ───────────────────────────────────────────────────────────────
	add(rule(`(?:sell|dump|exit)\s+all\s+(?:of\s+)?(?:my\s+)?`+reAddr, resolveToken, "sell", func(m []string) models.Params {
		return models.Params{"amount": models.AmountAll, "token": m[1]}
	}))
	add(rule(`(?:sell|dump|exit)\s+all\s+(?:of\s+)?(?:my\s+)?\$?`+reSym, proto("jupiter"), "sell", func(m []string) models.Params {
		return models.Params{"amount": models.AmountAll, "token": m[1]}
	}))
	add(rule(`(?:dump|exit)\s+(?:of\s+)?(?:my\s+)?`+reAddr, resolveToken, "sell", func(m []string) models.Params {
		return models.Params{"amount": models.AmountAll, "token": m[1]}
	}))
	add(rule(`(?:dump|exit)\s+(?:of\s+)?(?:my\s+)?\$?`+reSym, proto("jupiter"), "sell", func(m []string) models.Params {
		return models.Params{"amount": models.AmountAll, "token": m[1]}
	}))
	add(rule(`sell\s+`+reAmt+`\s+(?:of\s+)?`+reAddr, resolveToken, "sell", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))
	add(rule(`sell\s+`+reAmt+`\s+\$?`+reSym, proto("jupiter"), "sell", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "token": m[2]}
	}))

	// ── Aggregator swaps ────────────────────────────────────────────────────
	add(rule(`(?:swap|convert|trade|exchange)\s+`+reAmt+`\s+\$?`+reTok+`\s+(?:for|to|into)\s+\$?`+reTok+`\s+with\s+`+reAmt+`\s*%\s+slippage`, proto("jupiter"), "swap", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "from": m[2], "to": m[3], "slippageBps": float64(int(num(m[4]) * 100))}
	}))
	add(rule(`(?:swap|convert|trade|exchange|change)\s+`+reAmt+`\s+\$?`+reTok+`\s+(?:for|to|into)\s+\$?`+reTok, proto("jupiter"), "swap", func(m []string) models.Params {
		return models.Params{"amount": num(m[1]), "from": m[2], "to": m[3]}
	}))
	add(rule(`(?:swap|convert|change)\s+all\s+(?:of\s+)?(?:my\s+)?\$?`+reTok+`\s+(?:for|to|into)\s+\$?`+reTok, proto("jupiter"), "swap", func(m []string) models.Params {
		return models.Params{"amount": models.AmountAll, "from": m[1], "to": m[2]}
	}))
	add(rule(`(?:swap|convert|trade|exchange)\s+\$?`+reTok+`\s+(?:for|to|into)\s+\$?`+reTok, proto("jupiter"), "swap", func(m []string) models.Params {
		return models.Params{"amount": float64(1), "from": m[1], "to": m[2]}
	}))

	return bank
}

// matchPattern runs one rule against the case-preserving prompt first and the
// lowered rendering second, so captures keep their original casing whenever
// the raw text matches.
func matchPattern(p pattern, prompt, lowered string) []string {
	if m := p.re.FindStringSubmatch(prompt); m != nil {
		return m
	}
	return p.re.FindStringSubmatch(lowered)
}
