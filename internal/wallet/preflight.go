package wallet

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/units"
)

// sendPlan is the outcome of a successful balance check.
type sendPlan struct {
	token     domain.TokenDescriptor
	source    domain.AccountBalanceRecord
	available decimal.Decimal
}

// preflight verifies owner can send amount of tok and picks the account to
// debit. A zero or unreadable aggregate is re-checked by direct enumeration
// so an empty wallet and a failed read produce different errors. A partial
// aggregate is trusted only when the canonical account covers amount.
func (s *Service) preflight(ctx context.Context, owner string, tok domain.TokenDescriptor, amount decimal.Decimal) (*sendPlan, error) {
	name := label(tok)

	var records []domain.AccountBalanceRecord
	bal, err := s.aggregator.TokenBalanceDetail(ctx, owner, tok.Mint)
	switch {
	case err == nil && bal.Partial && bal.Total.IsPositive():
		// Only the canonical account is known; other accounts may hold more.
		if _, ok := pickSource(bal.Records, amount); !ok {
			return nil, domain.Errorf(domain.CodeBalanceCheckUnavailable,
				"Could not verify your %s balance right now; please try again", name)
		}
		records = bal.Records
	case err == nil && bal.Total.IsPositive():
		records = bal.Records
	default:
		if err != nil {
			s.logger.Debug("aggregate token balance failed, enumerating directly",
				zap.String("mint", tok.Mint), zap.Error(err))
		}
		records, err = s.aggregator.TokenAccounts(ctx, owner, tok.Mint)
		if err != nil {
			return nil, domain.NewError(domain.CodeBalanceCheckUnavailable,
				fmt.Sprintf("Could not verify your %s balance right now; please try again", name), err)
		}
		if len(records) == 0 {
			return nil, domain.Errorf(domain.CodeNoTokenAccount,
				"You don't have a %s account; receive %s before sending it", name, name)
		}
	}

	total := sumRecords(records)
	if !total.IsPositive() {
		return nil, domain.Errorf(domain.CodeZeroBalance,
			"You have a %s account but it has zero balance", name)
	}
	if amount.GreaterThan(total) {
		return nil, domain.Errorf(domain.CodeInsufficientBalance,
			"Insufficient %s balance: you have %s, tried to send %s", name, total.String(), amount.String())
	}

	source, ok := pickSource(records, amount)
	if !ok {
		largest := records[0]
		for _, r := range records[1:] {
			if r.Amount.GreaterThan(largest.Amount) {
				largest = r
			}
		}
		return nil, domain.Errorf(domain.CodeInsufficientBalance,
			"Your %s is split across %d accounts and the largest holds %s; send at most that in one transfer",
			name, len(records), largest.Amount.String())
	}

	if source.Decimals != tok.Decimals {
		s.logger.Warn("token precision differs from configuration, using ledger value",
			zap.String("mint", tok.Mint),
			zap.Uint8("configured", tok.Decimals),
			zap.Uint8("ledger", source.Decimals))
		tok.Decimals = source.Decimals
	}

	return &sendPlan{token: tok, source: source, available: total}, nil
}

// pickSource prefers the canonical account, then the largest single account
// able to cover amount on its own.
func pickSource(records []domain.AccountBalanceRecord, amount decimal.Decimal) (domain.AccountBalanceRecord, bool) {
	candidates := make([]domain.AccountBalanceRecord, 0, len(records))
	for _, r := range records {
		need, err := units.ToRaw(amount, r.Decimals)
		if err != nil || r.Raw < need {
			continue
		}
		if r.Canonical {
			return r, true
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return domain.AccountBalanceRecord{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Amount.GreaterThan(candidates[j].Amount)
	})
	return candidates[0], true
}

func sumRecords(records []domain.AccountBalanceRecord) decimal.Decimal {
	amounts := make([]units.RawAmount, 0, len(records))
	for _, r := range records {
		amounts = append(amounts, units.RawAmount{Raw: r.Raw, Decimals: r.Decimals})
	}
	return units.SumRaw(amounts)
}
