package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/boursechain/boursechain/internal/domain"
	"github.com/boursechain/boursechain/internal/ledger"
)

// HoldingView is one portfolio position priced at the current market.
type HoldingView struct {
	Symbol            string
	Quantity          int64
	AverageBuyPrice   decimal.Decimal
	CurrentPrice      decimal.Decimal
	TotalValue        decimal.Decimal
	TotalInvested     decimal.Decimal
	ProfitLoss        decimal.Decimal
	ProfitLossPercent decimal.Decimal
}

// PortfolioView is an account's cash plus its marked-to-market holdings.
type PortfolioView struct {
	AccountID         string
	CashBalance       decimal.Decimal
	Holdings          []HoldingView
	TotalValue        decimal.Decimal
	TotalInvested     decimal.Decimal
	ProfitLoss        decimal.Decimal
	ProfitLossPercent decimal.Decimal
}

// AccountService handles account registration and portfolio queries.
type AccountService struct {
	store  ledger.Store
	logger *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(store ledger.Store, logger *slog.Logger) *AccountService {
	return &AccountService{store: store, logger: logger}
}

// Register creates an account with the given starting cash.
func (s *AccountService) Register(ctx context.Context, name string, initialCash float64) (*domain.Account, error) {
	if name == "" {
		return nil, &domain.ValidationError{Message: "name is required"}
	}
	cash := decimal.NewFromFloat(initialCash)
	if cash.IsNegative() {
		return nil, &domain.ValidationError{Message: "initial_cash must be >= 0"}
	}

	account := &domain.Account{
		ID:          uuid.New().String(),
		Name:        name,
		CashBalance: cash,
		CreatedAt:   time.Now().UTC(),
	}
	err := s.store.Update(ctx, func(tx ledger.Tx) error {
		return tx.CreateAccount(account)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("account registered", slog.String("account_id", account.ID))
	return account, nil
}

// Get retrieves an account by id.
func (s *AccountService) Get(ctx context.Context, id string) (*domain.Account, error) {
	var account *domain.Account
	err := s.store.View(ctx, func(tx ledger.Tx) error {
		a, err := tx.Account(id)
		if err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Portfolio returns the account's holdings marked to current prices,
// with per-position and aggregate profit/loss.
func (s *AccountService) Portfolio(ctx context.Context, accountID string) (*PortfolioView, error) {
	view := &PortfolioView{AccountID: accountID}
	err := s.store.View(ctx, func(tx ledger.Tx) error {
		account, err := tx.Account(accountID)
		if err != nil {
			return err
		}
		view.CashBalance = account.CashBalance

		holdings, err := tx.HoldingsByAccount(accountID)
		if err != nil {
			return err
		}
		for _, h := range holdings {
			if h.Quantity <= 0 {
				continue
			}
			stock, err := tx.Stock(h.Symbol)
			if err != nil {
				return err
			}
			qty := decimal.NewFromInt(h.Quantity)
			hv := HoldingView{
				Symbol:          h.Symbol,
				Quantity:        h.Quantity,
				AverageBuyPrice: h.AverageBuyPrice,
				CurrentPrice:    stock.CurrentPrice,
				TotalValue:      qty.Mul(stock.CurrentPrice),
				TotalInvested:   h.TotalInvested(),
			}
			hv.ProfitLoss = hv.TotalValue.Sub(hv.TotalInvested)
			if hv.TotalInvested.IsPositive() {
				hv.ProfitLossPercent = hv.ProfitLoss.Div(hv.TotalInvested).Mul(decimal.NewFromInt(100)).Round(2)
			}
			view.Holdings = append(view.Holdings, hv)
			view.TotalValue = view.TotalValue.Add(hv.TotalValue)
			view.TotalInvested = view.TotalInvested.Add(hv.TotalInvested)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	view.ProfitLoss = view.TotalValue.Sub(view.TotalInvested)
	if view.TotalInvested.IsPositive() {
		view.ProfitLossPercent = view.ProfitLoss.Div(view.TotalInvested).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return view, nil
}

// Deposit credits cash to an account. Used to fund accounts for trading.
func (s *AccountService) Deposit(ctx context.Context, accountID string, amount float64) (*domain.Account, error) {
	dec := decimal.NewFromFloat(amount)
	if !dec.IsPositive() {
		return nil, &domain.ValidationError{Message: "amount must be greater than 0"}
	}
	var account *domain.Account
	err := s.store.Update(ctx, func(tx ledger.Tx) error {
		a, err := tx.Account(accountID)
		if err != nil {
			return err
		}
		a.CashBalance = a.CashBalance.Add(dec)
		if err := tx.UpdateAccount(a); err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}
