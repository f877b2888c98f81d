package service

import (
	"context"
	"fmt"
	"time"

	"lnurl-atm-gateway/internal/core/domain"
	"lnurl-atm-gateway/internal/core/ports"
	"lnurl-atm-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type walletService struct {
	wallets    ports.WalletRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewWalletService creates the funding wallet service.
func NewWalletService(wallets ports.WalletRepository, transactor ports.DBTransactor, log zerolog.Logger) ports.WalletService {
	return &walletService{wallets: wallets, transactor: transactor, log: log}
}

func (s *walletService) Create(ctx context.Context, operatorID uuid.UUID, name string) (*domain.Wallet, error) {
	now := time.Now().UTC()
	w := &domain.Wallet{
		ID:        uuid.New(),
		OwnerID:   operatorID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.wallets.Create(ctx, w); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create wallet: %w", err))
	}
	return w, nil
}

func (s *walletService) List(ctx context.Context, operatorID uuid.UUID) ([]domain.Wallet, error) {
	wallets, err := s.wallets.ListByOwner(ctx, operatorID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if wallets == nil {
		wallets = []domain.Wallet{}
	}
	return wallets, nil
}

func (s *walletService) Get(ctx context.Context, operatorID, walletID uuid.UUID) (*domain.Wallet, error) {
	w, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if w == nil || w.OwnerID != operatorID {
		return nil, apperror.ErrWalletNotFound()
	}
	return w, nil
}

// Topup credits amountMsat under a row lock.
func (s *walletService) Topup(ctx context.Context, operatorID, walletID uuid.UUID, amountMsat int64) (*domain.Wallet, error) {
	if amountMsat <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	w, err := s.wallets.GetByIDForUpdate(ctx, dbTx, walletID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock wallet: %w", err))
	}
	if w == nil || w.OwnerID != operatorID {
		return nil, apperror.ErrWalletNotFound()
	}

	if err := s.wallets.AdjustBalance(ctx, dbTx, w.ID, amountMsat); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("credit wallet: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	w.BalanceMsat += amountMsat
	w.UpdatedAt = time.Now().UTC()

	s.log.Info().
		Str("wallet_id", w.ID.String()).
		Int64("amount_msat", amountMsat).
		Int64("balance_msat", w.BalanceMsat).
		Msg("wallet topped up")
	return w, nil
}
