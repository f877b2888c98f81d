package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"lnurl-atm-gateway/config"
	"lnurl-atm-gateway/internal/core/domain"
	"lnurl-atm-gateway/internal/core/ports"
	"lnurl-atm-gateway/internal/telemetry"
	"lnurl-atm-gateway/pkg/apperror"
	"lnurl-atm-gateway/pkg/lnurlsig"
	"lnurl-atm-gateway/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	phaseInfo   = "info"
	phaseAction = "action"

	codePaymentPending = "PAY_005"
)

// Query keys read by the withdraw endpoint, after expansion.
const (
	paramAPIKeyID    = "id"
	paramFiat        = "f"
	paramUses        = "uses"
	paramK1          = "k1"
	paramInvoice     = "pr"
	paramMin         = "minWithdrawable"
	paramMax         = "maxWithdrawable"
	paramDescription = "defaultDescription"
)

// WithdrawDeps groups the collaborators of WithdrawServiceImpl.
type WithdrawDeps struct {
	Devices    ports.DeviceRepository
	Records    ports.WithdrawRecordStore
	Wallets    ports.WalletRepository
	Transactor ports.DBTransactor
	Rates      ports.RateConverter
	Claims     ports.PaymentClaimStore
	Decoder    ports.InvoiceDecoder
	Backend    ports.LightningBackend
	Signer     ports.SignatureService
	Cipher     ports.EncryptionService
	Lightning  config.LightningConfig
	Withdraw   config.WithdrawConfig
	Tracer     trace.Tracer               // optional
	Metrics    *telemetry.WithdrawMetrics // optional
	Log        zerolog.Logger
}

// WithdrawServiceImpl implements ports.WithdrawService.
type WithdrawServiceImpl struct {
	devices    ports.DeviceRepository
	records    ports.WithdrawRecordStore
	wallets    ports.WalletRepository
	transactor ports.DBTransactor
	rates      ports.RateConverter
	claims     ports.PaymentClaimStore
	decoder    ports.InvoiceDecoder
	backend    ports.LightningBackend
	signer     ports.SignatureService
	cipher     ports.EncryptionService
	lightning  config.LightningConfig
	withdraw   config.WithdrawConfig
	tracer     trace.Tracer
	metrics    *telemetry.WithdrawMetrics
	now        func() time.Time
	log        zerolog.Logger
}

func NewWithdrawService(d WithdrawDeps) *WithdrawServiceImpl {
	tracer := d.Tracer
	if tracer == nil {
		tracer = otel.Tracer(telemetry.ScopeName)
	}
	w := d.Withdraw
	if w.MaxUses < 1 {
		w.MaxUses = 1
	}
	if w.ClaimTTL <= 0 {
		w.ClaimTTL = 5 * time.Minute
	}
	ln := d.Lightning
	if ln.PaymentTimeout <= 0 {
		ln.PaymentTimeout = 60 * time.Second
	}
	return &WithdrawServiceImpl{
		devices:    d.Devices,
		records:    d.Records,
		wallets:    d.Wallets,
		transactor: d.Transactor,
		rates:      d.Rates,
		claims:     d.Claims,
		decoder:    d.Decoder,
		backend:    d.Backend,
		signer:     d.Signer,
		cipher:     d.Cipher,
		lightning:  ln,
		withdraw:   w,
		tracer:     tracer,
		metrics:    d.Metrics,
		now:        time.Now,
		log:        d.Log,
	}
}

// Handle dispatches one callback. Queries carrying a signature (after
// expansion of compact keys) are info requests; all others are action
// requests keyed by k1.
func (s *WithdrawServiceImpl) Handle(ctx context.Context, req ports.WithdrawRequest) (*ports.WithdrawOffer, error) {
	query := req.Query
	// A compact signature alone still marks an info request.
	if hasAny(query, "tag", "t", "s") {
		expanded, err := lnurlsig.Expand(query)
		if err != nil {
			return nil, s.finish(ctx, nil, phaseInfo, toAppError(err))
		}
		query = expanded
	}

	if _, signed := query[lnurlsig.SignatureKey]; signed {
		ctx, span := s.tracer.Start(ctx, "withdraw.info")
		offer, err := s.info(ctx, query, req.CallbackURL)
		return offer, s.finish(ctx, span, phaseInfo, err)
	}

	ctx, span := s.tracer.Start(ctx, "withdraw.action")
	offer, err := s.action(ctx, query, req.CallbackURL)
	return offer, s.finish(ctx, span, phaseAction, err)
}

func (s *WithdrawServiceImpl) finish(ctx context.Context, span trace.Span, phase string, err error) error {
	code := ""
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
	} else if err != nil {
		code = "SYS_001"
	}
	s.metrics.RecordRequest(ctx, phase, code)

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, code)
		}
		span.End()
	}
	return err
}

// info validates a signed withdrawRequest and issues (or re-issues) a session.
func (s *WithdrawServiceImpl) info(ctx context.Context, query map[string]string, callback string) (*ports.WithdrawOffer, error) {
	tag := query["tag"]
	if tag == "" {
		return nil, apperror.LNURLValidation(`Missing required query parameter: "tag"`)
	}
	if tag != lnurlsig.TagWithdrawRequest {
		return nil, apperror.LNURLValidation(fmt.Sprintf("Unsupported subprotocol: %q", tag))
	}

	minAmount, err := floatParam(query, paramMin)
	if err != nil {
		return nil, err
	}
	maxAmount, err := floatParam(query, paramMax)
	if err != nil {
		return nil, err
	}
	if err := checkBounds(minAmount, maxAmount); err != nil {
		return nil, err
	}

	apiKeyID := query[paramAPIKeyID]
	if apiKeyID == "" {
		return nil, apperror.ErrUnknownAPIKey()
	}
	device, err := s.devices.GetByAPIKeyID(ctx, apiKeyID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get device by api key: %w", err))
	}
	if device == nil {
		return nil, apperror.ErrUnknownAPIKey()
	}

	secret, err := s.cipher.Decrypt(device.APIKeySecretEnc)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("decrypt device secret: %w", err))
	}
	if !s.signer.Verify(query, secret, device.APIKeyEncoding) {
		s.log.Warn().
			Str("api_key_id", apiKeyID).
			Str("signature", logger.Redact(query[lnurlsig.SignatureKey])).
			Msg("withdraw request with invalid signature")
		return nil, apperror.ErrInvalidSignature()
	}

	params := domain.WithdrawParams{DefaultDescription: query[paramDescription]}
	if fiat, ok := query[paramFiat]; ok {
		if !device.AcceptsCurrency(fiat) {
			return nil, apperror.ErrUnsupportedFiat(fiat)
		}
		if params.MinWithdrawable, err = s.rates.ToMsat(ctx, minAmount, device.FiatCurrency, device.ExchangeRateProvider, device.Fee); err != nil {
			return nil, err
		}
		if params.MaxWithdrawable, err = s.rates.ToMsat(ctx, maxAmount, device.FiatCurrency, device.ExchangeRateProvider, device.Fee); err != nil {
			return nil, err
		}
		if err := checkBounds(float64(params.MinWithdrawable), float64(params.MaxWithdrawable)); err != nil {
			return nil, err
		}
	} else {
		params.MinWithdrawable = int64(math.Floor(minAmount))
		params.MaxWithdrawable = int64(math.Floor(maxAmount))
		if err := checkBounds(float64(params.MinWithdrawable), float64(params.MaxWithdrawable)); err != nil {
			return nil, err
		}
	}

	uses := s.sessionUses(query)
	k1 := lnurlsig.DeriveSecret(apiKeyID, query[lnurlsig.SignatureKey])

	record, err := s.records.Create(ctx, device, k1, tag, params, uses)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create withdraw session: %w", err))
	}

	s.log.Info().
		Str("api_key_id", apiKeyID).
		Str("record_id", record.ID.String()).
		Int64("min_msat", record.Params.MinWithdrawable).
		Int64("max_msat", record.Params.MaxWithdrawable).
		Int("remaining_uses", record.RemainingUses).
		Msg("withdraw session issued")

	return offerFor(record, k1, callback), nil
}

// action redeems one use of a session by paying the wallet's invoice.
func (s *WithdrawServiceImpl) action(ctx context.Context, query map[string]string, callback string) (*ports.WithdrawOffer, error) {
	k1 := query[paramK1]
	if k1 == "" {
		return nil, apperror.ErrMissingSecret()
	}
	record, err := s.records.GetBySecret(ctx, k1)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get withdraw session: %w", err))
	}
	if record == nil {
		return nil, apperror.ErrInvalidSecret()
	}
	if !record.HasUsesRemaining() {
		return nil, apperror.ErrUsesExhausted()
	}

	bolt11 := query[paramInvoice]
	if bolt11 == "" {
		return offerFor(record, k1, callback), nil
	}

	inv, err := s.decoder.Decode(bolt11)
	if err != nil {
		return nil, apperror.ErrInvalidInvoice(err)
	}
	if inv.Expired(s.now()) {
		return nil, apperror.ErrInvoiceExpired()
	}
	if !record.Params.Allows(inv.AmountMsat) {
		return nil, apperror.ErrAmountOutOfRange(record.Params.MinWithdrawable, record.Params.MaxWithdrawable)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("payment_hash", inv.PaymentHash),
		attribute.Int64("amount_msat", inv.AmountMsat),
	)

	claimed, err := s.claims.Claim(ctx, inv.PaymentHash, s.withdraw.ClaimTTL)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("claim invoice: %w", err))
	}
	if !claimed {
		return nil, apperror.ErrInvoiceInFlight()
	}

	if err := s.redeem(ctx, record, k1, inv); err != nil {
		// A pending payment may still settle, so its hash stays claimed.
		if !apperror.HasCode(err, codePaymentPending) {
			s.release(ctx, inv.PaymentHash)
		}
		return nil, err
	}
	return nil, nil
}

// redeem consumes one use, debits the wallet, and pays the invoice.
func (s *WithdrawServiceImpl) redeem(ctx context.Context, record *domain.WithdrawRecord, k1 string, inv *domain.Invoice) error {
	reserve := s.lightning.FeeReserve(inv.AmountMsat)
	debit := inv.AmountMsat + reserve

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.wallets.GetByIDForUpdate(ctx, dbTx, record.WalletID)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrWalletNotFound()
	}
	if !wallet.CanCover(debit) {
		return apperror.ErrInsufficientFunds(wallet.BalanceMsat, debit)
	}

	consumed, err := s.records.ConsumeOneTx(ctx, dbTx, k1)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("consume use: %w", err))
	}
	if !consumed {
		return apperror.ErrUsesExhausted()
	}

	if err := s.wallets.AdjustBalance(ctx, dbTx, wallet.ID, -debit); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("debit wallet: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	log := s.log.With().
		Str("record_id", record.ID.String()).
		Str("payment_hash", inv.PaymentHash).
		Int64("amount_msat", inv.AmountMsat).
		Logger()

	// The client hanging up must not abort a payment that is already routing.
	payCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.lightning.PaymentTimeout)
	defer cancel()
	payment, err := s.backend.PayInvoice(payCtx, inv.PaymentRequest, reserve)
	if isOutcomeUnknown(err) {
		log.Error().Int64("held_msat", debit).Msg("withdraw payment outcome unknown, funds held for reconciliation")
		return apperror.ErrPaymentPending()
	}
	if err != nil {
		// The use stays consumed; only the funds go back.
		s.credit(ctx, wallet.ID, debit, log)
		log.Error().Err(err).Msg("withdraw payment failed")
		return apperror.ErrPaymentFailed(failureReason(err), err)
	}

	if refund := reserve - payment.FeeMsat; refund > 0 {
		s.credit(ctx, wallet.ID, refund, log)
	}

	s.metrics.RecordPaid(ctx, inv.AmountMsat, s.backend.Name())
	log.Info().Int64("fee_msat", payment.FeeMsat).Msg("withdraw paid")
	return nil
}

// credit returns funds to a wallet after the payment call. It runs detached
// from the request so a disconnecting client cannot lose the refund.
func (s *WithdrawServiceImpl) credit(ctx context.Context, walletID uuid.UUID, amountMsat int64, log zerolog.Logger) {
	ctx = context.WithoutCancel(ctx)

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		log.Error().Err(err).Int64("credit_msat", amountMsat).Msg("wallet credit failed")
		return
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.wallets.AdjustBalance(ctx, dbTx, walletID, amountMsat); err != nil {
		log.Error().Err(err).Int64("credit_msat", amountMsat).Msg("wallet credit failed")
		return
	}
	if err := dbTx.Commit(ctx); err != nil {
		log.Error().Err(err).Int64("credit_msat", amountMsat).Msg("wallet credit failed")
	}
}

func (s *WithdrawServiceImpl) release(ctx context.Context, paymentHash string) {
	if err := s.claims.Release(context.WithoutCancel(ctx), paymentHash); err != nil {
		s.log.Warn().Err(err).Str("payment_hash", paymentHash).Msg("failed to release invoice claim")
	}
}

// sessionUses reads the optional "uses" parameter, capped at the configured maximum.
func (s *WithdrawServiceImpl) sessionUses(query map[string]string) int {
	n, err := strconv.Atoi(query[paramUses])
	if err != nil || n < 1 {
		return 1
	}
	if n > s.withdraw.MaxUses {
		return s.withdraw.MaxUses
	}
	return n
}

func offerFor(record *domain.WithdrawRecord, k1, callback string) *ports.WithdrawOffer {
	return &ports.WithdrawOffer{
		Tag:                record.Tag,
		Callback:           callback,
		K1:                 k1,
		MinWithdrawable:    record.Params.MinWithdrawable,
		MaxWithdrawable:    record.Params.MaxWithdrawable,
		DefaultDescription: record.Params.DefaultDescription,
	}
}

func floatParam(query map[string]string, name string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(query[name]), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, apperror.LNURLValidation(fmt.Sprintf("Missing or invalid query parameter: %q", name))
	}
	return v, nil
}

func checkBounds(minAmount, maxAmount float64) error {
	if minAmount <= 0 {
		return apperror.LNURLValidation(`"minWithdrawable" must be greater than zero`)
	}
	if maxAmount < minAmount {
		return apperror.LNURLValidation(`"maxWithdrawable" must be greater than or equal to "minWithdrawable"`)
	}
	return nil
}

// isOutcomeUnknown reports whether a payment error leaves the HTLC possibly
// in flight. Only definite failures may be refunded.
func isOutcomeUnknown(err error) bool {
	return errors.Is(err, ports.ErrPaymentOutcomeUnknown) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func failureReason(err error) string {
	var pf ports.PaymentFailure
	if errors.As(err, &pf) && pf.FailureReason() != "" {
		return pf.FailureReason()
	}
	return "Payment failed"
}

func toAppError(err error) error {
	var expErr *lnurlsig.ExpandError
	if errors.As(err, &expErr) {
		return apperror.LNURLValidation(expErr.Msg)
	}
	return err
}

func hasAny(query map[string]string, keys ...string) bool {
	for _, k := range keys {
		if _, ok := query[k]; ok {
			return true
		}
	}
	return false
}
