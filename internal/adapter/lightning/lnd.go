package lightning

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"lnurl-atm-gateway/config"
	"lnurl-atm-gateway/internal/adapter/resilience"
	"lnurl-atm-gateway/internal/core/domain"
	"lnurl-atm-gateway/internal/core/ports"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"github.com/lightningnetwork/lnd/macaroons"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"gopkg.in/macaroon.v2"
)

// PaymentError is a payment the node attempted and gave up on. It is a
// verdict about the route or the invoice, not about node health.
type PaymentError struct {
	Reason string
}

func (e *PaymentError) Error() string {
	return "payment failed: " + e.Reason
}

// FailureReason implements ports.PaymentFailure.
func (e *PaymentError) FailureReason() string { return e.Reason }

// LNDBackend pays invoices through lnd's router sub-server.
type LNDBackend struct {
	conn    *grpc.ClientConn
	router  routerrpc.RouterClient
	ln      lnrpc.LightningClient
	breaker *gobreaker.CircuitBreaker[*domain.Payment]
	timeout time.Duration
	log     zerolog.Logger
}

// DialLND connects to lnd using its TLS certificate and a macaroon file.
func DialLND(cfg config.LightningConfig, log zerolog.Logger) (*LNDBackend, error) {
	creds, err := credentials.NewClientTLSFromFile(cfg.LND.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("load TLS cert: %w", err)
	}

	macBytes, err := os.ReadFile(cfg.LND.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("read macaroon: %w", err)
	}
	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return nil, fmt.Errorf("decode macaroon: %w", err)
	}
	macCred, err := macaroons.NewMacaroonCredential(mac)
	if err != nil {
		return nil, fmt.Errorf("macaroon credential: %w", err)
	}

	conn, err := grpc.NewClient(cfg.LND.Host,
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(macCred),
	)
	if err != nil {
		return nil, fmt.Errorf("dial lnd %s: %w", cfg.LND.Host, err)
	}

	log.Info().Str("host", cfg.LND.Host).Msg("LND client configured")

	b := NewLNDBackend(routerrpc.NewRouterClient(conn), lnrpc.NewLightningClient(conn), cfg.PaymentTimeout, log)
	b.conn = conn
	return b, nil
}

// NewLNDBackend wires already-built gRPC clients.
func NewLNDBackend(router routerrpc.RouterClient, ln lnrpc.LightningClient, timeout time.Duration, log zerolog.Logger) *LNDBackend {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	bcfg := resilience.DefaultBreakerConfig("lnd")
	bcfg.IsSuccessful = func(err error) bool {
		var pe *PaymentError
		return err == nil || errors.As(err, &pe)
	}
	return &LNDBackend{
		router:  router,
		ln:      ln,
		breaker: resilience.NewBreaker[*domain.Payment](bcfg, log),
		timeout: timeout,
		log:     log,
	}
}

func (l *LNDBackend) Name() string { return "lnd" }

// PayInvoice sends the payment and waits for a final status. It never retries.
func (l *LNDBackend) PayInvoice(ctx context.Context, bolt11 string, feeLimitMsat int64) (*domain.Payment, error) {
	p, err := l.breaker.Execute(func() (*domain.Payment, error) {
		return l.pay(ctx, bolt11, feeLimitMsat)
	})
	if resilience.IsOpen(err) {
		return nil, resilience.ErrCircuitOpen
	}
	return p, err
}

func (l *LNDBackend) pay(ctx context.Context, bolt11 string, feeLimitMsat int64) (*domain.Payment, error) {
	timeout := l.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout < time.Second {
		timeout = time.Second
	}

	stream, err := l.router.SendPaymentV2(ctx, &routerrpc.SendPaymentRequest{
		PaymentRequest:    bolt11,
		FeeLimitMsat:      feeLimitMsat,
		TimeoutSeconds:    int32(timeout / time.Second),
		NoInflightUpdates: true,
	})
	if err != nil {
		return nil, fmt.Errorf("send payment: %w", err)
	}

	for {
		update, err := stream.Recv()
		if err != nil {
			// The request already reached the node; losing the stream says
			// nothing about whether the HTLC settles.
			return nil, fmt.Errorf("%w: payment stream: %w", ports.ErrPaymentOutcomeUnknown, err)
		}

		switch update.Status {
		case lnrpc.Payment_SUCCEEDED:
			l.log.Debug().
				Str("payment_hash", update.PaymentHash).
				Int64("fee_msat", update.FeeMsat).
				Msg("Payment settled")
			return &domain.Payment{
				PaymentHash: update.PaymentHash,
				Preimage:    update.PaymentPreimage,
				FeeMsat:     update.FeeMsat,
			}, nil
		case lnrpc.Payment_FAILED:
			return nil, &PaymentError{Reason: update.FailureReason.String()}
		}
	}
}

// Ping implements ports.HealthChecker.
func (l *LNDBackend) Ping(ctx context.Context) error {
	_, err := l.ln.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	return err
}

// Close releases the gRPC connection.
func (l *LNDBackend) Close() error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}
