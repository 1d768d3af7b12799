package payments

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shoptrace/shoptrace-api/pkg/config"
	"github.com/shoptrace/shoptrace-api/pkg/enums"
	pkgerrors "github.com/shoptrace/shoptrace-api/pkg/errors"
	"github.com/shoptrace/shoptrace-api/pkg/logger"
	"github.com/shopspring/decimal"
)

// Request carries the fields a charge attempt needs.
type Request struct {
	OrderID int64
	Amount  decimal.Decimal
	Method  enums.PaymentMethod
}

// Transaction is the gateway's record of a processed charge.
type Transaction struct {
	ID             string              `json:"id"`
	OrderID        int64               `json:"order_id"`
	Amount         decimal.Decimal     `json:"amount"`
	Method         enums.PaymentMethod `json:"method"`
	Refunded       bool                `json:"refunded"`
	RefundedAmount decimal.Decimal     `json:"refunded_amount"`
}

// DeclineDetail explains why a charge was rejected.
type DeclineDetail struct {
	Reason string `json:"reason"`
}

// Gateway abstracts the payment processor so order flows can swap in a
// deterministic implementation under test.
type Gateway interface {
	Process(ctx context.Context, req Request) (*Transaction, error)
	Verify(ctx context.Context, transactionID string) (bool, error)
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error
}

var declineReasons = []string{
	"card_declined",
	"insufficient_funds",
	"expired_card",
	"processor_unavailable",
}

// simulatedGateway approximates a third-party processor: every call takes a
// randomized amount of time and a configurable fraction of charges decline.
type simulatedGateway struct {
	cfg  config.PaymentConfig
	logg *logger.Logger

	mu           sync.Mutex
	rng          *rand.Rand
	transactions map[string]*Transaction
}

// NewSimulatedGateway constructs the default in-process gateway.
func NewSimulatedGateway(cfg config.PaymentConfig, logg *logger.Logger) (Gateway, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.FailureRate < 0 || cfg.FailureRate > 1 {
		return nil, fmt.Errorf("failure rate must be within [0, 1], got %f", cfg.FailureRate)
	}
	return &simulatedGateway{
		cfg:          cfg,
		logg:         logg,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		transactions: map[string]*Transaction{},
	}, nil
}

func (g *simulatedGateway) Process(ctx context.Context, req Request) (*Transaction, error) {
	if req.Amount.IsNegative() || req.Amount.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}
	if !req.Method.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}

	if err := g.simulateLatency(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	declined := g.rng.Float64() < g.cfg.FailureRate
	var reason string
	if declined {
		reason = declineReasons[g.rng.Intn(len(declineReasons))]
	}
	g.mu.Unlock()

	if declined {
		g.logg.Warn(ctx, "payment declined")
		return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, "charge declined by processor").
			WithDetails(DeclineDetail{Reason: reason})
	}

	txn := &Transaction{
		ID:      "txn_" + uuid.NewString(),
		OrderID: req.OrderID,
		Amount:  req.Amount,
		Method:  req.Method,
	}

	g.mu.Lock()
	g.transactions[txn.ID] = txn
	g.mu.Unlock()

	return txn, nil
}

func (g *simulatedGateway) Verify(ctx context.Context, transactionID string) (bool, error) {
	if err := g.simulateLatency(ctx); err != nil {
		return false, err
	}

	g.mu.Lock()
	txn, ok := g.transactions[transactionID]
	g.mu.Unlock()

	return ok && !txn.Refunded, nil
}

func (g *simulatedGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	if amount.IsNegative() || amount.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	if err := g.simulateLatency(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	txn, ok := g.transactions[transactionID]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if txn.Refunded {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction already refunded")
	}
	if amount.GreaterThan(txn.Amount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds charged amount")
	}
	txn.Refunded = true
	txn.RefundedAmount = amount
	return nil
}

// simulateLatency sleeps a uniformly random duration between the configured
// bounds, honoring context cancellation.
func (g *simulatedGateway) simulateLatency(ctx context.Context) error {
	min := g.cfg.MinLatency
	max := g.cfg.MaxLatency
	if max < min {
		max = min
	}

	delay := min
	if span := max - min; span > 0 {
		g.mu.Lock()
		delay += time.Duration(g.rng.Int63n(int64(span)))
		g.mu.Unlock()
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "payment processor call cancelled")
	case <-timer.C:
		return nil
	}
}
