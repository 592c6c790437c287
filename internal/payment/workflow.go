// Package payment runs the pay-to-unlock workflow for a single market: fetch
// the detail or invoice, pay it on chain, wait for the indexer, verify with
// the backend, and remember the result.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/fortune/internal/chain"
	"github.com/alanyoungcy/fortune/internal/domain"
)

// State is the workflow's position in idle -> sending -> verifying -> success.
type State int

const (
	StateIdle State = iota
	StateSending
	StateVerifying
	StateSuccess
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateVerifying:
		return "verifying"
	case StateSuccess:
		return "success"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{StateIdle, StateSending, StateVerifying, StateSuccess} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("payment: unknown state %q", b)
}

// Outcome says how RequestUnlock resolved.
type Outcome int

const (
	OutcomeCached Outcome = iota + 1
	OutcomeUnlocked
	OutcomePaymentRequired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCached:
		return "cached"
	case OutcomeUnlocked:
		return "unlocked"
	case OutcomePaymentRequired:
		return "payment_required"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// API is the backend surface the workflow needs.
type API interface {
	GetEventDetail(ctx context.Context, marketID string) (domain.MarketDetail, error)
	VerifyPayment(ctx context.Context, marketID string, proof domain.PaymentProof) (domain.UnlockedResult, error)
}

// Notifier receives workflow notifications. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notification event types.
const (
	EventUnlockSuccess = "unlock_success"
	EventPaymentFailed = "payment_failed"
)

// Audit event names.
const (
	auditInvoiceIssued  = "invoice_issued"
	auditPaymentStarted = "payment_started"
	auditTxSubmitted    = "tx_submitted"
	auditPaymentFailed  = "payment_failed"
	auditUnlocked       = "payment_verified"
)

// Config holds the tunables of a payment attempt.
type Config struct {
	GasLimit        uint64
	DefaultDecimals uint8
	Confirmations   uint64
	IndexingGrace   time.Duration
	BlindWait       time.Duration
	LockTTL         time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		GasLimit:        300_000,
		DefaultDecimals: 6,
		Confirmations:   1,
		IndexingGrace:   5 * time.Second,
		BlindWait:       10 * time.Second,
		LockTTL:         10 * time.Minute,
	}
}

// Deps are the collaborators of a workflow. API and Cache are required; a
// nil Wallet means no account is connected and a nil Chain means
// confirmations cannot be observed, so a fixed wait is used instead.
type Deps struct {
	API      API
	Cache    domain.UnlockCache
	Wallet   domain.Wallet
	Chain    domain.ChainReader
	Audit    domain.AuditStore
	Receipts domain.ReceiptArchiver
	Locks    domain.LockManager
	Notifier Notifier
}

// Snapshot is a consistent copy of the workflow state for rendering.
type Snapshot struct {
	MarketID   string                 `json:"market_id"`
	State      State                  `json:"state"`
	Message    string                 `json:"message,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Progress   string                 `json:"progress,omitempty"`
	Invoice    *domain.PaymentInvoice `json:"invoice,omitempty"`
	Countdown  string                 `json:"countdown,omitempty"`
	CanConfirm bool                   `json:"can_confirm"`
	TxHash     string                 `json:"tx_hash,omitempty"`
	AttemptID  string                 `json:"attempt_id,omitempty"`
	Result     *domain.UnlockedResult `json:"result,omitempty"`
}

// Listener is called with a fresh snapshot after every state change and on
// every countdown tick.
type Listener func(Snapshot)

// Option configures a Workflow.
type Option func(*Workflow)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// WithSleep overrides how fixed waits are performed.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(w *Workflow) { w.sleep = sleep }
}

// WithTickInterval sets the countdown refresh period.
func WithTickInterval(d time.Duration) Option {
	return func(w *Workflow) { w.tick = d }
}

// Workflow is the unlock state machine of one market. Only one payment
// attempt may be in flight at a time.
type Workflow struct {
	marketID string
	cfg      Config
	deps     Deps
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	tick     time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	invoice   *domain.PaymentInvoice
	message   string
	errMsg    string
	progress  string
	txHash    string
	attemptID string
	result    *domain.UnlockedResult
	stopTick  chan struct{}

	lmu       sync.Mutex
	listeners []Listener
}

// NewWorkflow creates an idle workflow for marketID.
func NewWorkflow(marketID string, cfg Config, deps Deps, logger *slog.Logger, opts ...Option) *Workflow {
	w := &Workflow{
		marketID: marketID,
		cfg:      cfg,
		deps:     deps,
		now:      time.Now,
		sleep:    sleepCtx,
		tick:     time.Second,
		logger:   logger.With(slog.String("component", "payment"), slog.String("market_id", marketID)),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// MarketID returns the market this workflow unlocks.
func (w *Workflow) MarketID() string { return w.marketID }

// Subscribe registers fn for snapshots. The returned func removes it.
func (w *Workflow) Subscribe(fn Listener) (unsubscribe func()) {
	w.lmu.Lock()
	w.listeners = append(w.listeners, fn)
	idx := len(w.listeners) - 1
	w.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.lmu.Lock()
			w.listeners[idx] = nil
			w.lmu.Unlock()
		})
	}
}

// Snapshot returns the current state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workflow) snapshotLocked() Snapshot {
	s := Snapshot{
		MarketID:  w.marketID,
		State:     w.state,
		Message:   w.message,
		Error:     w.errMsg,
		Progress:  w.progress,
		TxHash:    w.txHash,
		AttemptID: w.attemptID,
	}
	if w.invoice != nil {
		inv := *w.invoice
		s.Invoice = &inv
		s.Countdown = Countdown(inv.ExpiresAt, w.now())
		s.CanConfirm = w.state == StateIdle && !inv.Expired(w.now())
	}
	if w.result != nil {
		res := *w.result
		s.Result = &res
	}
	return s
}

// RequestUnlock checks the cache and otherwise asks the backend for the
// market's detail. A payment-required answer leaves the invoice held and the
// workflow idle; a direct result moves it to success. Request errors are
// reported once through the snapshot and returned.
func (w *Workflow) RequestUnlock(ctx context.Context) (Outcome, error) {
	w.mu.Lock()
	if w.busyLocked() {
		w.mu.Unlock()
		return 0, domain.ErrPaymentInProgress
	}
	w.mu.Unlock()

	if res, ok := w.deps.Cache.Get(ctx, w.marketID); ok {
		w.logger.DebugContext(ctx, "unlock served from cache")
		w.mu.Lock()
		w.resetLocked()
		w.state = StateSuccess
		w.result = &res
		w.mu.Unlock()
		w.emit()
		return OutcomeCached, nil
	}

	detail, err := w.deps.API.GetEventDetail(ctx, w.marketID)
	if err != nil {
		w.logger.WarnContext(ctx, "detail request failed", slog.String("error", err.Error()))
		w.mu.Lock()
		w.resetLocked()
		w.errMsg = err.Error()
		w.mu.Unlock()
		w.emit()
		return 0, err
	}

	switch detail.Kind {
	case domain.DetailPaymentRequired:
		inv := *detail.Invoice
		w.mu.Lock()
		w.resetLocked()
		w.invoice = &inv
		w.message = detail.Message
		w.startTickerLocked()
		w.mu.Unlock()
		w.audit(ctx, auditInvoiceIssued, map[string]any{
			"reference":  inv.Reference,
			"amount":     inv.AmountUnits,
			"currency":   inv.Currency,
			"expires_at": inv.ExpiresAt.Unix(),
		})
		w.emit()
		return OutcomePaymentRequired, nil

	case domain.DetailUnlocked:
		res := *detail.Result
		w.mu.Lock()
		w.resetLocked()
		w.state = StateSuccess
		w.result = &res
		w.mu.Unlock()
		w.emit()
		return OutcomeUnlocked, nil
	}

	err = fmt.Errorf("payment: unexpected detail kind %d", detail.Kind)
	w.mu.Lock()
	w.errMsg = err.Error()
	w.mu.Unlock()
	w.emit()
	return 0, err
}

// ConfirmPayment pays the held invoice and verifies it. On failure the
// workflow returns to idle with a user message and keeps the invoice for a
// retry. It blocks until the attempt finishes.
func (w *Workflow) ConfirmPayment(ctx context.Context) (domain.UnlockedResult, error) {
	inv, err := w.begin()
	if err != nil {
		w.emit()
		return domain.UnlockedResult{}, err
	}
	w.emit()
	return w.finish(ctx, inv)
}

// StartPayment is ConfirmPayment without the wait: preconditions are checked
// on the caller's goroutine and the attempt then runs in the background.
// done, if non-nil, is called with the outcome.
func (w *Workflow) StartPayment(ctx context.Context, done func(domain.UnlockedResult, error)) error {
	inv, err := w.begin()
	w.emit()
	if err != nil {
		return err
	}
	go func() {
		res, err := w.finish(ctx, inv)
		if done != nil {
			done(res, err)
		}
	}()
	return nil
}

func (w *Workflow) finish(ctx context.Context, inv domain.PaymentInvoice) (domain.UnlockedResult, error) {
	res, err := w.pay(ctx, inv)
	if err != nil {
		w.fail(ctx, inv, err)
		return domain.UnlockedResult{}, err
	}
	w.succeed(ctx, inv, res)
	return res, nil
}

// Close discards the held invoice and returns to idle. A finished result is
// kept. Close does not interrupt an attempt already in flight.
func (w *Workflow) Close() {
	w.mu.Lock()
	if w.busyLocked() {
		w.mu.Unlock()
		return
	}
	result := w.result
	success := w.state == StateSuccess
	w.resetLocked()
	if success {
		w.state = StateSuccess
		w.result = result
	}
	w.mu.Unlock()
	w.emit()
}

// begin validates preconditions and moves idle -> sending.
func (w *Workflow) begin() (domain.PaymentInvoice, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.busyLocked() {
		return domain.PaymentInvoice{}, domain.ErrPaymentInProgress
	}

	var err error
	switch {
	case w.deps.Wallet == nil:
		err = domain.ErrWalletNotConnected
	case w.invoice == nil:
		err = domain.ErrNoInvoice
	case strings.TrimSpace(w.invoice.ContractAddress) == "":
		err = domain.ErrMissingContract
	case w.invoice.Expired(w.now()):
		err = domain.ErrInvoiceExpired
	}
	if err != nil {
		w.errMsg = UserMessage(err)
		return domain.PaymentInvoice{}, err
	}

	w.state = StateSending
	w.errMsg = ""
	w.progress = ""
	w.txHash = ""
	w.attemptID = uuid.NewString()
	return *w.invoice, nil
}

func (w *Workflow) pay(ctx context.Context, inv domain.PaymentInvoice) (domain.UnlockedResult, error) {
	log := w.logger.With(slog.String("reference", inv.Reference))

	if w.deps.Locks != nil {
		unlock, err := w.deps.Locks.Acquire(ctx, "payment:"+w.marketID, w.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.UnlockedResult{}, domain.ErrPaymentInProgress
			}
			return domain.UnlockedResult{}, fmt.Errorf("payment: acquire lock: %w", err)
		}
		defer unlock()
	}

	payer := w.deps.Wallet.Address()
	w.audit(ctx, auditPaymentStarted, map[string]any{
		"reference": inv.Reference,
		"payer":     payer,
		"contract":  inv.ContractAddress,
		"amount":    inv.AmountUnits,
	})

	decimals := w.tokenDecimals(ctx, inv.ContractAddress)
	data, units, err := chain.PaymentCallData(inv.ReceiverAddress, inv.AmountUnits, decimals, inv.Reference)
	if err != nil {
		return domain.UnlockedResult{}, err
	}
	log.InfoContext(ctx, "submitting payment",
		slog.String("contract", inv.ContractAddress),
		slog.String("receiver", inv.ReceiverAddress),
		slog.String("units", units.String()),
		slog.Int("decimals", int(decimals)),
	)

	hash, err := w.deps.Wallet.SendTransaction(ctx, domain.TxRequest{
		From:  payer,
		To:    inv.ContractAddress,
		Data:  data,
		Value: new(big.Int),
		Gas:   w.cfg.GasLimit,
	})
	if err != nil {
		return domain.UnlockedResult{}, err
	}
	txHash := normalizeTxHash(hash)
	w.audit(ctx, auditTxSubmitted, map[string]any{"reference": inv.Reference, "tx_hash": txHash})

	w.mu.Lock()
	w.txHash = txHash
	w.state = StateVerifying
	w.progress = ProgressConfirming
	w.mu.Unlock()
	w.emit()

	if w.deps.Chain != nil {
		if err := w.deps.Chain.WaitForConfirmation(ctx, txHash, w.cfg.Confirmations); err != nil {
			return domain.UnlockedResult{}, err
		}
		w.setProgress(ProgressIndexing)
		if err := w.sleep(ctx, w.cfg.IndexingGrace); err != nil {
			return domain.UnlockedResult{}, err
		}
	} else {
		log.WarnContext(ctx, "no chain reader, waiting blind", slog.Duration("wait", w.cfg.BlindWait))
		if err := w.sleep(ctx, w.cfg.BlindWait); err != nil {
			return domain.UnlockedResult{}, err
		}
	}

	w.setProgress(ProgressVerifying)
	return w.deps.API.VerifyPayment(ctx, w.marketID, domain.PaymentProof{
		Reference:    inv.Reference,
		TxSignature:  txHash,
		PayerAddress: payer,
	})
}

func (w *Workflow) tokenDecimals(ctx context.Context, contract string) uint8 {
	if w.deps.Chain == nil {
		return w.cfg.DefaultDecimals
	}
	d, err := w.deps.Chain.TokenDecimals(ctx, contract)
	if err != nil {
		w.logger.WarnContext(ctx, "token decimals lookup failed, using default",
			slog.Int("default", int(w.cfg.DefaultDecimals)),
			slog.String("error", err.Error()),
		)
		return w.cfg.DefaultDecimals
	}
	return d
}

func (w *Workflow) succeed(ctx context.Context, inv domain.PaymentInvoice, res domain.UnlockedResult) {
	w.mu.Lock()
	w.state = StateSuccess
	w.result = &res
	w.progress = ""
	w.invoice = nil
	w.stopTickerLocked()
	txHash := w.txHash
	w.mu.Unlock()

	if err := w.deps.Cache.Put(ctx, w.marketID, res); err != nil {
		w.logger.WarnContext(ctx, "unlock cache write failed", slog.String("error", err.Error()))
	}
	if w.deps.Receipts != nil {
		if err := w.deps.Receipts.Archive(ctx, w.marketID, res); err != nil {
			w.logger.WarnContext(ctx, "receipt archive failed", slog.String("error", err.Error()))
		}
	}
	w.audit(ctx, auditUnlocked, map[string]any{"reference": inv.Reference, "tx_hash": txHash})
	w.notify(ctx, EventUnlockSuccess, "Market unlocked",
		fmt.Sprintf("%s\nreference: %s\ntx: %s", res.Title, inv.Reference, txHash))

	w.logger.InfoContext(ctx, "market unlocked", slog.String("tx_hash", txHash))
	w.emit()
}

func (w *Workflow) fail(ctx context.Context, inv domain.PaymentInvoice, err error) {
	msg := UserMessage(err)

	w.mu.Lock()
	w.state = StateIdle
	w.errMsg = msg
	w.progress = ""
	txHash := w.txHash
	w.mu.Unlock()

	w.logger.WarnContext(ctx, "payment attempt failed",
		slog.String("reference", inv.Reference),
		slog.String("error", err.Error()),
	)
	w.audit(ctx, auditPaymentFailed, map[string]any{
		"reference": inv.Reference,
		"tx_hash":   txHash,
		"error":     err.Error(),
	})
	w.notify(ctx, EventPaymentFailed, "Payment failed", fmt.Sprintf("market: %s\n%s", w.marketID, msg))
	w.emit()
}

func (w *Workflow) setProgress(p string) {
	w.mu.Lock()
	w.progress = p
	w.mu.Unlock()
	w.emit()
}

func (w *Workflow) busyLocked() bool {
	return w.state == StateSending || w.state == StateVerifying
}

func (w *Workflow) resetLocked() {
	w.stopTickerLocked()
	w.state = StateIdle
	w.invoice = nil
	w.message = ""
	w.errMsg = ""
	w.progress = ""
	w.txHash = ""
	w.attemptID = ""
	w.result = nil
}

// startTickerLocked refreshes listeners every tick while an invoice is held
// and the workflow is idle.
func (w *Workflow) startTickerLocked() {
	w.stopTickerLocked()
	stop := make(chan struct{})
	w.stopTick = stop

	go func() {
		t := time.NewTicker(w.tick)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				w.mu.Lock()
				idle := w.state == StateIdle && w.invoice != nil
				w.mu.Unlock()
				if idle {
					w.emit()
				}
			}
		}
	}()
}

func (w *Workflow) stopTickerLocked() {
	if w.stopTick != nil {
		close(w.stopTick)
		w.stopTick = nil
	}
}

func (w *Workflow) emit() {
	snap := w.Snapshot()
	w.lmu.Lock()
	listeners := append([]Listener(nil), w.listeners...)
	w.lmu.Unlock()
	for _, fn := range listeners {
		if fn != nil {
			fn(snap)
		}
	}
}

func (w *Workflow) audit(ctx context.Context, event string, detail map[string]any) {
	if w.deps.Audit == nil {
		return
	}
	detail["market_id"] = w.marketID
	w.mu.Lock()
	if w.attemptID != "" {
		detail["attempt_id"] = w.attemptID
	}
	w.mu.Unlock()
	if err := w.deps.Audit.Log(ctx, event, detail); err != nil {
		w.logger.DebugContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (w *Workflow) notify(ctx context.Context, event, title, message string) {
	if w.deps.Notifier == nil {
		return
	}
	if err := w.deps.Notifier.Notify(ctx, event, title, message); err != nil {
		w.logger.DebugContext(ctx, "notification failed", slog.String("error", err.Error()))
	}
}

func normalizeTxHash(h string) string {
	h = strings.TrimSpace(h)
	if strings.HasPrefix(h, "0x") || strings.HasPrefix(h, "0X") {
		return "0x" + h[2:]
	}
	return "0x" + h
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
