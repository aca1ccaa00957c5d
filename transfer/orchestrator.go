package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"acorn/asset"
	"acorn/errs"
	"acorn/log"
	"acorn/metrics"

	eParser "github.com/go-errors/errors"
	"github.com/shopspring/decimal"
)

// State is the phase of a user-initiated transfer.
type State int

// Transfer states.
const (
	Idle State = iota
	Confirming
	Processing
	Success
	Error
)

// Bus topics.
const (
	// TopicState carries a Snapshot after every transition.
	TopicState = "transfer:state"
	// TopicRefreshBalances carries the asset id of a successful transfer.
	TopicRefreshBalances = "balances:refresh"
)

// legalTransitions lists, per state, the states it may move to.
var legalTransitions = map[State]map[State]bool{
	Idle:       {Confirming: true},
	Confirming: {Processing: true, Idle: true},
	Processing: {Success: true, Error: true},
	Success:    {Idle: true},
	Error:      {Confirming: true, Idle: true},
}

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Confirming:
		return "confirming"
	case Processing:
		return "processing"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrIllegalTransition matches every IllegalTransitionError.
var ErrIllegalTransition = errors.New("illegal transfer state transition")

// IllegalTransitionError is returned when an operation is not allowed in the current state.
type IllegalTransitionError struct {
	From State
	To   State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition from %s to %s", e.From, e.To)
}

// Is reports whether target is ErrIllegalTransition.
func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// Signer signs and submits a transfer through an attended ceremony.
// It must return when ctx is cancelled.
type Signer interface {
	SignAndSubmit(ctx context.Context, req Request) (string, error)
}

// Publisher is satisfied by EventBus.Bus.
type Publisher interface {
	Publish(topic string, args ...interface{})
}

// Snapshot is a copy of the orchestrator state.
type Snapshot struct {
	State     State
	Request   *Request
	Signature string
	Failure   *errs.Failure
}

// Orchestrator drives one transfer at a time from confirmation to a terminal state.
type Orchestrator struct {
	signer Signer
	bus    Publisher

	mu        sync.Mutex
	state     State
	req       *Request
	signature string
	failure   *errs.Failure
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPublisher sets the bus state changes and balance refreshes are published on.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) {
		o.bus = p
	}
}

// New creates an idle orchestrator.
func New(signer Signer, opts ...Option) *Orchestrator {
	if signer == nil {
		panic("transfer: nil signer")
	}

	o := &Orchestrator{signer: signer}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot()
}

func (o *Orchestrator) snapshot() Snapshot {
	s := Snapshot{
		State:     o.state,
		Signature: o.signature,
		Failure:   o.failure,
	}
	if o.req != nil {
		req := *o.req
		s.Request = &req
	}
	return s
}

// move must be called with mu held.
func (o *Orchestrator) move(to State) error {
	if !legalTransitions[o.state][to] {
		return &IllegalTransitionError{From: o.state, To: to}
	}
	o.state = to
	return nil
}

// Submit validates a transfer and moves Idle to Confirming.
// An invalid request returns the validation error and leaves the state unchanged.
func (o *Orchestrator) Submit(recipient string, amt decimal.Decimal, available uint64, a asset.Asset) (*Request, error) {
	return o.submit(func() (*Request, error) {
		return Validate(recipient, amt, available, a)
	})
}

// SubmitText is Submit for raw user input, validated with ValidateText.
func (o *Orchestrator) SubmitText(recipient, amountText string, available uint64, a asset.Asset) (*Request, error) {
	return o.submit(func() (*Request, error) {
		return ValidateText(recipient, amountText, available, a)
	})
}

func (o *Orchestrator) submit(validate func() (*Request, error)) (*Request, error) {
	o.mu.Lock()

	if o.state != Idle {
		err := &IllegalTransitionError{From: o.state, To: Confirming}
		o.mu.Unlock()
		return nil, err
	}

	req, err := validate()
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}

	o.move(Confirming)
	o.req = req
	o.signature = ""
	o.failure = nil
	snap := o.snapshot()
	o.mu.Unlock()

	o.emit(snap)
	return snap.Request, nil
}

// Confirm moves Confirming to Processing and starts the signing ceremony.
// It returns immediately; use Wait or the state topic to observe the outcome.
func (o *Orchestrator) Confirm(ctx context.Context) error {
	o.mu.Lock()

	if err := o.move(Processing); err != nil {
		o.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.cancel = cancel
	o.cancelled = false
	o.done = done
	o.signature = ""
	o.failure = nil
	req := *o.req
	snap := o.snapshot()
	o.mu.Unlock()

	o.emit(snap)
	go o.process(ctx, cancel, req, done)
	return nil
}

func (o *Orchestrator) process(ctx context.Context, cancel context.CancelFunc, req Request, done chan struct{}) {
	defer close(done)
	defer cancel()

	sig, err := o.sign(ctx, req)

	o.mu.Lock()
	o.cancel = nil

	refresh := false
	if err == nil && sig != "" {
		// The ledger already accepted it, a late cancel cannot undo that.
		o.signature = sig
		o.move(Success)
		refresh = true
	} else {
		if err == nil {
			err = fmt.Errorf("%w: signer returned an empty signature", errs.ErrUnknown)
		}
		if o.cancelled && !errors.Is(err, errs.ErrUserCancelled) {
			err = fmt.Errorf("%w: %v", errs.ErrUserCancelled, err)
		}
		o.failure = errs.Classify(err)
		o.move(Error)
	}

	snap := o.snapshot()
	o.mu.Unlock()

	o.record(snap)
	o.emit(snap)
	if refresh && o.bus != nil {
		o.bus.Publish(TopicRefreshBalances, req.Asset.ID)
	}
}

// sign calls the signer, turning a panic into an error.
func (o *Orchestrator) sign(ctx context.Context, req Request) (sig string, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig = ""
			err = eParser.Wrap(r, 2)
		}
	}()

	return o.signer.SignAndSubmit(ctx, req)
}

// Cancel moves Confirming to Idle, or aborts the ceremony while Processing.
// An aborted ceremony ends in Error(UserCancelled) once the signer returns.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()

	switch o.state {
	case Confirming:
		o.move(Idle)
		o.req = nil
		snap := o.snapshot()
		o.mu.Unlock()
		o.emit(snap)
		return nil

	case Processing:
		o.cancelled = true
		if o.cancel != nil {
			o.cancel()
		}
		o.mu.Unlock()
		return nil

	default:
		err := &IllegalTransitionError{From: o.state, To: Idle}
		o.mu.Unlock()
		return err
	}
}

// Retry moves Error back to Confirming with the same request.
func (o *Orchestrator) Retry() error {
	o.mu.Lock()

	if o.state != Error {
		err := &IllegalTransitionError{From: o.state, To: Confirming}
		o.mu.Unlock()
		return err
	}

	o.move(Confirming)
	o.signature = ""
	o.failure = nil
	snap := o.snapshot()
	o.mu.Unlock()

	o.emit(snap)
	return nil
}

// Dismiss moves a terminal state back to Idle and drops the request.
func (o *Orchestrator) Dismiss() error {
	o.mu.Lock()

	if o.state != Success && o.state != Error {
		err := &IllegalTransitionError{From: o.state, To: Idle}
		o.mu.Unlock()
		return err
	}

	o.move(Idle)

	o.req = nil
	o.signature = ""
	o.failure = nil
	o.done = nil
	snap := o.snapshot()
	o.mu.Unlock()

	o.emit(snap)
	return nil
}

// Wait blocks until the current ceremony finishes or ctx is done.
// Outside Processing it returns the current snapshot immediately.
func (o *Orchestrator) Wait(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	state, done := o.state, o.done
	o.mu.Unlock()

	if state != Processing || done == nil {
		return o.Snapshot(), nil
	}

	select {
	case <-done:
		return o.Snapshot(), nil
	case <-ctx.Done():
		return o.Snapshot(), ctx.Err()
	}
}

func (o *Orchestrator) emit(snap Snapshot) {
	if o.bus != nil {
		o.bus.Publish(TopicState, snap)
	}
}

func (o *Orchestrator) record(snap Snapshot) {
	if snap.State == Success {
		metrics.TransfersTotal.WithLabelValues(snap.State.String(), "").Inc()
		log.Printf("Transfer of %s %s confirmed: %s", snap.Request.Amount, snap.Request.Asset.Symbol, snap.Signature)
		return
	}

	kind := snap.Failure.Kind
	metrics.TransfersTotal.WithLabelValues(snap.State.String(), kind.String()).Inc()

	if kind == errs.KindUnknown {
		var stack *eParser.Error
		if !errors.As(snap.Failure.Cause, &stack) {
			stack = eParser.Wrap(snap.Failure.Cause, 0)
		}
		log.Error.Errorf("Transfer failed: %s", stack.ErrorStack())
		return
	}

	log.Printf("Transfer failed: %v", snap.Failure)
}
