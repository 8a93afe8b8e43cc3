package cart

import (
	"context"
	"net/url"

	"go.uber.org/zap"
)

const (
	CartPath  = "/cart"
	LoginPath = "/login"
)

// Navigator moves the shopper to another view.
type Navigator interface {
	Navigate(path string)
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Outcome reports what a reconciliation did.
type Outcome int

const (
	// OutcomeNone means there was no session or no pending item.
	OutcomeNone Outcome = iota
	// OutcomeIncremented means an existing line gained one unit.
	OutcomeIncremented
	// OutcomeAppended means the pending item became a new line.
	OutcomeAppended
	// OutcomeDiscarded means the pending item could not be merged and was dropped.
	OutcomeDiscarded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIncremented:
		return "incremented"
	case OutcomeAppended:
		return "appended"
	case OutcomeDiscarded:
		return "discarded"
	default:
		return "none"
	}
}

// Reconciler merges the pending item into the signed-in cart.
type Reconciler struct {
	Cart      Committer
	Storage   Storage
	Navigator Navigator
	Logger    *zap.Logger
}

// OnSession runs on every authentication change. With a session and a pending
// record it merges the record, commits the cart and navigates to the cart view.
// The record is deleted whatever happens so the merge never replays.
func (r *Reconciler) OnSession(ctx context.Context, authenticated bool) Outcome {
	if !authenticated {
		return OutcomeNone
	}
	raw, ok := r.Storage.Get(PendingItemKey)
	if !ok {
		return OutcomeNone
	}

	outcome, err := r.merge(ctx, raw)
	r.Storage.Delete(PendingItemKey)
	if err != nil {
		r.logger().Warn("pending cart item discarded", zap.Error(err))
		return OutcomeDiscarded
	}

	r.logger().Info("pending cart item merged", zap.Stringer("outcome", outcome))
	r.Navigator.Navigate(CartPath)
	return outcome
}

func (r *Reconciler) merge(ctx context.Context, raw string) (Outcome, error) {
	pending, err := ParsePending([]byte(raw))
	if err != nil {
		return OutcomeDiscarded, err
	}
	merged, matched := Merge(r.Cart.Snapshot(), pending)
	if err := r.Cart.Commit(ctx, merged); err != nil {
		return OutcomeDiscarded, err
	}
	if matched {
		return OutcomeIncremented, nil
	}
	return OutcomeAppended, nil
}

func (r *Reconciler) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// LoginRedirect is the login URL that returns the shopper to the cart afterwards.
func LoginRedirect() string {
	return LoginPath + "?redirect=" + url.QueryEscape(CartPath)
}

// Stage holds item for a signed-out shopper and sends them to sign in.
func Stage(st Storage, nav Navigator, item Item) error {
	if err := StagePending(st, item); err != nil {
		return err
	}
	nav.Navigate(LoginRedirect())
	return nil
}
