package reconcile

import (
	"context"
	"errors"
	"net/url"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Committer interface {
	Commit(ctx context.Context, draft domain.OrderDraft, payment *domain.PaymentInfo) (string, bool, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*domain.Order, error)
}

type Sessions interface {
	Restore(ctx context.Context, sessionID string) (*domain.CheckoutSessionState, error)
	UpdatePaymentStatus(ctx context.Context, sessionID string, status domain.PaymentState, ids *domain.TransactionIDs) (*domain.CheckoutSessionState, error)
	MarkCommitted(ctx context.Context, sessionID, orderID string) error
	Clear(ctx context.Context, sessionID string) error
}

type TokenIssuer interface {
	Issue(ctx context.Context, draft domain.OrderDraft, orderID, storeID string) (string, error)
}

// CartDiscarder drops the session's cart once its order exists.
type CartDiscarder func(ctx context.Context, sessionID string) error

// Views are the storefront pages a return redirects to.
type Views struct {
	Confirmation string
	Pending      string
	Failure      string
}

func DefaultViews() Views {
	return Views{
		Confirmation: "/checkout/confirmation",
		Pending:      "/checkout/pending",
		Failure:      "/checkout/failure",
	}
}

type Outcome struct {
	Result   Result `json:"result"`
	Redirect string `json:"redirect"`
	OrderID  string `json:"order_id,omitempty"`
	TokenID  string `json:"token_id,omitempty"`
}

type Reconciler struct {
	orders   Committer
	sessions Sessions
	tokens   TokenIssuer
	discard  CartDiscarder
	views    Views
	group    singleflight.Group
	logger   *zap.Logger
}

func NewReconciler(orders Committer, sessions Sessions, tokens TokenIssuer, discard CartDiscarder, views Views, log *zap.Logger) *Reconciler {
	return &Reconciler{
		orders:   orders,
		sessions: sessions,
		tokens:   tokens,
		discard:  discard,
		views:    views,
		logger:   logger.OrNop(log),
	}
}

func withQuery(path string, kv ...string) string {
	if len(kv) == 0 {
		return path
	}
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	return path + "?" + q.Encode()
}

// HandleReturn reconciles one provider redirect for the session. It never
// returns an error: every failure ends on the failure view.
func (r *Reconciler) HandleReturn(ctx context.Context, sessionID string, params url.Values) Outcome {
	ret := Parse(params)
	log := r.logger.With(
		zap.String("session_id", sessionID),
		zap.String("result", string(ret.Result)),
		zap.String("payment_id", ret.IDs.PaymentID))

	switch ret.Result {
	case ResultAccepted:
		// duplicate returns for one payment share a single commit
		v, _, _ := r.group.Do("payment:"+ret.IDs.PaymentID, func() (any, error) {
			return r.accept(ctx, sessionID, ret, log), nil
		})
		return v.(Outcome)
	case ResultPending:
		r.markPayment(ctx, sessionID, domain.PaymentStatePending, ret.IDs, log)
		return Outcome{Result: ResultPending, Redirect: r.views.Pending}
	case ResultUnrecognized:
		log.Warn("unrecognized payment return, treating as rejected", zap.Any("params", params))
		r.markPayment(ctx, sessionID, domain.PaymentStateFailed, ret.IDs, log)
		return Outcome{Result: ResultRejected, Redirect: r.views.Failure}
	default:
		log.Info("payment rejected", zap.String("status", ret.Status))
		r.markPayment(ctx, sessionID, domain.PaymentStateFailed, ret.IDs, log)
		return Outcome{Result: ResultRejected, Redirect: r.views.Failure}
	}
}

// markPayment records the provider result on the live state, if any.
func (r *Reconciler) markPayment(ctx context.Context, sessionID string, status domain.PaymentState, ids domain.TransactionIDs, log *zap.Logger) {
	_, err := r.sessions.UpdatePaymentStatus(ctx, sessionID, status, &ids)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Warn("failed to update checkout state", zap.Error(err))
	}
}

func (r *Reconciler) alreadyCommitted(orderID string) Outcome {
	return Outcome{
		Result:   ResultAccepted,
		Redirect: withQuery(r.views.Confirmation, "order", orderID),
		OrderID:  orderID,
	}
}

func (r *Reconciler) failure(retry bool) Outcome {
	if retry {
		return Outcome{Result: ResultAccepted, Redirect: withQuery(r.views.Failure, "retry", "1")}
	}
	return Outcome{Result: ResultAccepted, Redirect: r.views.Failure}
}

func (r *Reconciler) accept(ctx context.Context, sessionID string, ret Return, log *zap.Logger) Outcome {
	state, err := r.sessions.Restore(ctx, sessionID)
	if err != nil {
		log.Error("failed to restore checkout state", zap.Error(err))
		return r.failure(true)
	}
	if state != nil && state.OrderID != "" {
		log.Info("payment return for committed session", zap.String("order_id", state.OrderID))
		return r.alreadyCommitted(state.OrderID)
	}

	existing, err := r.orders.FindByTransactionID(ctx, ret.IDs.PaymentID)
	if err == nil && existing != nil {
		log.Info("payment already turned into an order", zap.String("order_id", existing.ID.String()))
		return r.alreadyCommitted(existing.ID.String())
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error("failed to look up order by transaction", zap.Error(err))
		return r.failure(true)
	}

	if state == nil {
		log.Warn("accepted payment without checkout state or order")
		return r.failure(false)
	}

	r.markPayment(ctx, sessionID, domain.PaymentStateSuccess, ret.IDs, log)

	draft := state.OrderDraft
	orderID, ok, err := r.orders.Commit(ctx, draft, &domain.PaymentInfo{
		IsPaid:        true,
		PaidAmount:    draft.Totals.Total,
		PaymentType:   domain.PaymentTypeOnlinePayment,
		TransactionID: ret.IDs.PaymentID,
	})
	if err != nil {
		log.Error("paid checkout has an invalid draft", zap.Error(err))
		return r.failure(false)
	}
	if !ok {
		log.Warn("order commit failed, checkout state kept for retry")
		return r.failure(true)
	}

	if err := r.sessions.MarkCommitted(ctx, sessionID, orderID); err != nil {
		log.Warn("failed to mark checkout committed", zap.String("order_id", orderID), zap.Error(err))
	}

	out := Outcome{Result: ResultAccepted, OrderID: orderID}
	tokenID, err := r.tokens.Issue(ctx, draft, orderID, draft.StoreID)
	if err != nil {
		log.Warn("failed to issue confirmation token", zap.String("order_id", orderID), zap.Error(err))
		out.Redirect = withQuery(r.views.Confirmation, "order", orderID)
	} else {
		out.TokenID = tokenID
		out.Redirect = withQuery(r.views.Confirmation, "token", tokenID)
	}

	if err := r.sessions.Clear(ctx, sessionID); err != nil {
		log.Warn("failed to clear checkout state", zap.Error(err))
	}
	if r.discard != nil {
		if err := r.discard(ctx, sessionID); err != nil {
			log.Warn("failed to discard cart", zap.Error(err))
		}
	}
	return out
}
