// Package reconcile turns what a hosted payment provider echoes back on its
// return redirect into a commit, a retry or a rejection.
package reconcile

import (
	"net/url"
	"strings"

	"github.com/fjod/go_cart/storefront/domain"
)

type Result string

const (
	ResultAccepted     Result = "accepted"
	ResultPending      Result = "pending"
	ResultRejected     Result = "rejected"
	ResultUnrecognized Result = "unrecognized"
)

var (
	statusKeys    = []string{"status", "collection_status", "redirect_status"}
	paymentIDKeys = []string{"payment_id", "collection_id", "transaction_id", "payment_intent"}
	sessionKeys   = []string{"preference_id", "session_id"}

	acceptedStatuses = map[string]bool{"approved": true, "approve": true, "success": true}
	pendingStatuses  = map[string]bool{"pending": true, "in_process": true}
)

// Return is the provider redirect after parsing.
type Return struct {
	Result Result
	Status string
	IDs    domain.TransactionIDs
}

// first returns the first non-blank value among keys, matching key names
// case-insensitively.
func first(params url.Values, keys []string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(params.Get(key)); v != "" {
			return v
		}
	}
	for name, values := range params {
		for _, key := range keys {
			if !strings.EqualFold(name, key) {
				continue
			}
			for _, v := range values {
				if v = strings.TrimSpace(v); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// Parse never fails: parameters it cannot make sense of yield ResultUnrecognized.
func Parse(params url.Values) Return {
	status := strings.ToLower(first(params, statusKeys))
	ret := Return{
		Status: status,
		IDs: domain.TransactionIDs{
			PaymentID:         first(params, paymentIDKeys),
			ExternalReference: first(params, []string{"external_reference"}),
			ProviderSessionID: first(params, sessionKeys),
		},
	}

	switch {
	case status == "" || ret.IDs.PaymentID == "":
		ret.Result = ResultUnrecognized
	case acceptedStatuses[status]:
		ret.Result = ResultAccepted
	case pendingStatuses[status]:
		ret.Result = ResultPending
	default:
		ret.Result = ResultRejected
	}
	return ret
}

func Classify(params url.Values) Result {
	return Parse(params).Result
}
