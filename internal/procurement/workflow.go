package procurement

import "strings"

// requestFlow and orderFlow list the legal explicit transitions. Sign-off
// finalization bypasses requestFlow entirely: approve and refuse jump to
// their terminal status from any non-terminal one.
var requestFlow = map[RequestStatus][]RequestStatus{
	RequestStatusDraft:      {RequestStatusPending},
	RequestStatusPending:    {RequestStatusProcessing},
	RequestStatusProcessing: {RequestStatusValidated, RequestStatusRejected},
}

var orderFlow = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing},
	OrderStatusProcessing: {OrderStatusValidated},
}

func requestTransitionAllowed(from, to RequestStatus) bool {
	for _, next := range requestFlow[from] {
		if next == to {
			return true
		}
	}
	return false
}

func orderTransitionAllowed(from, to OrderStatus) bool {
	for _, next := range orderFlow[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SignOffOutcome maps a sign-off decision verb to its final request state.
// Unknown verbs return false; callers must reject before mutating anything.
func SignOffOutcome(decision string) (Decision, RequestStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(decision)) {
	case "approve", "approved":
		return DecisionApproved, RequestStatusValidated, true
	case "refuse", "refused":
		return DecisionRefused, RequestStatusRejected, true
	default:
		return "", "", false
	}
}

// ParseSignatureDecision validates a per-level order signature decision.
func ParseSignatureDecision(decision string) (Decision, bool) {
	switch Decision(strings.ToLower(strings.TrimSpace(decision))) {
	case DecisionPending:
		return DecisionPending, true
	case DecisionApproved:
		return DecisionApproved, true
	case DecisionRefused:
		return DecisionRefused, true
	default:
		return "", false
	}
}

// ParseOrderStatus validates an explicit order status value.
func ParseOrderStatus(status string) (OrderStatus, bool) {
	switch OrderStatus(strings.ToLower(strings.TrimSpace(status))) {
	case OrderStatusPending:
		return OrderStatusPending, true
	case OrderStatusProcessing:
		return OrderStatusProcessing, true
	case OrderStatusValidated:
		return OrderStatusValidated, true
	default:
		return "", false
	}
}

// ParseRequestStatus validates an explicit request status value.
func ParseRequestStatus(status string) (RequestStatus, bool) {
	switch RequestStatus(strings.ToLower(strings.TrimSpace(status))) {
	case RequestStatusDraft:
		return RequestStatusDraft, true
	case RequestStatusPending:
		return RequestStatusPending, true
	case RequestStatusProcessing:
		return RequestStatusProcessing, true
	case RequestStatusValidated:
		return RequestStatusValidated, true
	case RequestStatusRejected:
		return RequestStatusRejected, true
	default:
		return "", false
	}
}
