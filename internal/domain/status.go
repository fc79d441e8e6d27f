package domain

// RequestStatus is the lifecycle state of a ServiceRequest.
//
// The only legal direction is forward:
//
//	open → offered → accepted → completed
//
// with the shortcut open → accepted (an offer may be accepted before the
// request has been marked offered).
type RequestStatus string

const (
	RequestOpen      RequestStatus = "open"
	RequestOffered   RequestStatus = "offered"
	RequestAccepted  RequestStatus = "accepted"
	RequestCompleted RequestStatus = "completed"
)

// requestRank orders request statuses; transitions must strictly increase it.
var requestRank = map[RequestStatus]int{
	RequestOpen:      0,
	RequestOffered:   1,
	RequestAccepted:  2,
	RequestCompleted: 3,
}

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	_, ok := requestRank[s]
	return ok
}

// AcceptsOffers reports whether providers may still bid on the request.
func (s RequestStatus) AcceptsOffers() bool {
	return s == RequestOpen || s == RequestOffered
}

// Settled reports whether an offer has already been accepted for the request.
func (s RequestStatus) Settled() bool {
	return s == RequestAccepted || s == RequestCompleted
}

// CanTransition reports whether moving from s to next is a legal forward step.
// completed can only be reached from accepted.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	from, ok := requestRank[s]
	if !ok {
		return false
	}
	to, ok := requestRank[next]
	if !ok || to <= from {
		return false
	}
	if next == RequestCompleted {
		return s == RequestAccepted
	}
	return true
}

// RequestSources returns every status from which next can be reached. The
// result is the WHERE set for conditional status updates.
func RequestSources(next RequestStatus) []RequestStatus {
	var out []RequestStatus
	for _, s := range []RequestStatus{RequestOpen, RequestOffered, RequestAccepted, RequestCompleted} {
		if s.CanTransition(next) {
			out = append(out, s)
		}
	}
	return out
}

// OfferStatus is the lifecycle state of an Offer.
//
//	pending → accepted → completed
//	pending → rejected            (a sibling offer was accepted)
type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferCompleted OfferStatus = "completed"
	OfferRejected  OfferStatus = "rejected"
)

var offerTransitions = map[OfferStatus][]OfferStatus{
	OfferPending:  {OfferAccepted, OfferRejected},
	OfferAccepted: {OfferCompleted},
}

// Valid reports whether s is a known offer status.
func (s OfferStatus) Valid() bool {
	switch s {
	case OfferPending, OfferAccepted, OfferCompleted, OfferRejected:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is legal.
func (s OfferStatus) CanTransition(next OfferStatus) bool {
	for _, n := range offerTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Won reports whether the offer is the one chosen for its request.
func (s OfferStatus) Won() bool {
	return s == OfferAccepted || s == OfferCompleted
}

// Role is the marketplace role stored on a UserProfile. It is a profile
// attribute, not an identity-provider concept.
type Role string

const (
	RoleNone     Role = ""
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
)

// ParseRole accepts "customer" or "provider".
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleCustomer, RoleProvider:
		return Role(s), true
	}
	return RoleNone, false
}
