package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrUnknownMarket is returned for updates or snapshots that reference a
	// market id that was never registered.
	ErrUnknownMarket = errors.New("unknown market")
	// ErrPriceNotAligned is returned for a book insert whose price is not a
	// multiple of the market's tick size.
	ErrPriceNotAligned = errors.New("price not tick aligned")
	// ErrStaleOpportunity means the opportunity's snapshot sequence was
	// superseded (or its deadline passed) before submission.
	ErrStaleOpportunity = errors.New("stale opportunity")
	// ErrRiskRejected means the plan failed a capacity or sizing check.
	ErrRiskRejected = errors.New("risk rejected")
	// ErrVenueReject means the venue refused an order.
	ErrVenueReject = errors.New("venue rejected order")
	// ErrVenueTimeout means no acknowledgement arrived within the bound.
	ErrVenueTimeout = errors.New("venue timeout")
	// ErrUnwindFailed means a compensating cancel/unwind could not complete;
	// the affected group carries real one-sided exposure.
	ErrUnwindFailed = errors.New("unwind failed")
	// ErrGroupBusy means another plan for the group is still in flight.
	ErrGroupBusy = errors.New("market group has plan in flight")
	// ErrGroupHalted means the group was frozen after an unwind failure and
	// has not been cleared by an operator.
	ErrGroupHalted = errors.New("market group halted")
)
