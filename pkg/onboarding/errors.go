package onboarding

import "errors"

// ErrNotTracked is returned when a detachment names a cluster with no record
var ErrNotTracked = errors.New("cluster is not tracked")

// ConnectivityError marks a failure to reach the target cluster or the hub.
// It is fatal to onboarding and overridable with force on detachment.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string { return e.Err.Error() }
func (e *ConnectivityError) Unwrap() error { return e.Err }

// TrustNegotiationError marks an exhausted CSR approval ladder
type TrustNegotiationError struct {
	Err error
}

func (e *TrustNegotiationError) Error() string { return e.Err.Error() }
func (e *TrustNegotiationError) Unwrap() error { return e.Err }

// TimeoutError marks a managed cluster resource that never appeared
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return e.Err.Error() }
func (e *TimeoutError) Unwrap() error { return e.Err }
