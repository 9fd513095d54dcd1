// Package subscription translates observer visibility scopes into control
// messages over the shared connection and routes matching events to each
// observer's callbacks.
package subscription

import (
	"errors"
	"fmt"

	"github.com/jonesrussell/blockwatch/internal/transport"
)

// ErrOwnerRequired is returned for owner-bound scopes missing an owner id.
var ErrOwnerRequired = errors.New("scope requires an owner id")

// ScopeKind enumerates the subscription scope kinds.
type ScopeKind int

// Scope kinds.
const (
	// KindAllJobs sees every job (administrator view).
	KindAllJobs ScopeKind = iota
	// KindOwnerJobs sees one user's jobs.
	KindOwnerJobs
	// KindValidation sees one user's config validation stream.
	KindValidation
	// KindStats sees stats-change signals only.
	KindStats
)

// Scope is an observer's visibility filter. It determines both the channel
// subscribed on the shared connection and which events reach the observer's
// callbacks.
type Scope struct {
	Kind    ScopeKind
	OwnerID string
}

// AllJobs returns the administrator scope covering every job.
func AllJobs() Scope { return Scope{Kind: KindAllJobs} }

// OwnerJobs returns the scope covering one user's jobs.
func OwnerJobs(ownerID string) Scope { return Scope{Kind: KindOwnerJobs, OwnerID: ownerID} }

// Validation returns the scope for one user's config validation stream.
func Validation(ownerID string) Scope { return Scope{Kind: KindValidation, OwnerID: ownerID} }

// Stats returns the stats-signal scope.
func Stats() Scope { return Scope{Kind: KindStats} }

// Validate reports whether the scope is well formed.
func (s Scope) Validate() error {
	switch s.Kind {
	case KindOwnerJobs, KindValidation:
		if s.OwnerID == "" {
			return ErrOwnerRequired
		}
	case KindAllJobs, KindStats:
		if s.OwnerID != "" {
			return fmt.Errorf("scope kind %d does not take an owner id", s.Kind)
		}
	}
	return nil
}

// Channel returns the transport channel this scope subscribes.
func (s Scope) Channel() string {
	switch s.Kind {
	case KindAllJobs:
		return transport.ChannelJobsAll
	case KindOwnerJobs:
		return transport.JobsChannel(s.OwnerID)
	case KindValidation:
		return transport.ValidationChannel(s.OwnerID)
	case KindStats:
		return transport.ChannelStats
	default:
		return ""
	}
}

// String returns a log-friendly description.
func (s Scope) String() string {
	return s.Channel()
}
