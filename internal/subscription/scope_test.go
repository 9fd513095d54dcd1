package subscription

import (
	"testing"

	"github.com/jonesrussell/blockwatch/internal/transport"
)

func TestScopeChannels(t *testing.T) {
	tests := []struct {
		name    string
		scope   Scope
		channel string
	}{
		{name: "all jobs", scope: AllJobs(), channel: transport.ChannelJobsAll},
		{name: "owner jobs", scope: OwnerJobs("u-123"), channel: "jobs:u-123"},
		{name: "validation", scope: Validation("u-123"), channel: "validation:u-123"},
		{name: "stats", scope: Stats(), channel: transport.ChannelStats},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.scope.Validate(); err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if got := tt.scope.Channel(); got != tt.channel {
				t.Errorf("Channel() = %q, want %q", got, tt.channel)
			}
		})
	}
}

func TestScopeValidateRequiresOwner(t *testing.T) {
	for _, scope := range []Scope{OwnerJobs(""), Validation("")} {
		if err := scope.Validate(); err == nil {
			t.Errorf("Validate() on %v = nil, want error", scope.Kind)
		}
	}
}
