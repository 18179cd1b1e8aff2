// Package adaptive turns a connectivity snapshot into execution parameters:
// a retry policy for the fetch pipeline and sampling knobs for a location
// collaborator. Healthy links get generous budgets that serve accuracy; poor
// links get lean ones that serve responsiveness.
package adaptive

import (
	"time"

	"github.com/corvid-labs/weathervane/internal/netmon"
	"github.com/corvid-labs/weathervane/internal/retry"
)

// FetchParams tunes the collaborators around a fetch: how long a single
// attempt may run, and how eagerly a location provider should sample.
type FetchParams struct {
	Timeout           time.Duration
	SampleInterval    time.Duration
	MinMovementMeters float64
}

// Profile bundles the knobs produced for one network condition.
type Profile struct {
	Policy retry.Policy
	Fetch  FetchParams
}

type profileKey struct {
	link     netmon.LinkType
	degraded bool
}

// defaultProfiles orders richness strictly by link tier at equal degradation:
// wired > wifi > cellular > unknown, on both attempt budget and timeout.
// Degraded rows shrink the timeout and attempts of their healthy counterpart
// and stretch the base delay.
var defaultProfiles = map[profileKey]Profile{
	{netmon.LinkWired, false}: {
		Policy: retry.Policy{MaxAttempts: 5, BaseDelay: 250 * time.Millisecond, MaxDelay: 10 * time.Second, Multiplier: 1.5},
		Fetch:  FetchParams{Timeout: 15 * time.Second, SampleInterval: 15 * time.Second, MinMovementMeters: 10},
	},
	{netmon.LinkWifi, false}: {
		Policy: retry.Policy{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond, MaxDelay: 15 * time.Second, Multiplier: 1.5},
		Fetch:  FetchParams{Timeout: 10 * time.Second, SampleInterval: 30 * time.Second, MinMovementMeters: 25},
	},
	{netmon.LinkCellular, false}: {
		Policy: retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 20 * time.Second, Multiplier: 2},
		Fetch:  FetchParams{Timeout: 8 * time.Second, SampleInterval: time.Minute, MinMovementMeters: 50},
	},
	{netmon.LinkUnknown, false}: {
		Policy: retry.Policy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 20 * time.Second, Multiplier: 2},
		Fetch:  FetchParams{Timeout: 5 * time.Second, SampleInterval: 90 * time.Second, MinMovementMeters: 100},
	},

	{netmon.LinkWired, true}: {
		Policy: retry.Policy{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: 20 * time.Second, Multiplier: 2},
		Fetch:  FetchParams{Timeout: 8 * time.Second, SampleInterval: 30 * time.Second, MinMovementMeters: 25},
	},
	{netmon.LinkWifi, true}: {
		Policy: retry.Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 2},
		Fetch:  FetchParams{Timeout: 6 * time.Second, SampleInterval: time.Minute, MinMovementMeters: 50},
	},
	{netmon.LinkCellular, true}: {
		Policy: retry.Policy{MaxAttempts: 2, BaseDelay: 3 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.5},
		Fetch:  FetchParams{Timeout: 4 * time.Second, SampleInterval: 2 * time.Minute, MinMovementMeters: 100},
	},
	{netmon.LinkUnknown, true}: {
		Policy: retry.Policy{MaxAttempts: 1, BaseDelay: 3 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.5},
		Fetch:  FetchParams{Timeout: 3 * time.Second, SampleInterval: 3 * time.Minute, MinMovementMeters: 200},
	},
}

// offlineProfile keeps the zero attempt budget that sends callers straight to
// the cache, and throttles location sampling to a crawl.
var offlineProfile = Profile{
	Policy: retry.Policy{},
	Fetch:  FetchParams{Timeout: time.Second, SampleInterval: 5 * time.Minute, MinMovementMeters: 500},
}

// Options configures a Tuner.
type Options struct {
	// PolicyOverride replaces the matching non-zero fields of the tier policy
	// while the network is online. Offline always keeps the zero attempt
	// budget regardless of overrides.
	PolicyOverride retry.Policy
}

// Tuner maps network status to execution parameters. It is stateless beyond
// its configuration and safe for concurrent use.
type Tuner struct {
	profiles map[profileKey]Profile
	override retry.Policy
}

// New creates a Tuner with the default tier table.
func New(opts Options) *Tuner {
	return &Tuner{
		profiles: defaultProfiles,
		override: opts.PolicyOverride,
	}
}

// PolicyFor returns the retry policy for the status. Offline yields
// MaxAttempts == 0 so callers fall back to cached data at once.
func (t *Tuner) PolicyFor(st netmon.Status) retry.Policy {
	if !st.Online {
		return offlineProfile.Policy
	}
	p := t.profileFor(st).Policy
	if t.override.MaxAttempts > 0 {
		p.MaxAttempts = t.override.MaxAttempts
	}
	if t.override.BaseDelay > 0 {
		p.BaseDelay = t.override.BaseDelay
	}
	if t.override.MaxDelay > 0 {
		p.MaxDelay = t.override.MaxDelay
	}
	if t.override.Multiplier > 0 {
		p.Multiplier = t.override.Multiplier
	}
	return p
}

// FetchParamsFor returns the sampling parameters for the status.
func (t *Tuner) FetchParamsFor(st netmon.Status) FetchParams {
	if !st.Online {
		return offlineProfile.Fetch
	}
	return t.profileFor(st).Fetch
}

func (t *Tuner) profileFor(st netmon.Status) Profile {
	if p, ok := t.profiles[profileKey{st.Link, st.Degraded}]; ok {
		return p
	}
	return t.profiles[profileKey{netmon.LinkUnknown, st.Degraded}]
}
