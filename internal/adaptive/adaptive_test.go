package adaptive

import (
	"testing"
	"time"

	"github.com/corvid-labs/weathervane/internal/netmon"
	"github.com/corvid-labs/weathervane/internal/retry"
)

func online(link netmon.LinkType, degraded bool) netmon.Status {
	return netmon.Status{Online: true, Link: link, Degraded: degraded, ObservedAt: time.Now()}
}

func TestPolicyForOffline(t *testing.T) {
	tuner := New(Options{})

	p := tuner.PolicyFor(netmon.Status{Online: false, Link: netmon.LinkWifi})
	if p.MaxAttempts != 0 {
		t.Errorf("offline MaxAttempts = %d, want 0", p.MaxAttempts)
	}
}

func TestLinkTiersOrderRichness(t *testing.T) {
	tuner := New(Options{})
	tiers := []netmon.LinkType{netmon.LinkWired, netmon.LinkWifi, netmon.LinkCellular, netmon.LinkUnknown}

	for _, degraded := range []bool{false, true} {
		prevAttempts := int(^uint(0) >> 1)
		prevTimeout := time.Duration(1<<63 - 1)
		for _, link := range tiers {
			st := online(link, degraded)
			p := tuner.PolicyFor(st)
			f := tuner.FetchParamsFor(st)

			if p.MaxAttempts >= prevAttempts {
				t.Errorf("degraded=%v: %s attempts %d not strictly below the richer tier's %d",
					degraded, link, p.MaxAttempts, prevAttempts)
			}
			if f.Timeout >= prevTimeout {
				t.Errorf("degraded=%v: %s timeout %v not strictly below the richer tier's %v",
					degraded, link, f.Timeout, prevTimeout)
			}
			prevAttempts = p.MaxAttempts
			prevTimeout = f.Timeout
		}
	}
}

func TestDegradedShrinksBudgets(t *testing.T) {
	tuner := New(Options{})
	tiers := []netmon.LinkType{netmon.LinkWired, netmon.LinkWifi, netmon.LinkCellular, netmon.LinkUnknown}

	for _, link := range tiers {
		healthy := tuner.PolicyFor(online(link, false))
		degraded := tuner.PolicyFor(online(link, true))
		healthyFetch := tuner.FetchParamsFor(online(link, false))
		degradedFetch := tuner.FetchParamsFor(online(link, true))

		if degraded.MaxAttempts >= healthy.MaxAttempts {
			t.Errorf("%s: degraded attempts %d, want below %d", link, degraded.MaxAttempts, healthy.MaxAttempts)
		}
		if degradedFetch.Timeout >= healthyFetch.Timeout {
			t.Errorf("%s: degraded timeout %v, want below %v", link, degradedFetch.Timeout, healthyFetch.Timeout)
		}
		if degraded.BaseDelay <= healthy.BaseDelay {
			t.Errorf("%s: degraded base delay %v, want above %v", link, degraded.BaseDelay, healthy.BaseDelay)
		}
	}
}

func TestPolicyOverride(t *testing.T) {
	t.Run("full override applies online", func(t *testing.T) {
		tuner := New(Options{PolicyOverride: retry.Policy{
			MaxAttempts: 7, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 3,
		}})
		p := tuner.PolicyFor(online(netmon.LinkWifi, false))
		if p.MaxAttempts != 7 || p.BaseDelay != 50*time.Millisecond || p.MaxDelay != time.Second || p.Multiplier != 3 {
			t.Errorf("override not applied: %+v", p)
		}
	})

	t.Run("partial override keeps tier defaults", func(t *testing.T) {
		tuner := New(Options{PolicyOverride: retry.Policy{BaseDelay: 2 * time.Second}})
		base := New(Options{}).PolicyFor(online(netmon.LinkWifi, false))
		p := tuner.PolicyFor(online(netmon.LinkWifi, false))
		if p.BaseDelay != 2*time.Second {
			t.Errorf("BaseDelay = %v, want override 2s", p.BaseDelay)
		}
		if p.MaxAttempts != base.MaxAttempts || p.MaxDelay != base.MaxDelay || p.Multiplier != base.Multiplier {
			t.Errorf("untouched fields changed: %+v vs %+v", p, base)
		}
	})

	t.Run("offline ignores override", func(t *testing.T) {
		tuner := New(Options{PolicyOverride: retry.Policy{MaxAttempts: 7}})
		if p := tuner.PolicyFor(netmon.Status{Online: false}); p.MaxAttempts != 0 {
			t.Errorf("offline MaxAttempts = %d, want 0 despite override", p.MaxAttempts)
		}
	})
}

func TestUnrecognizedLinkUsesUnknownTier(t *testing.T) {
	tuner := New(Options{})

	odd := tuner.PolicyFor(netmon.Status{Online: true, Link: "vpn"})
	unknown := tuner.PolicyFor(online(netmon.LinkUnknown, false))
	if odd != unknown {
		t.Errorf("unrecognized link policy %+v, want the unknown tier %+v", odd, unknown)
	}
}

func TestFetchParamsThrottleOffline(t *testing.T) {
	tuner := New(Options{})

	offline := tuner.FetchParamsFor(netmon.Status{Online: false})
	wifi := tuner.FetchParamsFor(online(netmon.LinkWifi, false))

	if offline.SampleInterval <= wifi.SampleInterval {
		t.Errorf("offline sampling every %v, want slower than wifi's %v", offline.SampleInterval, wifi.SampleInterval)
	}
	if offline.MinMovementMeters <= wifi.MinMovementMeters {
		t.Errorf("offline movement threshold %v, want above wifi's %v", offline.MinMovementMeters, wifi.MinMovementMeters)
	}
}
