package netmon

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds a single reachability check.
const DefaultProbeTimeout = 5 * time.Second

// HTTPProbe checks reachability with a HEAD request against a stable URL.
// Any HTTP response, even a server error, proves the network path works; only
// a transport failure counts as offline. Signal strength and cellular
// generation are invisible to it, so it reports them unknown and degradation
// is derived from the round trip alone.
type HTTPProbe struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPProbe creates a probe for the URL. A timeout <= 0 falls back to
// DefaultProbeTimeout.
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HTTPProbe{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Sample performs one reachability check.
func (p *HTTPProbe) Sample(ctx context.Context) Sample {
	s := Sample{
		Online:        false,
		Link:          activeLink(),
		WifiSignalPct: -1,
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return s
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return s
	}
	resp.Body.Close()

	s.Online = true
	s.RTT = time.Since(start)
	return s
}

// activeLink guesses the link class from the names of up, addressed,
// non-loopback interfaces, preferring wired over wifi over cellular when
// several are live.
func activeLink() LinkType {
	ifaces, err := net.Interfaces()
	if err != nil {
		return LinkUnknown
	}

	best := LinkUnknown
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		if link := classifyInterface(ifc.Name); linkRank[link] > linkRank[best] {
			best = link
		}
	}
	return best
}

var linkRank = map[LinkType]int{
	LinkWired:    3,
	LinkWifi:     2,
	LinkCellular: 1,
	LinkUnknown:  0,
}

func classifyInterface(name string) LinkType {
	switch {
	case strings.HasPrefix(name, "eth"), strings.HasPrefix(name, "en"), strings.HasPrefix(name, "em"):
		return LinkWired
	case strings.HasPrefix(name, "wl"):
		return LinkWifi
	case strings.HasPrefix(name, "wwan"), strings.HasPrefix(name, "rmnet"), strings.HasPrefix(name, "ppp"):
		return LinkCellular
	default:
		return LinkUnknown
	}
}
