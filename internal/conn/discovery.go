package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/MrWong99/sonaris/internal/observe"
)

// Backend advertisement service name and domain.
const (
	mdnsService = "_sonaris._tcp"
	mdnsDomain  = "local."
)

// DefaultDiscoveryTimeout bounds one mDNS browse round.
const DefaultDiscoveryTimeout = 10 * time.Second

// ErrNoBackend is returned by a Resolver when no backend answered within the
// discovery timeout.
var ErrNoBackend = errors.New("conn: no backend found")

// Resolver locates the backend stream endpoint.
type Resolver interface {
	// Lookup returns a WebSocket URL for the backend. Blocks up to the
	// resolver's timeout.
	Lookup(ctx context.Context) (string, error)

	// Invalidate drops any cached result so the next Lookup hits the
	// network again. Called after a dial or stream failure.
	Invalidate()
}

// StaticResolver always returns a configured URL.
type StaticResolver struct {
	URL string
}

func (s StaticResolver) Lookup(context.Context) (string, error) {
	if s.URL == "" {
		return "", ErrNoBackend
	}
	return s.URL, nil
}

func (s StaticResolver) Invalidate() {}

// FallbackResolver tries Primary first and falls back to Secondary when the
// primary lookup fails. Used to pair mDNS discovery with a configured static
// address.
type FallbackResolver struct {
	Primary   Resolver
	Secondary Resolver
}

func (f FallbackResolver) Lookup(ctx context.Context) (string, error) {
	url, err := f.Primary.Lookup(ctx)
	if err == nil {
		return url, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	slog.Debug("primary backend lookup failed, trying fallback", "error", err)
	return f.Secondary.Lookup(ctx)
}

func (f FallbackResolver) Invalidate() {
	f.Primary.Invalidate()
	f.Secondary.Invalidate()
}

// MDNSResolver browses the local network for the backend advertisement. The
// first responder wins and is cached, so repeated lookups with no network
// change return the same address.
type MDNSResolver struct {
	timeout time.Duration
	metrics *observe.Metrics

	mu     sync.Mutex
	cached string
}

// NewMDNSResolver creates a resolver with the given browse window. A zero
// timeout uses [DefaultDiscoveryTimeout].
func NewMDNSResolver(timeout time.Duration) *MDNSResolver {
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}
	return &MDNSResolver{
		timeout: timeout,
		metrics: observe.DefaultMetrics(),
	}
}

// Lookup returns the cached backend URL or browses for one.
func (r *MDNSResolver) Lookup(ctx context.Context) (string, error) {
	r.mu.Lock()
	cached := r.cached
	r.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	start := time.Now()
	url, err := r.browse(ctx)
	r.metrics.DiscoveryDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cached = url
	r.mu.Unlock()
	slog.Info("backend discovered", "url", url, "took", time.Since(start))
	return url, nil
}

// Invalidate drops the cached address.
func (r *MDNSResolver) Invalidate() {
	r.mu.Lock()
	r.cached = ""
	r.mu.Unlock()
}

func (r *MDNSResolver) browse(ctx context.Context) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("conn: create mdns resolver: %w", err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := resolver.Browse(browseCtx, mdnsService, mdnsDomain, entries); err != nil {
		return "", fmt.Errorf("conn: mdns browse: %w", err)
	}

	// First responder wins.
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNoBackend
			}
			if entry == nil {
				continue
			}
			url, ok := entryURL(entry)
			if !ok {
				slog.Debug("unusable mdns entry", "instance", entry.Instance)
				continue
			}
			return url, nil
		case <-browseCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", ErrNoBackend
		}
	}
}

// entryURL builds the stream URL from a service entry. The advertised TXT
// record may carry a "path=" key; the default stream path is "/".
func entryURL(entry *zeroconf.ServiceEntry) (string, bool) {
	host := ""
	if len(entry.AddrIPv4) > 0 {
		host = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		host = entry.AddrIPv6[0].String()
	} else if entry.HostName != "" {
		host = strings.TrimSuffix(entry.HostName, ".")
	}
	if host == "" || entry.Port == 0 {
		return "", false
	}

	path := "/"
	for _, txt := range entry.Text {
		if v, ok := strings.CutPrefix(txt, "path="); ok && v != "" {
			path = v
		}
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, fmt.Sprint(entry.Port)), path), true
}
