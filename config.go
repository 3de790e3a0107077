package cachebroker

import (
	"time"

	"github.com/twotier/cachebroker/l1"
	"github.com/twotier/cachebroker/l2"
)

// Config configures a Manager. There is deliberately no file format or
// environment-variable binding here — property/file loading is out of
// scope here; callers build this struct however they like.
type Config struct {
	// AppName prefixes the prometheus metric names, the way the teacher
	// library's appName does.
	AppName string
	// Namespace prefixes every L2 key/hash name, isolating tenants.
	Namespace string
	// Topic is the channel's logical topic name ("channel" config option).
	// New does not read it: the channel.Transport passed to New is already
	// bound to its topic (see channel.NewRedisTransport).
	Topic string

	// DefaultL2Layout is used for any region absent from L2Regions.
	DefaultL2Layout l2.Layout
	// L2Regions is the "l2.<region>.ttl" / per-region layout surface.
	L2Regions map[string]l2.RegionConfig
	// L1Regions is the "l1.region.<name>.size" / ".ttl" surface.
	L1Regions map[string]l1.Config
	// L1SweepInterval drives the active-expiry janitor; <= 0 disables it
	// (lazy expiry on access still applies).
	L1SweepInterval time.Duration

	// EnableMetrics registers the prometheus collectors on the default
	// registerer, mirroring the teacher's enableStats flag.
	EnableMetrics bool
}
