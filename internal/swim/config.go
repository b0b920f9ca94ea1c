package swim

import "time"

// Config controls the SWIM protocol parameters.
type Config struct {
	// ID is this node's cluster-unique integer identifier.
	ID int

	// Host, Port are the UDP bind endpoint.
	Host string
	Port int

	// ProbeTimeout is τ, the timer used for the direct-ack wait, the
	// indirect-ack wait, and the suspect-to-down wait (default 1s).
	ProbeTimeout time.Duration

	// ProtocolPeriod is T_p, the cadence of the probe scheduler
	// (default 2·ProbeTimeout).
	ProtocolPeriod time.Duration

	// MaxPiggybackUpdates caps the number of updates attached to any one
	// outgoing message (default 6).
	MaxPiggybackUpdates int

	// DisseminationFactor is k in limit = round(ln(N+1)·k) (default 3).
	DisseminationFactor float64

	// IndirectProbes is K, the number of peers asked to relay an
	// indirect ping (default 1).
	IndirectProbes int
}

// DefaultConfig returns floaty's protocol defaults.
func DefaultConfig() Config {
	probeTimeout := 1000 * time.Millisecond
	return Config{
		Host:                "0.0.0.0",
		Port:                0,
		ProbeTimeout:        probeTimeout,
		ProtocolPeriod:      2 * probeTimeout,
		MaxPiggybackUpdates: 6,
		DisseminationFactor: 3,
		IndirectProbes:      1,
	}
}

func (c Config) withDefaults() Config {
	out := c
	if out.ProbeTimeout <= 0 {
		out.ProbeTimeout = 1000 * time.Millisecond
	}
	if out.ProtocolPeriod <= 0 {
		out.ProtocolPeriod = 2 * out.ProbeTimeout
	}
	if out.MaxPiggybackUpdates <= 0 {
		out.MaxPiggybackUpdates = 6
	}
	if out.DisseminationFactor <= 0 {
		out.DisseminationFactor = 3
	}
	if out.IndirectProbes <= 0 {
		out.IndirectProbes = 1
	}
	return out
}
