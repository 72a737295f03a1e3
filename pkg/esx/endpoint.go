package esx

import "sync"

// Endpoint bundles the host and credentials used to authenticate against
// one remote hypervisor. The certificate thumbprint is populated lazily by
// the bridge, at most once per instance, and never changes afterwards: a
// concurrent first-time probe is tolerated because both probes derive the
// same value.
type Endpoint struct {
	Host     string
	User     string
	Password string

	mu         sync.Mutex
	thumbprint string
}

// Thumbprint returns the cached certificate thumbprint, empty until the
// first successful probe.
func (e *Endpoint) Thumbprint() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.thumbprint
}
