// Package identity manages the pool of network egress identities: WireGuard
// tunnel bring-up and teardown, external address verification, and rotation
// across an epoch of unused endpoints.
package identity

import (
	"fmt"
	"time"
)

// Identity is one egress configuration: tunnel endpoint plus credentials,
// yielding one external IP address when connected.
type Identity struct {
	Name      string
	Endpoint  string
	PublicKey string
}

// ExternalAddr is the verified view of the egress address, as reported by
// the address-reflection probe.
type ExternalAddr struct {
	IP     string `json:"ip"`
	City   string `json:"city"`
	Region string `json:"region"`
}

// Lease is one identity actively connected and in use. At most one lease is
// active per physical egress interface at any time.
type Lease struct {
	Identity   Identity
	External   ExternalAddr
	AcquiredAt time.Time
}

// renderConfig produces the wg-quick configuration for an identity. The
// private key and interface address are shared across the pool; only the
// peer block varies.
func renderConfig(id Identity, privateKey, address string) string {
	return fmt.Sprintf(`[Interface]
PrivateKey = %s
Address = %s
DNS = 1.1.1.1, 8.8.8.8

[Peer]
PublicKey = %s
Endpoint = %s
AllowedIPs = 0.0.0.0/0
PersistentKeepalive = 25
`, privateKey, address, id.PublicKey, id.Endpoint)
}
