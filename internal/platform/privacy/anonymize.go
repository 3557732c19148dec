// Package privacy reduces client identifiers before they land in records
// that outlive the session. Audit ledger entries keep anonymized IPs only;
// the full address stays in short-lived session and event rows.
package privacy

import (
	"fmt"
	"net"
)

// AnonymizeIP drops the host-identifying portion of an IP address. IPv4
// addresses lose their last octet ("192.168.1.47" -> "192.168.1.0"); IPv6
// addresses keep only the /48 prefix ("2001:db8:85a3::8a2e:370:7334" ->
// "2001:db8:85a3::").
//
// Returns "invalid" for unparseable addresses and "unknown" for empty
// strings.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}

	// Check for IPv4 (including IPv4-mapped IPv6)
	if v4 := parsed.To4(); v4 != nil {
		// Zero the last octet for /24 anonymization
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	// IPv6: Zero the last 80 bits, keeping only the /48 prefix
	// IPv6 is 16 bytes, /48 prefix = first 6 bytes
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}
