package tunnel

import "strings"

// Serialize renders d as a WireSock configuration file.
//
// The client rejects out-of-order or blank directives, so optional values
// are omitted entirely when empty and sections are always emitted in the
// order [Interface], blank line, [Peer].
func Serialize(d Descriptor) string {
	var b strings.Builder

	b.WriteString("[Interface]\n")
	writeDirective(&b, "PrivateKey", d.Interface.PrivateKey)
	if addr := joinNonEmpty(d.Interface.IPv4Address, d.Interface.IPv6Address); addr != "" {
		writeDirective(&b, "Address", addr)
	}
	writeOptional(&b, "ListenPort", d.Interface.Port)
	writeOptional(&b, "DNS", d.Interface.DNS)
	writeOptional(&b, "MTU", d.Interface.MTU)

	b.WriteString("\n[Peer]\n")
	writeDirective(&b, "PublicKey", d.Peer.PublicKey)
	writeOptional(&b, "PresharedKey", d.Peer.PresharedKey)
	writeDirective(&b, "Endpoint", d.Peer.Endpoint+":"+d.Peer.Port)
	writeOptional(&b, "PersistentKeepalive", d.Peer.PersistentKeepalive)
	writeOptional(&b, "AllowedApps", joinNonEmpty(d.Rules.Allowed.Apps, d.Rules.Allowed.Folders))
	writeOptional(&b, "DisallowedApps", joinNonEmpty(d.Rules.Disallowed.Apps, d.Rules.Disallowed.Folders))
	writeOptional(&b, "AllowedIPs", d.Rules.Allowed.IPAddresses)
	writeOptional(&b, "DisallowedIPs", d.Rules.Disallowed.IPAddresses)

	return b.String()
}

func writeDirective(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteString(" = ")
	b.WriteString(value)
	b.WriteByte('\n')
}

func writeOptional(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	writeDirective(b, key, value)
}

func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
