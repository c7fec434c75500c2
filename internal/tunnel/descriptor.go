// Package tunnel holds the tunnel descriptor model, its WireSock config
// serialization, key generation and the on-disk tunnel store.
package tunnel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Descriptor is a user-supplied VPN connection definition.
// All values are kept as strings, the way the editor captures them.
type Descriptor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Interface Interface `json:"interface"`
	Peer      Peer      `json:"peer"`
	Rules     Rules     `json:"rules"`
}

type Interface struct {
	IPv4Address string `json:"ipv4Address"`
	IPv6Address string `json:"ipv6Address"`
	Port        string `json:"port"`
	PrivateKey  string `json:"privateKey"`
	DNS         string `json:"dns"`
	MTU         string `json:"mtu"`
}

type Peer struct {
	Endpoint            string `json:"endpoint"`
	Port                string `json:"port"`
	PublicKey           string `json:"publicKey"`
	PersistentKeepalive string `json:"persistentKeepalive"`
	PresharedKey        string `json:"presharedKey"`
}

type Rules struct {
	Allowed    RuleSet `json:"allowed"`
	Disallowed RuleSet `json:"disallowed"`
}

// RuleSet lists split-tunnelling targets. Each field is a comma separated list.
type RuleSet struct {
	Apps        string `json:"apps"`
	Folders     string `json:"folders"`
	IPAddresses string `json:"ipAddresses"`
}

var ErrInvalidDescriptor = errors.New("invalid tunnel descriptor")

// Validate performs the checks the tunnel editor enforces before saving.
// Serialize does not call it.
func (d Descriptor) Validate() error {
	var problems []string

	if strings.TrimSpace(d.ID) == "" {
		problems = append(problems, "id is required")
	}
	if strings.TrimSpace(d.Name) == "" {
		problems = append(problems, "name is required")
	}
	if d.Interface.PrivateKey == "" {
		problems = append(problems, "interface private key is required")
	} else if err := checkKey(d.Interface.PrivateKey); err != nil {
		problems = append(problems, fmt.Sprintf("interface private key: %v", err))
	}
	if d.Interface.IPv4Address == "" && d.Interface.IPv6Address == "" {
		problems = append(problems, "at least one interface address is required")
	}
	if d.Peer.PublicKey == "" {
		problems = append(problems, "peer public key is required")
	} else if err := checkKey(d.Peer.PublicKey); err != nil {
		problems = append(problems, fmt.Sprintf("peer public key: %v", err))
	}
	if d.Peer.PresharedKey != "" {
		if err := checkKey(d.Peer.PresharedKey); err != nil {
			problems = append(problems, fmt.Sprintf("peer preshared key: %v", err))
		}
	}
	if d.Peer.Endpoint == "" {
		problems = append(problems, "peer endpoint is required")
	}
	if !validPort(d.Peer.Port, false) {
		problems = append(problems, fmt.Sprintf("peer port %q is not a valid port", d.Peer.Port))
	}
	if !validPort(d.Interface.Port, true) {
		problems = append(problems, fmt.Sprintf("interface port %q is not a valid port", d.Interface.Port))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDescriptor, strings.Join(problems, "; "))
	}
	return nil
}

func validPort(port string, optional bool) bool {
	if port == "" {
		return optional
	}
	n, err := strconv.Atoi(port)
	return err == nil && n > 0 && n <= 65535
}
