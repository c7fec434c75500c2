package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/TunnlTo/desktop-app/internal/core"
	"github.com/TunnlTo/desktop-app/internal/keyring"
	"github.com/TunnlTo/desktop-app/internal/tunnel"
	"github.com/spf13/cobra"
)

func NewTunnelCommand() *cobra.Command {
	tunnelCmd := &cobra.Command{
		Use:     "tunnel",
		Aliases: []string{"tunnels"},
		Short:   "Manage tunnel definitions",
		Long: `Manage tunnel definitions.

Definitions are stored in tunnels.json in the config path. Private and
preshared keys are kept in the system keyring.`,
	}

	tunnelCmd.AddCommand(
		newTunnelAddCommand(),
		newTunnelListCommand(),
		newTunnelShowCommand(),
		newTunnelRemoveCommand(),
		newTunnelGenkeyCommand(),
		newTunnelPubkeyCommand(),
	)
	return tunnelCmd
}

func openTunnelStore() (*tunnel.Store, error) {
	secrets, err := keyring.Open()
	if err != nil {
		return nil, err
	}
	return tunnel.NewStore(core.GetTunnelsPath(), secrets), nil
}

// tunnelFlags collects the values of "tunnel add".
type tunnelFlags struct {
	id                string
	name              string
	ipv4              string
	ipv6              string
	listenPort        string
	dns               string
	mtu               string
	privateKey        string
	generateKey       bool
	endpoint          string
	port              string
	publicKey         string
	keepalive         string
	presharedKey      bool
	allowedApps       string
	allowedFolders    string
	allowedIPs        string
	disallowedApps    string
	disallowedFolders string
	disallowedIPs     string
}

func (f tunnelFlags) descriptor() tunnel.Descriptor {
	return tunnel.Descriptor{
		ID:   f.id,
		Name: f.name,
		Interface: tunnel.Interface{
			IPv4Address: f.ipv4,
			IPv6Address: f.ipv6,
			Port:        f.listenPort,
			PrivateKey:  f.privateKey,
			DNS:         f.dns,
			MTU:         f.mtu,
		},
		Peer: tunnel.Peer{
			Endpoint:            f.endpoint,
			Port:                f.port,
			PublicKey:           f.publicKey,
			PersistentKeepalive: f.keepalive,
		},
		Rules: tunnel.Rules{
			Allowed: tunnel.RuleSet{
				Apps:        f.allowedApps,
				Folders:     f.allowedFolders,
				IPAddresses: f.allowedIPs,
			},
			Disallowed: tunnel.RuleSet{
				Apps:        f.disallowedApps,
				Folders:     f.disallowedFolders,
				IPAddresses: f.disallowedIPs,
			},
		},
	}
}

// splitEndpoint accepts "host:port" in --endpoint when --port is not given.
func splitEndpoint(endpoint, port string) (string, string) {
	if port != "" {
		return endpoint, port
	}
	if strings.Count(endpoint, ":") > 1 && !strings.HasPrefix(endpoint, "[") {
		return endpoint, port
	}
	idx := strings.LastIndex(endpoint, ":")
	if idx <= 0 || strings.Contains(endpoint[idx+1:], "]") {
		return endpoint, port
	}
	return endpoint[:idx], endpoint[idx+1:]
}

func newTunnelAddCommand() *cobra.Command {
	var f tunnelFlags

	addCmd := &cobra.Command{
		Use:     "add",
		Aliases: []string{"set", "save"},
		Short:   "Add or update a tunnel",
		Long: `Add or update a tunnel.

Without --private-key the key is read from the terminal, and an empty
answer generates a new key pair. Pass --id to update an existing tunnel.`,
		Example: `  tunnlto tunnel add --name Home --address 10.0.0.2/32 \
    --endpoint vpn.example.com:51820 --public-key <peer key> --generate-key`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openTunnelStore()
			if err != nil {
				return err
			}

			f.endpoint, f.port = splitEndpoint(f.endpoint, f.port)
			d := f.descriptor()

			var existing tunnel.Descriptor
			if d.ID != "" {
				existing, err = store.Get(d.ID)
				if err != nil && !errors.Is(err, tunnel.ErrNotFound) {
					return err
				}
			}

			if d.Interface.PrivateKey == "" && !f.generateKey {
				d.Interface.PrivateKey = existing.Interface.PrivateKey
			}
			if d.Interface.PrivateKey == "" && !f.generateKey && keyring.IsTerminal() {
				if d.Interface.PrivateKey, err = keyring.PromptSecret("Private key (empty to generate)"); err != nil {
					return err
				}
			}
			if d.Interface.PrivateKey == "" {
				pair, err := tunnel.GenerateKeyPair()
				if err != nil {
					return err
				}
				d.Interface.PrivateKey = pair.PrivateKey
				slog.Info("Generated a new key pair")
			}

			d.Peer.PresharedKey = existing.Peer.PresharedKey
			if f.presharedKey {
				if d.Peer.PresharedKey, err = keyring.PromptSecret("Preshared key (empty for none)"); err != nil {
					return err
				}
			}

			saved, err := store.Save(d)
			if err != nil {
				return err
			}
			publicKey, err := tunnel.PublicKey(saved.Interface.PrivateKey)
			if err != nil {
				return err
			}

			fmt.Printf("Saved tunnel '%s' (id: %s)\n", saved.Name, saved.ID)
			fmt.Printf("Public key: %s\n", publicKey)
			return nil
		},
	}

	flags := addCmd.Flags()
	flags.StringVar(&f.id, "id", "", "tunnel id (generated when empty)")
	flags.StringVar(&f.name, "name", "", "display name")
	flags.StringVar(&f.ipv4, "address", "", "interface IPv4 address, e.g. 10.0.0.2/32")
	flags.StringVar(&f.ipv6, "address6", "", "interface IPv6 address")
	flags.StringVar(&f.listenPort, "listen-port", "", "interface listen port")
	flags.StringVar(&f.dns, "dns", "", "comma separated DNS servers")
	flags.StringVar(&f.mtu, "mtu", "", "interface MTU")
	flags.StringVar(&f.privateKey, "private-key", "", "interface private key (base64)")
	flags.BoolVar(&f.generateKey, "generate-key", false, "generate a new private key")
	flags.StringVar(&f.endpoint, "endpoint", "", "peer endpoint host, optionally with :port")
	flags.StringVar(&f.port, "port", "", "peer endpoint port")
	flags.StringVar(&f.publicKey, "public-key", "", "peer public key (base64)")
	flags.StringVar(&f.keepalive, "keepalive", "", "persistent keepalive in seconds")
	flags.BoolVar(&f.presharedKey, "preshared-key", false, "prompt for a preshared key")
	flags.StringVar(&f.allowedApps, "allowed-apps", "", "comma separated apps routed through the tunnel")
	flags.StringVar(&f.allowedFolders, "allowed-folders", "", "comma separated folders routed through the tunnel")
	flags.StringVar(&f.allowedIPs, "allowed-ips", "", "comma separated addresses routed through the tunnel")
	flags.StringVar(&f.disallowedApps, "disallowed-apps", "", "comma separated apps kept off the tunnel")
	flags.StringVar(&f.disallowedFolders, "disallowed-folders", "", "comma separated folders kept off the tunnel")
	flags.StringVar(&f.disallowedIPs, "disallowed-ips", "", "comma separated addresses kept off the tunnel")

	return addCmd
}

func newTunnelListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tunnels",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openTunnelStore()
			if err != nil {
				return err
			}
			tunnels, err := store.List()
			if err != nil {
				return err
			}
			if len(tunnels) == 0 {
				fmt.Println("No tunnels defined. Use 'tunnlto tunnel add' to create one.")
				return nil
			}

			fmt.Println("Tunnels:")
			for _, t := range tunnels {
				fmt.Printf("  - %s (id: %s, endpoint: %s:%s)\n", t.Name, t.ID, t.Peer.Endpoint, t.Peer.Port)
			}
			return nil
		},
	}
}

func newTunnelShowCommand() *cobra.Command {
	var showConfig bool
	var showSecrets bool

	showCmd := &cobra.Command{
		Use:               "show <tunnel-id>",
		Short:             "Show a tunnel definition",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeTunnelIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openTunnelStore()
			if err != nil {
				return err
			}
			d, err := store.Get(args[0])
			if err != nil {
				return err
			}

			if showConfig {
				config := tunnel.Serialize(d)
				if !showSecrets {
					config = redactConfig(config)
				}
				fmt.Print(config)
				return nil
			}

			if !showSecrets {
				d.Interface.PrivateKey = redact(d.Interface.PrivateKey)
				d.Peer.PresharedKey = redact(d.Peer.PresharedKey)
			}
			jsonBytes, _ := json.MarshalIndent(d, "", "  ")
			fmt.Println(string(jsonBytes))
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showConfig, "config", false, "print the WireSock configuration instead of JSON")
	showCmd.Flags().BoolVar(&showSecrets, "secrets", false, "include private and preshared keys")

	return showCmd
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "(hidden)"
}

// redactConfig hides key material in a serialized config.
func redactConfig(config string) string {
	lines := strings.Split(config, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "PrivateKey = ") || strings.HasPrefix(line, "PresharedKey = ") {
			key, _, _ := strings.Cut(line, " = ")
			lines[i] = key + " = (hidden)"
		}
	}
	return strings.Join(lines, "\n")
}

func newTunnelRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "remove <tunnel-id>",
		Aliases:           []string{"rm", "delete"},
		Short:             "Remove a tunnel and its keys",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeTunnelIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openTunnelStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed tunnel %s\n", args[0])
			return nil
		},
	}
}

func newTunnelGenkeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Generate a WireGuard key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := tunnel.GenerateKeyPair()
			if err != nil {
				return err
			}
			fmt.Printf("Private key: %s\n", pair.PrivateKey)
			fmt.Printf("Public key:  %s\n", pair.PublicKey)
			return nil
		},
	}
}

func newTunnelPubkeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pubkey [private-key]",
		Short: "Derive the public key for a private key",
		Long: `Derive the public key for a private key.

The private key is read from the terminal when not given as an argument.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var privateKey string
			if len(args) == 1 {
				privateKey = args[0]
			} else {
				var err error
				if privateKey, err = keyring.PromptSecret("Private key"); err != nil {
					return err
				}
			}
			publicKey, err := tunnel.PublicKey(privateKey)
			if err != nil {
				return err
			}
			fmt.Println(publicKey)
			return nil
		},
	}
}

// completeTunnelIDs offers tunnel ids with their names as descriptions.
func completeTunnelIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 || core.Config == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	store, err := openTunnelStore()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	tunnels, err := store.List()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var completions []string
	for _, t := range tunnels {
		if strings.HasPrefix(t.ID, toComplete) {
			completions = append(completions, t.ID+"\t"+t.Name)
		}
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}
