package network

import (
	_ "embed"
	"net"
	"sort"

	sdkerrors "cosmossdk.io/errors"
	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

const (
	Mainnet    = "mainnet"
	Testnet    = "testnet"
	Previewnet = "previewnet"
	Local      = "local"
)

var UnknownPresetError = sdkerrors.New("UnknownPreset Error", 1201, "no network preset with this name")

type presetEntry struct {
	Node      string   `yaml:"node"`
	Addresses []string `yaml:"addresses"`
}

// PresetNames lists the embedded networks.
func PresetNames() []string {
	presets := map[string][]presetEntry{}
	if err := yaml.Unmarshal(presetsYAML, &presets); err != nil {
		return nil
	}
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadPreset returns the endpoints of a named network.
func LoadPreset(name string) ([]NodeEndpoint, error) {
	presets := map[string][]presetEntry{}
	if err := yaml.Unmarshal(presetsYAML, &presets); err != nil {
		return nil, sdkerrors.Wrap(InvalidNetworkError, err.Error())
	}
	entries, ok := presets[name]
	if !ok {
		return nil, sdkerrors.Wrapf(UnknownPresetError, "%q", name)
	}
	endpoints := make([]NodeEndpoint, 0, len(entries))
	for _, entry := range entries {
		nodeID, err := ledgertypes.AccountIDFromString(entry.Node)
		if err != nil {
			return nil, err
		}
		if len(entry.Addresses) == 0 {
			return nil, sdkerrors.Wrapf(InvalidNetworkError, "node %s in %q has no address", entry.Node, name)
		}
		endpoints = append(endpoints, NodeEndpoint{
			NodeID:            nodeID,
			Addresses:         append([]string(nil), entry.Addresses...),
			TransportSecurity: securePort(entry.Addresses[0]),
		})
	}
	return endpoints, nil
}

// EndpointsFromMap groups a caller supplied address to node id map into endpoints.
// Addresses of one node are sorted so the result does not depend on map order.
func EndpointsFromMap(network map[string]string) ([]NodeEndpoint, error) {
	byNode := map[ledgertypes.AccountID][]string{}
	for address, node := range network {
		if _, _, err := net.SplitHostPort(address); err != nil {
			return nil, sdkerrors.Wrapf(InvalidNetworkError, "address %q: %s", address, err)
		}
		nodeID, err := ledgertypes.AccountIDFromString(node)
		if err != nil {
			return nil, err
		}
		byNode[nodeID] = append(byNode[nodeID], address)
	}
	endpoints := make([]NodeEndpoint, 0, len(byNode))
	for nodeID, addresses := range byNode {
		sort.Strings(addresses)
		endpoints = append(endpoints, NodeEndpoint{
			NodeID:            nodeID,
			Addresses:         addresses,
			TransportSecurity: securePort(addresses[0]),
		})
	}
	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].NodeID.String() < endpoints[j].NodeID.String()
	})
	return endpoints, nil
}

// nodes serve TLS on 50212 and 443, plaintext on 50211
func securePort(address string) bool {
	_, port, err := net.SplitHostPort(address)
	if err != nil {
		return false
	}
	return port == "50212" || port == "443"
}

var mirrorPresets = map[string][]string{
	Mainnet:    {"mainnet-public.mirrornode.hedera.com:443"},
	Testnet:    {"testnet.mirrornode.hedera.com:443"},
	Previewnet: {"previewnet.mirrornode.hedera.com:443"},
	Local:      {"127.0.0.1:5600"},
}

// LoadMirrorPreset returns the mirror endpoints of a named network.
func LoadMirrorPreset(name string) ([]NodeEndpoint, error) {
	addresses, ok := mirrorPresets[name]
	if !ok {
		return nil, sdkerrors.Wrapf(UnknownPresetError, "mirror %q", name)
	}
	return MirrorEndpoints(addresses)
}

// MirrorEndpoints turns mirror addresses into endpoints. Mirrors have no node account,
// each address is its own endpoint.
func MirrorEndpoints(addresses []string) ([]NodeEndpoint, error) {
	endpoints := make([]NodeEndpoint, 0, len(addresses))
	for _, address := range addresses {
		if _, _, err := net.SplitHostPort(address); err != nil {
			return nil, sdkerrors.Wrapf(InvalidNetworkError, "mirror address %q: %s", address, err)
		}
		endpoints = append(endpoints, NodeEndpoint{Addresses: []string{address}, TransportSecurity: securePort(address)})
	}
	return endpoints, nil
}
