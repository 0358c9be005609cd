package domain

import (
	"fmt"
	"strings"
)

// Network identifies the asset system a tip settles on.
type Network string

const (
	NetworkSolana   Network = "solana"
	NetworkEthereum Network = "ethereum"
	NetworkPolygon  Network = "polygon"
	NetworkBase     Network = "base"
	NetworkArbitrum Network = "arbitrum"
	NetworkOptimism Network = "optimism"
	NetworkXRP      Network = "xrp"
)

// Family groups networks sharing address and transaction id formats.
type Family string

const (
	FamilySolana Family = "solana"
	FamilyEVM    Family = "evm"
	FamilyXRP    Family = "xrp"
)

// NetworkInfo describes a network's native asset.
type NetworkInfo struct {
	Family   Family
	Symbol   string
	Decimals int32
}

var networks = map[Network]NetworkInfo{
	NetworkSolana:   {Family: FamilySolana, Symbol: "SOL", Decimals: 9},
	NetworkEthereum: {Family: FamilyEVM, Symbol: "ETH", Decimals: 18},
	NetworkPolygon:  {Family: FamilyEVM, Symbol: "POL", Decimals: 18},
	NetworkBase:     {Family: FamilyEVM, Symbol: "ETH", Decimals: 18},
	NetworkArbitrum: {Family: FamilyEVM, Symbol: "ETH", Decimals: 18},
	NetworkOptimism: {Family: FamilyEVM, Symbol: "ETH", Decimals: 18},
	NetworkXRP:      {Family: FamilyXRP, Symbol: "XRP", Decimals: 6},
}

// String returns the string representation of Network.
func (n Network) String() string {
	return string(n)
}

// IsValid checks if the network is supported.
func (n Network) IsValid() bool {
	_, ok := networks[n]
	return ok
}

// Info returns the asset description for the network.
func (n Network) Info() (NetworkInfo, bool) {
	info, ok := networks[n]
	return info, ok
}

// ParseNetwork parses a case-insensitive network name.
func ParseNetwork(s string) (Network, error) {
	n := Network(strings.ToLower(strings.TrimSpace(s)))
	if !n.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedNetwork, s)
	}
	return n, nil
}

// Networks returns all supported networks.
func Networks() []Network {
	return []Network{
		NetworkSolana, NetworkEthereum, NetworkPolygon, NetworkBase,
		NetworkArbitrum, NetworkOptimism, NetworkXRP,
	}
}
