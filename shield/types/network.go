package types

import (
	"fmt"
	"net/url"
	"strings"
)

type Network string

const (
	Localnet Network = "localnet"
	Devnet   Network = "devnet"
	Testnet  Network = "testnet"
	Mainnet  Network = "mainnet"
)

// DetectNetwork infers the cluster from an RPC endpoint.
// Anything unrecognized is treated as mainnet.
func DetectNetwork(rpcURL string) Network {
	u := strings.ToLower(rpcURL)
	switch {
	case strings.Contains(u, "localhost"), strings.Contains(u, "127.0.0.1"), strings.Contains(u, "8899"):
		return Localnet
	case strings.Contains(u, "devnet"):
		return Devnet
	case strings.Contains(u, "testnet"):
		return Testnet
	default:
		return Mainnet
	}
}

func ParseNetwork(s string) (Network, error) {
	switch n := Network(strings.ToLower(s)); n {
	case Localnet, Devnet, Testnet, Mainnet:
		return n, nil
	default:
		return "", fmt.Errorf("unknown network %q", s)
	}
}

func (n Network) DisplayName() string {
	switch n {
	case Localnet:
		return "Local Network"
	case Devnet:
		return "Devnet"
	case Testnet:
		return "Testnet"
	default:
		return "Mainnet Beta"
	}
}

// ExplorerURL links a transaction signature on the Solana explorer.
func (n Network) ExplorerURL(signature, rpcURL string) string {
	base := "https://explorer.solana.com/tx/" + signature
	switch n {
	case Localnet:
		if rpcURL == "" {
			return base
		}
		return base + "?cluster=custom&customUrl=" + url.QueryEscape(rpcURL)
	case Devnet, Testnet:
		return base + "?cluster=" + string(n)
	default:
		return base
	}
}
