package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectNetwork(t *testing.T) {
	cases := map[string]Network{
		"http://localhost:8899":                Localnet,
		"http://127.0.0.1:8899":                Localnet,
		"http://validator:8899":                Localnet,
		"https://api.devnet.solana.com":        Devnet,
		"https://api.testnet.solana.com":       Testnet,
		"https://api.mainnet-beta.solana.com":  Mainnet,
		"https://rpc.example.org/some-api-key": Mainnet,
		"HTTPS://API.DEVNET.SOLANA.COM":        Devnet,
	}
	for url, want := range cases {
		require.Equal(t, want, DetectNetwork(url), url)
	}
}

func TestParseNetwork(t *testing.T) {
	n, err := ParseNetwork("Devnet")
	require.NoError(t, err)
	require.Equal(t, Devnet, n)

	_, err = ParseNetwork("moonnet")
	require.Error(t, err)
}

func TestExplorerURL(t *testing.T) {
	require.Equal(t, "https://explorer.solana.com/tx/sig?cluster=devnet", Devnet.ExplorerURL("sig", ""))
	require.Equal(t, "https://explorer.solana.com/tx/sig", Mainnet.ExplorerURL("sig", ""))
	require.Equal(t,
		"https://explorer.solana.com/tx/sig?cluster=custom&customUrl=http%3A%2F%2Flocalhost%3A8899",
		Localnet.ExplorerURL("sig", "http://localhost:8899"),
	)
}
