package byte4

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorHex(t *testing.T) {
	tests := []struct {
		signature string
		want      string
	}{
		// addsub2 is the selector the hybrid account encodes for the demo counter
		{"addsub2(uint32,uint32)", "97e0d7ba"},
		{"balanceOf(address)", "70a08231"},
		{"transfer(address,uint256)", "a9059cbb"},
		{"execute(address,uint256,bytes)", "b61d27f6"},
		{"count(uint32,uint32,address)", "2e41763e"},
		{"getNonce(address,uint192)", "35567e1a"},
		{"getDepositInfo(address)", "5287ce12"},
	}

	for _, tt := range tests {
		t.Run(tt.signature, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectorHex(tt.signature))
		})
	}
}

func TestSelectorMatchesKeccakPrefix(t *testing.T) {
	sig := "addsub2(uint32,uint32)"
	full := hex.EncodeToString(crypto.Keccak256([]byte(sig)))

	assert.Equal(t, full[:8], SelectorHex(sig))
	assert.Equal(t, "0x"+full[:8], SelectorOf(sig).String())
}

func TestSelectorIgnoresWhitespace(t *testing.T) {
	assert.Equal(t, SelectorOf("addsub2(uint32,uint32)"), SelectorOf(" addsub2( uint32, uint32 ) "))
}

func TestParseSignature(t *testing.T) {
	name, args, err := ParseSignature("verifyCaptcha(string, string,string)")
	require.NoError(t, err)
	assert.Equal(t, "verifyCaptcha", name)
	assert.Equal(t, []string{"string", "string", "string"}, args)

	name, args, err = ParseSignature("ping()")
	require.NoError(t, err)
	assert.Equal(t, "ping", name)
	assert.Empty(t, args)

	for _, bad := range []string{"", "noparens", "(uint256)", "open(uint256"} {
		_, _, err := ParseSignature(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseSelectorHex(t *testing.T) {
	want := SelectorOf("addsub2(uint32,uint32)")

	for _, key := range []string{"97e0d7ba", "0x97e0d7ba", "97E0D7BA", " 0x97e0d7BA "} {
		got, err := ParseSelectorHex(key)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}

	_, err := ParseSelectorHex("97e0d7")
	assert.ErrorContains(t, err, "invalid selector length")

	_, err = ParseSelectorHex("zzzzzzzz")
	assert.Error(t, err)
}

func TestGetMethodFromSelector(t *testing.T) {
	// ERC20 ABI with transfer and balanceOf methods. These hash can generate locally or getting from Etherscan/Remix
	const abiJSON = `[
		{
			"inputs": [
				{"name": "_to", "type": "address"},
				{"name": "_value", "type": "uint256"}
			],
			"name": "transfer",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"name": "who", "type": "address"}],
			"name": "balanceOf",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`

	parsedABI, err := abi.JSON(strings.NewReader(abiJSON))
	require.NoError(t, err)

	decodeHex := func(s string) []byte {
		b, err := hex.DecodeString(s)
		require.NoError(t, err)
		return b
	}

	tests := []struct {
		name        string
		selector    []byte
		wantMethod  string
		wantErr     bool
		errContains string
	}{
		{
			name:       "valid balanceOf selector",
			selector:   decodeHex("70a08231000000000000000000000000ce289bb9fb0a9591317981223cbe33d5dc42268d"),
			wantMethod: "balanceOf",
		},
		{
			name:       "valid transfer selector",
			selector:   decodeHex("a9059cbb000000000000000000000000ce289bb9fb0a9591317981223cbe33d5dc42268d0000000000000000000000000000000000000000000000000de0b6b3a7640000"),
			wantMethod: "transfer",
		},
		{
			name:        "invalid selector length",
			selector:    []byte{0x70, 0xa0},
			wantErr:     true,
			errContains: "invalid selector length",
		},
		{
			name:        "unknown selector",
			selector:    decodeHex("12345678"),
			wantErr:     true,
			errContains: "no matching method found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method, err := GetMethodFromCalldata(parsedABI, tt.selector)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				assert.Nil(t, method)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, method)
			assert.Equal(t, tt.wantMethod, method.Name)
		})
	}
}
