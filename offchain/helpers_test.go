package offchain

import "github.com/AvaProtocol/hybrid-compute/pkg/byte4"

func selectorOf(sig string) string {
	return byte4.SelectorHex(sig)
}
