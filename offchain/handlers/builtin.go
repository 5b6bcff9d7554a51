package handlers

import (
	"fmt"
	"time"

	"github.com/AvaProtocol/hybrid-compute/offchain"
)

// RemoteSpec describes one forwarded capability
type RemoteSpec struct {
	Signature string
	Params    []string
	URL       string
	Timeout   time.Duration
}

// Register adds the built-in handlers followed by the remote ones, in order,
// so a remote entry cannot silently replace addsub2.
func Register(reg *offchain.Registry, remotes []RemoteSpec) error {
	if err := reg.Register(AddSub2Signature, NewAddSub2()); err != nil {
		return err
	}

	for _, spec := range remotes {
		h, err := NewRemote(spec.Signature, spec.Params, spec.URL, spec.Timeout)
		if err != nil {
			return fmt.Errorf("remote handler %s: %w", spec.Signature, err)
		}
		if err := reg.Register(spec.Signature, h); err != nil {
			return err
		}
	}
	return nil
}
