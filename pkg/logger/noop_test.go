package logger

import (
	"bytes"
	"testing"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/stretchr/testify/assert"
)

func TestEnsureLogger(t *testing.T) {
	assert.Same(t, discard, EnsureLogger(nil))

	var buf bytes.Buffer
	log := sdklogging.NewSlogTextLogger(&buf, nil)
	assert.Same(t, log, EnsureLogger(log))
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	Component(sdklogging.NewSlogTextLogger(&buf, nil), "nonces").Info("reset cached nonce", "sender", "0x01")

	assert.Contains(t, buf.String(), "component=nonces")
	assert.Contains(t, buf.String(), "sender=0x01")

	// a nil logger stays silent
	assert.NotPanics(t, func() {
		Component(nil, "dispatch").Error("dropped")
	})
}
