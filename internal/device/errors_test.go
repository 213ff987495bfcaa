package device

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestConnectivity(t *testing.T) {
	assert.NoError(t, Connectivity("connect", nil))

	root := errors.New("connection refused")
	err := Connectivity("connect", root)
	assert.EqualError(t, err, "device: connect: connection refused")
	assert.True(t, IsConnectivity(err))
	assert.ErrorIs(t, err, root)
}

func TestIsConnectivity_Wrapped(t *testing.T) {
	err := errors.Wrap(Connectivity("read coils", errors.New("timeout")), "sampling cycle")
	assert.True(t, IsConnectivity(err))
}

func TestIsConnectivity_PlainError(t *testing.T) {
	assert.False(t, IsConnectivity(errors.New("bad configuration")))
	assert.False(t, IsConnectivity(nil))
}
