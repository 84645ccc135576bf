package uid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	id := New()
	assert.True(t, IsValid(id))
	assert.False(t, IsOffline(id))
	assert.NotEqual(t, id, New())
}

func TestNewOffline(t *testing.T) {
	id := NewOffline()
	assert.True(t, IsOffline(id))
	assert.False(t, IsValid(id), "prefixed id is not a bare uuid")
	assert.False(t, IsOffline("offline_not-a-uuid"))
}
