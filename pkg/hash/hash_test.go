package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher(t *testing.T) {
	h := Hasher{Cost: bcrypt.MinCost}

	hashed, err := h.Hash("s3cret")
	require.NoError(t, err)
	assert.True(t, h.Check(hashed, "s3cret"))
	assert.False(t, h.Check(hashed, "other"))

	_, err = h.Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}
