package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashVerify(t *testing.T) {
	p := NewPasswordServiceWithCost(bcrypt.MinCost)

	h, err := p.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", h)

	assert.NoError(t, p.Verify(h, "correct horse"))
	assert.ErrorIs(t, p.Verify(h, "wrong"), ErrPasswordMismatch)
}

func TestHash_SaltedPerCall(t *testing.T) {
	p := NewPasswordServiceWithCost(bcrypt.MinCost)
	a, _ := p.Hash("same")
	b, _ := p.Hash("same")
	assert.NotEqual(t, a, b)
}

func TestHash_TooLong(t *testing.T) {
	p := NewPasswordServiceWithCost(bcrypt.MinCost)
	_, err := p.Hash(strings.Repeat("x", MaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	_, err = p.Hash(strings.Repeat("x", MaxPasswordBytes))
	assert.NoError(t, err)
}

func TestVerify_CorruptHash(t *testing.T) {
	p := NewPasswordServiceWithCost(bcrypt.MinCost)
	err := p.Verify("not-a-hash", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPasswordMismatch)
}

func TestNewPasswordService_DefaultCost(t *testing.T) {
	assert.Equal(t, defaultCost, NewPasswordService().cost)
}
