package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	stored, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, strings.Contains(stored, ":"))

	require.True(t, VerifyPassword("correct horse battery staple", stored))
	require.False(t, VerifyPassword("wrong password", stored))
}

func TestPasswordHashesAreSalted(t *testing.T) {
	a, err := HashPassword("same password")
	require.NoError(t, err)
	b, err := HashPassword("same password")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestPasswordMalformedStored(t *testing.T) {
	for _, stored := range []string{"", "nocolon", "zz:zz", "abcd:not-hex", ":"} {
		require.False(t, VerifyPassword("anything", stored), "stored %q", stored)
	}
}
