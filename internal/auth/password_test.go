package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// =========================================================================
// COST
// =========================================================================
// PASSWORD_COST feeds NewPasswordService. Out-of-range values fall back to
// the default instead of failing startup.

func TestNewPasswordService_ClampsCost(t *testing.T) {
	tests := []struct {
		name     string
		in, want int
	}{
		{"unset", 0, DefaultPasswordCost},
		{"below bcrypt minimum", bcrypt.MinCost - 1, DefaultPasswordCost},
		{"above bcrypt maximum", bcrypt.MaxCost + 1, DefaultPasswordCost},
		{"in range", 12, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewPasswordService(tt.in).cost)
		})
	}
}

func TestHash_RecordsConfiguredCost(t *testing.T) {
	hash, err := NewPasswordService(5).Hash("correct horse battery")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 5, cost)
	assert.NotContains(t, hash, "correct horse battery")
}

// Raising PASSWORD_COST must not lock out accounts hashed under the old value.
func TestVerify_HashFromAnotherCost(t *testing.T) {
	old, err := NewPasswordServiceForTest().Hash("correct horse battery")
	require.NoError(t, err)

	assert.NoError(t, NewPasswordService(6).Verify(old, "correct horse battery"))
	assert.ErrorIs(t, NewPasswordService(6).Verify(old, "Correct horse battery"), ErrPasswordMismatch)
}

// =========================================================================
// LENGTH LIMIT
// =========================================================================
// bcrypt ignores everything past byte 72, so two passwords sharing a prefix
// would collide. The limit counts bytes, not characters.

func TestHash_LengthLimit(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"72 ascii bytes", strings.Repeat("a", 72), false},
		{"73 ascii bytes", strings.Repeat("a", 73), true},
		{"36 two-byte runes", strings.Repeat("é", 36), false},
		{"37 two-byte runes", strings.Repeat("é", 37), true},
	}

	ps := NewPasswordServiceForTest()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ps.Hash(tt.password)
			if tt.wantErr {
				assert.ErrorContains(t, err, "72 bytes")
				return
			}
			assert.NoError(t, err)
		})
	}
}

// =========================================================================
// VERIFY
// =========================================================================

func TestVerify(t *testing.T) {
	ps := NewPasswordServiceForTest()
	hash, err := ps.Hash("пароль 密码")
	require.NoError(t, err)

	other, err := ps.Hash("пароль 密码")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salt is random per hash")

	tests := []struct {
		name         string
		hash         string
		password     string
		wantErr      bool
		wantMismatch bool
	}{
		{"match", hash, "пароль 密码", false, false},
		{"wrong password", hash, "пароль", true, true},
		{"empty password", hash, "", true, true},
		// A damaged stored hash is a server fault. Reporting it as a
		// mismatch would tell the user their password is wrong.
		{"truncated stored hash", hash[:20], "пароль 密码", true, false},
		{"not a bcrypt hash", "plaintext-in-the-db", "plaintext-in-the-db", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.Verify(tt.hash, tt.password)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantMismatch, err == ErrPasswordMismatch)
		})
	}
}
