package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmercer-dev/authgate/pkg/auth"
)

func TestBcryptHasher_HashAndVerify(t *testing.T) {
	hasher := auth.NewBcryptHasher()

	hash, err := hasher.Hash("Correct-Horse-1")
	require.NoError(t, err)
	assert.NotEqual(t, "Correct-Horse-1", hash)

	assert.True(t, hasher.Verify("Correct-Horse-1", hash))
	assert.False(t, hasher.Verify("wrong-password", hash))
}

func TestBcryptHasher_MalformedHashFailsVerification(t *testing.T) {
	hasher := auth.NewBcryptHasher()

	assert.False(t, hasher.Verify("anything", "not-a-bcrypt-hash"))
	assert.False(t, hasher.Verify("anything", ""))
}

func TestBcryptHasher_EmptyPasswordRejected(t *testing.T) {
	hasher := auth.NewBcryptHasher()

	_, err := hasher.Hash("")
	assert.Error(t, err)
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid password", "Str0ngEnough", false},
		{"too short", "Ab1", true},
		{"no uppercase", "weakpassword1", true},
		{"no lowercase", "WEAKPASSWORD1", true},
		{"no digit", "WeakPassword", true},
		{"common password", "password", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidatePassword(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
