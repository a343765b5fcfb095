package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret123")
	assert.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "secret123", hash)
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("mypassword")
	assert.NoError(t, err)
	assert.True(t, CheckPassword("mypassword", hash))
	assert.False(t, CheckPassword("wrongpassword", hash))
	assert.False(t, CheckPassword("mypassword", "not-a-hash"))
}

func TestValidateCredentials(t *testing.T) {
	assert.NoError(t, ValidateCredentials("alice", "pw"))
	assert.ErrorIs(t, ValidateCredentials("", "pw"), ErrInvalidInput)
	assert.ErrorIs(t, ValidateCredentials("alice", ""), ErrInvalidInput)
	assert.ErrorIs(t, ValidateCredentials(strings.Repeat("a", MaxUsernameLength+1), "pw"), ErrInvalidInput)
	assert.ErrorIs(t, ValidateCredentials("alice", strings.Repeat("p", MaxPasswordBytes+1)), ErrInvalidInput)
	assert.NoError(t, ValidateCredentials(strings.Repeat("é", MaxUsernameLength), "pw"))
}

// Property: HashPassword always produces a hash that CheckPassword verifies.
func TestPropertyHashAndCheck(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		password := rapid.StringMatching(`[a-zA-Z0-9!@#$%^&*]{1,64}`).Draw(t, "password")
		hash, err := HashPassword(password)
		if err != nil {
			t.Fatalf("HashPassword failed: %v", err)
		}
		if !CheckPassword(password, hash) {
			t.Fatalf("CheckPassword failed for password %q", password)
		}
	})
}

// Property: Wrong password never validates.
func TestPropertyWrongPasswordNeverValidates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		correct := rapid.StringMatching(`[a-zA-Z0-9]{6,30}`).Draw(t, "correct")
		wrong := rapid.StringMatching(`[a-zA-Z0-9]{6,30}`).Draw(t, "wrong")
		if correct == wrong {
			return
		}
		hash, err := HashPassword(correct)
		if err != nil {
			t.Fatal(err)
		}
		if CheckPassword(wrong, hash) {
			t.Fatalf("wrong password %q matched hash of %q", wrong, correct)
		}
	})
}
