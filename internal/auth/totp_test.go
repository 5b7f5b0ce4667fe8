package auth

import (
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTOTPManager(t *testing.T) *TOTPManager {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tm, err := NewTOTPManager(key, "Bastion")
	require.NoError(t, err)
	return tm
}

func TestNewTOTPManager_InvalidKeyLength(t *testing.T) {
	for _, length := range []int{0, 16, 24, 31, 33, 64} {
		tm, err := NewTOTPManager(make([]byte, length), "Bastion")
		assert.Error(t, err)
		assert.Nil(t, tm)
		assert.Contains(t, err.Error(), "must be exactly 32 bytes")
	}
}

func TestTOTPManager_Enroll(t *testing.T) {
	tm := newTestTOTPManager(t)

	enrollment, err := tm.Enroll("admin@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, enrollment.EncryptedSecret)
	assert.Len(t, enrollment.Nonce, 12)
	assert.NotEmpty(t, enrollment.Secret)
	assert.True(t, strings.HasPrefix(enrollment.QRCodeDataURL, "data:image/png;base64,"))
	assert.Contains(t, enrollment.ProvisioningURL, "otpauth://totp/")
	assert.Contains(t, enrollment.ProvisioningURL, "issuer=Bastion")

	decrypted, err := tm.DecryptSecret(enrollment.EncryptedSecret, enrollment.Nonce)
	require.NoError(t, err)
	assert.Equal(t, enrollment.Secret, string(decrypted))
}

func TestTOTPManager_EncryptDecryptRoundTrip(t *testing.T) {
	tm := newTestTOTPManager(t)

	encrypted, nonce, err := tm.EncryptSecret([]byte("JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)
	assert.NotEqual(t, []byte("JBSWY3DPEHPK3PXP"), encrypted)

	plain, err := tm.DecryptSecret(encrypted, nonce)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", string(plain))
}

func TestTOTPManager_DecryptWithWrongKeyFails(t *testing.T) {
	tm := newTestTOTPManager(t)
	other := newTestTOTPManager(t)

	encrypted, nonce, err := tm.EncryptSecret([]byte("JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)

	_, err = other.DecryptSecret(encrypted, nonce)
	assert.Error(t, err)
}

func TestTOTPManager_VerifyEncrypted(t *testing.T) {
	tm := newTestTOTPManager(t)
	enrollment, err := tm.Enroll("admin@example.com")
	require.NoError(t, err)

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	code, err := totp.GenerateCodeCustom(enrollment.Secret, now, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	ok, err := tm.VerifyEncrypted(enrollment.EncryptedSecret, enrollment.Nonce, code, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tm.VerifyEncrypted(enrollment.EncryptedSecret, enrollment.Nonce, code, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "code must not validate outside the skew window")
}

func TestTOTPManager_ValidateCode_Malformed(t *testing.T) {
	tm := newTestTOTPManager(t)

	ok, _ := tm.ValidateCode([]byte("JBSWY3DPEHPK3PXP"), "12", time.Now())
	assert.False(t, ok)
}
