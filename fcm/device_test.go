package fcm

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAndroidDevice(t *testing.T) {
	device := DefaultAndroidDevice()

	fingerprintPattern := regexp.MustCompile(`^[^/]+/[^/]+/[^:]+:[0-9]+/[^/]+/[^:]+:(user|userdebug)/(release-keys|dev-keys)$`)
	assert.Regexp(t, fingerprintPattern, device.BuildFingerprint)
	assert.GreaterOrEqual(t, device.SDKVersion, 24)
	assert.LessOrEqual(t, device.SDKVersion, 40)
	assert.NotZero(t, device.GMSVersion)
	assert.NotEmpty(t, device.Device)
	assert.NotEmpty(t, device.Model)
	assert.Regexp(t, `^\d+\.\d+\.\d+\.\d+$`, device.ChromeVersion)
}

func TestAppIdentityValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppIdentity)
		wantErr string
	}{
		{"valid", func(*AppIdentity) {}, ""},
		{"missing package", func(a *AppIdentity) { a.Package = "" }, "package is required"},
		{"missing sender", func(a *AppIdentity) { a.SenderID = "" }, "sender_id is required"},
		{"uppercase cert", func(a *AppIdentity) { a.CertSHA1 = "0123456789ABCDEF0123456789ABCDEF01234567" }, "cert_sha1"},
		{"short cert", func(a *AppIdentity) { a.CertSHA1 = "abc" }, "cert_sha1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := testIdentity
			tt.mutate(&app)
			err := app.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAppIdentityValidate_ReportsEveryProblem(t *testing.T) {
	err := AppIdentity{CertSHA1: "abc"}.Validate()
	require.Error(t, err)
	for _, want := range []string{"package is required", "sender_id is required", "cert_sha1"} {
		assert.Contains(t, err.Error(), want)
	}
}
