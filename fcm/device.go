package fcm

import (
	"errors"
	"fmt"
	"regexp"
)

// AppIdentity identifies the application a push token is issued for.
type AppIdentity struct {
	// Package is the Android application id, e.g. "com.example.app".
	Package string `yaml:"package" json:"package"`
	// SenderID is the Firebase project number.
	SenderID string `yaml:"sender_id" json:"sender_id"`
	// CertSHA1 is the lowercase hex SHA1 of the APK signing certificate.
	CertSHA1 string `yaml:"cert_sha1" json:"cert_sha1"`
	// AppVersion is the version code sent on registration. Defaults to "1".
	AppVersion string `yaml:"app_version" json:"app_version"`
}

var certSHA1Pattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Validate reports every missing or malformed field, joined into one error.
func (a AppIdentity) Validate() error {
	var errs []error
	if a.Package == "" {
		errs = append(errs, errors.New("package is required"))
	}
	if a.SenderID == "" {
		errs = append(errs, errors.New("sender_id is required"))
	}
	if !certSHA1Pattern.MatchString(a.CertSHA1) {
		errs = append(errs, fmt.Errorf("cert_sha1 %q is not a 40 character lowercase hex digest", a.CertSHA1))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid app identity: %w", errors.Join(errs...))
	}
	return nil
}

func (a AppIdentity) appVersion() string {
	if a.AppVersion == "" {
		return "1"
	}
	return a.AppVersion
}

// AndroidDeviceInfo is the device identity sent on GCM checkin and
// registration.
type AndroidDeviceInfo struct {
	// BuildFingerprint has the form
	// brand/product/device:version/build_id/build_number:user/release-keys
	BuildFingerprint string

	SDKVersion int
	// GMSVersion is the Google Play Services version code.
	GMSVersion int

	Device        string
	Model         string
	ChromeVersion string
	Hardware      string
	Brand         string
	Manufacturer  string
	Product       string
	Bootloader    string
	Radio         string

	// BuildTime is Build.TIME in seconds since epoch.
	BuildTime int64
}

// DefaultAndroidDevice returns a Pixel 7 on Android 13 with a matching
// Play Services build.
func DefaultAndroidDevice() AndroidDeviceInfo {
	return AndroidDeviceInfo{
		BuildFingerprint: "google/panther/panther:13/TQ3A.230805.001/10316531:user/release-keys",
		SDKVersion:       33,
		GMSVersion:       241516037,
		Device:           "panther",
		Model:            "Pixel 7",
		Hardware:         "panther",
		Brand:            "google",
		Manufacturer:     "Google",
		Product:          "panther",
		Bootloader:       "slider-1.2-9819352",
		Radio:            "g5300g-230511-230925-B-10484716",
		BuildTime:        1691193600,
		ChromeVersion:    "120.0.6099.144",
	}
}
