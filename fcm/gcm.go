package fcm

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// gcmCheckinURL and gcmRegisterURL are package-level vars so tests can override them.
var (
	gcmCheckinURL  = "https://android.clients.google.com/checkin"
	gcmRegisterURL = "https://android.clients.google.com/c2dm/register3"
)

// Field numbers from Android's checkin.proto.
const (
	checkinReqID               protowire.Number = 2
	checkinReqCheckin          protowire.Number = 4
	checkinReqLocale           protowire.Number = 6
	checkinReqTimeZone         protowire.Number = 12
	checkinReqSecurityToken    protowire.Number = 13
	checkinReqVersion          protowire.Number = 14
	checkinReqFragment         protowire.Number = 20
	checkinReqUserSerialNumber protowire.Number = 22

	checkinBuild protowire.Number = 1
	checkinType  protowire.Number = 12

	buildFingerprint   protowire.Number = 1
	buildHardware      protowire.Number = 2
	buildBrand         protowire.Number = 3
	buildRadio         protowire.Number = 4
	buildBootloader    protowire.Number = 5
	buildClientID      protowire.Number = 6
	buildTime          protowire.Number = 7
	buildPackageVer    protowire.Number = 8
	buildDevice        protowire.Number = 9
	buildSDKVersion    protowire.Number = 10
	buildModel         protowire.Number = 11
	buildManufacturer  protowire.Number = 12
	buildProduct       protowire.Number = 13
	buildOtaInstalled  protowire.Number = 14
	checkinRespAndroid protowire.Number = 7
	checkinRespToken   protowire.Number = 8

	deviceTypeAndroidOS = 1
)

// HTTPError is a non-200 answer from a GCM endpoint.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// gcmCredentials holds the Android GCM device credentials.
type gcmCredentials struct {
	AndroidID     uint64 `json:"androidId"`
	SecurityToken uint64 `json:"securityToken"`
}

// marshalCheckinRequest encodes an AndroidCheckinRequest. A non-zero androidID
// makes it a re-checkin with existing credentials.
func marshalCheckinRequest(androidID, securityToken uint64, device AndroidDeviceInfo) []byte {
	var build []byte
	build = appendString(build, buildFingerprint, device.BuildFingerprint)
	build = appendString(build, buildHardware, device.Hardware)
	build = appendString(build, buildBrand, device.Brand)
	build = appendString(build, buildRadio, device.Radio)
	build = appendString(build, buildBootloader, device.Bootloader)
	build = appendString(build, buildClientID, "android-google")
	build = appendVarint(build, buildTime, uint64(device.BuildTime))
	build = appendVarint(build, buildPackageVer, uint64(device.GMSVersion))
	build = appendString(build, buildDevice, device.Device)
	build = appendVarint(build, buildSDKVersion, uint64(device.SDKVersion))
	build = appendString(build, buildModel, device.Model)
	build = appendString(build, buildManufacturer, device.Manufacturer)
	build = appendString(build, buildProduct, device.Product)
	build = appendVarint(build, buildOtaInstalled, protowire.EncodeBool(false))

	var checkin []byte
	checkin = protowire.AppendTag(checkin, checkinBuild, protowire.BytesType)
	checkin = protowire.AppendBytes(checkin, build)
	checkin = appendVarint(checkin, checkinType, deviceTypeAndroidOS)

	var req []byte
	if androidID != 0 {
		req = appendVarint(req, checkinReqID, androidID)
	}
	req = protowire.AppendTag(req, checkinReqCheckin, protowire.BytesType)
	req = protowire.AppendBytes(req, checkin)
	req = appendString(req, checkinReqLocale, "en_US")
	req = appendString(req, checkinReqTimeZone, "America/New_York")
	if androidID != 0 {
		req = protowire.AppendTag(req, checkinReqSecurityToken, protowire.Fixed64Type)
		req = protowire.AppendFixed64(req, securityToken)
	}
	req = appendVarint(req, checkinReqVersion, 3)
	req = appendVarint(req, checkinReqFragment, 0)
	req = appendVarint(req, checkinReqUserSerialNumber, 0)
	return req
}

// unmarshalCheckinResponse extracts android_id and security_token from an
// AndroidCheckinResponse, skipping every other field.
func unmarshalCheckinResponse(b []byte) (androidID, securityToken uint64, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, 0, protowire.ParseError(n)
		}
		b = b[n:]

		if typ == protowire.Fixed64Type && (num == checkinRespAndroid || num == checkinRespToken) {
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return 0, 0, protowire.ParseError(n)
			}
			if num == checkinRespAndroid {
				androidID = v
			} else {
				securityToken = v
			}
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return 0, 0, protowire.ParseError(n)
		}
		b = b[n:]
	}
	if androidID == 0 || securityToken == 0 {
		return 0, 0, fmt.Errorf("checkin response missing device credentials")
	}
	return androidID, securityToken, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// gcmCheckin performs an Android-native GCM checkin. If androidID and
// securityToken are non-zero, this is a re-checkin with existing credentials.
func gcmCheckin(ctx context.Context, httpClient *http.Client, androidID, securityToken uint64, device AndroidDeviceInfo) (uint64, uint64, error) {
	body := marshalCheckinRequest(androidID, securityToken, device)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, gcmCheckinURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("gcm checkin: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return 0, 0, fmt.Errorf("gcm checkin: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("gcm checkin: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, 0, &HTTPError{Op: "gcm checkin", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	id, token, err := unmarshalCheckinResponse(respBody)
	if err != nil {
		return 0, 0, fmt.Errorf("gcm checkin: unmarshal response: %w", err)
	}
	return id, token, nil
}

// generateInstanceID generates a random 11-character hex string for the GCM instance ID.
func generateInstanceID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate instance ID: %w", err)
	}
	return hex.EncodeToString(b)[:11], nil
}

// gcmRegister registers app with the c2dm/register3 endpoint and returns the
// FCM token. For Android-native registration the GCM token is the FCM token.
func gcmRegister(ctx context.Context, httpClient *http.Client, androidID, securityToken uint64, device AndroidDeviceInfo, app AppIdentity) (string, error) {
	instanceID, err := generateInstanceID()
	if err != nil {
		return "", err
	}

	form := url.Values{
		"app":     {app.Package},
		"sender":  {app.SenderID},
		"device":  {strconv.FormatUint(androidID, 10)},
		"cert":    {app.CertSHA1},
		"app_ver": {app.appVersion()},
		"gcm_ver": {strconv.Itoa(device.GMSVersion)},
		"X-scope": {"GCM"},
		"X-appid": {instanceID},
		"X-osv":   {strconv.Itoa(device.SDKVersion)},
		"X-gmsv":  {strconv.Itoa(device.GMSVersion)},
		"X-cliv":  {"iid-" + device.ChromeVersion},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, gcmRegisterURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("gcm register: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", fmt.Sprintf("AidLogin %d:%d", androidID, securityToken))
	httpReq.Header.Set("User-Agent", fmt.Sprintf("Android-GCM/1.5 (%s %s)", device.Device, device.Model))
	httpReq.Header.Set("app", app.Package)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gcm register: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gcm register: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &HTTPError{Op: "gcm register", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	body := strings.TrimSpace(string(respBody))
	if token, found := strings.CutPrefix(body, "token="); found {
		return strings.TrimSpace(token), nil
	}
	if reason, found := strings.CutPrefix(body, "Error="); found {
		return "", fmt.Errorf("gcm register: %s", reason)
	}

	return "", fmt.Errorf("gcm register: unexpected response: %s", body)
}
