// Package fcm obtains Firebase Cloud Messaging registration tokens the way
// an Android device does: a GCM checkin followed by a c2dm registration for
// the configured application.
//
// Client implements pushbridge.TokenSource, so it can back a TokenProvider:
//
//	client := fcm.NewClient(identity, fcm.WithSessionDir(dir))
//	provider := pushbridge.NewTokenProvider(client)
//	provider.GetToken(onSuccess, onError)
package fcm
