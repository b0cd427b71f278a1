// Package pushbridge exposes native push-notification capability to a
// cross-platform application runtime.
//
// It has two independent parts:
//
//   - TokenProvider fetches a registration token from the push backend and
//     reports it through a single-shot callback pair (or an awaitable result).
//   - NotificationOpenRelay handles the OS notification-tap signal: it makes
//     sure the application runtime exists, emits a "notification opened" event
//     into it exactly once, and brings the application to the foreground.
//
// The runtime and the OS are injected as interfaces (RuntimeHost, AppContext)
// so both parts can run without a real device. The apphost subpackage provides
// in-process implementations, and the fcm subpackage provides an
// Android-native FCM TokenSource.
//
// Usage:
//
//	tokens := pushbridge.NewTokenProvider(fcm.NewClient(identity))
//	tokens.GetToken(func(tok string) { ... }, func(msg string) { ... })
//
//	relay := pushbridge.NewNotificationOpenRelay(runtime)
//	relay.OnNotificationTapped(ctx, device, intent)
package pushbridge
