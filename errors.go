package pushbridge

import "errors"

var (
	// ErrTokenUnavailable is reported when the push backend fails without
	// saying why.
	ErrTokenUnavailable = errors.New("push backend returned no token")

	// ErrNoLaunchIntent means the package manager has no launch intent
	// registered for the host package.
	ErrNoLaunchIntent = errors.New("no launch intent registered for package")

	// ErrClassNotFound means the main activity class could not be loaded.
	ErrClassNotFound = errors.New("main activity class not found")
)
