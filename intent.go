package pushbridge

import "maps"

// NotificationExtra is the intent extra key holding the notification payload.
const NotificationExtra = "notification"

// IntentFlags are launch flags attached to an Intent.
type IntentFlags uint32

// Values match android.content.Intent so hosts can pass them through as-is.
const (
	FlagActivityNewTask           IntentFlags = 0x10000000
	FlagActivityResetTaskIfNeeded IntentFlags = 0x00200000
)

// Has reports whether all bits of f are set.
func (fl IntentFlags) Has(f IntentFlags) bool { return fl&f == f }

// Bundle is an opaque key-value payload. The bridge never interprets it.
type Bundle map[string]any

// Clone returns a shallow copy of b.
func (b Bundle) Clone() Bundle {
	if b == nil {
		return nil
	}
	return maps.Clone(b)
}

// Component names an activity inside a package.
type Component struct {
	Package string `json:"package" yaml:"package"`
	Class   string `json:"class" yaml:"class"`
}

// Intent is the signal delivered by the OS, or the request sent back to it.
type Intent struct {
	Action    string      `json:"action,omitempty" yaml:"action,omitempty"`
	Component *Component  `json:"component,omitempty" yaml:"component,omitempty"`
	Package   string      `json:"package,omitempty" yaml:"package,omitempty"`
	Flags     IntentFlags `json:"flags,omitempty" yaml:"flags,omitempty"`
	Extras    Bundle      `json:"extras,omitempty" yaml:"extras,omitempty"`
}

// NewNotificationIntent builds a tap signal carrying payload under NotificationExtra.
func NewNotificationIntent(action string, payload Bundle) *Intent {
	return &Intent{
		Action: action,
		Extras: Bundle{NotificationExtra: payload},
	}
}

// BundleExtra returns the Bundle stored under key, or nil when the extra is
// missing or is not a bundle.
func (i *Intent) BundleExtra(key string) Bundle {
	if i == nil || i.Extras == nil {
		return nil
	}
	switch v := i.Extras[key].(type) {
	case Bundle:
		return v
	case map[string]any:
		return Bundle(v)
	default:
		return nil
	}
}
