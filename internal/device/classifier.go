// Package device classifies the client's runtime environment into a
// [Profile] used to pick a speech-output strategy order.
//
// Classification is a pure function over the signals a browser client
// reports when it connects: its user-agent string, whether the device is
// touch-capable, and an optional manual override. The profile is recomputed
// per call and never stored.
package device

import "strings"

// Profile is the coarse device classification driving strategy selection.
type Profile string

const (
	// ProfileDesktop covers desktop browsers. Local speech synthesis is
	// reliable here and no audio unlock is needed.
	ProfileDesktop Profile = "desktop"

	// ProfileGenericMobile covers mobile browsers with no brand-specific
	// quirks beyond the usual autoplay restrictions.
	ProfileGenericMobile Profile = "generic-mobile"

	// ProfileSamsungMobile covers Samsung devices and the Samsung Internet
	// browser, the most failure-prone synthesis environment observed.
	ProfileSamsungMobile Profile = "samsung-mobile"

	// ProfileIOSMobile covers iPhones and iPads, where audio must be
	// unlocked by a user gesture before any synthesis output is audible.
	ProfileIOSMobile Profile = "ios-mobile"
)

// IsValid reports whether p is a recognised profile.
func (p Profile) IsValid() bool {
	switch p {
	case ProfileDesktop, ProfileGenericMobile, ProfileSamsungMobile, ProfileIOSMobile:
		return true
	}
	return false
}

// Signals are the ambient environment facts a client reports.
type Signals struct {
	// UserAgent is the browser's user-agent string, verbatim.
	UserAgent string

	// TouchCapable indicates the device exposes a touch interface. Used to
	// catch mobile browsers that masquerade as desktop in the user-agent.
	TouchCapable bool

	// Override forces a specific profile regardless of the other signals.
	// Empty means no override. Invalid values are ignored.
	Override Profile
}

// samsungMarkers identify Samsung hardware and the Samsung Internet browser.
// Checked first: Samsung devices need the most defensive strategy order.
var samsungMarkers = []string{
	"samsungbrowser",
	"samsung",
	"sm-g", // Galaxy S / Note model prefixes
	"sm-n",
	"sm-a",
	"sm-f",
	"gt-i",
}

// iosMarkers identify iPhones and iPads.
var iosMarkers = []string{
	"iphone",
	"ipad",
	"ipod",
}

// mobileMarkers identify other mobile browsers.
var mobileMarkers = []string{
	"android",
	"mobile",
	"opera mini",
	"windows phone",
	"blackberry",
	"webos",
}

// Classify maps s to a [Profile]. A valid manual override always wins.
// Otherwise brand markers are matched in order of failure-proneness:
// Samsung, then iOS, then generic mobile. Anything else is desktop —
// classification never fails.
func Classify(s Signals) Profile {
	if s.Override.IsValid() {
		return s.Override
	}

	ua := strings.ToLower(s.UserAgent)
	if containsAny(ua, samsungMarkers) {
		return ProfileSamsungMobile
	}
	if containsAny(ua, iosMarkers) {
		return ProfileIOSMobile
	}
	if containsAny(ua, mobileMarkers) {
		return ProfileGenericMobile
	}

	// iPadOS 13+ reports a Macintosh user-agent; the touch signal is the
	// only reliable tell.
	if s.TouchCapable && strings.Contains(ua, "macintosh") {
		return ProfileIOSMobile
	}
	if s.TouchCapable {
		return ProfileGenericMobile
	}
	return ProfileDesktop
}

// containsAny reports whether ua contains at least one of the markers.
func containsAny(ua string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(ua, m) {
			return true
		}
	}
	return false
}
