package capability

import (
	"regexp"
	"strconv"
	"strings"
)

// Family is a coarse platform family.
type Family string

const (
	FamilyIOS     Family = "ios"
	FamilyAndroid Family = "android"
	FamilyDesktop Family = "desktop"
)

// Platform is the detected playback platform.
type Platform struct {
	Family Family
	Major  int
}

func (p Platform) String() string {
	if p.Major == 0 {
		return string(p.Family)
	}
	return string(p.Family) + "/" + strconv.Itoa(p.Major)
}

// RequiresGesture is true for platforms that only start audio inside a user gesture.
func (p Platform) RequiresGesture() bool {
	return p.Family == FamilyIOS
}

var (
	iosVersionRe     = regexp.MustCompile(`(?:iPhone|CPU) OS (\d+)[_.]`)
	safariVersionRe  = regexp.MustCompile(`Version/(\d+)\.`)
	androidVersionRe = regexp.MustCompile(`Android (\d+)`)
)

// DetectPlatform classifies a user-agent string.
func DetectPlatform(userAgent string) Platform {
	ua := userAgent
	switch {
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"), strings.Contains(ua, "iPod"):
		return Platform{Family: FamilyIOS, Major: firstInt(iosVersionRe, ua)}
	case strings.Contains(ua, "Macintosh") && strings.Contains(ua, "Mobile/"):
		// iPadOS in desktop mode only carries the Safari version.
		return Platform{Family: FamilyIOS, Major: firstInt(safariVersionRe, ua)}
	case strings.Contains(ua, "Android"):
		return Platform{Family: FamilyAndroid, Major: firstInt(androidVersionRe, ua)}
	default:
		return Platform{Family: FamilyDesktop}
	}
}

// ParsePlatform builds a platform from explicit configuration values such as
// family "ios" and version "18.2".
func ParsePlatform(family, version string) Platform {
	p := Platform{Family: Family(strings.ToLower(strings.TrimSpace(family)))}
	if p.Family == "" {
		p.Family = FamilyDesktop
	}
	major, _, _ := strings.Cut(strings.TrimSpace(version), ".")
	if n, err := strconv.Atoi(major); err == nil && n > 0 {
		p.Major = n
	}
	return p
}

func firstInt(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
