package store

// Client ENUMs
const (
	ClientStatusActive   = "active"
	ClientStatusInactive = "inactive"
	ClientStatusPending  = "pending"
)

// Platform identifiers. These double as the platform segment in API routes.
const (
	PlatformGoogleAds       = "googleads"
	PlatformMeta            = "meta"
	PlatformGoogleAnalytics = "googleanalytics"
)

// Staff user ENUMs
const (
	StaffRoleAdmin  = "admin"
	StaffRoleMember = "member"
)

// ValidPlatform reports whether p names a supported ad/analytics platform.
func ValidPlatform(p string) bool {
	switch p {
	case PlatformGoogleAds, PlatformMeta, PlatformGoogleAnalytics:
		return true
	}
	return false
}

// ValidClientStatus reports whether s is a known client status.
func ValidClientStatus(s string) bool {
	switch s {
	case ClientStatusActive, ClientStatusInactive, ClientStatusPending:
		return true
	}
	return false
}
