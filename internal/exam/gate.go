package exam

import (
	"strings"
	"time"
)

type DenyReason string

const (
	DenyNotEnrolled       DenyReason = "not_enrolled"
	DenyUnpublished       DenyReason = "unpublished"
	DenyNotYetAvailable   DenyReason = "not_yet_available"
	DenyNoLongerAvailable DenyReason = "no_longer_available"
	DenyIPRestricted      DenyReason = "ip_restricted"
)

// Decision is the Access Gate verdict. Reason is empty when Allowed.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision            { return Decision{Allowed: true} }
func deny(r DenyReason) Decision { return Decision{Reason: r} }

func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}

// CanStart decides whether userID may start or continue an attempt on ex.
// Checks run in a fixed order and stop at the first failure. enrollment is
// nil when the user is not enrolled on the exam's course.
func CanStart(ex Exam, userID string, enrollment *Enrollment, clientIP string, now time.Time) Decision {
	if enrollment == nil || enrollment.CourseID != ex.CourseID || enrollment.UserID != userID {
		return deny(DenyNotEnrolled)
	}
	if !ex.IsPublished {
		return deny(DenyUnpublished)
	}
	if ex.AvailableFrom != nil && now.Before(*ex.AvailableFrom) {
		return deny(DenyNotYetAvailable)
	}
	if ex.AvailableTo != nil && now.After(*ex.AvailableTo) {
		return deny(DenyNoLongerAvailable)
	}
	if !ipAllowed(ex.IPAllowlist, clientIP) {
		return deny(DenyIPRestricted)
	}
	return allow()
}

func ipAllowed(list []string, ip string) bool {
	if len(list) == 0 {
		return true
	}
	ip = strings.TrimSpace(ip)
	for _, allowed := range list {
		if strings.TrimSpace(allowed) == ip {
			return true
		}
	}
	return false
}
