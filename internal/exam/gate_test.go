package exam

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanStart(t *testing.T) {
	enrolled := &Enrollment{CourseID: "course-1", UserID: "stu-1", Role: "student"}
	base := sampleExam()
	at := func(f func(*Exam)) Exam {
		e := sampleExam()
		f(&e)
		return e
	}

	cases := []struct {
		name string
		ex   Exam
		en   *Enrollment
		ip   string
		now  time.Time
		want DenyReason
	}{
		{name: "allowed", ex: base, en: enrolled, now: t0},
		{name: "not enrolled", ex: base, now: t0, want: DenyNotEnrolled},
		{name: "enrolled elsewhere", ex: base, en: &Enrollment{CourseID: "course-2", UserID: "stu-1"}, now: t0, want: DenyNotEnrolled},
		{name: "not enrolled wins over unpublished", ex: at(func(e *Exam) { e.IsPublished = false }), now: t0, want: DenyNotEnrolled},
		{name: "unpublished", ex: at(func(e *Exam) { e.IsPublished = false }), en: enrolled, now: t0, want: DenyUnpublished},
		{name: "too early", ex: base, en: enrolled, now: base.AvailableFrom.Add(-time.Second), want: DenyNotYetAvailable},
		{name: "opening instant", ex: base, en: enrolled, now: *base.AvailableFrom},
		{name: "closing instant", ex: base, en: enrolled, now: *base.AvailableTo},
		{name: "too late", ex: base, en: enrolled, now: base.AvailableTo.Add(time.Second), want: DenyNoLongerAvailable},
		{name: "open window", ex: at(func(e *Exam) { e.AvailableFrom, e.AvailableTo = nil, nil }), en: enrolled, now: t0.AddDate(5, 0, 0)},
		{name: "ip allowed", ex: at(func(e *Exam) { e.IPAllowlist = []string{"10.0.0.1", " 10.0.0.2"} }), en: enrolled, ip: "10.0.0.2", now: t0},
		{name: "ip restricted", ex: at(func(e *Exam) { e.IPAllowlist = []string{"10.0.0.1"} }), en: enrolled, ip: "192.168.1.9", now: t0, want: DenyIPRestricted},
		{name: "window before ip", ex: at(func(e *Exam) { e.IPAllowlist = []string{"10.0.0.1"} }), en: enrolled, ip: "192.168.1.9", now: base.AvailableTo.Add(time.Minute), want: DenyNoLongerAvailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := CanStart(tc.ex, "stu-1", tc.en, tc.ip, tc.now)
			assert.Equal(t, tc.want == "", d.Allowed)
			assert.Equal(t, tc.want, d.Reason)
		})
	}
}

func TestDecisionErr(t *testing.T) {
	require.NoError(t, Decision{Allowed: true}.Err())

	err := Decision{Reason: DenyIPRestricted}.Err()
	require.ErrorIs(t, err, ErrAccessDenied)
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, DenyIPRestricted, denied.Reason)
}
