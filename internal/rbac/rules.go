package rbac

const (
	PermExamView       = "exam:view"
	PermExamCreate     = "exam:create"
	PermExamArchive    = "exam:archive"
	PermAttemptCreate  = "attempt:create"
	PermAttemptSubmit  = "attempt:submit"
	PermAttemptGrade   = "attempt:grade"
	PermAttemptViewAll = "attempt:view-all"
	PermResultsViewOwn = "results:view-own"
	PermHeartbeat      = "heartbeat:report"
	PermHeartbeatView  = "heartbeat:view"
)

// Default policy. Course-level ownership (a professor teaching the exam's
// course) is checked by the exam service on top of these.
var RolePermissions = map[string][]string{
	"student": {
		PermExamView,
		PermAttemptCreate,
		PermAttemptSubmit,
		PermResultsViewOwn,
		PermHeartbeat,
	},
	"professor": {
		PermExamView,
		PermExamCreate,
		PermExamArchive,
		PermAttemptGrade,
		PermAttemptViewAll,
		PermHeartbeat,
	},
	"admin": {
		"*", // everything
	},
}
