package engine

import "baton/internal/store"

// DeriveGroupStatus computes a group's status from its jobs. Groups hold no
// independent lifecycle: any running job makes the group running; once every
// job is terminal the group is complete if at least one job completed and
// failed otherwise; any other mix leaves the group pending.
func DeriveGroupStatus(jobs []store.Job) store.GroupStatus {
	allTerminal := true
	anyComplete := false
	for _, j := range jobs {
		switch j.Status {
		case store.JobStatusRunning:
			return store.GroupStatusRunning
		case store.JobStatusComplete:
			anyComplete = true
		case store.JobStatusFailed:
		default:
			allTerminal = false
		}
	}
	if !allTerminal {
		return store.GroupStatusPending
	}
	if anyComplete {
		return store.GroupStatusComplete
	}
	return store.GroupStatusFailed
}

// groupReporting reports whether any job in the group carries a reporting
// type. Such groups close out a work phase: they reset the carried context
// and arm guardian evaluation.
func groupReporting(jobs []store.Job) bool {
	for _, j := range jobs {
		if j.Type.Reporting() {
			return true
		}
	}
	return false
}
