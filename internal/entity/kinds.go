package entity

import "github.com/crewsync/crewsync/internal/offline"

// Store partition names.
const (
	Workers       = "workers"
	WorkEntries   = "work_entries"
	LeaveRequests = "leave_requests"
)

// All lists every entity partition in a stable order.
var All = []string{Workers, WorkEntries, LeaveRequests}

// WorkerKind keys workers by email until they are cached.
func WorkerKind() offline.Kind[Worker] {
	return offline.Kind[Worker]{
		Name:     Workers,
		Key:      Worker.Key,
		SetKey:   func(w *Worker, key string) { w.LocalKey = key },
		ID:       func(w Worker) *int64 { return w.ID },
		SetID:    func(w *Worker, id int64) { w.ID = &id },
		Validate: Worker.Validate,
	}
}

// WorkEntryKind keys work entries by generated UUID.
func WorkEntryKind() offline.Kind[WorkEntry] {
	return offline.Kind[WorkEntry]{
		Name:     WorkEntries,
		Key:      func(e WorkEntry) string { return e.LocalKey },
		SetKey:   func(e *WorkEntry, key string) { e.LocalKey = key },
		ID:       func(e WorkEntry) *int64 { return e.ID },
		SetID:    func(e *WorkEntry, id int64) { e.ID = &id },
		Validate: WorkEntry.Validate,
	}
}

// LeaveRequestKind keys leave requests by generated UUID.
func LeaveRequestKind() offline.Kind[LeaveRequest] {
	return offline.Kind[LeaveRequest]{
		Name:     LeaveRequests,
		Key:      func(r LeaveRequest) string { return r.LocalKey },
		SetKey:   func(r *LeaveRequest, key string) { r.LocalKey = key },
		ID:       func(r LeaveRequest) *int64 { return r.ID },
		SetID:    func(r *LeaveRequest, id int64) { r.ID = &id },
		Validate: LeaveRequest.Validate,
	}
}
