// Package status defines sync status values and the per-entity broadcaster
// that fans them out to observers.
package status

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the phase a sync-relevant operation is in.
type State string

const (
	Idle    State = "idle"
	Syncing State = "syncing"
	Synced  State = "synced"
	Offline State = "offline"
	Failed  State = "failed"
)

// Terminal reports whether s ends a sync pass.
func (s State) Terminal() bool {
	return s == Synced || s == Offline || s == Failed
}

// Status is a transient sync status event. It is never persisted.
type Status struct {
	Entity string
	State  State
	// Err is set only for Failed.
	Err error
	At  time.Time
}

// New returns a status for entity stamped with the current time.
func New(entity string, state State) Status {
	return Status{Entity: entity, State: state, At: time.Now()}
}

// NewFailed returns a failed status carrying err.
func NewFailed(entity string, err error) Status {
	return Status{Entity: entity, State: Failed, Err: err, At: time.Now()}
}

func (s Status) String() string {
	if s.State == Failed && s.Err != nil {
		return fmt.Sprintf("%s: failed(%v)", s.Entity, s.Err)
	}
	return fmt.Sprintf("%s: %s", s.Entity, s.State)
}

type statusJSON struct {
	Entity string    `json:"entity"`
	State  State     `json:"state"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

// MarshalJSON renders the status for websocket observers.
func (s Status) MarshalJSON() ([]byte, error) {
	out := statusJSON{Entity: s.Entity, State: s.State, At: s.At}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a status received from the relay. The error, if
// any, comes back as a plain message.
func (s *Status) UnmarshalJSON(data []byte) error {
	var in statusJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.Entity = in.Entity
	s.State = in.State
	s.At = in.At
	s.Err = nil
	if in.Error != "" {
		s.Err = remoteMessage(in.Error)
	}
	return nil
}

type remoteMessage string

func (m remoteMessage) Error() string { return string(m) }
