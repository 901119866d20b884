package auth

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventIssued        EventKind = "refresh.issued"
	EventRotated       EventKind = "refresh.rotated"
	EventRejected      EventKind = "refresh.rejected"
	EventReuseDetected EventKind = "refresh.reuse_detected"
	EventRevoked       EventKind = "refresh.revoked"
	EventRevokedAll    EventKind = "refresh.revoked_all"
)

// Event describes a state change of a refresh credential. Events never carry secrets.
type Event struct {
	ID           uuid.UUID     `json:"id"`
	Kind         EventKind     `json:"kind"`
	SubjectID    string        `json:"subject_id,omitempty"`
	CredentialID *uuid.UUID    `json:"credential_id,omitempty"`
	SuccessorID  *uuid.UUID    `json:"successor_id,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Count        int64         `json:"count,omitempty"`
	Client       ClientContext `json:"client"`
	At           time.Time     `json:"at"`
}
