package models

import (
	"github.com/google/uuid"
)

// Rider is the core's read-mostly view of a subject. Identity and profile
// data are owned by the auth collaborator; this record tracks only what the
// join engine needs: availability and the current live assignment linkage.
type Rider struct {
	ID                  string     `json:"id"`
	Available           bool       `json:"available"`
	CurrentAssignmentID *uuid.UUID `json:"current_assignment_id,omitempty"`
}
