package types

import "errors"

// Domain errors for entity validation
var (
	ErrNilEntity          = errors.New("entity is empty")
	ErrMissingID          = errors.New("id is required")
	ErrMissingName        = errors.New("name is required")
	ErrMissingWorkspace   = errors.New("workspace id is required")
	ErrMissingDomain      = errors.New("domain id is required")
	ErrMissingEndpoint    = errors.New("relationship source and target ids are required")
	ErrInvalidColumn      = errors.New("column name is required")
	ErrInvalidForeignKey  = errors.New("foreign key reference must name a target table")
	ErrInvalidSyncStatus  = errors.New("invalid sync status")
	ErrInvalidDecisionRef = errors.New("decision cannot supersede itself")
)
