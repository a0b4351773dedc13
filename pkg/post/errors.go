package post

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrDiscussionNotFound indicates a discussion was not found
	ErrDiscussionNotFound = errors.New("discussion not found")

	// ErrTopicNotFound indicates a topic was not found
	ErrTopicNotFound = errors.New("topic not found")

	// ErrPostNotFound indicates a post was not found
	ErrPostNotFound = errors.New("post not found")

	// ErrAssetNotFound indicates the referenced asset does not resolve via the Asset service
	ErrAssetNotFound = errors.New("asset not found")

	// ErrModerationRequestNotFound indicates no outstanding moderation request matches
	ErrModerationRequestNotFound = errors.New("moderation request not found")

	// ErrDiscussionExists indicates an active discussion already exists for the asset
	ErrDiscussionExists = errors.New("active discussion already exists for asset")

	// ErrConflict indicates a stale write: the content's current status did not
	// match the expected one during an atomic transition
	ErrConflict = errors.New("content status conflict")

	// ErrInvalidStatus indicates an unknown lifecycle status
	ErrInvalidStatus = errors.New("invalid lifecycle status")

	// ErrInvalidVerdict indicates an unknown moderation verdict
	ErrInvalidVerdict = errors.New("invalid moderation verdict")

	// ErrUpstreamUnavailable indicates an external dependency could not be
	// reached; retried per the moderation dispatch policy
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")

	// ErrModerationUnavailable indicates dispatch retries were exhausted; the
	// content has been rejected with reason "moderation_unavailable"
	ErrModerationUnavailable = errors.New("moderation service unavailable")

	// ErrUnauthorized indicates the Auth service denied the action
	ErrUnauthorized = errors.New("unauthorized")
)

// ContentError represents an error from a lifecycle operation on a content item
type ContentError struct {
	ContentID uuid.UUID
	Kind      ContentKind
	Op        string
	Err       error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("%s operation %s failed for %s: %v", e.Kind, e.Op, e.ContentID, e.Err)
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

// ModerationError represents an error from a moderation gateway operation
type ModerationError struct {
	CorrelationID uuid.UUID
	Op            string
	Err           error
}

func (e *ModerationError) Error() string {
	return fmt.Sprintf("moderation operation %s failed for correlation %s: %v", e.Op, e.CorrelationID, e.Err)
}

func (e *ModerationError) Unwrap() error {
	return e.Err
}

// ValidationError reports an invalid field on a create or edit request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDiscussionNotFound) ||
		errors.Is(err, ErrTopicNotFound) ||
		errors.Is(err, ErrPostNotFound) ||
		errors.Is(err, ErrAssetNotFound) ||
		errors.Is(err, ErrModerationRequestNotFound)
}
