package post

import "fmt"

// Lifecycle state graph:
//
//	draft -> pending_moderation -> published -> archived
//	                            -> rejected
//
// rejected and archived are terminal; there are no backward transitions.
var lifecycleGraph = map[LifecycleStatus][]LifecycleStatus{
	StatusDraft:             {StatusPendingModeration},
	StatusPendingModeration: {StatusPublished, StatusRejected},
	StatusPublished:         {StatusArchived, StatusDraft},
	StatusRejected:          {StatusDraft},
	StatusArchived:          {},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
// published -> draft and rejected -> draft are the edit transitions: an edit
// restarts the lifecycle with a fresh moderation cycle.
func CanTransition(from, to LifecycleStatus) bool {
	for _, next := range lifecycleGraph[from] {
		if next == to {
			return true
		}
	}
	return false
}

// canSubmit checks whether content can be submitted for moderation from its
// current status. pending_moderation is reported separately so the engine can
// treat re-submission as idempotent instead of an error.
func canSubmit(status LifecycleStatus) (ok, alreadyPending bool, err error) {
	switch status {
	case StatusDraft:
		return true, false, nil
	case StatusPendingModeration:
		return false, true, nil
	case StatusPublished:
		return false, false, fmt.Errorf("%w: content is already published", ErrConflict)
	case StatusRejected:
		return false, false, fmt.Errorf("%w: content has been rejected", ErrConflict)
	case StatusArchived:
		return false, false, fmt.Errorf("%w: content has been archived", ErrConflict)
	default:
		return false, false, fmt.Errorf("%w: unknown status %s", ErrInvalidStatus, status)
	}
}

// canArchive checks whether content can be archived from its current status.
// Archiving an archived item is a no-op, not an error.
func canArchive(status LifecycleStatus) (ok, alreadyArchived bool, err error) {
	switch status {
	case StatusPublished:
		return true, false, nil
	case StatusArchived:
		return false, true, nil
	case StatusDraft:
		return false, false, fmt.Errorf("%w: content has not been published yet", ErrConflict)
	case StatusPendingModeration:
		return false, false, fmt.Errorf("%w: content is pending moderation", ErrConflict)
	case StatusRejected:
		return false, false, fmt.Errorf("%w: content has been rejected", ErrConflict)
	default:
		return false, false, fmt.Errorf("%w: unknown status %s", ErrInvalidStatus, status)
	}
}

// canEdit checks whether a post body can be edited from its current status.
// Edits are allowed from draft, published and rejected; a pending post is
// owned by the moderation cycle until a verdict lands.
func canEdit(status LifecycleStatus) (bool, error) {
	switch status {
	case StatusDraft, StatusPublished, StatusRejected:
		return true, nil
	case StatusPendingModeration:
		return false, fmt.Errorf("%w: content is pending moderation", ErrConflict)
	case StatusArchived:
		return false, fmt.Errorf("%w: content has been archived", ErrConflict)
	default:
		return false, fmt.Errorf("%w: unknown status %s", ErrInvalidStatus, status)
	}
}

// statusForVerdict maps a moderation verdict to the resulting status.
func statusForVerdict(v Verdict) (LifecycleStatus, error) {
	switch v {
	case VerdictApprove:
		return StatusPublished, nil
	case VerdictReject:
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVerdict, v)
	}
}
