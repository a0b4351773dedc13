package post

import (
	"time"

	"github.com/google/uuid"
)

// LifecycleStatus is the domain type for content lifecycle states.
type LifecycleStatus string

// Lifecycle status constants (typed).
const (
	StatusDraft             LifecycleStatus = "draft"
	StatusPendingModeration LifecycleStatus = "pending_moderation"
	StatusPublished         LifecycleStatus = "published"
	StatusRejected          LifecycleStatus = "rejected"
	StatusArchived          LifecycleStatus = "archived"
)

// IsValid returns true if the status is a known lifecycle state.
func (s LifecycleStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusPendingModeration, StatusPublished, StatusRejected, StatusArchived:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further transition can leave the status.
func (s LifecycleStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusArchived
}

// ContentKind identifies which moderated record a transition targets.
type ContentKind string

// Content kind constants (typed).
const (
	KindTopic ContentKind = "topic"
	KindPost  ContentKind = "post"
)

// IsValid returns true if the kind is a known content kind.
func (k ContentKind) IsValid() bool {
	return k == KindTopic || k == KindPost
}

// Verdict is the moderation outcome for a submitted item.
type Verdict string

// Verdict constants (typed).
const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// IsValid returns true if the verdict is a known moderation outcome.
func (v Verdict) IsValid() bool {
	return v == VerdictApprove || v == VerdictReject
}

// ReasonModerationUnavailable is recorded as the verdict reason when the
// moderation service stayed unreachable past the retry budget.
const ReasonModerationUnavailable = "moderation_unavailable"

// Discussion is a moderated conversation space bound to exactly one asset.
// The asset reference is immutable after creation and is verified once,
// against the Asset service, at creation time.
type Discussion struct {
	ID        uuid.UUID  `json:"id"`
	AssetID   uuid.UUID  `json:"asset_id"`
	Title     string     `json:"title"`
	Archived  bool       `json:"archived"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Topic is a thread within a Discussion. Topics carry the same lifecycle
// as posts: they start as drafts and pass through moderation.
type Topic struct {
	ID           uuid.UUID `json:"id"`
	DiscussionID uuid.UUID `json:"discussion_id"`
	AuthorRef    string    `json:"author_ref"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	Verdict      string    `json:"verdict,omitempty"`
	VerdictReason string   `json:"verdict_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Post is a single message within a Topic.
//
// Verdict is set only when the post leaves pending_moderation; editing a
// published or rejected post clears it and restarts the lifecycle at draft.
type Post struct {
	ID            uuid.UUID `json:"id"`
	TopicID       uuid.UUID `json:"topic_id"`
	AuthorRef     string    `json:"author_ref"`
	Body          string    `json:"body"`
	Status        string    `json:"status"`
	Verdict       string    `json:"verdict,omitempty"`
	VerdictReason string    `json:"verdict_reason,omitempty"`
	EditCount     int       `json:"edit_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ModerationRequest correlates a submitted topic or post with an outstanding
// moderation call. One request exists per content item; each dispatch attempt
// gets a fresh correlation id, so the record always tracks the latest attempt.
// The record is removed when a verdict is applied or the request is abandoned
// after exhausting retries.
type ModerationRequest struct {
	CorrelationID uuid.UUID   `json:"correlation_id"`
	ContentID     uuid.UUID   `json:"content_id"`
	Kind          ContentKind `json:"kind"`
	Attempt       int         `json:"attempt"`
	SubmittedAt   time.Time   `json:"submitted_at"`
}

// TransitionParams describes an atomic compare-and-swap on a content item's
// lifecycle status. The repository applies the swap only while the current
// status equals From, failing with ErrConflict otherwise.
type TransitionParams struct {
	From          LifecycleStatus
	To            LifecycleStatus
	Verdict       Verdict // optional, recorded when leaving pending_moderation
	VerdictReason string  // optional
}
