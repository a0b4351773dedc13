package post

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for discussion, topic, post and
// moderation-request persistence. It is the single writer of lifecycle
// status fields: status changes only happen through the Transition*
// compare-and-swap primitives.
type Repository interface {
	// Discussion operations
	CreateDiscussion(ctx context.Context, discussion *Discussion) error
	GetDiscussion(ctx context.Context, id uuid.UUID) (*Discussion, error)
	GetActiveDiscussionByAsset(ctx context.Context, assetID uuid.UUID) (*Discussion, error)
	ListDiscussions(ctx context.Context, params ListDiscussionsParams) ([]*Discussion, error)
	ArchiveDiscussion(ctx context.Context, id uuid.UUID) error

	// Topic operations
	CreateTopic(ctx context.Context, topic *Topic) error
	GetTopic(ctx context.Context, id uuid.UUID) (*Topic, error)
	ListTopics(ctx context.Context, discussionID uuid.UUID) ([]*Topic, error)
	// TransitionTopic atomically swaps the topic status from params.From to
	// params.To, failing with ErrConflict when the current status differs.
	TransitionTopic(ctx context.Context, id uuid.UUID, params TransitionParams) (*Topic, error)

	// Post operations
	CreatePost(ctx context.Context, p *Post) error
	GetPost(ctx context.Context, id uuid.UUID) (*Post, error)
	ListPosts(ctx context.Context, topicID uuid.UUID) ([]*Post, error)
	// TransitionPost atomically swaps the post status from params.From to
	// params.To, failing with ErrConflict when the current status differs.
	TransitionPost(ctx context.Context, id uuid.UUID, params TransitionParams) (*Post, error)
	// UpdatePostBody replaces the body, returns the post to draft and clears
	// the verdict, guarded by the same compare-and-swap as TransitionPost.
	UpdatePostBody(ctx context.Context, id uuid.UUID, body string, from LifecycleStatus) (*Post, error)
	CountPostsByAuthor(ctx context.Context, authorRef string) (int64, error)

	// Moderation request operations. One record exists per content item;
	// Save upserts so redispatch attempts replace the previous correlation.
	SaveModerationRequest(ctx context.Context, request *ModerationRequest) error
	GetModerationRequest(ctx context.Context, correlationID uuid.UUID) (*ModerationRequest, error)
	GetModerationRequestByContent(ctx context.Context, contentID uuid.UUID) (*ModerationRequest, error)
	DeleteModerationRequest(ctx context.Context, correlationID uuid.UUID) error
	ListModerationRequestsOlderThan(ctx context.Context, cutoff time.Time) ([]*ModerationRequest, error)
}

// ListDiscussionsParams defines filtering for listing discussions.
type ListDiscussionsParams struct {
	AssetID         *uuid.UUID
	IncludeArchived bool
}

// ModerationGateway dispatches submitted content to the external moderation
// service and keeps the outstanding-request bookkeeping consistent.
type ModerationGateway interface {
	// Dispatch sends the target to the moderation service and returns the
	// outstanding request. Each call produces a fresh correlation id for the
	// target, so a retry after a failed attempt is correlated independently.
	// Returns an error wrapping ErrUpstreamUnavailable when the service
	// cannot be reached.
	Dispatch(ctx context.Context, target DispatchTarget) (*ModerationRequest, error)

	// Sweep re-dispatches unresolved requests older than the threshold and
	// reports the ones whose retry budget is exhausted so the caller can
	// finalize them.
	Sweep(ctx context.Context, olderThan time.Duration) (*SweepResult, error)
}

// DispatchTarget identifies the content being sent for moderation.
type DispatchTarget struct {
	ContentID uuid.UUID
	Kind      ContentKind
	Title     string
	Body      string
}

// SweepResult reports the outcome of a reconciliation sweep.
type SweepResult struct {
	Redispatched []*ModerationRequest
	Abandoned    []*ModerationRequest
}

// ModerationClient is the wire-level client for the moderation service.
type ModerationClient interface {
	// SubmitContent submits one item for asynchronous moderation. The verdict
	// arrives later through the callback endpoint; this call only acknowledges
	// receipt. Implementations return an error wrapping ErrUpstreamUnavailable
	// when the service is unreachable.
	SubmitContent(ctx context.Context, submission ModerationSubmission) error
}

// ModerationSubmission is the payload sent to the moderation service.
type ModerationSubmission struct {
	CorrelationID uuid.UUID   `json:"correlation_id"`
	ContentID     uuid.UUID   `json:"content_id"`
	Kind          ContentKind `json:"kind"`
	Title         string      `json:"title,omitempty"`
	Body          string      `json:"body,omitempty"`
}

// AssetService resolves asset references against the external Asset service.
type AssetService interface {
	AssetExists(ctx context.Context, assetID uuid.UUID) (bool, error)
}

// Action names passed to the Authorizer.
const (
	ActionArchive = "archive"
	ActionEdit    = "edit"
)

// Authorizer checks permissions against the external Auth service.
type Authorizer interface {
	Authorize(ctx context.Context, authorRef, action string, resourceID uuid.UUID) (bool, error)
}

// EventSink receives lifecycle events for the Notification service.
// Emission is best-effort: a failing sink never rolls back a transition.
type EventSink interface {
	DiscussionCreated(ctx context.Context, discussion *Discussion) error
	DiscussionArchived(ctx context.Context, discussionID uuid.UUID) error
	TopicCreated(ctx context.Context, topic *Topic) error
	PostCreated(ctx context.Context, p *Post) error
	ContentSubmitted(ctx context.Context, kind ContentKind, contentID uuid.UUID) error
	ContentPublished(ctx context.Context, kind ContentKind, contentID uuid.UUID) error
	ContentRejected(ctx context.Context, kind ContentKind, contentID uuid.UUID, reason string) error
	ContentArchived(ctx context.Context, kind ContentKind, contentID uuid.UUID) error
}
