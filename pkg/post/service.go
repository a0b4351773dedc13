package post

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the main interface for the post library: the lifecycle
// engine plus the read operations the HTTP surface exposes.
type Service interface {
	// Discussion operations
	CreateDiscussion(ctx context.Context, req CreateDiscussionRequest) (*Discussion, error)
	GetDiscussion(ctx context.Context, id uuid.UUID) (*Discussion, error)
	ListDiscussions(ctx context.Context, req ListDiscussionsRequest) ([]*Discussion, error)
	ArchiveDiscussion(ctx context.Context, req ArchiveDiscussionRequest) error

	// Topic operations
	CreateTopic(ctx context.Context, req CreateTopicRequest) (*Topic, error)
	GetTopic(ctx context.Context, id uuid.UUID) (*Topic, error)
	ListTopics(ctx context.Context, discussionID uuid.UUID) ([]*Topic, error)

	// Post operations
	CreatePost(ctx context.Context, req CreatePostRequest) (*Post, error)
	GetPost(ctx context.Context, id uuid.UUID) (*Post, error)
	ListPosts(ctx context.Context, topicID uuid.UUID) ([]*Post, error)
	EditPost(ctx context.Context, req EditPostRequest) (*Post, error)
	CountPostsByAuthor(ctx context.Context, authorRef string) (int64, error)

	// Lifecycle operations
	Submit(ctx context.Context, req SubmitRequest) (*ModerationRequest, error)
	ApplyVerdict(ctx context.Context, req ApplyVerdictRequest) error
	Archive(ctx context.Context, req ArchiveRequest) error

	// ReconcileModeration re-dispatches stale moderation requests and
	// finalizes the ones whose retry budget is exhausted.
	ReconcileModeration(ctx context.Context) error
}
