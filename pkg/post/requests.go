package post

import "github.com/google/uuid"

// Request DTOs

// CreateDiscussionRequest contains parameters for creating a discussion.
// The asset reference is resolved against the Asset service before any
// record is persisted.
type CreateDiscussionRequest struct {
	AssetID uuid.UUID
	Title   string
}

// ListDiscussionsRequest contains parameters for listing discussions.
// Archived discussions are excluded unless IncludeArchived is set.
type ListDiscussionsRequest struct {
	AssetID         *uuid.UUID
	IncludeArchived bool
}

// ArchiveDiscussionRequest contains parameters for archiving a discussion.
type ArchiveDiscussionRequest struct {
	DiscussionID uuid.UUID
	AuthorRef    string
}

// CreateTopicRequest contains parameters for creating a topic in draft state.
type CreateTopicRequest struct {
	DiscussionID uuid.UUID
	AuthorRef    string
	Title        string
}

// CreatePostRequest contains parameters for creating a post in draft state.
type CreatePostRequest struct {
	TopicID   uuid.UUID
	AuthorRef string
	Body      string
}

// EditPostRequest contains parameters for editing a post body. A successful
// edit moves the post back to draft and clears any recorded verdict.
type EditPostRequest struct {
	PostID    uuid.UUID
	AuthorRef string
	Body      string
}

// SubmitRequest contains parameters for submitting a draft for moderation.
type SubmitRequest struct {
	ContentID uuid.UUID
	Kind      ContentKind
}

// ApplyVerdictRequest carries an inbound moderation verdict callback.
type ApplyVerdictRequest struct {
	CorrelationID uuid.UUID
	Verdict       Verdict
	Reason        string
}

// ArchiveRequest contains parameters for archiving a published item.
type ArchiveRequest struct {
	ContentID uuid.UUID
	Kind      ContentKind
	AuthorRef string
}
