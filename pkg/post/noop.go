package post

import (
	"context"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink.
// Useful when no Notification service is wired, and in tests.
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) DiscussionCreated(ctx context.Context, discussion *Discussion) error {
	return nil
}

func (n *NoopEventSink) DiscussionArchived(ctx context.Context, discussionID uuid.UUID) error {
	return nil
}

func (n *NoopEventSink) TopicCreated(ctx context.Context, topic *Topic) error {
	return nil
}

func (n *NoopEventSink) PostCreated(ctx context.Context, p *Post) error {
	return nil
}

func (n *NoopEventSink) ContentSubmitted(ctx context.Context, kind ContentKind, contentID uuid.UUID) error {
	return nil
}

func (n *NoopEventSink) ContentPublished(ctx context.Context, kind ContentKind, contentID uuid.UUID) error {
	return nil
}

func (n *NoopEventSink) ContentRejected(ctx context.Context, kind ContentKind, contentID uuid.UUID, reason string) error {
	return nil
}

func (n *NoopEventSink) ContentArchived(ctx context.Context, kind ContentKind, contentID uuid.UUID) error {
	return nil
}

// StaticAssetService resolves every asset reference as existing. Useful for
// development environments without an Asset service.
type StaticAssetService struct{}

// NewStaticAssetService creates an asset service that accepts every reference
func NewStaticAssetService() AssetService {
	return &StaticAssetService{}
}

func (a *StaticAssetService) AssetExists(ctx context.Context, assetID uuid.UUID) (bool, error) {
	return true, nil
}

// AllowAllAuthorizer grants every permission check. Useful for development
// environments without an Auth service.
type AllowAllAuthorizer struct{}

// NewAllowAllAuthorizer creates an authorizer that grants everything
func NewAllowAllAuthorizer() Authorizer {
	return &AllowAllAuthorizer{}
}

func (a *AllowAllAuthorizer) Authorize(ctx context.Context, authorRef, action string, resourceID uuid.UUID) (bool, error) {
	return true, nil
}

// AcceptAllModerationClient acknowledges every submission without contacting
// any service. Verdicts must then arrive through the callback endpoint.
type AcceptAllModerationClient struct{}

// NewAcceptAllModerationClient creates a moderation client that accepts
// every submission
func NewAcceptAllModerationClient() ModerationClient {
	return &AcceptAllModerationClient{}
}

func (c *AcceptAllModerationClient) SubmitContent(ctx context.Context, submission ModerationSubmission) error {
	return nil
}
