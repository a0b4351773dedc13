package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// maxTitleLen mirrors the validation rule of the upstream platform.
const maxTitleLen = 64

// service implements the Service interface
type service struct {
	repository Repository
	gateway    ModerationGateway
	assets     AssetService
	authorizer Authorizer
	events     EventSink
	logger     *slog.Logger

	dispatchMaxAttempts    int
	dispatchInitialBackoff time.Duration
	sweepThreshold         time.Duration
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithModerationGateway sets the moderation gateway for the service
func WithModerationGateway(gw ModerationGateway) Option {
	return func(s *service) {
		s.gateway = gw
	}
}

// WithAssetService sets the asset resolution capability
func WithAssetService(assets AssetService) Option {
	return func(s *service) {
		s.assets = assets
	}
}

// WithAuthorizer sets the permission-check capability
func WithAuthorizer(authorizer Authorizer) Option {
	return func(s *service) {
		s.authorizer = authorizer
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.events = sink
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithDispatchRetryPolicy bounds the moderation dispatch retry loop.
// maxAttempts counts the initial attempt; initialBackoff seeds the
// exponential backoff between attempts.
func WithDispatchRetryPolicy(maxAttempts int, initialBackoff time.Duration) Option {
	return func(s *service) {
		if maxAttempts > 0 {
			s.dispatchMaxAttempts = maxAttempts
		}
		if initialBackoff > 0 {
			s.dispatchInitialBackoff = initialBackoff
		}
	}
}

// WithSweepThreshold sets how old an unresolved moderation request must be
// before ReconcileModeration re-queries it.
func WithSweepThreshold(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.sweepThreshold = d
		}
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		dispatchMaxAttempts:    3,
		dispatchInitialBackoff: 500 * time.Millisecond,
		sweepThreshold:         10 * time.Minute,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.gateway == nil {
		return nil, fmt.Errorf("moderation gateway is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

func validateTitle(title string) error {
	if title == "" {
		return &ValidationError{Field: "title", Reason: "title is required"}
	}
	if len(title) > maxTitleLen {
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("title exceeds %d characters", maxTitleLen)}
	}
	return nil
}

// Discussion operations

func (s *service) CreateDiscussion(ctx context.Context, req CreateDiscussionRequest) (*Discussion, error) {
	if err := validateTitle(req.Title); err != nil {
		return nil, err
	}

	if s.assets != nil {
		exists, err := s.assets.AssetExists(ctx, req.AssetID)
		if err != nil {
			return nil, fmt.Errorf("asset lookup failed: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: asset %s", ErrAssetNotFound, req.AssetID)
		}
	}

	if _, err := s.repository.GetActiveDiscussionByAsset(ctx, req.AssetID); err == nil {
		return nil, fmt.Errorf("%w: asset %s", ErrDiscussionExists, req.AssetID)
	} else if !errors.Is(err, ErrDiscussionNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	discussion := &Discussion{
		ID:        uuid.New(),
		AssetID:   req.AssetID,
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repository.CreateDiscussion(ctx, discussion); err != nil {
		return nil, err
	}

	s.fireEvent(ctx, "discussion_created", func() error {
		return s.events.DiscussionCreated(ctx, discussion)
	})

	return discussion, nil
}

func (s *service) GetDiscussion(ctx context.Context, id uuid.UUID) (*Discussion, error) {
	return s.repository.GetDiscussion(ctx, id)
}

func (s *service) ListDiscussions(ctx context.Context, req ListDiscussionsRequest) ([]*Discussion, error) {
	return s.repository.ListDiscussions(ctx, ListDiscussionsParams{
		AssetID:         req.AssetID,
		IncludeArchived: req.IncludeArchived,
	})
}

func (s *service) ArchiveDiscussion(ctx context.Context, req ArchiveDiscussionRequest) error {
	if err := s.authorize(ctx, req.AuthorRef, ActionArchive, req.DiscussionID, ""); err != nil {
		return err
	}

	discussion, err := s.repository.GetDiscussion(ctx, req.DiscussionID)
	if err != nil {
		return err
	}
	if discussion.Archived {
		// Idempotent: archiving an archived discussion is a no-op.
		return nil
	}

	if err := s.repository.ArchiveDiscussion(ctx, req.DiscussionID); err != nil {
		return err
	}

	s.fireEvent(ctx, "discussion_archived", func() error {
		return s.events.DiscussionArchived(ctx, req.DiscussionID)
	})

	return nil
}

// Topic operations

func (s *service) CreateTopic(ctx context.Context, req CreateTopicRequest) (*Topic, error) {
	if err := validateTitle(req.Title); err != nil {
		return nil, err
	}
	if req.AuthorRef == "" {
		return nil, &ValidationError{Field: "author_ref", Reason: "must not be empty"}
	}

	discussion, err := s.repository.GetDiscussion(ctx, req.DiscussionID)
	if err != nil {
		return nil, err
	}
	if discussion.Archived {
		return nil, fmt.Errorf("%w: discussion %s is archived", ErrDiscussionNotFound, req.DiscussionID)
	}

	now := time.Now().UTC()
	topic := &Topic{
		ID:           uuid.New(),
		DiscussionID: req.DiscussionID,
		AuthorRef:    req.AuthorRef,
		Title:        req.Title,
		Status:       string(StatusDraft),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repository.CreateTopic(ctx, topic); err != nil {
		return nil, &ContentError{ContentID: topic.ID, Kind: KindTopic, Op: "create", Err: err}
	}

	s.fireEvent(ctx, "topic_created", func() error {
		return s.events.TopicCreated(ctx, topic)
	})

	return topic, nil
}

func (s *service) GetTopic(ctx context.Context, id uuid.UUID) (*Topic, error) {
	return s.repository.GetTopic(ctx, id)
}

func (s *service) ListTopics(ctx context.Context, discussionID uuid.UUID) ([]*Topic, error) {
	return s.repository.ListTopics(ctx, discussionID)
}

// Post operations

func (s *service) CreatePost(ctx context.Context, req CreatePostRequest) (*Post, error) {
	if req.Body == "" {
		return nil, &ValidationError{Field: "body", Reason: "must not be empty"}
	}
	if req.AuthorRef == "" {
		return nil, &ValidationError{Field: "author_ref", Reason: "must not be empty"}
	}

	topic, err := s.repository.GetTopic(ctx, req.TopicID)
	if err != nil {
		return nil, err
	}
	if LifecycleStatus(topic.Status) == StatusArchived {
		return nil, fmt.Errorf("%w: topic %s is archived", ErrTopicNotFound, req.TopicID)
	}

	now := time.Now().UTC()
	p := &Post{
		ID:        uuid.New(),
		TopicID:   req.TopicID,
		AuthorRef: req.AuthorRef,
		Body:      req.Body,
		Status:    string(StatusDraft),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repository.CreatePost(ctx, p); err != nil {
		return nil, &ContentError{ContentID: p.ID, Kind: KindPost, Op: "create", Err: err}
	}

	s.fireEvent(ctx, "post_created", func() error {
		return s.events.PostCreated(ctx, p)
	})

	return p, nil
}

func (s *service) GetPost(ctx context.Context, id uuid.UUID) (*Post, error) {
	return s.repository.GetPost(ctx, id)
}

func (s *service) ListPosts(ctx context.Context, topicID uuid.UUID) ([]*Post, error) {
	return s.repository.ListPosts(ctx, topicID)
}

func (s *service) EditPost(ctx context.Context, req EditPostRequest) (*Post, error) {
	if req.Body == "" {
		return nil, &ValidationError{Field: "body", Reason: "must not be empty"}
	}

	p, err := s.repository.GetPost(ctx, req.PostID)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, req.AuthorRef, ActionEdit, req.PostID, p.AuthorRef); err != nil {
		return nil, err
	}

	status := LifecycleStatus(p.Status)
	if _, err := canEdit(status); err != nil {
		return nil, &ContentError{ContentID: req.PostID, Kind: KindPost, Op: "edit", Err: err}
	}

	// The compare-and-swap on the status observed above makes the edit lose
	// against any concurrent transition on the same post.
	updated, err := s.repository.UpdatePostBody(ctx, req.PostID, req.Body, status)
	if err != nil {
		return nil, &ContentError{ContentID: req.PostID, Kind: KindPost, Op: "edit", Err: err}
	}

	return updated, nil
}

func (s *service) CountPostsByAuthor(ctx context.Context, authorRef string) (int64, error) {
	return s.repository.CountPostsByAuthor(ctx, authorRef)
}

// Lifecycle operations

func (s *service) Submit(ctx context.Context, req SubmitRequest) (*ModerationRequest, error) {
	if !req.Kind.IsValid() {
		return nil, &ValidationError{Field: "kind", Reason: "must be topic or post"}
	}

	status, title, body, err := s.loadContent(ctx, req.ContentID, req.Kind)
	if err != nil {
		return nil, err
	}

	ok, alreadyPending, err := canSubmit(status)
	if err != nil {
		return nil, &ContentError{ContentID: req.ContentID, Kind: req.Kind, Op: "submit", Err: err}
	}
	if alreadyPending {
		// Idempotent re-submission: return the outstanding request instead
		// of dispatching a duplicate.
		if mr, err := s.repository.GetModerationRequestByContent(ctx, req.ContentID); err == nil {
			return mr, nil
		}
		// The request record was lost (e.g. abandoned sweep mid-flight);
		// fall through and dispatch a fresh one.
	}

	if ok {
		_, err = s.transition(ctx, req.ContentID, req.Kind, TransitionParams{
			From: StatusDraft,
			To:   StatusPendingModeration,
		})
		if errors.Is(err, ErrConflict) {
			// A concurrent submit won the swap; return its request. Any
			// other concurrent transition surfaces as the conflict it is.
			if mr, lookupErr := s.repository.GetModerationRequestByContent(ctx, req.ContentID); lookupErr == nil {
				return mr, nil
			}
			return nil, &ContentError{ContentID: req.ContentID, Kind: req.Kind, Op: "submit", Err: err}
		}
		if err != nil {
			return nil, err
		}
	}

	mr, err := s.dispatchWithRetry(ctx, DispatchTarget{
		ContentID: req.ContentID,
		Kind:      req.Kind,
		Title:     title,
		Body:      body,
	})
	if err != nil {
		return nil, s.rejectUnmoderated(ctx, req.ContentID, req.Kind)
	}

	s.fireEvent(ctx, "content_submitted", func() error {
		return s.events.ContentSubmitted(ctx, req.Kind, req.ContentID)
	})

	return mr, nil
}

func (s *service) ApplyVerdict(ctx context.Context, req ApplyVerdictRequest) error {
	to, err := statusForVerdict(req.Verdict)
	if err != nil {
		return err
	}

	mr, err := s.repository.GetModerationRequest(ctx, req.CorrelationID)
	if err != nil {
		if errors.Is(err, ErrModerationRequestNotFound) {
			// Stale or duplicate callback: logged and discarded, not fatal.
			s.logger.Warn("discarding verdict for unknown correlation id",
				"correlation_id", req.CorrelationID, "verdict", req.Verdict)
			return nil
		}
		return err
	}

	_, err = s.transition(ctx, mr.ContentID, mr.Kind, TransitionParams{
		From:          StatusPendingModeration,
		To:            to,
		Verdict:       req.Verdict,
		VerdictReason: req.Reason,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// The state was already finalized; verdicts are never reapplied.
			s.logger.Warn("discarding verdict for already finalized content",
				"correlation_id", req.CorrelationID,
				"content_id", mr.ContentID, "verdict", req.Verdict)
			return nil
		}
		return err
	}

	if err := s.repository.DeleteModerationRequest(ctx, req.CorrelationID); err != nil &&
		!errors.Is(err, ErrModerationRequestNotFound) {
		s.logger.Error("failed to delete resolved moderation request",
			"correlation_id", req.CorrelationID, "error", err)
	}

	switch to {
	case StatusPublished:
		s.fireEvent(ctx, "content_published", func() error {
			return s.events.ContentPublished(ctx, mr.Kind, mr.ContentID)
		})
	case StatusRejected:
		s.fireEvent(ctx, "content_rejected", func() error {
			return s.events.ContentRejected(ctx, mr.Kind, mr.ContentID, req.Reason)
		})
	}

	return nil
}

func (s *service) Archive(ctx context.Context, req ArchiveRequest) error {
	if !req.Kind.IsValid() {
		return &ValidationError{Field: "kind", Reason: "must be topic or post"}
	}

	status, _, _, err := s.loadContent(ctx, req.ContentID, req.Kind)
	if err != nil {
		return err
	}

	if err := s.authorizeArchive(ctx, req); err != nil {
		return err
	}

	ok, alreadyArchived, err := canArchive(status)
	if err != nil {
		return &ContentError{ContentID: req.ContentID, Kind: req.Kind, Op: "archive", Err: err}
	}
	if alreadyArchived {
		return nil
	}
	if !ok {
		return &ContentError{ContentID: req.ContentID, Kind: req.Kind, Op: "archive", Err: ErrConflict}
	}

	_, err = s.transition(ctx, req.ContentID, req.Kind, TransitionParams{
		From: StatusPublished,
		To:   StatusArchived,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost a race against another archive on the same item.
			current, _, _, loadErr := s.loadContent(ctx, req.ContentID, req.Kind)
			if loadErr == nil && current == StatusArchived {
				return nil
			}
		}
		return err
	}

	s.fireEvent(ctx, "content_archived", func() error {
		return s.events.ContentArchived(ctx, req.Kind, req.ContentID)
	})

	return nil
}

func (s *service) ReconcileModeration(ctx context.Context) error {
	result, err := s.gateway.Sweep(ctx, s.sweepThreshold)
	if err != nil {
		return err
	}

	for _, mr := range result.Abandoned {
		if err := s.rejectUnmoderated(ctx, mr.ContentID, mr.Kind); err != nil &&
			!errors.Is(err, ErrModerationUnavailable) {
			s.logger.Error("failed to finalize abandoned moderation request",
				"correlation_id", mr.CorrelationID, "content_id", mr.ContentID, "error", err)
		}
	}

	return nil
}

// dispatchWithRetry sends the target through the moderation gateway, retrying
// transient upstream failures with exponential backoff up to the configured
// attempt budget. Non-transient errors abort immediately.
func (s *service) dispatchWithRetry(ctx context.Context, target DispatchTarget) (*ModerationRequest, error) {
	var mr *ModerationRequest

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.dispatchInitialBackoff

	operation := func() error {
		var err error
		mr, err = s.gateway.Dispatch(ctx, target)
		if err != nil {
			if errors.Is(err, ErrUpstreamUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	retries := uint64(s.dispatchMaxAttempts - 1)
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx))
	if err != nil {
		return nil, err
	}
	return mr, nil
}

// rejectUnmoderated finalizes content whose moderation dispatch exhausted its
// retry budget: the item is rejected with reason moderation_unavailable so it
// is never left indefinitely in pending_moderation.
func (s *service) rejectUnmoderated(ctx context.Context, contentID uuid.UUID, kind ContentKind) error {
	_, err := s.transition(ctx, contentID, kind, TransitionParams{
		From:          StatusPendingModeration,
		To:            StatusRejected,
		Verdict:       VerdictReject,
		VerdictReason: ReasonModerationUnavailable,
	})
	if err != nil && !errors.Is(err, ErrConflict) {
		return err
	}

	if mr, lookupErr := s.repository.GetModerationRequestByContent(ctx, contentID); lookupErr == nil {
		if delErr := s.repository.DeleteModerationRequest(ctx, mr.CorrelationID); delErr != nil &&
			!errors.Is(delErr, ErrModerationRequestNotFound) {
			s.logger.Error("failed to delete abandoned moderation request",
				"correlation_id", mr.CorrelationID, "error", delErr)
		}
	}

	s.logger.Warn("content rejected: moderation service unavailable",
		"content_id", contentID, "kind", kind)

	s.fireEvent(ctx, "content_rejected", func() error {
		return s.events.ContentRejected(ctx, kind, contentID, ReasonModerationUnavailable)
	})

	return &ContentError{ContentID: contentID, Kind: kind, Op: "submit", Err: ErrModerationUnavailable}
}

// loadContent reads the current status plus the text fields a moderation
// submission needs, for either content kind.
func (s *service) loadContent(ctx context.Context, id uuid.UUID, kind ContentKind) (status LifecycleStatus, title, body string, err error) {
	switch kind {
	case KindTopic:
		topic, err := s.repository.GetTopic(ctx, id)
		if err != nil {
			return "", "", "", err
		}
		return LifecycleStatus(topic.Status), topic.Title, "", nil
	case KindPost:
		p, err := s.repository.GetPost(ctx, id)
		if err != nil {
			return "", "", "", err
		}
		return LifecycleStatus(p.Status), "", p.Body, nil
	default:
		return "", "", "", fmt.Errorf("%w: unknown content kind %q", ErrInvalidStatus, kind)
	}
}

// transition routes the compare-and-swap to the typed repository primitive.
func (s *service) transition(ctx context.Context, id uuid.UUID, kind ContentKind, params TransitionParams) (LifecycleStatus, error) {
	switch kind {
	case KindTopic:
		topic, err := s.repository.TransitionTopic(ctx, id, params)
		if err != nil {
			return "", err
		}
		return LifecycleStatus(topic.Status), nil
	case KindPost:
		p, err := s.repository.TransitionPost(ctx, id, params)
		if err != nil {
			return "", err
		}
		return LifecycleStatus(p.Status), nil
	default:
		return "", fmt.Errorf("%w: unknown content kind %q", ErrInvalidStatus, kind)
	}
}

// authorize allows the owner, then falls back to the Auth capability for
// everyone else. With no authorizer configured, only the owner may act.
func (s *service) authorize(ctx context.Context, authorRef, action string, resourceID uuid.UUID, ownerRef string) error {
	if ownerRef != "" && authorRef == ownerRef {
		return nil
	}
	if s.authorizer == nil {
		if ownerRef == "" {
			return nil
		}
		return fmt.Errorf("%w: only the owner may %s", ErrUnauthorized, action)
	}
	allowed, err := s.authorizer.Authorize(ctx, authorRef, action, resourceID)
	if err != nil {
		return fmt.Errorf("authorization check failed: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s denied for %s", ErrUnauthorized, action, authorRef)
	}
	return nil
}

func (s *service) authorizeArchive(ctx context.Context, req ArchiveRequest) error {
	var ownerRef string
	switch req.Kind {
	case KindTopic:
		if topic, err := s.repository.GetTopic(ctx, req.ContentID); err == nil {
			ownerRef = topic.AuthorRef
		}
	case KindPost:
		if p, err := s.repository.GetPost(ctx, req.ContentID); err == nil {
			ownerRef = p.AuthorRef
		}
	}
	return s.authorize(ctx, req.AuthorRef, ActionArchive, req.ContentID, ownerRef)
}

// fireEvent emits a best-effort notification. Sink failures are logged and
// never roll back the transition that triggered them.
func (s *service) fireEvent(ctx context.Context, name string, emit func() error) {
	if s.events == nil {
		return
	}
	if err := emit(); err != nil {
		s.logger.Error("failed to emit event", "event", name, "error", err)
	}
}
