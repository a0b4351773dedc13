// Package moderation implements the gateway between the content lifecycle
// and the external moderation service: dispatching submissions, correlating
// verdict callbacks, and sweeping unresolved requests.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/acri-st/post/pkg/post"
)

// correlationNamespace seeds the deterministic correlation ids. Changing it
// would orphan outstanding requests across a deploy.
var correlationNamespace = uuid.MustParse("8a9d7c9e-43cf-4d9a-9b1a-2f1f6c1d0b5e")

// CorrelationID derives the correlation id for a given content item and
// dispatch attempt. Deterministic: re-dispatching the same attempt yields the
// same id, while every new attempt gets a fresh one.
func CorrelationID(contentID uuid.UUID, attempt int) uuid.UUID {
	return uuid.NewSHA1(correlationNamespace, []byte(fmt.Sprintf("%s:%d", contentID, attempt)))
}

// Gateway implements post.ModerationGateway on top of a wire-level client and
// the shared repository, which holds the outstanding-request records.
type Gateway struct {
	repo        post.Repository
	client      post.ModerationClient
	logger      *slog.Logger
	maxAttempts int
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMaxAttempts bounds the total dispatch attempts per content item,
// including re-dispatches performed by Sweep.
func WithMaxAttempts(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// NewGateway creates a moderation gateway.
func NewGateway(repo post.Repository, client post.ModerationClient, opts ...GatewayOption) (*Gateway, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if client == nil {
		return nil, fmt.Errorf("moderation client is required")
	}

	g := &Gateway{
		repo:        repo,
		client:      client,
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g, nil
}

// Dispatch sends the target to the moderation service. The outstanding
// request record is saved before the wire call so a crash between the two
// leaves a sweepable record rather than a silently lost submission.
func (g *Gateway) Dispatch(ctx context.Context, target post.DispatchTarget) (*post.ModerationRequest, error) {
	now := time.Now().UTC()

	mr, err := g.repo.GetModerationRequestByContent(ctx, target.ContentID)
	switch {
	case err == nil:
		mr.Attempt++
	case errors.Is(err, post.ErrModerationRequestNotFound):
		mr = &post.ModerationRequest{
			ContentID: target.ContentID,
			Kind:      target.Kind,
		}
	default:
		return nil, err
	}

	mr.CorrelationID = CorrelationID(target.ContentID, mr.Attempt)
	mr.SubmittedAt = now

	if err := g.repo.SaveModerationRequest(ctx, mr); err != nil {
		return nil, err
	}

	submission := post.ModerationSubmission{
		CorrelationID: mr.CorrelationID,
		ContentID:     target.ContentID,
		Kind:          target.Kind,
		Title:         target.Title,
		Body:          target.Body,
	}
	if err := g.client.SubmitContent(ctx, submission); err != nil {
		return nil, &post.ModerationError{CorrelationID: mr.CorrelationID, Op: "dispatch", Err: err}
	}

	g.logger.Debug("moderation submission dispatched",
		"correlation_id", mr.CorrelationID,
		"content_id", target.ContentID,
		"kind", target.Kind,
		"attempt", mr.Attempt)

	return mr, nil
}

// Sweep re-queries unresolved requests older than the threshold. Requests
// with remaining budget are re-dispatched with a fresh correlation id; the
// rest are reported as abandoned for the lifecycle engine to finalize.
func (g *Gateway) Sweep(ctx context.Context, olderThan time.Duration) (*post.SweepResult, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	stale, err := g.repo.ListModerationRequestsOlderThan(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	result := &post.SweepResult{}
	for _, mr := range stale {
		if mr.Attempt+1 >= g.maxAttempts {
			result.Abandoned = append(result.Abandoned, mr)
			continue
		}

		target, err := g.targetFor(ctx, mr)
		if err != nil {
			// Content vanished underneath the request; drop the orphan.
			g.logger.Warn("dropping moderation request for missing content",
				"correlation_id", mr.CorrelationID, "content_id", mr.ContentID, "error", err)
			if delErr := g.repo.DeleteModerationRequest(ctx, mr.CorrelationID); delErr != nil &&
				!errors.Is(delErr, post.ErrModerationRequestNotFound) {
				g.logger.Error("failed to delete orphaned moderation request",
					"correlation_id", mr.CorrelationID, "error", delErr)
			}
			continue
		}

		redispatched, err := g.Dispatch(ctx, target)
		if err != nil {
			g.logger.Warn("sweep re-dispatch failed",
				"correlation_id", mr.CorrelationID, "content_id", mr.ContentID, "error", err)
			continue
		}
		result.Redispatched = append(result.Redispatched, redispatched)
	}

	return result, nil
}

func (g *Gateway) targetFor(ctx context.Context, mr *post.ModerationRequest) (post.DispatchTarget, error) {
	target := post.DispatchTarget{ContentID: mr.ContentID, Kind: mr.Kind}
	switch mr.Kind {
	case post.KindTopic:
		topic, err := g.repo.GetTopic(ctx, mr.ContentID)
		if err != nil {
			return target, err
		}
		target.Title = topic.Title
	case post.KindPost:
		p, err := g.repo.GetPost(ctx, mr.ContentID)
		if err != nil {
			return target, err
		}
		target.Body = p.Body
	default:
		return target, fmt.Errorf("unknown content kind %q", mr.Kind)
	}
	return target, nil
}
