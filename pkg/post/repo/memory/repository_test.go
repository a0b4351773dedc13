package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acri-st/post/pkg/post"
	"github.com/acri-st/post/pkg/post/repo/memory"
)

func newDiscussion(assetID uuid.UUID) *post.Discussion {
	now := time.Now().UTC()
	return &post.Discussion{
		ID:        uuid.New(),
		AssetID:   assetID,
		Title:     "Test discussion",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newTopic(discussionID uuid.UUID, status post.LifecycleStatus) *post.Topic {
	now := time.Now().UTC()
	return &post.Topic{
		ID:           uuid.New(),
		DiscussionID: discussionID,
		AuthorRef:    "alice",
		Title:        "Test topic",
		Status:       string(status),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newPost(topicID uuid.UUID, status post.LifecycleStatus) *post.Post {
	now := time.Now().UTC()
	return &post.Post{
		ID:        uuid.New(),
		TopicID:   topicID,
		AuthorRef: "alice",
		Body:      "Test body",
		Status:    string(status),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestDiscussionUniquePerAsset(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	assetID := uuid.New()
	first := newDiscussion(assetID)
	require.NoError(t, repo.CreateDiscussion(ctx, first))

	err := repo.CreateDiscussion(ctx, newDiscussion(assetID))
	assert.ErrorIs(t, err, post.ErrDiscussionExists)

	// Archiving releases the asset for a new discussion.
	require.NoError(t, repo.ArchiveDiscussion(ctx, first.ID))
	assert.NoError(t, repo.CreateDiscussion(ctx, newDiscussion(assetID)))
}

func TestGetActiveDiscussionByAsset(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	assetID := uuid.New()
	discussion := newDiscussion(assetID)
	require.NoError(t, repo.CreateDiscussion(ctx, discussion))

	found, err := repo.GetActiveDiscussionByAsset(ctx, assetID)
	require.NoError(t, err)
	assert.Equal(t, discussion.ID, found.ID)

	require.NoError(t, repo.ArchiveDiscussion(ctx, discussion.ID))
	_, err = repo.GetActiveDiscussionByAsset(ctx, assetID)
	assert.ErrorIs(t, err, post.ErrDiscussionNotFound)
}

func TestTransitionPost(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, status post.LifecycleStatus) (post.Repository, *post.Post) {
		repo := memory.New()
		discussion := newDiscussion(uuid.New())
		require.NoError(t, repo.CreateDiscussion(ctx, discussion))
		topic := newTopic(discussion.ID, post.StatusPublished)
		require.NoError(t, repo.CreateTopic(ctx, topic))
		p := newPost(topic.ID, status)
		require.NoError(t, repo.CreatePost(ctx, p))
		return repo, p
	}

	t.Run("SwapsWhenStatusMatches", func(t *testing.T) {
		repo, p := setup(t, post.StatusDraft)

		updated, err := repo.TransitionPost(ctx, p.ID, post.TransitionParams{
			From: post.StatusDraft,
			To:   post.StatusPendingModeration,
		})
		require.NoError(t, err)
		assert.Equal(t, string(post.StatusPendingModeration), updated.Status)
	})

	t.Run("ConflictsWhenStatusDiffers", func(t *testing.T) {
		repo, p := setup(t, post.StatusPublished)

		_, err := repo.TransitionPost(ctx, p.ID, post.TransitionParams{
			From: post.StatusDraft,
			To:   post.StatusPendingModeration,
		})
		assert.ErrorIs(t, err, post.ErrConflict)

		// The losing swap must not touch the record.
		current, err := repo.GetPost(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, string(post.StatusPublished), current.Status)
	})

	t.Run("RecordsVerdict", func(t *testing.T) {
		repo, p := setup(t, post.StatusPendingModeration)

		updated, err := repo.TransitionPost(ctx, p.ID, post.TransitionParams{
			From:          post.StatusPendingModeration,
			To:            post.StatusRejected,
			Verdict:       post.VerdictReject,
			VerdictReason: "spam",
		})
		require.NoError(t, err)
		assert.Equal(t, string(post.VerdictReject), updated.Verdict)
		assert.Equal(t, "spam", updated.VerdictReason)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := memory.New()
		_, err := repo.TransitionPost(ctx, uuid.New(), post.TransitionParams{
			From: post.StatusDraft,
			To:   post.StatusPendingModeration,
		})
		assert.ErrorIs(t, err, post.ErrPostNotFound)
	})
}

func TestUpdatePostBody(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	discussion := newDiscussion(uuid.New())
	require.NoError(t, repo.CreateDiscussion(ctx, discussion))
	topic := newTopic(discussion.ID, post.StatusPublished)
	require.NoError(t, repo.CreateTopic(ctx, topic))

	p := newPost(topic.ID, post.StatusPublished)
	p.Verdict = string(post.VerdictApprove)
	require.NoError(t, repo.CreatePost(ctx, p))

	updated, err := repo.UpdatePostBody(ctx, p.ID, "new body", post.StatusPublished)
	require.NoError(t, err)
	assert.Equal(t, "new body", updated.Body)
	assert.Equal(t, string(post.StatusDraft), updated.Status)
	assert.Empty(t, updated.Verdict)
	assert.Equal(t, 1, updated.EditCount)

	// Stale expectation conflicts.
	_, err = repo.UpdatePostBody(ctx, p.ID, "again", post.StatusPublished)
	assert.ErrorIs(t, err, post.ErrConflict)
}

func TestModerationRequests(t *testing.T) {
	ctx := context.Background()

	t.Run("SaveUpsertsPerContent", func(t *testing.T) {
		repo := memory.New()
		contentID := uuid.New()

		first := &post.ModerationRequest{
			CorrelationID: uuid.New(),
			ContentID:     contentID,
			Kind:          post.KindPost,
			SubmittedAt:   time.Now().UTC(),
		}
		require.NoError(t, repo.SaveModerationRequest(ctx, first))

		second := &post.ModerationRequest{
			CorrelationID: uuid.New(),
			ContentID:     contentID,
			Kind:          post.KindPost,
			Attempt:       1,
			SubmittedAt:   time.Now().UTC(),
		}
		require.NoError(t, repo.SaveModerationRequest(ctx, second))

		_, err := repo.GetModerationRequest(ctx, first.CorrelationID)
		assert.ErrorIs(t, err, post.ErrModerationRequestNotFound)

		byContent, err := repo.GetModerationRequestByContent(ctx, contentID)
		require.NoError(t, err)
		assert.Equal(t, second.CorrelationID, byContent.CorrelationID)
		assert.Equal(t, 1, byContent.Attempt)
	})

	t.Run("DeleteRemovesBothIndexes", func(t *testing.T) {
		repo := memory.New()
		mr := &post.ModerationRequest{
			CorrelationID: uuid.New(),
			ContentID:     uuid.New(),
			Kind:          post.KindTopic,
			SubmittedAt:   time.Now().UTC(),
		}
		require.NoError(t, repo.SaveModerationRequest(ctx, mr))
		require.NoError(t, repo.DeleteModerationRequest(ctx, mr.CorrelationID))

		_, err := repo.GetModerationRequest(ctx, mr.CorrelationID)
		assert.ErrorIs(t, err, post.ErrModerationRequestNotFound)
		_, err = repo.GetModerationRequestByContent(ctx, mr.ContentID)
		assert.ErrorIs(t, err, post.ErrModerationRequestNotFound)

		assert.ErrorIs(t, repo.DeleteModerationRequest(ctx, mr.CorrelationID), post.ErrModerationRequestNotFound)
	})

	t.Run("ListOlderThan", func(t *testing.T) {
		repo := memory.New()
		now := time.Now().UTC()

		stale := &post.ModerationRequest{
			CorrelationID: uuid.New(),
			ContentID:     uuid.New(),
			Kind:          post.KindPost,
			SubmittedAt:   now.Add(-time.Hour),
		}
		fresh := &post.ModerationRequest{
			CorrelationID: uuid.New(),
			ContentID:     uuid.New(),
			Kind:          post.KindPost,
			SubmittedAt:   now,
		}
		require.NoError(t, repo.SaveModerationRequest(ctx, stale))
		require.NoError(t, repo.SaveModerationRequest(ctx, fresh))

		result, err := repo.ListModerationRequestsOlderThan(ctx, now.Add(-10*time.Minute))
		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.Equal(t, stale.CorrelationID, result[0].CorrelationID)
	})
}

func TestDefensiveCopies(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	discussion := newDiscussion(uuid.New())
	require.NoError(t, repo.CreateDiscussion(ctx, discussion))

	// Mutating the returned value must not leak into the store.
	got, err := repo.GetDiscussion(ctx, discussion.ID)
	require.NoError(t, err)
	got.Title = "mutated"

	again, err := repo.GetDiscussion(ctx, discussion.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test discussion", again.Title)
}

func TestCountPostsByAuthor(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	discussion := newDiscussion(uuid.New())
	require.NoError(t, repo.CreateDiscussion(ctx, discussion))
	topic := newTopic(discussion.ID, post.StatusPublished)
	require.NoError(t, repo.CreateTopic(ctx, topic))

	for i := 0; i < 2; i++ {
		require.NoError(t, repo.CreatePost(ctx, newPost(topic.ID, post.StatusPublished)))
	}
	other := newPost(topic.ID, post.StatusDraft)
	other.AuthorRef = "bob"
	require.NoError(t, repo.CreatePost(ctx, other))

	count, err := repo.CountPostsByAuthor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
