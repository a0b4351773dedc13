package post_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acri-st/post/pkg/post"
	"github.com/acri-st/post/pkg/post/moderation"
	"github.com/acri-st/post/pkg/post/repo/memory"
)

// fakeModerationClient records submissions and fails on demand.
type fakeModerationClient struct {
	mu    sync.Mutex
	calls []post.ModerationSubmission
	err   error
}

func (c *fakeModerationClient) SubmitContent(_ context.Context, submission post.ModerationSubmission) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, submission)
	return c.err
}

func (c *fakeModerationClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// fakeAssetService resolves every asset to a fixed answer.
type fakeAssetService struct {
	exists bool
}

func (a *fakeAssetService) AssetExists(context.Context, uuid.UUID) (bool, error) {
	return a.exists, nil
}

func TestServiceCreation(t *testing.T) {
	repo := memory.New()
	gateway, err := moderation.NewGateway(repo, &fakeModerationClient{})
	require.NoError(t, err)

	tests := []struct {
		name        string
		options     []post.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []post.Option{},
			expectError: true,
		},
		{
			name: "repository without gateway should fail",
			options: []post.Option{
				post.WithRepository(repo),
			},
			expectError: true,
		},
		{
			name: "with repository and gateway should succeed",
			options: []post.Option{
				post.WithRepository(repo),
				post.WithModerationGateway(gateway),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := post.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

type testEnv struct {
	svc    post.Service
	repo   post.Repository
	client *fakeModerationClient
}

func setupTestService(t *testing.T, options ...post.Option) *testEnv {
	t.Helper()

	repo := memory.New()
	client := &fakeModerationClient{}
	gateway, err := moderation.NewGateway(repo, client)
	require.NoError(t, err)

	base := []post.Option{
		post.WithRepository(repo),
		post.WithModerationGateway(gateway),
		post.WithEventSink(post.NewNoopEventSink()),
		post.WithDispatchRetryPolicy(3, time.Millisecond),
	}
	svc, err := post.New(append(base, options...)...)
	require.NoError(t, err)
	require.NotNil(t, svc)

	return &testEnv{svc: svc, repo: repo, client: client}
}

// setupPublishedPost walks one post through draft, submission and an approve
// verdict, returning the discussion, topic and published post.
func setupPublishedPost(t *testing.T, env *testEnv, authorRef string) (*post.Discussion, *post.Topic, *post.Post) {
	t.Helper()
	ctx := context.Background()

	discussion, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{
		AssetID: uuid.New(),
		Title:   "Release discussion",
	})
	require.NoError(t, err)

	topic, err := env.svc.CreateTopic(ctx, post.CreateTopicRequest{
		DiscussionID: discussion.ID,
		AuthorRef:    authorRef,
		Title:        "First impressions",
	})
	require.NoError(t, err)

	p, err := env.svc.CreatePost(ctx, post.CreatePostRequest{
		TopicID:   topic.ID,
		AuthorRef: authorRef,
		Body:      "Works great on the sample data.",
	})
	require.NoError(t, err)

	mr, err := env.svc.Submit(ctx, post.SubmitRequest{ContentID: p.ID, Kind: post.KindPost})
	require.NoError(t, err)

	err = env.svc.ApplyVerdict(ctx, post.ApplyVerdictRequest{
		CorrelationID: mr.CorrelationID,
		Verdict:       post.VerdictApprove,
	})
	require.NoError(t, err)

	published, err := env.svc.GetPost(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, string(post.StatusPublished), published.Status)

	return discussion, topic, published
}

func TestDiscussionOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateDiscussion", func(t *testing.T) {
		env := setupTestService(t)

		assetID := uuid.New()
		discussion, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{
			AssetID: assetID,
			Title:   "Dataset feedback",
		})
		assert.NoError(t, err)
		assert.NotNil(t, discussion)
		assert.Equal(t, assetID, discussion.AssetID)
		assert.Equal(t, "Dataset feedback", discussion.Title)
		assert.False(t, discussion.Archived)
		assert.False(t, discussion.CreatedAt.IsZero())
	})

	t.Run("CreateDiscussionEmptyTitle", func(t *testing.T) {
		env := setupTestService(t)

		_, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: uuid.New()})
		var vErr *post.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("CreateDiscussionTitleTooLong", func(t *testing.T) {
		env := setupTestService(t)

		long := make([]byte, 65)
		for i := range long {
			long[i] = 'a'
		}
		_, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{
			AssetID: uuid.New(),
			Title:   string(long),
		})
		var vErr *post.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("CreateDiscussionMissingAsset", func(t *testing.T) {
		env := setupTestService(t, post.WithAssetService(&fakeAssetService{exists: false}))

		_, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{
			AssetID: uuid.New(),
			Title:   "Orphan",
		})
		assert.ErrorIs(t, err, post.ErrAssetNotFound)

		// No record is left behind.
		discussions, err := env.svc.ListDiscussions(ctx, post.ListDiscussionsRequest{IncludeArchived: true})
		require.NoError(t, err)
		assert.Empty(t, discussions)
	})

	t.Run("CreateDiscussionDuplicateAsset", func(t *testing.T) {
		env := setupTestService(t)

		assetID := uuid.New()
		_, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: assetID, Title: "First"})
		require.NoError(t, err)

		_, err = env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: assetID, Title: "Second"})
		assert.ErrorIs(t, err, post.ErrDiscussionExists)
	})

	t.Run("ArchiveThenRecreateDiscussion", func(t *testing.T) {
		env := setupTestService(t)

		assetID := uuid.New()
		first, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: assetID, Title: "First"})
		require.NoError(t, err)

		err = env.svc.ArchiveDiscussion(ctx, post.ArchiveDiscussionRequest{DiscussionID: first.ID, AuthorRef: "alice"})
		require.NoError(t, err)

		// An archived discussion no longer blocks the asset.
		second, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: assetID, Title: "Second"})
		assert.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("ArchiveDiscussionIdempotent", func(t *testing.T) {
		env := setupTestService(t)

		discussion, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: uuid.New(), Title: "To archive"})
		require.NoError(t, err)

		req := post.ArchiveDiscussionRequest{DiscussionID: discussion.ID, AuthorRef: "alice"}
		require.NoError(t, env.svc.ArchiveDiscussion(ctx, req))
		assert.NoError(t, env.svc.ArchiveDiscussion(ctx, req))
	})

	t.Run("ListDiscussionsExcludesArchived", func(t *testing.T) {
		env := setupTestService(t)

		active, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: uuid.New(), Title: "Active"})
		require.NoError(t, err)

		archived, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: uuid.New(), Title: "Archived"})
		require.NoError(t, err)
		require.NoError(t, env.svc.ArchiveDiscussion(ctx, post.ArchiveDiscussionRequest{DiscussionID: archived.ID, AuthorRef: "alice"}))

		discussions, err := env.svc.ListDiscussions(ctx, post.ListDiscussionsRequest{})
		require.NoError(t, err)
		require.Len(t, discussions, 1)
		assert.Equal(t, active.ID, discussions[0].ID)

		all, err := env.svc.ListDiscussions(ctx, post.ListDiscussionsRequest{IncludeArchived: true})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestTopicOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateTopicStartsAsDraft", func(t *testing.T) {
		env := setupTestService(t)

		discussion, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: uuid.New(), Title: "D"})
		require.NoError(t, err)

		topic, err := env.svc.CreateTopic(ctx, post.CreateTopicRequest{
			DiscussionID: discussion.ID,
			AuthorRef:    "alice",
			Title:        "A topic",
		})
		assert.NoError(t, err)
		assert.Equal(t, string(post.StatusDraft), topic.Status)
		assert.Equal(t, "alice", topic.AuthorRef)
	})

	t.Run("CreateTopicInArchivedDiscussion", func(t *testing.T) {
		env := setupTestService(t)

		discussion, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: uuid.New(), Title: "D"})
		require.NoError(t, err)
		require.NoError(t, env.svc.ArchiveDiscussion(ctx, post.ArchiveDiscussionRequest{DiscussionID: discussion.ID, AuthorRef: "alice"}))

		_, err = env.svc.CreateTopic(ctx, post.CreateTopicRequest{
			DiscussionID: discussion.ID,
			AuthorRef:    "alice",
			Title:        "Too late",
		})
		assert.ErrorIs(t, err, post.ErrDiscussionNotFound)
	})

	t.Run("CreateTopicMissingDiscussion", func(t *testing.T) {
		env := setupTestService(t)

		_, err := env.svc.CreateTopic(ctx, post.CreateTopicRequest{
			DiscussionID: uuid.New(),
			AuthorRef:    "alice",
			Title:        "Nowhere",
		})
		assert.ErrorIs(t, err, post.ErrDiscussionNotFound)
	})
}

func TestPostLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("SubmitAndApprove", func(t *testing.T) {
		env := setupTestService(t)
		_, _, published := setupPublishedPost(t, env, "alice")

		assert.Equal(t, string(post.VerdictApprove), published.Verdict)
		assert.Equal(t, 1, env.client.callCount())

		// The request record is resolved once the verdict lands.
		_, err := env.repo.GetModerationRequestByContent(ctx, published.ID)
		assert.ErrorIs(t, err, post.ErrModerationRequestNotFound)
	})

	t.Run("SubmitAndReject", func(t *testing.T) {
		env := setupTestService(t)

		discussion, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: uuid.New(), Title: "D"})
		require.NoError(t, err)
		topic, err := env.svc.CreateTopic(ctx, post.CreateTopicRequest{DiscussionID: discussion.ID, AuthorRef: "alice", Title: "T"})
		require.NoError(t, err)
		p, err := env.svc.CreatePost(ctx, post.CreatePostRequest{TopicID: topic.ID, AuthorRef: "alice", Body: "spam"})
		require.NoError(t, err)

		mr, err := env.svc.Submit(ctx, post.SubmitRequest{ContentID: p.ID, Kind: post.KindPost})
		require.NoError(t, err)

		err = env.svc.ApplyVerdict(ctx, post.ApplyVerdictRequest{
			CorrelationID: mr.CorrelationID,
			Verdict:       post.VerdictReject,
			Reason:        "off topic",
		})
		require.NoError(t, err)

		rejected, err := env.svc.GetPost(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, string(post.StatusRejected), rejected.Status)
		assert.Equal(t, "off topic", rejected.VerdictReason)
	})

	t.Run("SubmitIsIdempotent", func(t *testing.T) {
		env := setupTestService(t)

		discussion, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: uuid.New(), Title: "D"})
		require.NoError(t, err)
		topic, err := env.svc.CreateTopic(ctx, post.CreateTopicRequest{DiscussionID: discussion.ID, AuthorRef: "alice", Title: "T"})
		require.NoError(t, err)
		p, err := env.svc.CreatePost(ctx, post.CreatePostRequest{TopicID: topic.ID, AuthorRef: "alice", Body: "hello"})
		require.NoError(t, err)

		first, err := env.svc.Submit(ctx, post.SubmitRequest{ContentID: p.ID, Kind: post.KindPost})
		require.NoError(t, err)

		second, err := env.svc.Submit(ctx, post.SubmitRequest{ContentID: p.ID, Kind: post.KindPost})
		require.NoError(t, err)

		assert.Equal(t, first.CorrelationID, second.CorrelationID)
		assert.Equal(t, 1, env.client.callCount())
	})

	t.Run("SubmitPublishedPostConflicts", func(t *testing.T) {
		env := setupTestService(t)
		_, _, published := setupPublishedPost(t, env, "alice")

		_, err := env.svc.Submit(ctx, post.SubmitRequest{ContentID: published.ID, Kind: post.KindPost})
		assert.ErrorIs(t, err, post.ErrConflict)
	})

	t.Run("DuplicateVerdictIsDiscarded", func(t *testing.T) {
		env := setupTestService(t)

		discussion, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: uuid.New(), Title: "D"})
		require.NoError(t, err)
		topic, err := env.svc.CreateTopic(ctx, post.CreateTopicRequest{DiscussionID: discussion.ID, AuthorRef: "alice", Title: "T"})
		require.NoError(t, err)
		p, err := env.svc.CreatePost(ctx, post.CreatePostRequest{TopicID: topic.ID, AuthorRef: "alice", Body: "once"})
		require.NoError(t, err)

		mr, err := env.svc.Submit(ctx, post.SubmitRequest{ContentID: p.ID, Kind: post.KindPost})
		require.NoError(t, err)

		verdict := post.ApplyVerdictRequest{CorrelationID: mr.CorrelationID, Verdict: post.VerdictApprove}
		require.NoError(t, env.svc.ApplyVerdict(ctx, verdict))

		// A replayed callback is accepted and discarded, never reapplied.
		verdict.Verdict = post.VerdictReject
		verdict.Reason = "changed my mind"
		assert.NoError(t, env.svc.ApplyVerdict(ctx, verdict))

		current, err := env.svc.GetPost(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, string(post.StatusPublished), current.Status)
	})

	t.Run("UnknownCorrelationIsDiscarded", func(t *testing.T) {
		env := setupTestService(t)

		err := env.svc.ApplyVerdict(ctx, post.ApplyVerdictRequest{
			CorrelationID: uuid.New(),
			Verdict:       post.VerdictApprove,
		})
		assert.NoError(t, err)
	})

	t.Run("InvalidVerdict", func(t *testing.T) {
		env := setupTestService(t)

		err := env.svc.ApplyVerdict(ctx, post.ApplyVerdictRequest{
			CorrelationID: uuid.New(),
			Verdict:       post.Verdict("maybe"),
		})
		assert.ErrorIs(t, err, post.ErrInvalidVerdict)
	})

	t.Run("TopicLifecycle", func(t *testing.T) {
		env := setupTestService(t)

		discussion, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: uuid.New(), Title: "D"})
		require.NoError(t, err)
		topic, err := env.svc.CreateTopic(ctx, post.CreateTopicRequest{DiscussionID: discussion.ID, AuthorRef: "alice", Title: "T"})
		require.NoError(t, err)

		mr, err := env.svc.Submit(ctx, post.SubmitRequest{ContentID: topic.ID, Kind: post.KindTopic})
		require.NoError(t, err)
		require.NoError(t, env.svc.ApplyVerdict(ctx, post.ApplyVerdictRequest{CorrelationID: mr.CorrelationID, Verdict: post.VerdictApprove}))

		published, err := env.svc.GetTopic(ctx, topic.ID)
		require.NoError(t, err)
		assert.Equal(t, string(post.StatusPublished), published.Status)
	})
}

func TestModerationUnavailable(t *testing.T) {
	ctx := context.Background()

	env := setupTestService(t)
	env.client.err = post.ErrUpstreamUnavailable

	discussion, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: uuid.New(), Title: "D"})
	require.NoError(t, err)
	topic, err := env.svc.CreateTopic(ctx, post.CreateTopicRequest{DiscussionID: discussion.ID, AuthorRef: "alice", Title: "T"})
	require.NoError(t, err)
	p, err := env.svc.CreatePost(ctx, post.CreatePostRequest{TopicID: topic.ID, AuthorRef: "alice", Body: "unlucky"})
	require.NoError(t, err)

	_, err = env.svc.Submit(ctx, post.SubmitRequest{ContentID: p.ID, Kind: post.KindPost})
	assert.ErrorIs(t, err, post.ErrModerationUnavailable)
	assert.Equal(t, 3, env.client.callCount())

	// Exhausted retries finalize the post instead of leaving it pending.
	rejected, err := env.svc.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, string(post.StatusRejected), rejected.Status)
	assert.Equal(t, post.ReasonModerationUnavailable, rejected.VerdictReason)

	_, err = env.repo.GetModerationRequestByContent(ctx, p.ID)
	assert.ErrorIs(t, err, post.ErrModerationRequestNotFound)
}

func TestArchive(t *testing.T) {
	ctx := context.Background()

	t.Run("ArchivePublishedPost", func(t *testing.T) {
		env := setupTestService(t)
		_, _, published := setupPublishedPost(t, env, "alice")

		req := post.ArchiveRequest{ContentID: published.ID, Kind: post.KindPost, AuthorRef: "alice"}
		require.NoError(t, env.svc.Archive(ctx, req))

		archived, err := env.svc.GetPost(ctx, published.ID)
		require.NoError(t, err)
		assert.Equal(t, string(post.StatusArchived), archived.Status)

		// Idempotent second archive.
		assert.NoError(t, env.svc.Archive(ctx, req))
	})

	t.Run("ArchiveDraftConflicts", func(t *testing.T) {
		env := setupTestService(t)

		discussion, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: uuid.New(), Title: "D"})
		require.NoError(t, err)
		topic, err := env.svc.CreateTopic(ctx, post.CreateTopicRequest{DiscussionID: discussion.ID, AuthorRef: "alice", Title: "T"})
		require.NoError(t, err)
		p, err := env.svc.CreatePost(ctx, post.CreatePostRequest{TopicID: topic.ID, AuthorRef: "alice", Body: "draft"})
		require.NoError(t, err)

		err = env.svc.Archive(ctx, post.ArchiveRequest{ContentID: p.ID, Kind: post.KindPost, AuthorRef: "alice"})
		assert.ErrorIs(t, err, post.ErrConflict)
	})

	t.Run("ArchiveByNonOwnerDenied", func(t *testing.T) {
		env := setupTestService(t)
		_, _, published := setupPublishedPost(t, env, "alice")

		err := env.svc.Archive(ctx, post.ArchiveRequest{ContentID: published.ID, Kind: post.KindPost, AuthorRef: "mallory"})
		assert.ErrorIs(t, err, post.ErrUnauthorized)
	})

	t.Run("ArchiveByAdminAllowed", func(t *testing.T) {
		env := setupTestService(t, post.WithAuthorizer(post.NewAllowAllAuthorizer()))
		_, _, published := setupPublishedPost(t, env, "alice")

		err := env.svc.Archive(ctx, post.ArchiveRequest{ContentID: published.ID, Kind: post.KindPost, AuthorRef: "moderator"})
		assert.NoError(t, err)
	})
}

func TestEditPost(t *testing.T) {
	ctx := context.Background()

	t.Run("EditPublishedPostRestartsLifecycle", func(t *testing.T) {
		env := setupTestService(t)
		_, _, published := setupPublishedPost(t, env, "alice")

		edited, err := env.svc.EditPost(ctx, post.EditPostRequest{
			PostID:    published.ID,
			AuthorRef: "alice",
			Body:      "corrected text",
		})
		require.NoError(t, err)
		assert.Equal(t, string(post.StatusDraft), edited.Status)
		assert.Equal(t, "corrected text", edited.Body)
		assert.Equal(t, 1, edited.EditCount)
		assert.Empty(t, edited.Verdict)
	})

	t.Run("EditPendingPostConflicts", func(t *testing.T) {
		env := setupTestService(t)

		discussion, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: uuid.New(), Title: "D"})
		require.NoError(t, err)
		topic, err := env.svc.CreateTopic(ctx, post.CreateTopicRequest{DiscussionID: discussion.ID, AuthorRef: "alice", Title: "T"})
		require.NoError(t, err)
		p, err := env.svc.CreatePost(ctx, post.CreatePostRequest{TopicID: topic.ID, AuthorRef: "alice", Body: "pending"})
		require.NoError(t, err)
		_, err = env.svc.Submit(ctx, post.SubmitRequest{ContentID: p.ID, Kind: post.KindPost})
		require.NoError(t, err)

		_, err = env.svc.EditPost(ctx, post.EditPostRequest{PostID: p.ID, AuthorRef: "alice", Body: "changed"})
		assert.ErrorIs(t, err, post.ErrConflict)
	})

	t.Run("EditByNonOwnerDenied", func(t *testing.T) {
		env := setupTestService(t)
		_, _, published := setupPublishedPost(t, env, "alice")

		_, err := env.svc.EditPost(ctx, post.EditPostRequest{PostID: published.ID, AuthorRef: "mallory", Body: "defaced"})
		assert.ErrorIs(t, err, post.ErrUnauthorized)
	})
}

func TestCountPostsByAuthor(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t)

	discussion, err := env.svc.CreateDiscussion(ctx, post.CreateDiscussionRequest{AssetID: uuid.New(), Title: "D"})
	require.NoError(t, err)
	topic, err := env.svc.CreateTopic(ctx, post.CreateTopicRequest{DiscussionID: discussion.ID, AuthorRef: "alice", Title: "T"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := env.svc.CreatePost(ctx, post.CreatePostRequest{TopicID: topic.ID, AuthorRef: "alice", Body: "post"})
		require.NoError(t, err)
	}
	_, err = env.svc.CreatePost(ctx, post.CreatePostRequest{TopicID: topic.ID, AuthorRef: "bob", Body: "post"})
	require.NoError(t, err)

	count, err := env.svc.CountPostsByAuthor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = env.svc.CountPostsByAuthor(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
