// Package memory provides an in-memory post.Repository, used by tests and
// development setups without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acri-st/post/pkg/post"
)

// Repository implements post.Repository using in-memory storage. All status
// swaps happen under one mutex, which gives the compare-and-swap transition
// primitive its single-item atomicity.
type Repository struct {
	mu                 sync.RWMutex
	discussions        map[uuid.UUID]*post.Discussion
	topics             map[uuid.UUID]*post.Topic
	posts              map[uuid.UUID]*post.Post
	moderationRequests map[uuid.UUID]*post.ModerationRequest // correlation_id -> request
	requestsByContent  map[uuid.UUID]uuid.UUID               // content_id -> correlation_id
}

// New creates a new in-memory repository
func New() post.Repository {
	return &Repository{
		discussions:        make(map[uuid.UUID]*post.Discussion),
		topics:             make(map[uuid.UUID]*post.Topic),
		posts:              make(map[uuid.UUID]*post.Post),
		moderationRequests: make(map[uuid.UUID]*post.ModerationRequest),
		requestsByContent:  make(map[uuid.UUID]uuid.UUID),
	}
}

// Discussion operations

func (r *Repository) CreateDiscussion(ctx context.Context, discussion *post.Discussion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.discussions {
		if existing.AssetID == discussion.AssetID && !existing.Archived && existing.DeletedAt == nil {
			return post.ErrDiscussionExists
		}
	}

	// Store a copy to avoid external modifications
	discussionCopy := *discussion
	r.discussions[discussion.ID] = &discussionCopy

	return nil
}

func (r *Repository) GetDiscussion(ctx context.Context, id uuid.UUID) (*post.Discussion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	discussion, exists := r.discussions[id]
	if !exists || discussion.DeletedAt != nil {
		return nil, post.ErrDiscussionNotFound
	}

	discussionCopy := *discussion
	return &discussionCopy, nil
}

func (r *Repository) GetActiveDiscussionByAsset(ctx context.Context, assetID uuid.UUID) (*post.Discussion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, discussion := range r.discussions {
		if discussion.AssetID == assetID && !discussion.Archived && discussion.DeletedAt == nil {
			discussionCopy := *discussion
			return &discussionCopy, nil
		}
	}

	return nil, post.ErrDiscussionNotFound
}

func (r *Repository) ListDiscussions(ctx context.Context, params post.ListDiscussionsParams) ([]*post.Discussion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*post.Discussion
	for _, discussion := range r.discussions {
		if discussion.DeletedAt != nil {
			continue
		}
		if discussion.Archived && !params.IncludeArchived {
			continue
		}
		if params.AssetID != nil && discussion.AssetID != *params.AssetID {
			continue
		}
		discussionCopy := *discussion
		result = append(result, &discussionCopy)
	}

	// Sort by created_at descending
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (r *Repository) ArchiveDiscussion(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	discussion, exists := r.discussions[id]
	if !exists || discussion.DeletedAt != nil {
		return post.ErrDiscussionNotFound
	}

	discussion.Archived = true
	discussion.UpdatedAt = time.Now().UTC()
	return nil
}

// Topic operations

func (r *Repository) CreateTopic(ctx context.Context, topic *post.Topic) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.discussions[topic.DiscussionID]; !exists {
		return post.ErrDiscussionNotFound
	}

	topicCopy := *topic
	r.topics[topic.ID] = &topicCopy

	return nil
}

func (r *Repository) GetTopic(ctx context.Context, id uuid.UUID) (*post.Topic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topic, exists := r.topics[id]
	if !exists {
		return nil, post.ErrTopicNotFound
	}

	topicCopy := *topic
	return &topicCopy, nil
}

func (r *Repository) ListTopics(ctx context.Context, discussionID uuid.UUID) ([]*post.Topic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*post.Topic
	for _, topic := range r.topics {
		if topic.DiscussionID == discussionID {
			topicCopy := *topic
			result = append(result, &topicCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (r *Repository) TransitionTopic(ctx context.Context, id uuid.UUID, params post.TransitionParams) (*post.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	topic, exists := r.topics[id]
	if !exists {
		return nil, post.ErrTopicNotFound
	}

	if post.LifecycleStatus(topic.Status) != params.From {
		return nil, fmt.Errorf("%w: topic %s is %s, expected %s",
			post.ErrConflict, id, topic.Status, params.From)
	}

	topic.Status = string(params.To)
	topic.Verdict = string(params.Verdict)
	topic.VerdictReason = params.VerdictReason
	topic.UpdatedAt = time.Now().UTC()

	topicCopy := *topic
	return &topicCopy, nil
}

// Post operations

func (r *Repository) CreatePost(ctx context.Context, p *post.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.topics[p.TopicID]; !exists {
		return post.ErrTopicNotFound
	}

	postCopy := *p
	r.posts[p.ID] = &postCopy

	return nil
}

func (r *Repository) GetPost(ctx context.Context, id uuid.UUID) (*post.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.posts[id]
	if !exists {
		return nil, post.ErrPostNotFound
	}

	postCopy := *p
	return &postCopy, nil
}

func (r *Repository) ListPosts(ctx context.Context, topicID uuid.UUID) ([]*post.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*post.Post
	for _, p := range r.posts {
		if p.TopicID == topicID {
			postCopy := *p
			result = append(result, &postCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (r *Repository) TransitionPost(ctx context.Context, id uuid.UUID, params post.TransitionParams) (*post.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.posts[id]
	if !exists {
		return nil, post.ErrPostNotFound
	}

	if post.LifecycleStatus(p.Status) != params.From {
		return nil, fmt.Errorf("%w: post %s is %s, expected %s",
			post.ErrConflict, id, p.Status, params.From)
	}

	p.Status = string(params.To)
	p.Verdict = string(params.Verdict)
	p.VerdictReason = params.VerdictReason
	p.UpdatedAt = time.Now().UTC()

	postCopy := *p
	return &postCopy, nil
}

func (r *Repository) UpdatePostBody(ctx context.Context, id uuid.UUID, body string, from post.LifecycleStatus) (*post.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.posts[id]
	if !exists {
		return nil, post.ErrPostNotFound
	}

	if post.LifecycleStatus(p.Status) != from {
		return nil, fmt.Errorf("%w: post %s is %s, expected %s",
			post.ErrConflict, id, p.Status, from)
	}

	p.Body = body
	p.Status = string(post.StatusDraft)
	p.Verdict = ""
	p.VerdictReason = ""
	p.EditCount++
	p.UpdatedAt = time.Now().UTC()

	postCopy := *p
	return &postCopy, nil
}

func (r *Repository) CountPostsByAuthor(ctx context.Context, authorRef string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, p := range r.posts {
		if p.AuthorRef == authorRef {
			count++
		}
	}

	return count, nil
}

// Moderation request operations

func (r *Repository) SaveModerationRequest(ctx context.Context, request *post.ModerationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Upsert per content item: a redispatch replaces the previous attempt.
	if previous, exists := r.requestsByContent[request.ContentID]; exists {
		delete(r.moderationRequests, previous)
	}

	requestCopy := *request
	r.moderationRequests[request.CorrelationID] = &requestCopy
	r.requestsByContent[request.ContentID] = request.CorrelationID

	return nil
}

func (r *Repository) GetModerationRequest(ctx context.Context, correlationID uuid.UUID) (*post.ModerationRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	request, exists := r.moderationRequests[correlationID]
	if !exists {
		return nil, post.ErrModerationRequestNotFound
	}

	requestCopy := *request
	return &requestCopy, nil
}

func (r *Repository) GetModerationRequestByContent(ctx context.Context, contentID uuid.UUID) (*post.ModerationRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	correlationID, exists := r.requestsByContent[contentID]
	if !exists {
		return nil, post.ErrModerationRequestNotFound
	}

	requestCopy := *r.moderationRequests[correlationID]
	return &requestCopy, nil
}

func (r *Repository) DeleteModerationRequest(ctx context.Context, correlationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, exists := r.moderationRequests[correlationID]
	if !exists {
		return post.ErrModerationRequestNotFound
	}

	delete(r.moderationRequests, correlationID)
	delete(r.requestsByContent, request.ContentID)

	return nil
}

func (r *Repository) ListModerationRequestsOlderThan(ctx context.Context, cutoff time.Time) ([]*post.ModerationRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*post.ModerationRequest
	for _, request := range r.moderationRequests {
		if request.SubmittedAt.Before(cutoff) {
			requestCopy := *request
			result = append(result, &requestCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SubmittedAt.Before(result[j].SubmittedAt)
	})

	return result, nil
}
