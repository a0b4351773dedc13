// Package postgres provides a post.Repository backed by PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acri-st/post/pkg/post"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements post.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) post.Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) post.Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "discussion") {
				return post.ErrDiscussionExists
			}
			return fmt.Errorf("duplicate entry")
		case "23503": // foreign_key_violation
			if strings.Contains(pgErr.ConstraintName, "topic") {
				return post.ErrTopicNotFound
			}
			if strings.Contains(pgErr.ConstraintName, "discussion") {
				return post.ErrDiscussionNotFound
			}
			return fmt.Errorf("referenced record not found")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Discussion operations

func (r *Repository) CreateDiscussion(ctx context.Context, discussion *post.Discussion) error {
	query := `
		INSERT INTO discussion (id, asset_id, title, archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		discussion.ID, discussion.AssetID, discussion.Title,
		discussion.Archived, discussion.CreatedAt, discussion.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create discussion", err)
	}

	return nil
}

func (r *Repository) GetDiscussion(ctx context.Context, id uuid.UUID) (*post.Discussion, error) {
	query := `
		SELECT id, asset_id, title, archived, created_at, updated_at
		FROM discussion WHERE id = $1 AND deleted_at IS NULL`

	var discussion post.Discussion
	err := r.db.QueryRow(ctx, query, id).Scan(
		&discussion.ID, &discussion.AssetID, &discussion.Title,
		&discussion.Archived, &discussion.CreatedAt, &discussion.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, post.ErrDiscussionNotFound
		}
		return nil, r.handlePostgresError("get discussion", err)
	}

	return &discussion, nil
}

func (r *Repository) GetActiveDiscussionByAsset(ctx context.Context, assetID uuid.UUID) (*post.Discussion, error) {
	query := `
		SELECT id, asset_id, title, archived, created_at, updated_at
		FROM discussion
		WHERE asset_id = $1 AND NOT archived AND deleted_at IS NULL`

	var discussion post.Discussion
	err := r.db.QueryRow(ctx, query, assetID).Scan(
		&discussion.ID, &discussion.AssetID, &discussion.Title,
		&discussion.Archived, &discussion.CreatedAt, &discussion.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, post.ErrDiscussionNotFound
		}
		return nil, r.handlePostgresError("get discussion by asset", err)
	}

	return &discussion, nil
}

func (r *Repository) ListDiscussions(ctx context.Context, params post.ListDiscussionsParams) ([]*post.Discussion, error) {
	query := `
		SELECT id, asset_id, title, archived, created_at, updated_at
		FROM discussion WHERE deleted_at IS NULL`
	args := []interface{}{}

	if !params.IncludeArchived {
		query += " AND NOT archived"
	}
	if params.AssetID != nil {
		args = append(args, *params.AssetID)
		query += fmt.Sprintf(" AND asset_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list discussions", err)
	}
	defer rows.Close()

	var result []*post.Discussion
	for rows.Next() {
		var discussion post.Discussion
		if err := rows.Scan(
			&discussion.ID, &discussion.AssetID, &discussion.Title,
			&discussion.Archived, &discussion.CreatedAt, &discussion.UpdatedAt); err != nil {
			return nil, r.handlePostgresError("list discussions", err)
		}
		result = append(result, &discussion)
	}

	return result, rows.Err()
}

func (r *Repository) ArchiveDiscussion(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE discussion SET archived = TRUE, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return r.handlePostgresError("archive discussion", err)
	}
	if tag.RowsAffected() == 0 {
		return post.ErrDiscussionNotFound
	}

	return nil
}

// Topic operations

func (r *Repository) CreateTopic(ctx context.Context, topic *post.Topic) error {
	query := `
		INSERT INTO topic (id, discussion_id, author_ref, title, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		topic.ID, topic.DiscussionID, topic.AuthorRef,
		topic.Title, topic.Status, topic.CreatedAt, topic.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create topic", err)
	}

	return nil
}

func (r *Repository) GetTopic(ctx context.Context, id uuid.UUID) (*post.Topic, error) {
	query := `
		SELECT id, discussion_id, author_ref, title, status,
		       COALESCE(verdict, ''), COALESCE(verdict_reason, ''), created_at, updated_at
		FROM topic WHERE id = $1`

	var topic post.Topic
	err := r.db.QueryRow(ctx, query, id).Scan(
		&topic.ID, &topic.DiscussionID, &topic.AuthorRef, &topic.Title,
		&topic.Status, &topic.Verdict, &topic.VerdictReason,
		&topic.CreatedAt, &topic.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, post.ErrTopicNotFound
		}
		return nil, r.handlePostgresError("get topic", err)
	}

	return &topic, nil
}

func (r *Repository) ListTopics(ctx context.Context, discussionID uuid.UUID) ([]*post.Topic, error) {
	query := `
		SELECT id, discussion_id, author_ref, title, status,
		       COALESCE(verdict, ''), COALESCE(verdict_reason, ''), created_at, updated_at
		FROM topic WHERE discussion_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, discussionID)
	if err != nil {
		return nil, r.handlePostgresError("list topics", err)
	}
	defer rows.Close()

	var result []*post.Topic
	for rows.Next() {
		var topic post.Topic
		if err := rows.Scan(
			&topic.ID, &topic.DiscussionID, &topic.AuthorRef, &topic.Title,
			&topic.Status, &topic.Verdict, &topic.VerdictReason,
			&topic.CreatedAt, &topic.UpdatedAt); err != nil {
			return nil, r.handlePostgresError("list topics", err)
		}
		result = append(result, &topic)
	}

	return result, rows.Err()
}

func (r *Repository) TransitionTopic(ctx context.Context, id uuid.UUID, params post.TransitionParams) (*post.Topic, error) {
	// Conditional update on the current status: the WHERE clause is the
	// compare, RowsAffected tells us whether the swap happened.
	query := `
		UPDATE topic
		SET status = $3, verdict = NULLIF($4, ''), verdict_reason = NULLIF($5, ''), updated_at = $6
		WHERE id = $1 AND status = $2
		RETURNING id, discussion_id, author_ref, title, status,
		          COALESCE(verdict, ''), COALESCE(verdict_reason, ''), created_at, updated_at`

	var topic post.Topic
	err := r.db.QueryRow(ctx, query,
		id, string(params.From), string(params.To),
		string(params.Verdict), params.VerdictReason, time.Now().UTC()).Scan(
		&topic.ID, &topic.DiscussionID, &topic.AuthorRef, &topic.Title,
		&topic.Status, &topic.Verdict, &topic.VerdictReason,
		&topic.CreatedAt, &topic.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.transitionConflict(ctx, "topic", id, params.From)
		}
		return nil, r.handlePostgresError("transition topic", err)
	}

	return &topic, nil
}

// Post operations

func (r *Repository) CreatePost(ctx context.Context, p *post.Post) error {
	query := `
		INSERT INTO post (id, topic_id, author_ref, body, status, edit_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		p.ID, p.TopicID, p.AuthorRef, p.Body,
		p.Status, p.EditCount, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create post", err)
	}

	return nil
}

func (r *Repository) GetPost(ctx context.Context, id uuid.UUID) (*post.Post, error) {
	query := `
		SELECT id, topic_id, author_ref, body, status,
		       COALESCE(verdict, ''), COALESCE(verdict_reason, ''), edit_count, created_at, updated_at
		FROM post WHERE id = $1`

	var p post.Post
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.TopicID, &p.AuthorRef, &p.Body, &p.Status,
		&p.Verdict, &p.VerdictReason, &p.EditCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, post.ErrPostNotFound
		}
		return nil, r.handlePostgresError("get post", err)
	}

	return &p, nil
}

func (r *Repository) ListPosts(ctx context.Context, topicID uuid.UUID) ([]*post.Post, error) {
	query := `
		SELECT id, topic_id, author_ref, body, status,
		       COALESCE(verdict, ''), COALESCE(verdict_reason, ''), edit_count, created_at, updated_at
		FROM post WHERE topic_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, topicID)
	if err != nil {
		return nil, r.handlePostgresError("list posts", err)
	}
	defer rows.Close()

	var result []*post.Post
	for rows.Next() {
		var p post.Post
		if err := rows.Scan(
			&p.ID, &p.TopicID, &p.AuthorRef, &p.Body, &p.Status,
			&p.Verdict, &p.VerdictReason, &p.EditCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, r.handlePostgresError("list posts", err)
		}
		result = append(result, &p)
	}

	return result, rows.Err()
}

func (r *Repository) TransitionPost(ctx context.Context, id uuid.UUID, params post.TransitionParams) (*post.Post, error) {
	query := `
		UPDATE post
		SET status = $3, verdict = NULLIF($4, ''), verdict_reason = NULLIF($5, ''), updated_at = $6
		WHERE id = $1 AND status = $2
		RETURNING id, topic_id, author_ref, body, status,
		          COALESCE(verdict, ''), COALESCE(verdict_reason, ''), edit_count, created_at, updated_at`

	var p post.Post
	err := r.db.QueryRow(ctx, query,
		id, string(params.From), string(params.To),
		string(params.Verdict), params.VerdictReason, time.Now().UTC()).Scan(
		&p.ID, &p.TopicID, &p.AuthorRef, &p.Body, &p.Status,
		&p.Verdict, &p.VerdictReason, &p.EditCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.transitionConflict(ctx, "post", id, params.From)
		}
		return nil, r.handlePostgresError("transition post", err)
	}

	return &p, nil
}

func (r *Repository) UpdatePostBody(ctx context.Context, id uuid.UUID, body string, from post.LifecycleStatus) (*post.Post, error) {
	query := `
		UPDATE post
		SET body = $3, status = $4, verdict = NULL, verdict_reason = NULL,
		    edit_count = edit_count + 1, updated_at = $5
		WHERE id = $1 AND status = $2
		RETURNING id, topic_id, author_ref, body, status,
		          COALESCE(verdict, ''), COALESCE(verdict_reason, ''), edit_count, created_at, updated_at`

	var p post.Post
	err := r.db.QueryRow(ctx, query,
		id, string(from), body, string(post.StatusDraft), time.Now().UTC()).Scan(
		&p.ID, &p.TopicID, &p.AuthorRef, &p.Body, &p.Status,
		&p.Verdict, &p.VerdictReason, &p.EditCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.transitionConflict(ctx, "post", id, from)
		}
		return nil, r.handlePostgresError("update post body", err)
	}

	return &p, nil
}

func (r *Repository) CountPostsByAuthor(ctx context.Context, authorRef string) (int64, error) {
	query := `SELECT COUNT(*) FROM post WHERE author_ref = $1`

	var count int64
	if err := r.db.QueryRow(ctx, query, authorRef).Scan(&count); err != nil {
		return 0, r.handlePostgresError("count posts by author", err)
	}

	return count, nil
}

// transitionConflict distinguishes a missing row from a stale status after a
// conditional update matched nothing.
func (r *Repository) transitionConflict(ctx context.Context, table string, id uuid.UUID, expected post.LifecycleStatus) error {
	var current string
	err := r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, table), id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if table == "topic" {
				return post.ErrTopicNotFound
			}
			return post.ErrPostNotFound
		}
		return r.handlePostgresError("transition "+table, err)
	}

	return fmt.Errorf("%w: %s %s is %s, expected %s", post.ErrConflict, table, id, current, expected)
}

// Moderation request operations

func (r *Repository) SaveModerationRequest(ctx context.Context, request *post.ModerationRequest) error {
	// One record per content item: a redispatch replaces the previous attempt.
	query := `
		INSERT INTO moderation_request (correlation_id, content_id, kind, attempt, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (content_id) DO UPDATE
		SET correlation_id = EXCLUDED.correlation_id,
		    attempt = EXCLUDED.attempt,
		    submitted_at = EXCLUDED.submitted_at`

	_, err := r.db.Exec(ctx, query,
		request.CorrelationID, request.ContentID, string(request.Kind),
		request.Attempt, request.SubmittedAt)
	if err != nil {
		return r.handlePostgresError("save moderation request", err)
	}

	return nil
}

func (r *Repository) GetModerationRequest(ctx context.Context, correlationID uuid.UUID) (*post.ModerationRequest, error) {
	query := `
		SELECT correlation_id, content_id, kind, attempt, submitted_at
		FROM moderation_request WHERE correlation_id = $1`

	return r.scanModerationRequest(r.db.QueryRow(ctx, query, correlationID))
}

func (r *Repository) GetModerationRequestByContent(ctx context.Context, contentID uuid.UUID) (*post.ModerationRequest, error) {
	query := `
		SELECT correlation_id, content_id, kind, attempt, submitted_at
		FROM moderation_request WHERE content_id = $1`

	return r.scanModerationRequest(r.db.QueryRow(ctx, query, contentID))
}

func (r *Repository) scanModerationRequest(row pgx.Row) (*post.ModerationRequest, error) {
	var request post.ModerationRequest
	var kind string
	err := row.Scan(&request.CorrelationID, &request.ContentID, &kind,
		&request.Attempt, &request.SubmittedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, post.ErrModerationRequestNotFound
		}
		return nil, r.handlePostgresError("get moderation request", err)
	}
	request.Kind = post.ContentKind(kind)

	return &request, nil
}

func (r *Repository) DeleteModerationRequest(ctx context.Context, correlationID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM moderation_request WHERE correlation_id = $1`, correlationID)
	if err != nil {
		return r.handlePostgresError("delete moderation request", err)
	}
	if tag.RowsAffected() == 0 {
		return post.ErrModerationRequestNotFound
	}

	return nil
}

func (r *Repository) ListModerationRequestsOlderThan(ctx context.Context, cutoff time.Time) ([]*post.ModerationRequest, error) {
	query := `
		SELECT correlation_id, content_id, kind, attempt, submitted_at
		FROM moderation_request WHERE submitted_at < $1
		ORDER BY submitted_at ASC`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, r.handlePostgresError("list moderation requests", err)
	}
	defer rows.Close()

	var result []*post.ModerationRequest
	for rows.Next() {
		var request post.ModerationRequest
		var kind string
		if err := rows.Scan(&request.CorrelationID, &request.ContentID, &kind,
			&request.Attempt, &request.SubmittedAt); err != nil {
			return nil, r.handlePostgresError("list moderation requests", err)
		}
		request.Kind = post.ContentKind(kind)
		result = append(result, &request)
	}

	return result, rows.Err()
}
