package post_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/acri-st/post/pkg/post"
)

func TestCanTransition(t *testing.T) {
	allowed := map[post.LifecycleStatus][]post.LifecycleStatus{
		post.StatusDraft:             {post.StatusPendingModeration},
		post.StatusPendingModeration: {post.StatusPublished, post.StatusRejected},
		post.StatusPublished:         {post.StatusArchived, post.StatusDraft},
		post.StatusRejected:          {post.StatusDraft},
		post.StatusArchived:          {},
	}

	all := []post.LifecycleStatus{
		post.StatusDraft,
		post.StatusPendingModeration,
		post.StatusPublished,
		post.StatusRejected,
		post.StatusArchived,
	}

	for _, from := range all {
		for _, to := range all {
			expected := false
			for _, next := range allowed[from] {
				if next == to {
					expected = true
				}
			}
			assert.Equal(t, expected, post.CanTransition(from, to),
				"transition %s -> %s", from, to)
		}
	}
}

func TestStatusValidation(t *testing.T) {
	tests := []struct {
		status   post.LifecycleStatus
		valid    bool
		terminal bool
	}{
		{post.StatusDraft, true, false},
		{post.StatusPendingModeration, true, false},
		{post.StatusPublished, true, false},
		{post.StatusRejected, true, true},
		{post.StatusArchived, true, true},
		{post.LifecycleStatus("deleted"), false, false},
		{post.LifecycleStatus(""), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.IsValid())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestKindAndVerdictValidation(t *testing.T) {
	assert.True(t, post.KindTopic.IsValid())
	assert.True(t, post.KindPost.IsValid())
	assert.False(t, post.ContentKind("comment").IsValid())

	assert.True(t, post.VerdictApprove.IsValid())
	assert.True(t, post.VerdictReject.IsValid())
	assert.False(t, post.Verdict("maybe").IsValid())
}
