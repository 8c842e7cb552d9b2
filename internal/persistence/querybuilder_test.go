package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectBuilder_UserScopeBeforeOrderAndLimit(t *testing.T) {
	uid := "u1"
	q, args := Select("id", "content").
		From("memories").
		Where("primary_sector = ?", "episodic").
		UserScope(&uid).
		OrderBy("last_seen_at DESC").
		Limit(10).
		Build()

	require.Equal(t, "SELECT id, content FROM memories WHERE primary_sector = ? AND user_id = ? ORDER BY last_seen_at DESC LIMIT ?", q)
	require.Equal(t, []any{"episodic", "u1", 10}, args)
}

func TestSelectBuilder_NilUserScopeIsNull(t *testing.T) {
	q, args := Select("id").From("memories").UserScope(nil).Build()
	require.Equal(t, "SELECT id FROM memories WHERE user_id IS NULL", q)
	require.Empty(t, args)
}

func TestSelectBuilder_TranslatesForPostgres(t *testing.T) {
	uid := "u1"
	q, _ := Select("id").From("memories").Where("a = ?", 1).UserScope(&uid).Limit(5).Build()
	got := TranslateQuestionMarks(q)
	require.Equal(t, "SELECT id FROM memories WHERE a = $1 AND user_id = $2 LIMIT $3", got)
}
