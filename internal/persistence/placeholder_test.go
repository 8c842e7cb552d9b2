package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranslateQuestionMarks_Basic(t *testing.T) {
	got := TranslateQuestionMarks("SELECT * FROM t WHERE a = ? AND b = ?")
	require.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", got)
}

func TestTranslateQuestionMarks_RespectsQuotedLiterals(t *testing.T) {
	got := TranslateQuestionMarks("SELECT * FROM t WHERE a = '??' AND b = ?")
	require.Equal(t, "SELECT * FROM t WHERE a = '??' AND b = $1", got)
}

func TestTranslateQuestionMarks_EscapedDoubleQuestion(t *testing.T) {
	got := TranslateQuestionMarks("SELECT ?? AS literal, a = ?")
	require.Equal(t, "SELECT ? AS literal, a = $1", got)
}

func TestTranslateQuestionMarks_IdempotentOnNumberedSQL(t *testing.T) {
	in := "SELECT * FROM t WHERE a = $1 AND b = $2"
	require.Equal(t, in, TranslateQuestionMarks(in))
}

func TestTranslateQuestionMarks_NoPlaceholders(t *testing.T) {
	in := "SELECT * FROM t"
	require.Equal(t, in, TranslateQuestionMarks(in))
}
