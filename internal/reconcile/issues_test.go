package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rseeto/obs-clinic-migration/internal/validation"
)

func TestFindColumnIssues(t *testing.T) {
	external := table(t, []string{"obs_id", "incl_main_ga", "incl_main_eng", "incl_main_age"},
		col("10100001", "10100002", "10100003", "10100004"),
		col("1", "2", "1", "1"),
		col("1", "1", "2", "1"),
		col("2", "1", "2", "1"),
	)
	core, logs := observer.New(zapcore.WarnLevel)

	issues, err := FindColumnIssues(converted(t), external, Options{Logger: zap.New(core)})
	require.NoError(t, err)

	var got []string
	for _, d := range issues {
		assert.Equal(t, validation.KindColumnIssue, d.Kind)
		got = append(got, d.Subject+"/"+d.Column)
	}
	assert.Equal(t, []string{
		"10100001/incl_main_ga",
		"10100004/incl_main_eng",
		"10100004/incl_main_age",
	}, got)
	assert.Equal(t, "Subject '10100001' has an issue with the column 'incl_main_ga'.", issues[0].Message)
	assert.Equal(t, 3, logs.Len())
}

func TestFindColumnIssuesAgreement(t *testing.T) {
	issues, err := FindColumnIssues(converted(t), converted(t), Options{})
	require.NoError(t, err)

	assert.Empty(t, issues)
}

func TestFindColumnIssuesRepeated(t *testing.T) {
	conv := table(t, []string{"obs_id", "redcap_repeat_instance", "medhx"},
		col("1", "1", "2"),
		col("1", "2", "1"),
		col("a", "b", "c"),
	)
	ext := table(t, []string{"obs_id", "redcap_repeat_instance", "medhx"},
		col("1", "1", "2"),
		col("1", "2", "1"),
		col("a", "x", "c"),
	)

	issues, err := FindColumnIssues(conv, ext, Options{})
	require.NoError(t, err)

	require.Len(t, issues, 1)
	assert.Equal(t, "1", issues[0].Subject)
	assert.Equal(t, "medhx", issues[0].Column)
}

func TestFindColumnIssuesIgnoredColumns(t *testing.T) {
	external := converted(t)
	require.NoError(t, external.SetColumn("incl_main_age", col("9", "9", "9", "9")))

	issues, err := FindColumnIssues(converted(t), external, Options{IgnoreColumns: []string{"incl_main_age"}})
	require.NoError(t, err)

	assert.Empty(t, issues)
}
