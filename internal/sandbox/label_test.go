package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuildLabels verifies that all metadata fields map to the expected
// label keys, with the timestamp rendered as RFC3339 UTC.
func TestBuildLabels(t *testing.T) {
	createdAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	labels := BuildLabels(ContainerMeta{
		SessionID:    "sess-123",
		WorktreePath: "/home/u/app-feature-auth",
		Agent:        "claude",
		CreatedAt:    createdAt,
	})

	assert.Equal(t, "atelier", labels[LabelManagedBy])
	assert.Equal(t, "sess-123", labels[LabelSessionID])
	assert.Equal(t, "/home/u/app-feature-auth", labels[LabelWorktreePath])
	assert.Equal(t, "claude", labels[LabelAgent])
	assert.Equal(t, "2026-03-14T09:26:53Z", labels[LabelCreatedAt])
}

// TestBuildLabelsTimezone verifies that non-UTC timestamps are normalized
// to UTC in the label value.
func TestBuildLabelsTimezone(t *testing.T) {
	loc := time.FixedZone("JST", 9*3600)
	createdAt := time.Date(2026, 3, 14, 18, 26, 53, 0, loc)

	labels := BuildLabels(ContainerMeta{
		SessionID:    "s",
		WorktreePath: "/wt",
		CreatedAt:    createdAt,
	})

	assert.Equal(t, "2026-03-14T09:26:53Z", labels[LabelCreatedAt],
		"timestamp should be normalized to UTC")
}

// TestParseLabelsRoundTrip verifies that ParseLabels is the inverse of
// BuildLabels.
func TestParseLabelsRoundTrip(t *testing.T) {
	original := ContainerMeta{
		SessionID:    "sess-456",
		WorktreePath: "/home/u/app-fix-123",
		Agent:        "aider",
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	meta, err := ParseLabels(BuildLabels(original))
	require.NoError(t, err)
	assert.Equal(t, original, meta)
}

// TestParseLabelsForeignContainer verifies that containers without the
// managed-by marker are rejected — atelier must never touch containers it
// did not create.
func TestParseLabelsForeignContainer(t *testing.T) {
	_, err := ParseLabels(map[string]string{
		LabelSessionID:    "s",
		LabelWorktreePath: "/wt",
	})
	require.Error(t, err, "missing managed-by label should be rejected")

	_, err = ParseLabels(map[string]string{
		LabelManagedBy:    "someone-else",
		LabelSessionID:    "s",
		LabelWorktreePath: "/wt",
	})
	require.Error(t, err, "foreign managed-by value should be rejected")
}

// TestParseLabelsMissingRequired verifies that the session and worktree
// labels are mandatory.
func TestParseLabelsMissingRequired(t *testing.T) {
	base := func() map[string]string {
		return map[string]string{
			LabelManagedBy:    ManagedByValue,
			LabelSessionID:    "s",
			LabelWorktreePath: "/wt",
		}
	}

	labels := base()
	delete(labels, LabelSessionID)
	_, err := ParseLabels(labels)
	require.Error(t, err, "missing session-id should be rejected")

	labels = base()
	delete(labels, LabelWorktreePath)
	_, err = ParseLabels(labels)
	require.Error(t, err, "missing worktree-path should be rejected")
}

// TestParseLabelsTolerantCreatedAt verifies that a malformed or absent
// created-at label yields zero time rather than an error — the timestamp
// is display-only.
func TestParseLabelsTolerantCreatedAt(t *testing.T) {
	labels := map[string]string{
		LabelManagedBy:    ManagedByValue,
		LabelSessionID:    "s",
		LabelWorktreePath: "/wt",
		LabelCreatedAt:    "not-a-timestamp",
	}

	meta, err := ParseLabels(labels)
	require.NoError(t, err)
	assert.True(t, meta.CreatedAt.IsZero())

	delete(labels, LabelCreatedAt)
	meta, err = ParseLabels(labels)
	require.NoError(t, err)
	assert.True(t, meta.CreatedAt.IsZero())
}
