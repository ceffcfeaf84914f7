package sandbox

import (
	"fmt"
	"time"
)

// Label key constants define the Docker label keys that tie a container
// to the agent session and worktree it serves. Labels are the sole
// persistence mechanism — a container found with these labels can always
// be attributed to its worktree, even after the CLI process that created
// it is long gone.
//
// All keys share the "atelier." prefix to avoid collisions with labels
// set by other tools.
const (
	// LabelPrefix is the common prefix for all atelier labels.
	LabelPrefix = "atelier."

	// LabelManagedBy identifies containers created by this CLI.
	// Key: "atelier.managed-by", Value: always "atelier".
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelSessionID stores the agent session UUID.
	LabelSessionID = LabelPrefix + "session-id"

	// LabelWorktreePath stores the absolute path of the worktree the
	// container bind-mounts. Reclaim filters on this key to find the
	// containers that must go before the directory can.
	LabelWorktreePath = LabelPrefix + "worktree-path"

	// LabelAgent stores the agent profile name.
	LabelAgent = LabelPrefix + "agent"

	// LabelCreatedAt stores the RFC3339 creation timestamp.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
const ManagedByValue = "atelier"

// ContainerMeta is the label-borne metadata of a sandbox container.
type ContainerMeta struct {
	// SessionID is the agent session the container belongs to.
	SessionID string

	// WorktreePath is the worktree the container mounts.
	WorktreePath string

	// Agent is the agent profile name.
	Agent string

	// CreatedAt is when the container was created.
	CreatedAt time.Time
}

// BuildLabels constructs the Docker label map for a sandbox container.
func BuildLabels(meta ContainerMeta) map[string]string {
	return map[string]string{
		LabelManagedBy:    ManagedByValue,
		LabelSessionID:    meta.SessionID,
		LabelWorktreePath: meta.WorktreePath,
		LabelAgent:        meta.Agent,
		// RFC3339 in UTC keeps the value stable regardless of the host
		// machine's timezone.
		LabelCreatedAt: meta.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ParseLabels reconstructs ContainerMeta from Docker container labels.
// This is the inverse of BuildLabels. A malformed or absent created-at
// label is tolerated (zero time) — it is display-only; the session and
// worktree labels are required.
func ParseLabels(labels map[string]string) (ContainerMeta, error) {
	if labels[LabelManagedBy] != ManagedByValue {
		return ContainerMeta{}, fmt.Errorf("container is not managed by atelier")
	}

	meta := ContainerMeta{
		SessionID:    labels[LabelSessionID],
		WorktreePath: labels[LabelWorktreePath],
		Agent:        labels[LabelAgent],
	}

	if meta.SessionID == "" {
		return ContainerMeta{}, fmt.Errorf("missing required label %s", LabelSessionID)
	}
	if meta.WorktreePath == "" {
		return ContainerMeta{}, fmt.Errorf("missing required label %s", LabelWorktreePath)
	}

	if raw := labels[LabelCreatedAt]; raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			meta.CreatedAt = ts
		}
	}

	return meta, nil
}
