package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/knakano/atelier/internal/model"
)

// TestFormatFlags verifies the FLAGS column rendering for every combination
// of lock and prunable annotations.
func TestFormatFlags(t *testing.T) {
	tests := []struct {
		name string
		wt   model.Worktree
		want string
	}{
		{
			name: "no flags",
			wt:   model.Worktree{},
			want: "-",
		},
		{
			name: "locked without reason",
			wt:   model.Worktree{Locked: true},
			want: "locked",
		},
		{
			name: "locked with reason",
			wt:   model.Worktree{Locked: true, LockReason: "agent running"},
			want: "locked(agent running)",
		},
		{
			name: "prunable",
			wt:   model.Worktree{Prunable: true},
			want: "prunable",
		},
		{
			name: "locked and prunable",
			wt:   model.Worktree{Locked: true, LockReason: "hold", Prunable: true},
			want: "locked(hold),prunable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatFlags(&tt.wt))
		})
	}
}
