package completion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gitlab.com/savesync.net/internal/domain"
)

func op(id string, status domain.OperationStatus) *domain.Operation {
	return &domain.Operation{ID: id, Status: status}
}

func TestDecideBarrier(t *testing.T) {
	tests := []struct {
		name      string
		reporting *domain.Operation
		siblings  []*domain.Operation
		want      barrierDecision
	}{
		{"lone success", op("a", domain.OperationStatusCompleted), nil, barrierFinalize},
		{"lone failure", op("a", domain.OperationStatusFailed), nil, barrierRollback},
		{"sibling pending", op("a", domain.OperationStatusCompleted), []*domain.Operation{op("b", domain.OperationStatusPending)}, barrierWait},
		{"sibling running", op("a", domain.OperationStatusFailed), []*domain.Operation{op("b", domain.OperationStatusInProgress)}, barrierWait},
		{"all completed", op("a", domain.OperationStatusCompleted), []*domain.Operation{op("b", domain.OperationStatusCompleted), op("c", domain.OperationStatusCompleted)}, barrierFinalize},
		{"sibling failed", op("a", domain.OperationStatusCompleted), []*domain.Operation{op("b", domain.OperationStatusFailed)}, barrierRollback},
		{"reporting not terminal", op("a", domain.OperationStatusInProgress), nil, barrierWait},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decideBarrier(tt.reporting, tt.siblings))
		})
	}
}

func TestGameDeletionMembership(t *testing.T) {
	requested := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	game := &domain.Game{ID: "g1", PendingDeletion: true, DeletionRequestedAt: &requested}
	slot := 2

	member := &domain.Operation{Type: domain.OperationTypeDelete, GameID: "g1", OperationGroup: domain.GroupDeleteGame, CreatedAt: requested}
	assert.True(t, isGameDeletionMember(member, game))

	older := *member
	older.CreatedAt = requested.Add(-time.Second)
	assert.False(t, isGameDeletionMember(&older, game))

	perSlot := *member
	perSlot.SaveFolderNumber = &slot
	assert.False(t, isGameDeletionMember(&perSlot, game))

	otherGroup := *member
	otherGroup.OperationGroup = domain.GroupDeleteUser
	assert.False(t, isGameDeletionMember(&otherGroup, game))

	save := *member
	save.Type = domain.OperationTypeSave
	assert.False(t, isGameDeletionMember(&save, game))
}

func TestAccountDeletionMembership(t *testing.T) {
	requested := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	account := &domain.Account{ID: "u1", PendingDeletion: true, DeletionRequestedAt: &requested}

	member := &domain.Operation{UserID: "u1", OperationGroup: domain.GroupDeleteUser, CreatedAt: requested.Add(time.Millisecond)}
	assert.True(t, isAccountDeletionMember(member, account))

	foreign := *member
	foreign.UserID = "u2"
	assert.False(t, isAccountDeletionMember(&foreign, account))

	assert.True(t, requestedSince(member, nil))
}

func TestSiblingsOfExcludesReporting(t *testing.T) {
	a, b, c := op("a", domain.OperationStatusCompleted), op("b", domain.OperationStatusPending), op("c", domain.OperationStatusFailed)
	siblings := siblingsOf(a, []*domain.Operation{a, b, c}, func(o *domain.Operation) bool { return o.ID != "c" })
	assert.Equal(t, []*domain.Operation{b}, siblings)
}
