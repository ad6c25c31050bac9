package completion

import (
	"time"

	"gitlab.com/savesync.net/internal/domain"
)

type barrierDecision int

const (
	barrierWait barrierDecision = iota
	barrierFinalize
	barrierRollback
)

func (d barrierDecision) String() string {
	switch d {
	case barrierFinalize:
		return "finalize"
	case barrierRollback:
		return "rollback"
	default:
		return "wait"
	}
}

// decideBarrier evaluates a deletion group once the reporting member is terminal.
// siblings must not contain the reporting operation.
func decideBarrier(reporting *domain.Operation, siblings []*domain.Operation) barrierDecision {
	if !reporting.Status.Terminal() {
		return barrierWait
	}
	allCompleted := reporting.Status == domain.OperationStatusCompleted
	for _, op := range siblings {
		if !op.Status.Terminal() {
			return barrierWait
		}
		if op.Status != domain.OperationStatusCompleted {
			allCompleted = false
		}
	}
	if allCompleted {
		return barrierFinalize
	}
	return barrierRollback
}

// requestedSince reports whether op belongs to the deletion request made at requestedAt
func requestedSince(op *domain.Operation, requestedAt *time.Time) bool {
	if requestedAt == nil {
		return true
	}
	return !op.CreatedAt.Before(*requestedAt)
}

func isGameDeletionMember(op *domain.Operation, game *domain.Game) bool {
	return op.Type == domain.OperationTypeDelete &&
		op.GameID == game.ID &&
		op.SaveFolderNumber == nil &&
		op.OperationGroup == domain.GroupDeleteGame &&
		requestedSince(op, game.DeletionRequestedAt)
}

func isAccountDeletionMember(op *domain.Operation, account *domain.Account) bool {
	return op.OperationGroup == domain.GroupDeleteUser &&
		op.UserID == account.ID &&
		requestedSince(op, account.DeletionRequestedAt)
}

func siblingsOf(reporting *domain.Operation, ops []*domain.Operation, member func(*domain.Operation) bool) []*domain.Operation {
	siblings := make([]*domain.Operation, 0, len(ops))
	for _, op := range ops {
		if op.ID == reporting.ID || !member(op) {
			continue
		}
		siblings = append(siblings, op)
	}
	return siblings
}
