package operationport

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"gitlab.com/savesync.net/internal/adapter/redis/rediskeys"
	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/ports/secondary"
	"gitlab.com/savesync.net/internal/domain"
)

var _ secondary.OperationRepository = (*OperationRepository)(nil)

const (
	fieldID               = "id"
	fieldType             = "type"
	fieldStatus           = "status"
	fieldClientID         = "client_id"
	fieldUserID           = "user_id"
	fieldGameID           = "game_id"
	fieldGroup            = "operation_group"
	fieldLocalSavePath    = "local_save_path"
	fieldRemotePath       = "remote_path"
	fieldSaveFolderNumber = "save_folder_number"
	fieldPathIndex        = "path_index"
	fieldProgressCurrent  = "progress_current"
	fieldProgressTotal    = "progress_total"
	fieldProgressMessage  = "progress_message"
	fieldResult           = "result"
	fieldError            = "error"
	fieldErrorCategory    = "error_category"
	fieldCreatedAt        = "created_at"
	fieldStartedAt        = "started_at"
	fieldCompletedAt      = "completed_at"
)

// Scripts reply -1 for a missing record, 1 when written and 0 when the record was left alone.
var startScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return -1 end
if status == 'pending' then
  redis.call('HSET', KEYS[1], 'status', 'in_progress', 'started_at', ARGV[1])
  return 1
end
return 0
`)

var progressScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return -1 end
if status == 'completed' or status == 'failed' then return 0 end
if status == 'pending' then
  redis.call('HSET', KEYS[1], 'status', 'in_progress', 'started_at', ARGV[1])
end
if #ARGV > 1 then
  redis.call('HSET', KEYS[1], unpack(ARGV, 2))
end
return 1
`)

var finishScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return -1 end
if status == 'completed' or status == 'failed' then return 0 end
if redis.call('HEXISTS', KEYS[1], 'started_at') == 0 then
  redis.call('HSET', KEYS[1], 'started_at', ARGV[2])
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'completed_at', ARGV[2])
if #ARGV > 2 then
  redis.call('HSET', KEYS[1], unpack(ARGV, 3))
end
return 1
`)

// OperationRepository keeps operation records, worker inboxes and lookup indexes in Redis
type OperationRepository struct {
	redisClient redis.UniversalClient
	logger      primary.Logger
}

func NewOperationRepository(redisClient redis.UniversalClient, logger primary.Logger) *OperationRepository {
	return &OperationRepository{
		redisClient: redisClient,
		logger:      logger,
	}
}

func (r *OperationRepository) CreateOperation(ctx context.Context, op *domain.Operation) error {
	return r.CreateOperations(ctx, []*domain.Operation{op})
}

// CreateOperations writes every record in one transaction, so an inbox never
// holds part of the batch
func (r *OperationRepository) CreateOperations(ctx context.Context, ops []*domain.Operation) error {
	encoded := make([][]interface{}, len(ops))
	for i, op := range ops {
		fields, err := encodeOperation(op)
		if err != nil {
			return err
		}
		encoded[i] = fields
	}

	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, op := range ops {
			pipe.HSet(ctx, rediskeys.Operation(op.ID), encoded[i]...)
			pipe.RPush(ctx, rediskeys.WorkerInbox(op.ClientID), op.ID)
			pipe.SAdd(ctx, rediskeys.UserOperations(op.UserID), op.ID)
			if op.GameID != "" {
				pipe.SAdd(ctx, rediskeys.GameOperations(op.GameID), op.ID)
			}
			pipe.ZAdd(ctx, rediskeys.OperationsByCreation, &redis.Z{
				Score:  float64(op.CreatedAt.UnixMilli()),
				Member: op.ID,
			})
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to create operations", "count", len(ops), "error", err)
		return fmt.Errorf("failed to create operation: %w", err)
	}
	return nil
}

// GetOperation retrieves an operation from Redis by ID
func (r *OperationRepository) GetOperation(ctx context.Context, id string) (*domain.Operation, error) {
	fields, err := r.redisClient.HGetAll(ctx, rediskeys.Operation(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return r.decode(id, fields), nil
}

func (r *OperationRepository) GetOperations(ctx context.Context, ids []string) ([]*domain.Operation, error) {
	ops := make([]*domain.Operation, 0, len(ids))
	if len(ids) == 0 {
		return ops, nil
	}

	cmds := make([]*redis.StringStringMapCmd, len(ids))
	_, err := r.redisClient.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, rediskeys.Operation(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get operations: %w", err)
	}

	for i, id := range ids {
		if len(cmds[i].Val()) == 0 {
			continue
		}
		ops = append(ops, r.decode(id, cmds[i].Val()))
	}
	return ops, nil
}

func (r *OperationRepository) InboxIDs(ctx context.Context, clientID string) ([]string, error) {
	ids, err := r.redisClient.LRange(ctx, rediskeys.WorkerInbox(clientID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read worker inbox: %w", err)
	}
	return ids, nil
}

func (r *OperationRepository) RemoveFromInbox(ctx context.Context, clientID, id string) error {
	if err := r.redisClient.LRem(ctx, rediskeys.WorkerInbox(clientID), 0, id).Err(); err != nil {
		return fmt.Errorf("failed to remove operation from inbox: %w", err)
	}
	return nil
}

func (r *OperationRepository) MarkStarted(ctx context.Context, id string, now time.Time) (secondary.TransitionResult, error) {
	code, err := startScript.Run(ctx, r.redisClient, []string{rediskeys.Operation(id)}, rediskeys.FormatTime(now)).Int()
	if err != nil {
		return secondary.TransitionNotFound, fmt.Errorf("failed to mark operation started: %w", err)
	}
	return transition(code), nil
}

func (r *OperationRepository) ApplyProgress(ctx context.Context, id string, update domain.ProgressUpdate, now time.Time) (secondary.TransitionResult, error) {
	args := []interface{}{rediskeys.FormatTime(now)}
	if update.Current != nil {
		args = append(args, fieldProgressCurrent, strconv.Itoa(*update.Current))
	}
	if update.Total != nil {
		args = append(args, fieldProgressTotal, strconv.Itoa(*update.Total))
	}
	if update.Message != nil {
		args = append(args, fieldProgressMessage, *update.Message)
	}

	code, err := progressScript.Run(ctx, r.redisClient, []string{rediskeys.Operation(id)}, args...).Int()
	if err != nil {
		return secondary.TransitionNotFound, fmt.Errorf("failed to update operation progress: %w", err)
	}
	return transition(code), nil
}

func (r *OperationRepository) Finish(ctx context.Context, id string, outcome secondary.FinishOutcome) (secondary.TransitionResult, error) {
	args := []interface{}{string(outcome.Status), rediskeys.FormatTime(outcome.At)}
	if outcome.Result != nil {
		raw, err := json.Marshal(outcome.Result)
		if err != nil {
			return secondary.TransitionNotFound, fmt.Errorf("failed to marshal operation result: %w", err)
		}
		args = append(args, fieldResult, string(raw))
	}
	if outcome.Error != "" {
		args = append(args, fieldError, outcome.Error)
	}
	if outcome.ErrorCategory != "" {
		args = append(args, fieldErrorCategory, string(outcome.ErrorCategory))
	}

	code, err := finishScript.Run(ctx, r.redisClient, []string{rediskeys.Operation(id)}, args...).Int()
	if err != nil {
		return secondary.TransitionNotFound, fmt.Errorf("failed to finish operation: %w", err)
	}
	return transition(code), nil
}

func (r *OperationRepository) OperationIDsByUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.redisClient.SMembers(ctx, rediskeys.UserOperations(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user operations: %w", err)
	}
	return ids, nil
}

func (r *OperationRepository) OperationIDsByGame(ctx context.Context, gameID string) ([]string, error) {
	ids, err := r.redisClient.SMembers(ctx, rediskeys.GameOperations(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get game operations: %w", err)
	}
	return ids, nil
}

func (r *OperationRepository) OperationIDsCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := r.redisClient.ZRangeByScore(ctx, rediskeys.OperationsByCreation, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list operations by age: %w", err)
	}
	return ids, nil
}

func (r *OperationRepository) DeleteOperation(ctx context.Context, op *domain.Operation) error {
	_, err := r.redisClient.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, rediskeys.Operation(op.ID))
		pipe.LRem(ctx, rediskeys.WorkerInbox(op.ClientID), 0, op.ID)
		pipe.SRem(ctx, rediskeys.UserOperations(op.UserID), op.ID)
		if op.GameID != "" {
			pipe.SRem(ctx, rediskeys.GameOperations(op.GameID), op.ID)
		}
		pipe.ZRem(ctx, rediskeys.OperationsByCreation, op.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
	}
	return nil
}

func transition(code int) secondary.TransitionResult {
	switch code {
	case 1:
		return secondary.TransitionApplied
	case 0:
		return secondary.TransitionUnchanged
	default:
		return secondary.TransitionNotFound
	}
}

func encodeOperation(op *domain.Operation) ([]interface{}, error) {
	fields := []interface{}{
		fieldID, op.ID,
		fieldType, string(op.Type),
		fieldStatus, string(op.Status),
		fieldClientID, op.ClientID,
		fieldUserID, op.UserID,
		fieldGameID, op.GameID,
		fieldGroup, op.OperationGroup,
		fieldLocalSavePath, op.LocalSavePath,
		fieldRemotePath, op.RemotePath,
		fieldProgressCurrent, strconv.Itoa(op.Progress.Current),
		fieldProgressTotal, strconv.Itoa(op.Progress.Total),
		fieldProgressMessage, op.Progress.Message,
		fieldCreatedAt, rediskeys.FormatTime(op.CreatedAt),
	}
	if op.SaveFolderNumber != nil {
		fields = append(fields, fieldSaveFolderNumber, strconv.Itoa(*op.SaveFolderNumber))
	}
	if op.PathIndex != nil {
		fields = append(fields, fieldPathIndex, strconv.Itoa(*op.PathIndex))
	}
	if op.Result != nil {
		raw, err := json.Marshal(op.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal operation result: %w", err)
		}
		fields = append(fields, fieldResult, string(raw))
	}
	if op.Error != "" {
		fields = append(fields, fieldError, op.Error, fieldErrorCategory, string(op.ErrorCategory))
	}
	if op.StartedAt != nil {
		fields = append(fields, fieldStartedAt, rediskeys.FormatTime(*op.StartedAt))
	}
	if op.CompletedAt != nil {
		fields = append(fields, fieldCompletedAt, rediskeys.FormatTime(*op.CompletedAt))
	}
	return fields, nil
}

func (r *OperationRepository) decode(id string, fields map[string]string) *domain.Operation {
	op := &domain.Operation{
		ID:               id,
		Type:             domain.OperationType(fields[fieldType]),
		Status:           domain.OperationStatus(fields[fieldStatus]),
		ClientID:         fields[fieldClientID],
		UserID:           fields[fieldUserID],
		GameID:           fields[fieldGameID],
		OperationGroup:   fields[fieldGroup],
		LocalSavePath:    fields[fieldLocalSavePath],
		RemotePath:       fields[fieldRemotePath],
		SaveFolderNumber: optionalInt(fields[fieldSaveFolderNumber]),
		PathIndex:        optionalInt(fields[fieldPathIndex]),
		Progress: domain.Progress{
			Current: atoi(fields[fieldProgressCurrent]),
			Total:   atoi(fields[fieldProgressTotal]),
			Message: fields[fieldProgressMessage],
		},
		Error:         fields[fieldError],
		ErrorCategory: domain.ErrorCategory(fields[fieldErrorCategory]),
		StartedAt:     rediskeys.ParseTime(fields[fieldStartedAt]),
		CompletedAt:   rediskeys.ParseTime(fields[fieldCompletedAt]),
	}
	if t := rediskeys.ParseTime(fields[fieldCreatedAt]); t != nil {
		op.CreatedAt = *t
	}
	if raw := fields[fieldResult]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &op.Result); err != nil {
			r.logger.Warn("Discarding unreadable operation result", "operationID", id, "error", err)
			op.Result = nil
		}
	}
	return op
}

func optionalInt(value string) *int {
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil
	}
	return &n
}

func atoi(value string) int {
	n, _ := strconv.Atoi(value)
	return n
}
