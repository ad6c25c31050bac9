package workerport

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"gitlab.com/savesync.net/internal/adapter/redis/rediskeys"
	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/ports/secondary"
	"gitlab.com/savesync.net/internal/domain"
)

var _ secondary.WorkerRepository = (*WorkerRepository)(nil)

const (
	fieldClientID     = "client_id"
	fieldUserID       = "user_id"
	fieldUsername     = "username"
	fieldHostname     = "hostname"
	fieldLastPing     = "last_ping"
	fieldRegisteredAt = "registered_at"
	fieldClaimedAt    = "claimed_at"
	fieldWSConnected  = "ws_connected"
	fieldToken        = "ws_token"
	fieldTokenExpires = "ws_token_expires"

	scanBatch = 100
)

// Return codes line up with secondary.OwnerChange.
var setOwnerScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 3 end
local owner = redis.call('HGET', KEYS[1], 'user_id')
if owner and owner ~= '' then
  if owner == ARGV[1] then
    redis.call('HSET', KEYS[1], 'username', ARGV[2])
    redis.call('SADD', KEYS[2], ARGV[4])
    return 1
  end
  return 2
end
redis.call('HSET', KEYS[1], 'user_id', ARGV[1], 'username', ARGV[2], 'claimed_at', ARGV[3])
redis.call('SADD', KEYS[2], ARGV[4])
return 0
`)

var clearOwnerScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return {3, ''} end
local owner = redis.call('HGET', KEYS[1], 'user_id')
if not owner or owner == '' then return {1, ''} end
if ARGV[1] ~= '' and owner ~= ARGV[1] then return {2, owner} end
redis.call('HDEL', KEYS[1], 'user_id', 'username', 'claimed_at')
return {0, owner}
`)

var consumeTokenScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'ws_token') == ARGV[1] then
  redis.call('HDEL', KEYS[1], 'ws_token', 'ws_token_expires')
  return 1
end
return 0
`)

// WorkerRepository implements the WorkerRepository interface with Redis
type WorkerRepository struct {
	redisClient redis.UniversalClient
	logger      primary.Logger
}

// NewWorkerRepository creates a new Redis worker repository
func NewWorkerRepository(redisClient redis.UniversalClient, logger primary.Logger) *WorkerRepository {
	return &WorkerRepository{
		redisClient: redisClient,
		logger:      logger,
	}
}

// UpsertWorker creates the info hash on first contact and stamps last_ping
func (r *WorkerRepository) UpsertWorker(ctx context.Context, clientID string, hostname string, now time.Time) (bool, error) {
	infoKey := rediskeys.WorkerInfo(clientID)
	stamp := rediskeys.FormatTime(now)

	fields := []interface{}{fieldClientID, clientID, fieldLastPing, stamp}
	if hostname != "" {
		fields = append(fields, fieldHostname, hostname)
	}

	var created *redis.BoolCmd
	_, err := r.redisClient.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.HSetNX(ctx, infoKey, fieldRegisteredAt, stamp)
		pipe.HSet(ctx, infoKey, fields...)
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save worker info", "workerID", clientID, "error", err)
		return false, fmt.Errorf("failed to save worker info: %w", err)
	}
	return created.Val(), nil
}

// GetWorker retrieves worker information from Redis by ID
func (r *WorkerRepository) GetWorker(ctx context.Context, clientID string) (*domain.WorkerInfo, error) {
	var (
		info  *redis.StringStringMapCmd
		alive *redis.IntCmd
	)
	_, err := r.redisClient.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		info = pipe.HGetAll(ctx, rediskeys.WorkerInfo(clientID))
		alive = pipe.Exists(ctx, rediskeys.Worker(clientID))
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to get worker info", "workerID", clientID, "error", err)
		return nil, fmt.Errorf("failed to get worker info: %w", err)
	}

	if len(info.Val()) == 0 {
		return nil, nil
	}
	return decodeWorker(clientID, info.Val(), alive.Val() > 0), nil
}

// GetAllWorkers retrieves all worker information from Redis.
func (r *WorkerRepository) GetAllWorkers(ctx context.Context) ([]*domain.WorkerInfo, error) {
	var cursor uint64
	var clientIDs []string

	// Use SCAN to iterate over info hashes
	for {
		keys, next, err := r.redisClient.Scan(ctx, cursor, rediskeys.WorkerInfoPattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker keys: %w", err)
		}
		for _, key := range keys {
			if id, ok := rediskeys.ClientIDFromInfoKey(key); ok {
				clientIDs = append(clientIDs, id)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	workers := make([]*domain.WorkerInfo, 0, len(clientIDs))
	if len(clientIDs) == 0 {
		return workers, nil
	}

	infos := make([]*redis.StringStringMapCmd, len(clientIDs))
	alive := make([]*redis.IntCmd, len(clientIDs))
	_, err := r.redisClient.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range clientIDs {
			infos[i] = pipe.HGetAll(ctx, rediskeys.WorkerInfo(id))
			alive[i] = pipe.Exists(ctx, rediskeys.Worker(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve worker data: %w", err)
	}

	for i, id := range clientIDs {
		if len(infos[i].Val()) == 0 {
			continue
		}
		workers = append(workers, decodeWorker(id, infos[i].Val(), alive[i].Val() > 0))
	}
	return workers, nil
}

func (r *WorkerRepository) SetAlive(ctx context.Context, clientID string, ttl time.Duration) error {
	if err := r.redisClient.Set(ctx, rediskeys.Worker(clientID), "1", ttl).Err(); err != nil {
		r.logger.Error("Failed to refresh worker liveness", "workerID", clientID, "error", err)
		return fmt.Errorf("failed to refresh worker liveness: %w", err)
	}
	return nil
}

func (r *WorkerRepository) ExpireAlive(ctx context.Context, clientID string) error {
	if err := r.redisClient.Del(ctx, rediskeys.Worker(clientID)).Err(); err != nil {
		return fmt.Errorf("failed to expire worker liveness: %w", err)
	}
	return nil
}

func (r *WorkerRepository) IsAlive(ctx context.Context, clientID string) (bool, error) {
	n, err := r.redisClient.Exists(ctx, rediskeys.Worker(clientID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check worker liveness: %w", err)
	}
	return n > 0, nil
}

func (r *WorkerRepository) SetConnected(ctx context.Context, clientID string, connected bool) error {
	value := "0"
	if connected {
		value = "1"
	}
	if err := r.redisClient.HSet(ctx, rediskeys.WorkerInfo(clientID), fieldWSConnected, value).Err(); err != nil {
		return fmt.Errorf("failed to update connection status: %w", err)
	}
	return nil
}

func (r *WorkerRepository) SetOwner(ctx context.Context, clientID, userID, username string, now time.Time) (secondary.OwnerChange, error) {
	keys := []string{rediskeys.WorkerInfo(clientID), rediskeys.UserWorkers(userID)}
	code, err := setOwnerScript.Run(ctx, r.redisClient, keys, userID, username, rediskeys.FormatTime(now), clientID).Int()
	if err != nil {
		r.logger.Error("Failed to set worker owner", "workerID", clientID, "userID", userID, "error", err)
		return secondary.OwnerMissing, fmt.Errorf("failed to set worker owner: %w", err)
	}
	return secondary.OwnerChange(code), nil
}

func (r *WorkerRepository) ClearOwner(ctx context.Context, clientID, expectedUserID string) (secondary.OwnerChange, error) {
	res, err := clearOwnerScript.Run(ctx, r.redisClient, []string{rediskeys.WorkerInfo(clientID)}, expectedUserID).Slice()
	if err != nil {
		return secondary.OwnerMissing, fmt.Errorf("failed to clear worker owner: %w", err)
	}
	if len(res) != 2 {
		return secondary.OwnerMissing, fmt.Errorf("unexpected clear owner reply: %v", res)
	}
	code, _ := res[0].(int64)
	previous, _ := res[1].(string)

	change := secondary.OwnerChange(code)
	if change == secondary.OwnerChanged && previous != "" {
		// a stale index entry is tolerated by readers, so this is best effort
		if err := r.RemoveUserWorker(ctx, previous, clientID); err != nil {
			r.logger.Warn("Failed to drop worker from owner index", "workerID", clientID, "userID", previous, "error", err)
		}
	}
	return change, nil
}

func (r *WorkerRepository) WorkerIDsForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.redisClient.SMembers(ctx, rediskeys.UserWorkers(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user workers: %w", err)
	}
	return ids, nil
}

func (r *WorkerRepository) RemoveUserWorker(ctx context.Context, userID, clientID string) error {
	if err := r.redisClient.SRem(ctx, rediskeys.UserWorkers(userID), clientID).Err(); err != nil {
		return fmt.Errorf("failed to remove user worker: %w", err)
	}
	return nil
}

func (r *WorkerRepository) SaveToken(ctx context.Context, clientID, tokenHash string, expiresAt time.Time) error {
	err := r.redisClient.HSet(ctx, rediskeys.WorkerInfo(clientID),
		fieldToken, tokenHash,
		fieldTokenExpires, rediskeys.FormatTime(expiresAt),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to save worker token: %w", err)
	}
	return nil
}

func (r *WorkerRepository) GetToken(ctx context.Context, clientID string) (string, time.Time, error) {
	values, err := r.redisClient.HMGet(ctx, rediskeys.WorkerInfo(clientID), fieldToken, fieldTokenExpires).Result()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to get worker token: %w", err)
	}
	hash, _ := values[0].(string)
	expires, _ := values[1].(string)
	if hash == "" {
		return "", time.Time{}, nil
	}
	var expiresAt time.Time
	if t := rediskeys.ParseTime(expires); t != nil {
		expiresAt = *t
	}
	return hash, expiresAt, nil
}

func (r *WorkerRepository) ConsumeToken(ctx context.Context, clientID, tokenHash string) (bool, error) {
	n, err := consumeTokenScript.Run(ctx, r.redisClient, []string{rediskeys.WorkerInfo(clientID)}, tokenHash).Int()
	if err != nil {
		return false, fmt.Errorf("failed to consume worker token: %w", err)
	}
	return n == 1, nil
}

func decodeWorker(clientID string, fields map[string]string, alive bool) *domain.WorkerInfo {
	w := &domain.WorkerInfo{
		ClientID:    clientID,
		UserID:      fields[fieldUserID],
		Username:    fields[fieldUsername],
		Hostname:    fields[fieldHostname],
		WSConnected: fields[fieldWSConnected] == "1",
		Online:      alive,
		ClaimedAt:   rediskeys.ParseTime(fields[fieldClaimedAt]),
	}
	if t := rediskeys.ParseTime(fields[fieldLastPing]); t != nil {
		w.LastPing = *t
	}
	if t := rediskeys.ParseTime(fields[fieldRegisteredAt]); t != nil {
		w.RegisteredAt = *t
	}
	return w
}
