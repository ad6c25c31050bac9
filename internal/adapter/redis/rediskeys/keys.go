// Package rediskeys names every key the coordinator keeps in the shared store.
package rediskeys

import (
	"strings"
	"time"
)

const (
	workerKeyPrefix    = "worker:"
	workerInfoSuffix   = ":info"
	workerInboxSuffix  = ":operations"
	operationKeyPrefix = "operation:"

	// WorkerInfoPattern matches every worker info hash
	WorkerInfoPattern = workerKeyPrefix + "*" + workerInfoSuffix
	// OperationsByCreation is a sorted set of operation ids scored by creation time
	OperationsByCreation = "operations:created"
)

// Worker is the TTL-backed liveness marker
func Worker(clientID string) string {
	return workerKeyPrefix + clientID
}

func WorkerInfo(clientID string) string {
	return workerKeyPrefix + clientID + workerInfoSuffix
}

// WorkerInbox is the FIFO list of operation ids assigned to the worker
func WorkerInbox(clientID string) string {
	return workerKeyPrefix + clientID + workerInboxSuffix
}

// ClientIDFromInfoKey reverses WorkerInfo
func ClientIDFromInfoKey(key string) (string, bool) {
	if !strings.HasPrefix(key, workerKeyPrefix) || !strings.HasSuffix(key, workerInfoSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, workerKeyPrefix), workerInfoSuffix)
	if id == "" || strings.Contains(id, ":") {
		return "", false
	}
	return id, true
}

func Operation(id string) string {
	return operationKeyPrefix + id
}

// UserWorkers is the set of client ids claimed by the user
func UserWorkers(userID string) string {
	return "user:" + userID + ":workers"
}

func UserOperations(userID string) string {
	return "user:" + userID + ":operations"
}

func GameOperations(gameID string) string {
	return "game:" + gameID + ":operations"
}

// FormatTime is the timestamp encoding used in every hash
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime decodes FormatTime output; empty or malformed input yields nil
func ParseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil
	}
	return &t
}
