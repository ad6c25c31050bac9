package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/savesync.net/internal/adapter/crypto"
	"gitlab.com/savesync.net/internal/adapter/logging"
	"gitlab.com/savesync.net/internal/adapter/memory/catalogstore"
	"gitlab.com/savesync.net/internal/adapter/redis/operationport"
	"gitlab.com/savesync.net/internal/adapter/redis/workerport"
	"gitlab.com/savesync.net/internal/config"
	"gitlab.com/savesync.net/internal/core/services/background"
	"gitlab.com/savesync.net/internal/core/services/completion"
	"gitlab.com/savesync.net/internal/core/services/deletion"
	"gitlab.com/savesync.net/internal/core/services/operation"
	"gitlab.com/savesync.net/internal/core/services/worker"
	"gitlab.com/savesync.net/internal/domain"
	"gitlab.com/savesync.net/internal/handlers/admin"
	"gitlab.com/savesync.net/internal/handlers/operations"
	"gitlab.com/savesync.net/internal/handlers/workers"
)

var (
	alice = domain.AuthPayload{UserID: "u1", Username: "alice"}
	bob   = domain.AuthPayload{UserID: "u2", Username: "bob"}
	root  = domain.AuthPayload{UserID: "root", Username: "root", IsAdmin: true}
)

type fixture struct {
	server  *httptest.Server
	catalog *catalogstore.Catalog
	secrets *crypto.JWTServiceImpl
	clock   *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := logging.NewNopLogger()
	bg := background.NewDispatcher(logger)
	t.Cleanup(bg.Close)

	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	f := &fixture{
		catalog: catalogstore.New(),
		secrets: crypto.NewJWTService(&config.JwtConfig{Secret: "test", TokenHashCost: 4}),
		clock:   &now,
	}
	clock := func() time.Time { return *f.clock }

	f.catalog.PutAccount(domain.Account{ID: "root", Username: "root", IsAdmin: true})
	f.catalog.PutAccount(domain.Account{ID: "u1", Username: "alice"})
	f.catalog.PutAccount(domain.Account{ID: "u2", Username: "bob"})
	f.catalog.PutGame(domain.Game{ID: "g1", Name: "Elden Ring", FolderName: "elden-ring"})

	registry := worker.NewWorkerRegistryService(
		workerport.NewWorkerRepository(client, logger),
		f.catalog,
		f.secrets,
		bg,
		&config.RegistryConfig{WorkerTTL: time.Hour, TokenTTL: time.Minute},
		logger,
		worker.WithClock(clock),
	)
	queue := operation.NewOperationQueue(operationport.NewOperationRepository(client, logger), registry, bg, logger, operation.WithClock(clock))
	coordinator := completion.NewCompletionCoordinator(queue, f.catalog, logger, completion.WithClock(clock))
	planner := deletion.NewDeletionPlanner(queue, f.catalog, logger, deletion.WithClock(clock))

	provider := NewServiceProvider(registry, queue, coordinator, planner, f.secrets)
	srv := NewServer(&config.HTTPConfig{Port: 0, ServiceName: "test"}, &config.SweepConfig{StaleAfter: time.Hour, PurgeAfter: 24 * time.Hour}, *provider, logger)
	require.NoError(t, srv.Init())

	f.server = httptest.NewServer(srv.Handler())
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func (f *fixture) token(t *testing.T, payload domain.AuthPayload) string {
	t.Helper()
	token, err := f.secrets.IssueAuthToken(context.Background(), payload)
	require.NoError(t, err)
	return token
}

// do sends body as JSON and decodes the reply into out when given
func (f *fixture) do(t *testing.T, method, path string, caller *domain.AuthPayload, body interface{}, out interface{}) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req.Header.Set("Authorization", "Bearer "+f.token(t, *caller))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) registerWorker(t *testing.T, clientID string, owner domain.AuthPayload) {
	t.Helper()
	var info domain.WorkerInfo
	status := f.do(t, http.MethodPost, "/api/workers/register", &owner, workers.RegisterRequest{ClientID: clientID, Hostname: "pc"}, &info)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, owner.UserID, info.UserID)
}

func saveBody() map[string]interface{} {
	return map[string]interface{}{
		"operation_type":     "save",
		"game_id":            "g1",
		"local_save_path":    `C:\Saves\EldenRing`,
		"remote_path":        "alice/elden-ring/1",
		"save_folder_number": 1,
	}
}

func TestWorkerRegistrationAndClaim(t *testing.T) {
	f := newFixture(t)

	var info domain.WorkerInfo
	status := f.do(t, http.MethodPost, "/api/workers/register", nil, workers.RegisterRequest{ClientID: "W1", Hostname: "desk"}, &info)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, info.Claimed())
	assert.True(t, info.Online)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/workers/register", nil, workers.RegisterRequest{ClientID: "a:b"}, nil))
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/workers/W1/heartbeat", nil, nil, &info))

	var token domain.WorkerTokenResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/workers/W1/token", nil, nil, &token))
	assert.NotEmpty(t, token.Token)
	assert.Equal(t, "W1", token.ClientID)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/workers/W1/claim", nil, nil, nil))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/workers/W1/claim", &alice, nil, &info))
	assert.Equal(t, "u1", info.UserID)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/workers/W1/claim", &bob, nil, nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/workers/nope/claim", &bob, nil, nil))

	var mine workers.WorkersResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/workers/mine", &alice, nil, &mine))
	require.Len(t, mine.Workers, 1)
	assert.Equal(t, "alice", mine.Workers[0].LinkedUser)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodDelete, "/api/workers/W1/claim", &bob, nil, nil))
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/workers/W1/claim", &alice, nil, nil))

	var all workers.WorkersResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/workers", &bob, nil, &all))
	require.Len(t, all.Workers, 1)
	assert.False(t, all.Workers[0].Claimed)
}

func TestOperationLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.registerWorker(t, "W1", alice)

	var created operations.CreateOperationResponse
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/operations", &alice, saveBody(), &created))
	assert.Equal(t, "W1", created.ClientID)
	require.NotEmpty(t, created.OperationID)
	path := "/api/operations/" + created.OperationID

	var view domain.OperationStatusView
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, &alice, nil, &view))
	assert.Equal(t, domain.OperationStatusPending, view.Status)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, path, &bob, nil, nil))
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, &root, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, path, nil, nil, nil))

	var pending workers.PendingOperationsResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/workers/W1/operations/pending", nil, nil, &pending))
	require.Len(t, pending.Operations, 1)
	assert.Equal(t, created.OperationID, pending.Operations[0].ID)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/workers/W1/operations/pending", nil, nil, &pending))
	assert.Empty(t, pending.Operations)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, path+"/started", nil, nil, nil))
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, path+"/progress", nil, map[string]interface{}{"current": 2, "total": 4, "message": "uploading"}, nil))

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, &alice, nil, &view))
	assert.Equal(t, domain.OperationStatusInProgress, view.Status)
	assert.Equal(t, domain.Progress{Current: 2, Total: 4, Message: "uploading"}, view.Progress)

	complete := operations.CompleteRequest{Success: true, Result: map[string]interface{}{"files": float64(4)}}
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, path+"/complete", nil, complete, nil))

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, &alice, nil, &view))
	assert.Equal(t, domain.OperationStatusCompleted, view.Status)
	assert.Equal(t, float64(4), view.Result["files"])

	var listed operations.OperationsResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/users/u1/operations", &alice, nil, &listed))
	assert.Len(t, listed.Operations, 1)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/users/u1/operations", &bob, nil, nil))
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/games/g1/operations", &alice, nil, nil))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/games/g1/operations", &root, nil, &listed))
	assert.Len(t, listed.Operations, 1)
}

func TestCreateOperationRejections(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/operations", &alice, saveBody(), nil))

	f.registerWorker(t, "W1", alice)
	f.registerWorker(t, "W2", bob)

	bad := saveBody()
	bad["operation_type"] = "copy"
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/operations", &alice, bad, nil))

	foreign := saveBody()
	foreign["user_id"] = "u2"
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/operations", &alice, foreign, nil))

	onOtherWorker := saveBody()
	onOtherWorker["client_id"] = "W2"
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/operations", &alice, onOtherWorker, nil))

	var created operations.CreateOperationResponse
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/operations", &root, foreign, &created))
	assert.Equal(t, "W2", created.ClientID)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/operations/missing/complete", nil, operations.CompleteRequest{Success: true}, nil))
}

func TestDeleteGameRunsBarrierOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.catalog.PutSaveFolder("u1", "g1", 1)
	f.catalog.PutSaveFolder("u2", "g1", 1)
	f.registerWorker(t, "W9", root)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/api/games/g1", &alice, nil, nil))

	var plan domain.DeletionPlan
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodDelete, "/api/games/g1", &root, nil, &plan))
	require.Len(t, plan.OperationIDs, 2)
	assert.Equal(t, "W9", plan.ClientID)

	for _, id := range plan.OperationIDs {
		game, err := f.catalog.GetGame(context.Background(), "g1")
		require.NoError(t, err)
		require.NotNil(t, game)
		require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/api/operations/"+id+"/complete", nil, operations.CompleteRequest{Success: true}, nil))
	}

	game, err := f.catalog.GetGame(context.Background(), "g1")
	require.NoError(t, err)
	assert.Nil(t, game)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/games/g1", &root, nil, nil))
}

func TestDeleteAccountWithoutSavesIsImmediate(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/api/users/u2", &alice, nil, nil))

	var plan domain.DeletionPlan
	require.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/api/users/u2", &bob, nil, &plan))
	assert.True(t, plan.Immediate)

	account, err := f.catalog.GetAccount(context.Background(), "u2")
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestMaintenanceEndpoints(t *testing.T) {
	f := newFixture(t)
	f.registerWorker(t, "W1", alice)

	var stuck, done operations.CreateOperationResponse
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/operations", &alice, saveBody(), &stuck))
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/operations", &alice, saveBody(), &done))
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/api/operations/"+done.OperationID+"/complete", nil, operations.CompleteRequest{Success: true}, nil))

	f.advance(2 * time.Hour)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/admin/operations/cleanup", &alice, nil, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/admin/operations/cleanup", &root, map[string]int{"older_than_sec": -1}, nil))

	var resp admin.MaintenanceResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/admin/operations/cleanup", &root, map[string]int{"older_than_sec": 3600}, &resp))
	assert.Equal(t, 1, resp.Affected)
	assert.Equal(t, 3600, resp.OlderThan)

	var view domain.OperationStatusView
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/operations/"+stuck.OperationID, &alice, nil, &view))
	assert.Equal(t, domain.OperationStatusFailed, view.Status)
	assert.Equal(t, domain.MessageFor(domain.ErrorCategoryTimeout), view.Error)

	f.advance(time.Minute)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/admin/operations/purge", &root, map[string]int{"older_than_sec": 30}, &resp))
	assert.Equal(t, 2, resp.Affected)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/operations/"+done.OperationID, &alice, nil, nil))
}
