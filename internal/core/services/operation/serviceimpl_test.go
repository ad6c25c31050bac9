package operation

import (
	"context"
	"sync"
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
	"gitlab.com/savesync.net/internal/adapter/redis/rediskeys"
	"gitlab.com/savesync.net/internal/adapter/redis/workerport"
	"gitlab.com/savesync.net/internal/config"
	"gitlab.com/savesync.net/internal/core/ports/secondary"
	"gitlab.com/savesync.net/internal/core/services/background"
	"gitlab.com/savesync.net/internal/core/services/worker"
	"gitlab.com/savesync.net/internal/domain"
	"gitlab.com/savesync.net/internal/static/errs"
)

type recordingDispatcher struct {
	mu        sync.Mutex
	delivered []string
	connected bool
}

func (d *recordingDispatcher) DeliverOperation(_ context.Context, op *domain.Operation) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return false, nil
	}
	d.delivered = append(d.delivered, op.ID)
	return true, nil
}

func (d *recordingDispatcher) ids() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.delivered...)
}

type fixture struct {
	mr         *miniredis.Miniredis
	queue      *OperationQueue
	registry   *worker.WorkerRegistryService
	opRepo     *operationport.OperationRepository
	dispatcher *background.Dispatcher
	clock      *time.Time
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
	f := &fixture{mr: mr, dispatcher: bg, clock: &now}
	clock := func() time.Time { return *f.clock }

	f.registry = worker.NewWorkerRegistryService(
		workerport.NewWorkerRepository(client, logger),
		catalogstore.New(),
		crypto.NewJWTService(&config.JwtConfig{Secret: "test", TokenHashCost: 4}),
		bg,
		&config.RegistryConfig{WorkerTTL: time.Minute, TokenTTL: time.Minute},
		logger,
		worker.WithClock(clock),
	)
	f.opRepo = operationport.NewOperationRepository(client, logger)
	f.queue = NewOperationQueue(f.opRepo, f.registry, bg, logger, WithClock(clock))
	return f
}

func intPtr(n int) *int { return &n }

func saveRequest() domain.CreateOperationRequest {
	return domain.CreateOperationRequest{
		OperationType:    domain.OperationTypeSave,
		UserID:           "u1",
		GameID:           "g1",
		LocalSavePath:    `C:\Games\Saves`,
		RemotePath:       "alice/game/1",
		SaveFolderNumber: intPtr(1),
	}
}

func TestCreateRejectsMalformedInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.queue.Create(ctx, saveRequest(), "")
	assert.ErrorIs(t, err, errs.ErrMissingClientID)

	bad := saveRequest()
	bad.OperationType = "copy"
	_, err = f.queue.Create(ctx, bad, "W1")
	assert.ErrorIs(t, err, errs.ErrInvalidOperation)

	bad = saveRequest()
	bad.UserID = ""
	_, err = f.queue.Create(ctx, bad, "W1")
	assert.ErrorIs(t, err, errs.ErrInvalidOperation)

	bad = saveRequest()
	bad.RemotePath = ""
	_, err = f.queue.Create(ctx, bad, "W1")
	assert.ErrorIs(t, err, errs.ErrInvalidOperation)

	list := domain.CreateOperationRequest{OperationType: domain.OperationTypeList, UserID: "u1", RemotePath: "alice"}
	_, err = f.queue.Create(ctx, list, "W1")
	assert.NoError(t, err)

	_, err = f.registry.GetWorker(ctx, "never")
	assert.ErrorIs(t, err, errs.ErrWorkerNotFound)
}

func TestCreateSelfRegistersUnknownWorker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.queue.Create(ctx, saveRequest(), "W1")
	require.NoError(t, err)

	_, err = f.registry.GetWorker(ctx, "W1")
	require.NoError(t, err)

	inbox, err := f.queue.ListByWorker(ctx, "W1")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, id, inbox[0].ID)
	assert.Equal(t, domain.OperationStatusPending, inbox[0].Status)
}

func TestAssignmentNeverChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.queue.Create(ctx, saveRequest(), "W1")
	require.NoError(t, err)

	assertWorker := func() {
		op, err := f.queue.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "W1", op.ClientID)
	}
	assertWorker()

	_, err = f.queue.PendingForWorker(ctx, "W1")
	require.NoError(t, err)
	assertWorker()

	require.NoError(t, f.queue.UpdateProgress(ctx, id, domain.ProgressUpdate{Current: intPtr(1)}))
	assertWorker()

	require.NoError(t, f.queue.Fail(ctx, id, "boom", domain.ErrorCategoryGeneric))
	assertWorker()
}

func TestCreateDeliversToConnectedWorker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	transport := &recordingDispatcher{connected: true}
	f.queue.SetDispatcher(transport)

	id, err := f.queue.Create(ctx, saveRequest(), "W1")
	require.NoError(t, err)
	f.dispatcher.Wait()
	assert.Equal(t, []string{id}, transport.ids())

	op, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusPending, op.Status)
}

// inboxSizeDispatcher records how many operations the inbox held at each delivery
type inboxSizeDispatcher struct {
	repo  *operationport.OperationRepository
	mu    sync.Mutex
	sizes []int
}

func (d *inboxSizeDispatcher) DeliverOperation(ctx context.Context, op *domain.Operation) (bool, error) {
	ids, err := d.repo.InboxIDs(ctx, op.ClientID)
	if err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sizes = append(d.sizes, len(ids))
	return true, nil
}

func TestCreateBatchPersistsBeforeDelivering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	transport := &inboxSizeDispatcher{repo: f.opRepo}
	f.queue.SetDispatcher(transport)

	reqs := []domain.CreateOperationRequest{saveRequest(), saveRequest(), saveRequest()}
	ids, err := f.queue.CreateBatch(ctx, reqs, "W1")
	require.NoError(t, err)
	require.Len(t, ids, 3)
	f.dispatcher.Wait()

	assert.Equal(t, []int{3, 3, 3}, transport.sizes)
	inbox, err := f.queue.PendingForWorkerSnapshot(ctx, "W1")
	require.NoError(t, err)
	require.Len(t, inbox, 3)
	for i, op := range inbox {
		assert.Equal(t, ids[i], op.ID)
	}
}

func TestCreateBatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bad := saveRequest()
	bad.RemotePath = ""
	_, err := f.queue.CreateBatch(ctx, []domain.CreateOperationRequest{saveRequest(), bad}, "W1")
	require.ErrorIs(t, err, errs.ErrInvalidOperation)

	_, err = f.queue.CreateBatch(ctx, nil, "W1")
	require.ErrorIs(t, err, errs.ErrInvalidOperation)

	ops, err := f.queue.ListByGame(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestReplaySnapshotDoesNotStartOperations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first, err := f.queue.Create(ctx, saveRequest(), "W1")
	require.NoError(t, err)
	second, err := f.queue.Create(ctx, saveRequest(), "W1")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		pending, err := f.queue.PendingForWorkerSnapshot(ctx, "W1")
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, first, pending[0].ID)
		assert.Equal(t, second, pending[1].ID)
	}

	for _, id := range []string{first, second} {
		op, err := f.queue.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.OperationStatusPending, op.Status)
		assert.Nil(t, op.StartedAt)
	}
}

func TestPendingForWorkerClaimsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, err := f.queue.Create(ctx, saveRequest(), "W1")
	require.NoError(t, err)

	claimed, err := f.queue.PendingForWorker(ctx, "W1")
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)
	assert.Equal(t, domain.OperationStatusInProgress, claimed[0].Status)
	assert.NotNil(t, claimed[0].StartedAt)

	again, err := f.queue.PendingForWorker(ctx, "W1")
	require.NoError(t, err)
	assert.Empty(t, again)

	snapshot, err := f.queue.PendingForWorkerSnapshot(ctx, "W1")
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestInboxPrunesOrphansAndFinished(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	done, err := f.queue.Create(ctx, saveRequest(), "W1")
	require.NoError(t, err)
	orphan, err := f.queue.Create(ctx, saveRequest(), "W1")
	require.NoError(t, err)
	keep, err := f.queue.Create(ctx, saveRequest(), "W1")
	require.NoError(t, err)

	f.mr.Del(rediskeys.Operation(orphan))
	// a finished operation whose inbox removal never happened
	_, err = f.opRepo.Finish(ctx, done, secondary.FinishOutcome{Status: domain.OperationStatusCompleted, At: *f.clock})
	require.NoError(t, err)

	pending, err := f.queue.PendingForWorkerSnapshot(ctx, "W1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, keep, pending[0].ID)

	ids, err := f.opRepo.InboxIDs(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, []string{keep}, ids)
}

func TestProgressAndCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, err := f.queue.Create(ctx, saveRequest(), "W1")
	require.NoError(t, err)

	msg := "uploading"
	require.NoError(t, f.queue.UpdateProgress(ctx, id, domain.ProgressUpdate{Current: intPtr(2), Total: intPtr(4), Message: &msg}))
	require.NoError(t, f.queue.MarkInProgress(ctx, id))

	view, err := f.queue.Status(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusInProgress, view.Status)
	assert.Equal(t, domain.Progress{Current: 2, Total: 4, Message: "uploading"}, view.Progress)

	require.NoError(t, f.queue.Complete(ctx, id, map[string]interface{}{"uploaded": true}))
	require.NoError(t, f.queue.Fail(ctx, id, "late", domain.ErrorCategoryGeneric))

	view, err = f.queue.Status(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusCompleted, view.Status)
	assert.Equal(t, map[string]interface{}{"uploaded": true}, view.Result)
	assert.Empty(t, view.Error)

	ids, err := f.opRepo.InboxIDs(ctx, "W1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	assert.NoError(t, f.queue.MarkInProgress(ctx, "unknown"))
	assert.NoError(t, f.queue.UpdateProgress(ctx, "unknown", domain.ProgressUpdate{}))
	assert.ErrorIs(t, f.queue.Complete(ctx, "unknown", nil), errs.ErrOperationNotFound)
}

func TestStatusEnforcesCaller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, err := f.queue.Create(ctx, saveRequest(), "W1")
	require.NoError(t, err)

	_, err = f.queue.Status(ctx, id, &domain.Caller{UserID: "u2"})
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = f.queue.Status(ctx, id, &domain.Caller{UserID: "u1"})
	assert.NoError(t, err)

	_, err = f.queue.Status(ctx, id, &domain.Caller{UserID: "admin", IsAdmin: true})
	assert.NoError(t, err)

	_, err = f.queue.Status(ctx, "missing", nil)
	assert.ErrorIs(t, err, errs.ErrOperationNotFound)
}

func TestResolveWorker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.queue.ResolveWorker(ctx, "u1")
	assert.ErrorIs(t, err, errs.ErrNoWorkerAvailable)

	for _, id := range []string{"A", "B"} {
		_, err := f.registry.Register(ctx, id, domain.RegisterOptions{})
		require.NoError(t, err)
		_, err = f.registry.Claim(ctx, id, "u1", "alice")
		require.NoError(t, err)
	}
	clientID, err := f.queue.ResolveWorker(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "A", clientID)

	require.NoError(t, f.registry.SetConnectionStatus(ctx, "B", true, true))
	clientID, err = f.queue.ResolveWorker(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "B", clientID)
}

func TestListsAndMaintenance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	oldDone, err := f.queue.Create(ctx, saveRequest(), "W1")
	require.NoError(t, err)
	require.NoError(t, f.queue.Complete(ctx, oldDone, nil))
	oldStuck, err := f.queue.Create(ctx, saveRequest(), "W1")
	require.NoError(t, err)

	*f.clock = f.clock.Add(2 * time.Hour)
	fresh, err := f.queue.Create(ctx, saveRequest(), "W1")
	require.NoError(t, err)

	byGame, err := f.queue.ListByGame(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, byGame, 3)
	assert.Equal(t, fresh, byGame[2].ID)

	byUser, err := f.queue.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, byUser, 3)

	stale, err := f.queue.ListStale(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, oldStuck, stale[0].ID)

	purged, err := f.queue.Purge(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = f.queue.Get(ctx, oldDone)
	assert.ErrorIs(t, err, errs.ErrOperationNotFound)
	_, err = f.queue.Get(ctx, oldStuck)
	assert.NoError(t, err)
}
