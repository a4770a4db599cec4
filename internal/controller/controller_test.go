package controller_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/careflowhq/careflow/internal/controller"
	"github.com/careflowhq/careflow/internal/domain/models"
)

type fakeLocal struct {
	mu      sync.Mutex
	stored  models.AppData
	has     bool
	saves   int
	saveErr error
	resets  int
}

func (f *fakeLocal) Load() models.AppData {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.has {
		return models.Initial()
	}
	return f.stored
}

func (f *fakeLocal) Save(data models.AppData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.stored = data
	f.has = true
	f.saves++
	return nil
}

func (f *fakeLocal) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = models.AppData{}
	f.has = false
	f.resets++
	return nil
}

func (f *fakeLocal) ExportSnapshot(data models.AppData) ([]byte, string, error) {
	payload, err := json.Marshal(data)
	return payload, "careflow_backup_2026-08-31.json", err
}

func (f *fakeLocal) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func (f *fakeLocal) setSaveErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveErr = err
}

type pushRecord struct {
	identity string
	data     models.AppData
}

type fakeRemote struct {
	mu      sync.Mutex
	onData  func(models.AppData)
	onError func(error)
	subs    int
	unsubs  int
	pushes  []pushRecord
	pushErr error
}

func (f *fakeRemote) Subscribe(ctx context.Context, identity string, onData func(models.AppData), onError func(error)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs++
	f.onData = onData
	f.onError = onError
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubs++
	}
}

func (f *fakeRemote) Push(ctx context.Context, identity string, data models.AppData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushes = append(f.pushes, pushRecord{identity: identity, data: data})
	return nil
}

func (f *fakeRemote) deliver(data models.AppData) {
	f.mu.Lock()
	onData := f.onData
	f.mu.Unlock()
	onData(data)
}

func (f *fakeRemote) fail(err error) {
	f.mu.Lock()
	onError := f.onError
	f.mu.Unlock()
	onError(err)
}

func (f *fakeRemote) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func (f *fakeRemote) lastPush() pushRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes[len(f.pushes)-1]
}

func newTestController(t *testing.T, local *fakeLocal, remote *fakeRemote, debounce time.Duration) *controller.Controller {
	t.Helper()
	var channel controller.RemoteChannel
	if remote != nil {
		channel = remote
	}
	c := controller.New(local, channel, debounce, zap.NewNop())
	t.Cleanup(c.Shutdown)
	return c
}

func product(id, name string, stock int) models.Product {
	return models.Product{ID: id, Name: name, Category: "Outros", CurrentStock: stock, MinStock: 5, Unit: "Unidade"}
}

func TestNew_SeedsFromLocalStore(t *testing.T) {
	local := &fakeLocal{}
	require.NoError(t, local.Save(func() models.AppData {
		d := models.Initial()
		d.Products = append(d.Products, product("P1", "Fralda", 3))
		return d
	}()))

	c := newTestController(t, local, nil, time.Second)

	status := c.Status()
	assert.Equal(t, controller.StateUnauthenticated, status.State)
	assert.True(t, status.Loaded)
	require.Len(t, c.Snapshot().Products, 1)
	assert.Equal(t, "P1", c.Snapshot().Products[0].ID)
}

func TestSetIdentity_WithoutRemoteStaysOnLocalFallback(t *testing.T) {
	local := &fakeLocal{}
	c := newTestController(t, local, nil, time.Second)

	c.SetIdentity(context.Background(), "user-1")

	status := c.Status()
	assert.Equal(t, controller.StateOfflineFallback, status.State)
	assert.Equal(t, "user-1", status.Identity)
	assert.True(t, status.Loaded)

	require.NoError(t, c.UpsertProduct(product("P1", "Fralda", 3)))
	assert.Equal(t, 1, local.saveCount())
}

func TestSetIdentity_AwaitsFirstSnapshotBeforePersisting(t *testing.T) {
	local := &fakeLocal{}
	remote := &fakeRemote{}
	c := newTestController(t, local, remote, time.Second)

	c.SetIdentity(context.Background(), "user-1")

	status := c.Status()
	assert.Equal(t, controller.StateAwaitingFirstSnapshot, status.State)
	assert.False(t, status.Loaded)
	assert.Equal(t, 1, remote.subs)

	// Edits made before the bootstrap snapshot stay in memory only; they
	// would otherwise race the snapshot that is about to replace them.
	require.NoError(t, c.UpsertProduct(product("P1", "Fralda", 3)))
	assert.Len(t, c.Snapshot().Products, 1)
	assert.Equal(t, 0, local.saveCount())
	assert.Equal(t, 0, remote.pushCount())
}

func TestHandleRemoteData_SnapshotReplacesAggregateWholesale(t *testing.T) {
	local := &fakeLocal{}
	remote := &fakeRemote{}
	c := newTestController(t, local, remote, time.Second)

	c.SetIdentity(context.Background(), "user-1")
	require.NoError(t, c.UpsertProduct(product("LOCAL", "Edicao local", 1)))

	fromRemote := models.Initial()
	fromRemote.Products = append(fromRemote.Products, product("REMOTE", "Fralda", 9))
	remote.deliver(fromRemote)

	status := c.Status()
	assert.Equal(t, controller.StateRemoteAuthoritative, status.State)
	assert.True(t, status.Loaded)

	snap := c.Snapshot()
	require.Len(t, snap.Products, 1)
	assert.Equal(t, "REMOTE", snap.Products[0].ID)

	// The snapshot is mirrored into the local store as it arrives.
	assert.Equal(t, 1, local.saveCount())
	require.Len(t, local.Load().Products, 1)
	assert.Equal(t, "REMOTE", local.Load().Products[0].ID)
}

func TestHandleRemoteError_FallsBackToLastPersistedState(t *testing.T) {
	local := &fakeLocal{}
	remote := &fakeRemote{}
	c := newTestController(t, local, remote, time.Hour)

	c.SetIdentity(context.Background(), "user-1")
	remote.deliver(models.Initial())
	require.NoError(t, c.UpsertProduct(product("P1", "Fralda", 3)))

	// The next edit cannot be persisted locally.
	local.setSaveErr(errors.New("disk full"))
	err := c.UpsertProduct(product("P2", "Luva", 8))
	require.Error(t, err)
	assert.Len(t, c.Snapshot().Products, 2)

	remote.fail(errors.New("stream closed"))

	// The fallback is whatever the local store actually holds, so the
	// unsaved edit is gone.
	assert.Equal(t, controller.StateOfflineFallback, c.Status().State)
	snap := c.Snapshot()
	require.Len(t, snap.Products, 1)
	assert.Equal(t, "P1", snap.Products[0].ID)
}

func TestHandleRemoteError_DoesNotRecoverUntilIdentityChanges(t *testing.T) {
	local := &fakeLocal{}
	remote := &fakeRemote{}
	c := newTestController(t, local, remote, time.Hour)

	c.SetIdentity(context.Background(), "user-1")
	remote.deliver(models.Initial())
	remote.fail(errors.New("stream closed"))
	require.Equal(t, controller.StateOfflineFallback, c.Status().State)

	// Edits after the failure persist locally but never reach the remote.
	require.NoError(t, c.UpsertProduct(product("P1", "Fralda", 3)))
	assert.Equal(t, controller.StateOfflineFallback, c.Status().State)
	assert.Equal(t, 0, remote.pushCount())

	// A fresh session is the only way back to the remote store.
	c.SetIdentity(context.Background(), "user-1")
	assert.Equal(t, controller.StateAwaitingFirstSnapshot, c.Status().State)
	assert.Equal(t, 2, remote.subs)
	assert.Equal(t, 1, remote.unsubs)
}

func TestDebounce_CoalescesMutationsIntoOnePush(t *testing.T) {
	local := &fakeLocal{}
	remote := &fakeRemote{}
	c := newTestController(t, local, remote, 30*time.Millisecond)

	c.SetIdentity(context.Background(), "user-1")
	remote.deliver(models.Initial())

	require.NoError(t, c.UpsertProduct(product("P1", "Fralda", 3)))
	require.NoError(t, c.UpsertProduct(product("P2", "Luva", 8)))

	require.Eventually(t, func() bool { return remote.pushCount() == 1 },
		time.Second, 5*time.Millisecond)

	// The single push carries the aggregate as of firing time, holding
	// both edits.
	last := remote.lastPush()
	assert.Equal(t, "user-1", last.identity)
	assert.Len(t, last.data.Products, 2)

	// And the window is closed: nothing else fires.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, remote.pushCount())
}

func TestDebounce_PendingPushCancelledOnSessionEnd(t *testing.T) {
	local := &fakeLocal{}
	remote := &fakeRemote{}
	c := newTestController(t, local, remote, 30*time.Millisecond)

	c.SetIdentity(context.Background(), "user-1")
	remote.deliver(models.Initial())
	require.NoError(t, c.UpsertProduct(product("P1", "Fralda", 3)))

	c.ClearIdentity()
	assert.Equal(t, controller.StateUnauthenticated, c.Status().State)
	assert.Equal(t, 1, remote.unsubs)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, remote.pushCount())
}

func TestDebounce_PendingPushCancelledOnRemoteError(t *testing.T) {
	local := &fakeLocal{}
	remote := &fakeRemote{}
	c := newTestController(t, local, remote, 30*time.Millisecond)

	c.SetIdentity(context.Background(), "user-1")
	remote.deliver(models.Initial())
	require.NoError(t, c.UpsertProduct(product("P1", "Fralda", 3)))

	remote.fail(errors.New("stream closed"))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, remote.pushCount())
}

func TestStaleSubscriptionCallbacksAreIgnored(t *testing.T) {
	local := &fakeLocal{}
	remote := &fakeRemote{}
	c := newTestController(t, local, remote, time.Hour)

	c.SetIdentity(context.Background(), "user-1")
	remote.mu.Lock()
	staleData, staleErr := remote.onData, remote.onError
	remote.mu.Unlock()

	c.SetIdentity(context.Background(), "user-2")

	poisoned := models.Initial()
	poisoned.Products = append(poisoned.Products, product("STALE", "Antigo", 1))
	staleData(poisoned)
	staleErr(errors.New("stream closed"))

	// The new session is untouched by the old session's callbacks.
	status := c.Status()
	assert.Equal(t, controller.StateAwaitingFirstSnapshot, status.State)
	assert.Equal(t, "user-2", status.Identity)
	assert.False(t, status.Loaded)
	assert.Empty(t, c.Snapshot().Products)
}

func TestSnapshot_IsIsolatedFromLaterMutations(t *testing.T) {
	local := &fakeLocal{}
	c := newTestController(t, local, nil, time.Second)
	require.NoError(t, c.UpsertProduct(product("P1", "Fralda", 3)))

	before := c.Snapshot()
	require.NoError(t, c.UpsertProduct(product("P2", "Luva", 8)))
	require.NoError(t, c.DeleteProduct("P1"))

	assert.Len(t, before.Products, 1)
	assert.Equal(t, "Fralda", before.Products[0].Name)
}

func TestImport_RejectsPayloadsThatAreNotBackups(t *testing.T) {
	local := &fakeLocal{}
	c := newTestController(t, local, nil, time.Second)
	require.NoError(t, c.UpsertProduct(product("P1", "Fralda", 3)))

	cases := map[string]string{
		"not json":            "{broken",
		"missing residents":   `{"products": []}`,
		"missing products":    `{"residents": []}`,
		"residents not array": `{"residents": {}, "products": []}`,
	}
	for name, payload := range cases {
		err := c.Import([]byte(payload), true)
		assert.ErrorIs(t, err, controller.ErrMalformedImport, name)
	}

	// Nothing was replaced by the rejected imports.
	require.Len(t, c.Snapshot().Products, 1)
	assert.Equal(t, "P1", c.Snapshot().Products[0].ID)
}

func TestImport_RequiresConfirmation(t *testing.T) {
	local := &fakeLocal{}
	c := newTestController(t, local, nil, time.Second)
	require.NoError(t, c.UpsertProduct(product("P1", "Fralda", 3)))

	payload := `{"residents": [], "products": []}`
	err := c.Import([]byte(payload), false)
	assert.ErrorIs(t, err, controller.ErrConfirmationRequired)
	assert.Len(t, c.Snapshot().Products, 1)
}

func TestImport_ConfirmedBackupReplacesAggregate(t *testing.T) {
	local := &fakeLocal{}
	c := newTestController(t, local, nil, time.Second)
	require.NoError(t, c.UpsertProduct(product("OLD", "Antigo", 1)))

	payload := `{
		"residents": [{"id": "R1", "name": "Maria"}],
		"products": [{"id": "P9", "name": "Fralda", "currentStock": 12}]
	}`
	require.NoError(t, c.Import([]byte(payload), true))

	snap := c.Snapshot()
	require.Len(t, snap.Residents, 1)
	assert.Equal(t, "R1", snap.Residents[0].ID)
	require.Len(t, snap.Products, 1)
	assert.Equal(t, "P9", snap.Products[0].ID)
	assert.Equal(t, 12, snap.Products[0].CurrentStock)
}

func TestExportImport_RoundTripPreservesIdentifiers(t *testing.T) {
	local := &fakeLocal{}
	c := newTestController(t, local, nil, time.Second)
	require.NoError(t, c.UpsertProduct(product("P1", "Fralda", 3)))
	require.NoError(t, c.UpsertResident(models.Resident{ID: "R1", Name: "Maria"}))

	payload, name, err := c.Export()
	require.NoError(t, err)
	assert.Contains(t, name, "careflow_backup_")

	require.NoError(t, c.FactoryReset(controller.ResetPhrase))
	assert.Empty(t, c.Snapshot().Products)

	require.NoError(t, c.Import(payload, true))
	snap := c.Snapshot()
	require.Len(t, snap.Products, 1)
	assert.Equal(t, "P1", snap.Products[0].ID)
	require.Len(t, snap.Residents, 1)
	assert.Equal(t, "R1", snap.Residents[0].ID)
}

func TestFactoryReset_RequiresExactPhrase(t *testing.T) {
	local := &fakeLocal{}
	c := newTestController(t, local, nil, time.Second)
	require.NoError(t, c.UpsertProduct(product("P1", "Fralda", 3)))

	for _, phrase := range []string{"", "resetar", "RESET", "APAGAR"} {
		assert.ErrorIs(t, c.FactoryReset(phrase), controller.ErrConfirmationRequired)
	}
	assert.Equal(t, 0, local.resets)
	assert.Len(t, c.Snapshot().Products, 1)
}

func TestFactoryReset_ErasesLocalSlotsAndReseeds(t *testing.T) {
	local := &fakeLocal{}
	c := newTestController(t, local, nil, time.Second)
	require.NoError(t, c.UpsertProduct(product("P1", "Fralda", 3)))

	// Surrounding whitespace is tolerated; the phrase itself is not fuzzy.
	require.NoError(t, c.FactoryReset("  RESETAR \n"))

	assert.Equal(t, 1, local.resets)
	assert.Equal(t, models.Initial(), c.Snapshot())
}

func TestUpsertTimeSheet_DuplicateDateEmployeePairIsNoop(t *testing.T) {
	local := &fakeLocal{}
	c := newTestController(t, local, nil, time.Second)

	first := models.TimeSheetEntry{ID: "T1", Date: "2026-08-30", EmployeeID: "E1"}
	require.NoError(t, c.UpsertTimeSheet(first))
	require.NoError(t, c.UpsertTimeSheet(models.TimeSheetEntry{ID: "T2", Date: "2026-08-30", EmployeeID: "E1"}))
	require.NoError(t, c.UpsertTimeSheet(models.TimeSheetEntry{ID: "T3", Date: "2026-08-30", EmployeeID: "E2"}))

	snap := c.Snapshot()
	require.Len(t, snap.TimeSheets, 2)
	assert.Equal(t, "T1", snap.TimeSheets[0].ID)

	require.NoError(t, c.DeleteTimeSheet("2026-08-30", "E1"))
	snap = c.Snapshot()
	require.Len(t, snap.TimeSheets, 1)
	assert.Equal(t, "T3", snap.TimeSheets[0].ID)
}

func TestSaveEvolutions_DailyRecordsReplaceBySameDate(t *testing.T) {
	local := &fakeLocal{}
	c := newTestController(t, local, nil, time.Second)

	require.NoError(t, c.SaveEvolutions([]models.EvolutionRecord{
		{ID: "E1", ResidentID: "R1", Role: "ENFERMAGEM", Type: "DIARIA", Date: "2026-08-30", FileName: "manha.pdf"},
	}))
	require.NoError(t, c.SaveEvolutions([]models.EvolutionRecord{
		{ID: "E2", ResidentID: "R1", Role: "ENFERMAGEM", Type: "DIARIA", Date: "2026-08-30", FileName: "tarde.pdf"},
		{ID: "E3", ResidentID: "R1", Role: "ENFERMAGEM", Type: "DIARIA", Date: "2026-08-31", FileName: "manha.pdf"},
	}))

	snap := c.Snapshot()
	require.Len(t, snap.Evolutions, 2)
	assert.Equal(t, "E2", snap.Evolutions[0].ID)
	assert.Equal(t, "tarde.pdf", snap.Evolutions[0].FileName)
	assert.Equal(t, "E3", snap.Evolutions[1].ID)
}

func TestSaveEvolutions_MonthlyRecordsReplaceBySameMonth(t *testing.T) {
	local := &fakeLocal{}
	c := newTestController(t, local, nil, time.Second)

	require.NoError(t, c.SaveEvolutions([]models.EvolutionRecord{
		{ID: "E1", ResidentID: "R1", Role: "PSICOLOGIA", Type: "MENSAL", Date: "2026-08-05", FileName: "primeira.pdf"},
	}))
	require.NoError(t, c.SaveEvolutions([]models.EvolutionRecord{
		{ID: "E2", ResidentID: "R1", Role: "PSICOLOGIA", Type: "MENSAL", Date: "2026-08-20", FileName: "revisada.pdf"},
		{ID: "E3", ResidentID: "R2", Role: "PSICOLOGIA", Type: "MENSAL", Date: "2026-08-20", FileName: "outra.pdf"},
	}))

	snap := c.Snapshot()
	require.Len(t, snap.Evolutions, 2)
	assert.Equal(t, "E2", snap.Evolutions[0].ID)
	assert.Equal(t, "revisada.pdf", snap.Evolutions[0].FileName)
}

func TestUpsert_AssignsIdentifierWhenAbsent(t *testing.T) {
	local := &fakeLocal{}
	c := newTestController(t, local, nil, time.Second)

	require.NoError(t, c.UpsertProduct(models.Product{Name: "Fralda"}))
	require.NoError(t, c.UpsertResident(models.Resident{Name: "Maria"}))

	snap := c.Snapshot()
	require.Len(t, snap.Products, 1)
	assert.NotEmpty(t, snap.Products[0].ID)
	require.Len(t, snap.Residents, 1)
	assert.NotEmpty(t, snap.Residents[0].ID)
}
