package checklist_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multisigcheck/internal/auth"
	"multisigcheck/internal/catalog"
	"multisigcheck/internal/checklist"
	"multisigcheck/internal/checklist/checklisttest"
	"multisigcheck/internal/localstore"
	"multisigcheck/internal/remote"
	"multisigcheck/internal/utils"
)

var epoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store   *checklist.Store
	local   *localstore.Store
	gateway *checklisttest.Gateway
	clock   *checklisttest.Clock
	notices *checklisttest.Notices
	auth    *checklisttest.Auth
}

func newFixture(t *testing.T, local *localstore.Store) *fixture {
	t.Helper()
	if local == nil {
		local = localstore.NewMemory()
	}
	f := &fixture{
		local:   local,
		gateway: checklisttest.NewGateway(),
		clock:   checklisttest.NewClock(epoch),
		notices: &checklisttest.Notices{},
		auth:    &checklisttest.Auth{},
	}
	f.store = f.reopen(t)
	return f
}

// reopen builds a fresh store over the same collaborators, as a new process
// would.
func (f *fixture) reopen(t *testing.T) *checklist.Store {
	t.Helper()
	s, err := checklist.New(checklist.Options{
		Catalog:  catalog.Default(),
		Local:    f.local,
		Gateway:  f.gateway,
		Auth:     f.auth,
		Notifier: f.notices,
		Clock:    f.clock,
	})
	require.NoError(t, err)
	return s
}

var sortStrings = cmpopts.SortSlices(func(a, b string) bool { return a < b })

func sameSet(t *testing.T, want, got []string) {
	t.Helper()
	assert.Empty(t, cmp.Diff(want, got, sortStrings, cmpopts.EquateEmpty()))
}

func TestNewRequiresCatalogAndStorage(t *testing.T) {
	_, err := checklist.New(checklist.Options{Local: localstore.NewMemory()})
	assert.True(t, utils.IsKind(err, utils.KindValidation))
}

func TestNewDefaults(t *testing.T) {
	f := newFixture(t, nil)
	s := f.store

	assert.Empty(t, s.CompletedItems())
	assert.Equal(t, catalog.ProfileLarge, s.SelectedProfile())
	assert.False(t, s.IsReadOnly())
	_, ok := s.ReportDetails()
	assert.False(t, ok)
	assert.Equal(t, checklist.Activity{}, s.InFlight())
	assert.Empty(t, f.notices.Titles())
}

func TestToggleTwiceRestoresSet(t *testing.T) {
	f := newFixture(t, nil)
	s := f.store
	require.NoError(t, s.Toggle("secure-seed-phrase"))
	before := s.CompletedItems()

	require.NoError(t, s.Toggle("verify-value"))
	assert.True(t, s.IsCompleted("verify-value"))
	require.NoError(t, s.Toggle("verify-value"))

	assert.Equal(t, before, s.CompletedItems())
	assert.False(t, s.IsCompleted("verify-value"))
}

func TestToggleAcceptsUnknownIDs(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Toggle("retired-item"))

	assert.True(t, f.store.IsCompleted("retired-item"))
	assert.Zero(t, f.store.TotalProgress().Completed)
}

func TestLocalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	local, err := localstore.Open(dir)
	require.NoError(t, err)
	f := newFixture(t, local)

	for _, id := range []string{"verify-nonce", "secure-seed-phrase", "incident-response-plan"} {
		require.NoError(t, f.store.Toggle(id))
	}
	require.NoError(t, f.store.SetSelectedProfile(catalog.ProfileMedium))

	reloadedLocal, err := localstore.Open(dir)
	require.NoError(t, err)
	f.local = reloadedLocal
	again := f.reopen(t)

	sameSet(t, f.store.CompletedItems(), again.CompletedItems())
	assert.Equal(t, catalog.ProfileMedium, again.SelectedProfile())
}

func TestCorruptLocalProgress(t *testing.T) {
	local := localstore.NewMemory()
	require.NoError(t, local.Set(checklist.KeyCompletedItems, "{not json"))
	require.NoError(t, local.Set(checklist.KeyThreatProfile, "small"))

	f := newFixture(t, local)

	assert.Empty(t, f.store.CompletedItems())
	assert.Equal(t, catalog.ProfileSmall, f.store.SelectedProfile())
	assert.Equal(t, []string{"Error with checklist data"}, f.notices.Titles())
}

func TestUnrecognizedStoredProfileIsKept(t *testing.T) {
	local := localstore.NewMemory()
	require.NoError(t, local.Set(checklist.KeyThreatProfile, "enterprise"))
	f := newFixture(t, local)

	assert.Equal(t, catalog.Profile("enterprise"), f.store.SelectedProfile())
	for _, it := range f.store.FilteredItems("") {
		assert.Empty(t, it.MinimumProfile)
	}
}

func TestReadOnlySuppressesMutation(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Toggle("verify-value"))
	require.NoError(t, f.store.SetReadOnly(true))

	assert.ErrorIs(t, f.store.Toggle("verify-nonce"), checklist.ErrReadOnly)
	assert.ErrorIs(t, f.store.SetSelectedProfile(catalog.ProfileSmall), checklist.ErrReadOnly)
	assert.Equal(t, []string{"verify-value"}, f.store.CompletedItems())
	assert.Equal(t, catalog.ProfileLarge, f.store.SelectedProfile())
}

func TestSetReportDetails(t *testing.T) {
	f := newFixture(t, nil)
	f.store.SetReportDetails(checklist.ReportDetails{MultisigName: "Treasury", Reviewer: "ops"})

	d, ok := f.store.ReportDetails()
	require.True(t, ok)
	assert.Equal(t, "Treasury", d.MultisigName)
	assert.Equal(t, "ops", d.Reviewer)
}

func TestStoreProgress(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.SetSelectedProfile(catalog.ProfileSmall))
	require.NoError(t, f.store.Toggle("threshold-2-of-3"))
	require.NoError(t, f.store.Toggle("threshold-4-of-7")) // hidden at small

	section := f.store.Progress(catalog.SectionSafeMultisig)
	assert.Equal(t, 1, section.Completed)
	assert.Equal(t, len(f.store.FilteredItems(catalog.SectionSafeMultisig)), section.Total)

	critical := f.store.CriticalProgress()
	assert.Equal(t, 1, critical.Completed)
	assert.Equal(t, 1, f.store.TotalProgress().Completed)
}

func TestCloseFlushesPendingSave(t *testing.T) {
	f := newFixture(t, nil)
	user := &auth.Session{UserID: "u-1"}
	require.NoError(t, f.store.HandleSessionChange(context.Background(), user))
	require.Equal(t, 1, f.gateway.SaveCount())

	require.NoError(t, f.store.Toggle("verify-value"))
	require.NoError(t, f.store.Close())

	require.Equal(t, 2, f.gateway.SaveCount())
	last, _ := f.gateway.LastSave()
	assert.Equal(t, []string{"verify-value"}, last.Completed)
	assert.Zero(t, f.clock.Pending())
}

func TestCloseWithSystemClock(t *testing.T) {
	gw := checklisttest.NewGateway()
	s, err := checklist.New(checklist.Options{
		Catalog:   catalog.Default(),
		Local:     localstore.NewMemory(),
		Gateway:   gw,
		SaveDelay: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, s.HandleSessionChange(context.Background(), &auth.Session{UserID: "u-2"}))
	require.NoError(t, s.Toggle("verify-nonce"))

	require.NoError(t, s.Close())
	assert.Equal(t, 2, gw.SaveCount())
}

func TestInFlightDuringRemoteLoad(t *testing.T) {
	gw := &blockingGateway{Gateway: checklisttest.NewGateway(), release: make(chan struct{}), entered: make(chan struct{})}
	s, err := checklist.New(checklist.Options{
		Catalog: catalog.Default(),
		Local:   localstore.NewMemory(),
		Gateway: gw,
		Clock:   checklisttest.NewClock(epoch),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.HandleSessionChange(context.Background(), &auth.Session{UserID: "u-3"}) }()

	<-gw.entered
	assert.True(t, s.InFlight().RemoteLoad)
	require.NoError(t, s.Toggle("verify-value"), "store stays responsive during a load")
	close(gw.release)

	require.NoError(t, <-done)
	assert.False(t, s.InFlight().RemoteLoad)
}

type blockingGateway struct {
	*checklisttest.Gateway
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGateway) GetUserChecklist(ctx context.Context, userID string) (*remote.UserChecklist, error) {
	close(g.entered)
	<-g.release
	return g.Gateway.GetUserChecklist(ctx, userID)
}

func TestLocalWriteFailureIsReturned(t *testing.T) {
	f := newFixture(t, nil)
	s, err := checklist.New(checklist.Options{
		Catalog: catalog.Default(),
		Local:   failingStorage{LocalStorage: f.local},
		Clock:   f.clock,
	})
	require.NoError(t, err)

	err = s.Toggle("verify-value")
	require.Error(t, err)
	assert.True(t, s.IsCompleted("verify-value"), "memory is updated before the write")
}

type failingStorage struct {
	checklist.LocalStorage
}

func (failingStorage) Set(string, string) error { return errors.New("disk full") }
