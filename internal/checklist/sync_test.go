package checklist_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multisigcheck/internal/auth"
	"multisigcheck/internal/catalog"
	"multisigcheck/internal/checklist"
	"multisigcheck/internal/remote"
)

var alice = &auth.Session{UserID: "u-alice", Email: "alice@example.com"}

func (f *fixture) signIn(t *testing.T, s *auth.Session) {
	t.Helper()
	require.NoError(t, f.store.HandleSessionChange(context.Background(), s))
}

func TestSignInWithoutRemoteRecordSeedsIt(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Toggle("verify-value"))
	require.NoError(t, f.store.SetSelectedProfile(catalog.ProfileMedium))

	f.signIn(t, alice)

	last, ok := f.gateway.LastSave()
	require.True(t, ok)
	assert.Equal(t, "u-alice", last.UserID)
	assert.Equal(t, []string{"verify-value"}, last.Completed)
	assert.Equal(t, "medium", last.Profile)
	assert.Equal(t, []string{"Progress saved"}, f.notices.Titles())
}

func TestSignInAdoptsRemoteProgress(t *testing.T) {
	f := newFixture(t, nil)
	f.gateway.PutUser(remote.UserChecklist{UserID: "u-alice", CompletedItems: []string{"no-blind-signing", "verify-nonce"}, Profile: "small"})
	require.NoError(t, f.store.Toggle("verify-value"))

	f.signIn(t, alice)

	sameSet(t, []string{"no-blind-signing", "verify-nonce"}, f.store.CompletedItems())
	assert.Equal(t, catalog.ProfileSmall, f.store.SelectedProfile())
	assert.Equal(t, []string{"Progress loaded"}, f.notices.Titles())
	assert.Zero(t, f.gateway.SaveCount())

	raw, _ := f.local.Get(checklist.KeyCompletedItems)
	assert.JSONEq(t, `["no-blind-signing","verify-nonce"]`, raw)
}

func TestSignInWithEmptyRemoteRecordPushesGuestState(t *testing.T) {
	f := newFixture(t, nil)
	f.gateway.PutUser(remote.UserChecklist{UserID: "u-alice", CompletedItems: nil, Profile: "small"})
	require.NoError(t, f.store.Toggle("verify-value"))

	f.signIn(t, alice)

	assert.Equal(t, []string{"verify-value"}, f.store.CompletedItems())
	assert.Equal(t, catalog.ProfileLarge, f.store.SelectedProfile(), "remote profile of an empty record is not adopted")
	last, _ := f.gateway.LastSave()
	assert.Equal(t, "large", last.Profile)
	assert.Equal(t, []string{"Progress saved"}, f.notices.Titles())
}

func TestAuthRoundTripRestoresGuestState(t *testing.T) {
	f := newFixture(t, nil)
	f.gateway.PutUser(remote.UserChecklist{UserID: "u-alice", CompletedItems: []string{"incident-response-plan"}, Profile: "medium"})
	require.NoError(t, f.store.Toggle("verify-value"))
	require.NoError(t, f.store.Toggle("verify-nonce"))
	guest := f.store.CompletedItems()

	f.signIn(t, alice)
	require.NoError(t, f.store.Toggle("emergency-contacts"))
	require.NoError(t, f.store.SetSelectedProfile(catalog.ProfileSmall))
	require.NotEqual(t, guest, f.store.CompletedItems())

	f.signIn(t, nil)

	sameSet(t, guest, f.store.CompletedItems())
	assert.Equal(t, catalog.ProfileLarge, f.store.SelectedProfile())
	raw, _ := f.local.Get(checklist.KeyCompletedItems)
	assert.JSONEq(t, `["verify-nonce","verify-value"]`, raw)
	profile, _ := f.local.Get(checklist.KeyThreatProfile)
	assert.Equal(t, "large", profile)
	_, ok := f.local.Get(checklist.KeyGuestSnapshot)
	assert.False(t, ok)
	assert.Empty(t, f.store.UserID())
}

func TestRapidTogglesProduceOneSave(t *testing.T) {
	f := newFixture(t, nil)
	f.signIn(t, alice)
	seeded := f.gateway.SaveCount()

	require.NoError(t, f.store.Toggle("verify-value"))
	f.clock.Advance(500 * time.Millisecond)
	require.NoError(t, f.store.Toggle("verify-nonce"))
	f.clock.Advance(999 * time.Millisecond)
	assert.Equal(t, seeded, f.gateway.SaveCount(), "quiet period restarts on every change")

	f.clock.Advance(time.Millisecond)
	require.Equal(t, seeded+1, f.gateway.SaveCount())
	last, _ := f.gateway.LastSave()
	assert.Equal(t, []string{"verify-nonce", "verify-value"}, last.Completed)

	f.clock.Advance(time.Hour)
	assert.Equal(t, seeded+1, f.gateway.SaveCount())
}

func TestNoRemoteSaveWhenSignedOutOrReadOnly(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Toggle("verify-value"))
	f.clock.Advance(time.Hour)
	assert.Zero(t, f.gateway.SaveCount())

	f.signIn(t, alice)
	seeded := f.gateway.SaveCount()
	require.NoError(t, f.store.Toggle("verify-nonce"))
	require.NoError(t, f.store.SetReadOnly(true))
	f.clock.Advance(time.Hour)
	assert.Equal(t, seeded, f.gateway.SaveCount())
}

func TestBackgroundSaveFailureIsSilent(t *testing.T) {
	f := newFixture(t, nil)
	f.signIn(t, alice)
	f.gateway.SaveErr = errors.New("503")
	titles := len(f.notices.Titles())

	require.NoError(t, f.store.Toggle("verify-value"))
	f.clock.Advance(time.Second)

	assert.Len(t, f.notices.Titles(), titles)
	assert.True(t, f.store.IsCompleted("verify-value"))
}

func TestSignOutCancelsPendingSave(t *testing.T) {
	f := newFixture(t, nil)
	f.signIn(t, alice)
	seeded := f.gateway.SaveCount()

	require.NoError(t, f.store.Toggle("verify-value"))
	f.signIn(t, nil)
	f.clock.Advance(time.Hour)

	assert.Equal(t, seeded, f.gateway.SaveCount())
	assert.Empty(t, f.store.CompletedItems())
}

func TestRemoteLoadErrorIsNonFatal(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Toggle("verify-value"))
	f.gateway.GetUserErr = errors.New("connection reset")

	err := f.store.HandleSessionChange(context.Background(), alice)
	require.Error(t, err)
	assert.Equal(t, []string{"Error with checklist data"}, f.notices.Titles())
	assert.Equal(t, []string{"verify-value"}, f.store.CompletedItems())

	require.NoError(t, f.store.Toggle("verify-nonce"))
	f.clock.Advance(time.Hour)
	assert.Zero(t, f.gateway.SaveCount(), "no autosave before the initial load succeeds")

	f.gateway.GetUserErr = nil
	require.NoError(t, f.store.Resync(context.Background()))
	assert.Equal(t, 1, f.gateway.SaveCount())
}

func TestSeedFailureIsReported(t *testing.T) {
	f := newFixture(t, nil)
	f.gateway.SaveErr = errors.New("boom")

	require.Error(t, f.store.HandleSessionChange(context.Background(), alice))
	assert.Equal(t, []string{"Error with checklist data"}, f.notices.Titles())
}

func TestRepeatedSessionIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	f.signIn(t, alice)
	f.signIn(t, alice)

	assert.Equal(t, 1, f.gateway.GetUserCalls)
	f.signIn(t, nil)
	f.signIn(t, nil)
}

func TestGuestSnapshotSurvivesRestart(t *testing.T) {
	f := newFixture(t, nil)
	f.gateway.PutUser(remote.UserChecklist{UserID: "u-alice", CompletedItems: []string{"incident-response-plan"}, Profile: "large"})
	require.NoError(t, f.store.Toggle("verify-value"))
	f.signIn(t, alice)
	require.NoError(t, f.store.Close())

	// Next process: still signed in, local storage now mirrors the account.
	f.store = f.reopen(t)
	assert.Equal(t, []string{"incident-response-plan"}, f.store.CompletedItems())
	f.signIn(t, alice)

	// And the one after that finds the session gone.
	require.NoError(t, f.store.Close())
	f.store = f.reopen(t)
	f.signIn(t, nil)
	assert.Equal(t, []string{"verify-value"}, f.store.CompletedItems())
}

func TestSignInWhileViewingReportSnapshotsStoredState(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Toggle("verify-value"))
	f.gateway.PutReport(remote.Report{ID: "r1", Name: "Other", CompletedItems: []string{"verify-nonce"}, Profile: "small"})
	require.NoError(t, f.store.LoadSharedReport(context.Background(), "r1"))

	f.signIn(t, alice)
	assert.Zero(t, f.gateway.GetUserCalls, "no remote load while read-only")
	assert.Equal(t, []string{"verify-nonce"}, f.store.CompletedItems())

	f.signIn(t, nil)
	assert.Equal(t, []string{"verify-nonce"}, f.store.CompletedItems(), "report stays on screen")
	raw, _ := f.local.Get(checklist.KeyCompletedItems)
	assert.JSONEq(t, `["verify-value"]`, raw)
}

func TestEditingReportAfterSignInSeedsAccount(t *testing.T) {
	f := newFixture(t, nil)
	f.gateway.PutUser(remote.UserChecklist{UserID: "u-alice", CompletedItems: []string{"incident-response-plan"}, Profile: "large"})
	f.gateway.PutReport(remote.Report{ID: "r1", Name: "Other", CompletedItems: []string{"verify-nonce"}, Profile: "small"})
	require.NoError(t, f.store.LoadSharedReport(context.Background(), "r1"))
	f.signIn(t, alice)

	require.NoError(t, f.store.SetReadOnly(false))
	require.NoError(t, f.store.Resync(context.Background()))
	f.clock.Advance(time.Second)

	assert.Zero(t, f.gateway.GetUserCalls, "report items are not replaced by the account's")
	assert.Equal(t, []string{"verify-nonce"}, f.store.CompletedItems())
	raw, _ := f.local.Get(checklist.KeyCompletedItems)
	assert.JSONEq(t, `["verify-nonce"]`, raw)
	last, ok := f.gateway.LastSave()
	require.True(t, ok)
	assert.Equal(t, "u-alice", last.UserID)
	assert.Equal(t, []string{"verify-nonce"}, last.Completed)
	assert.Equal(t, "small", last.Profile)
	assert.NotContains(t, f.notices.Titles(), "Progress loaded")
}

func TestStartFollowsProvider(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.store.Start(ctx))
	assert.Empty(t, f.store.UserID())

	f.auth.Set(alice)
	assert.Equal(t, "u-alice", f.store.UserID())
	assert.Equal(t, 1, f.gateway.GetUserCalls)

	require.NoError(t, f.store.Close())
	f.auth.Set(nil)
	assert.Equal(t, "u-alice", f.store.UserID(), "closed store no longer listens")
}

func TestSignInAndOut(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.auth.Next = alice
	require.NoError(t, f.store.Start(ctx))
	require.NoError(t, f.store.Toggle("verify-value"))

	require.NoError(t, f.store.SignIn(ctx, auth.ProviderGitHub))
	assert.Equal(t, "u-alice", f.store.UserID())
	require.NoError(t, f.store.Toggle("verify-nonce"))
	saves := f.gateway.SaveCount()

	require.NoError(t, f.store.SignOut(ctx))
	assert.Equal(t, saves+1, f.gateway.SaveCount(), "progress is saved before signing out")
	last, _ := f.gateway.LastSave()
	assert.Equal(t, []string{"verify-nonce", "verify-value"}, last.Completed)
	assert.Equal(t, []string{"verify-value"}, f.store.CompletedItems())
	assert.Contains(t, f.notices.Titles(), "Signed Out")
	assert.False(t, f.store.InFlight().Auth)
	require.NoError(t, f.store.Close())
}

func TestSignInFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.auth.SignInErr = errors.New("denied")

	require.Error(t, f.store.SignIn(context.Background(), auth.ProviderGoogle))
	assert.Equal(t, []string{"Authentication Error"}, f.notices.Titles())
	assert.Empty(t, f.store.UserID())
}

func TestDisabledAuth(t *testing.T) {
	s, err := checklist.New(checklist.Options{Catalog: catalog.Default(), Local: memoryLocal()})
	require.NoError(t, err)

	assert.ErrorIs(t, s.SignIn(context.Background(), auth.ProviderGoogle), auth.ErrNotConfigured)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Close())
}
