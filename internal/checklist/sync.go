package checklist

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"multisigcheck/internal/auth"
	"multisigcheck/internal/catalog"
	"multisigcheck/internal/remote"
)

// Start reconciles with the provider's current session and keeps following
// session changes until Close. ctx is used for the remote calls those changes
// trigger and should live as long as the store.
func (s *Store) Start(ctx context.Context) error {
	sess, err := s.auth.GetSession(ctx)
	if err != nil {
		s.logger.Warn("could not read session", zap.Error(err))
		sess = nil
	}
	unsubscribe := s.auth.OnSessionChange(func(sess *auth.Session) {
		if err := s.HandleSessionChange(ctx, sess); err != nil {
			s.logger.Warn("session change", zap.Error(err))
		}
	})
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	return s.HandleSessionChange(ctx, sess)
}

// HandleSessionChange applies a new session, or nil for signed out.
//
// Signing in captures the guest state and then loads the account's remote
// record, adopting it when it has completed items and seeding it with the
// guest state otherwise. Signing out restores the captured guest state in
// memory and in local storage. Calling it again with the same session is a
// no-op apart from retrying a remote load that previously failed.
func (s *Store) HandleSessionChange(ctx context.Context, sess *auth.Session) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	if sess == nil || sess.UserID == "" {
		return s.signedOut()
	}
	if err := s.signedIn(sess.UserID); err != nil {
		s.logger.Warn("could not persist guest snapshot", zap.Error(err))
	}
	return s.loadRemote(ctx)
}

// Resync retries a remote load for the current session that previously failed.
func (s *Store) Resync(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.loadRemote(ctx)
}

func (s *Store) signedIn(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == userID {
		return nil
	}
	s.logger.Info("session started", zap.String("user_id", userID))

	prev := s.userID
	s.userID = userID
	s.remoteLoaded = false
	if prev != "" || s.snapshot != nil {
		// Account switch, or a snapshot kept from an earlier run.
		return nil
	}

	snap := guestState{CompletedItems: sortedKeys(s.completed), Profile: s.profile}
	if s.readOnly {
		// Memory holds someone's report; the guest's own state is on disk.
		st, err := s.readLocalState()
		if err != nil {
			s.logger.Warn("guest snapshot from unreadable local progress", zap.Error(err))
		}
		snap = st
	}
	s.snapshot = &snap
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.local.Set(KeyGuestSnapshot, string(raw))
}

func (s *Store) signedOut() error {
	// A save queued for the account must not fire after the guest state is back.
	s.saves.Cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == "" && s.snapshot == nil {
		return nil
	}
	if s.userID != "" {
		s.logger.Info("session ended", zap.String("user_id", s.userID))
	}
	s.userID = ""
	s.remoteLoaded = false

	snap := s.snapshot
	s.snapshot = nil
	if snap == nil {
		return nil
	}
	if !s.readOnly {
		s.completed = toSet(snap.CompletedItems)
		s.profile = snap.Profile
	}
	if err := s.writeLocalState(*snap); err != nil {
		return fmt.Errorf("restore guest progress: %w", err)
	}
	return s.local.Remove(KeyGuestSnapshot)
}

func (s *Store) loadRemote(ctx context.Context) error {
	s.mu.Lock()
	if s.readOnly || s.userID == "" || s.remoteLoaded || s.loadingRemote || !s.gateway.Configured() {
		s.mu.Unlock()
		return nil
	}
	userID := s.userID
	s.loadingRemote = true
	s.loads++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loadingRemote = false
		s.loads--
		s.mu.Unlock()
	}()

	rec, err := s.gateway.GetUserChecklist(ctx, userID)
	if err != nil && !remote.IsNotFound(err) {
		s.logger.Error("load user checklist", zap.String("user_id", userID), zap.Error(err))
		s.notifier.Notify(noticeChecklistError)
		return fmt.Errorf("load user checklist: %w", err)
	}

	if err == nil && len(rec.CompletedItems) > 0 {
		s.mu.Lock()
		if s.userID != userID || s.readOnly {
			s.mu.Unlock()
			return nil
		}
		s.completed = toSet(rec.CompletedItems)
		if rec.Profile != "" {
			s.profile = catalog.Profile(rec.Profile)
		}
		s.remoteLoaded = true
		werr := s.writeLocalLocked()
		s.mu.Unlock()

		s.logger.Info("adopted account progress", zap.String("user_id", userID), zap.Int("completed", len(rec.CompletedItems)))
		s.notifier.Notify(noticeProgressLoaded)
		return werr
	}

	notice := noticeProgressSavedNew
	if err == nil {
		notice = noticeProgressSavedExisting
	}

	s.mu.Lock()
	completed := sortedKeys(s.completed)
	profile := s.profile
	s.pushes++
	s.mu.Unlock()

	err = s.gateway.SaveUserChecklist(ctx, userID, completed, string(profile))

	s.mu.Lock()
	s.pushes--
	if err == nil && s.userID == userID {
		s.remoteLoaded = true
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("seed user checklist", zap.String("user_id", userID), zap.Error(err))
		s.notifier.Notify(noticeChecklistError)
		return fmt.Errorf("save user checklist: %w", err)
	}
	s.notifier.Notify(notice)
	return nil
}

// SignIn runs the provider's OAuth flow and reconciles with the new session.
func (s *Store) SignIn(ctx context.Context, provider auth.OAuthProvider) error {
	s.beginAuth()
	defer s.endAuth()

	if err := s.auth.SignInWithOAuth(ctx, provider); err != nil {
		s.logger.Warn("sign in failed", zap.String("provider", string(provider)), zap.Error(err))
		s.notifier.Notify(signInErrorNotice(string(provider)))
		return err
	}
	sess, err := s.auth.GetSession(ctx)
	if err != nil {
		return err
	}
	return s.HandleSessionChange(ctx, sess)
}

// SignOut saves the account's progress, ends the session and restores the
// guest state.
func (s *Store) SignOut(ctx context.Context) error {
	s.beginAuth()
	defer s.endAuth()

	s.saves.Cancel()
	if err := s.pushRemote(ctx); err != nil {
		s.logger.Warn("final save before sign out", zap.Error(err))
	}
	if err := s.auth.SignOut(ctx); err != nil {
		s.notifier.Notify(noticeSignOutError)
		return err
	}
	s.notifier.Notify(noticeSignedOut)
	return s.HandleSessionChange(ctx, nil)
}

func (s *Store) beginAuth() {
	s.mu.Lock()
	s.authOps++
	s.mu.Unlock()
}

func (s *Store) endAuth() {
	s.mu.Lock()
	s.authOps--
	s.mu.Unlock()
}
