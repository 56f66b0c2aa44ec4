// Package checklist owns the checklist state: completed items, the selected
// threat profile and read-only report mode. It persists that state on the
// device, mirrors it to the signed-in user's account and loads shared reports.
package checklist

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"multisigcheck/internal/auth"
	"multisigcheck/internal/catalog"
	"multisigcheck/internal/remote"
	"multisigcheck/internal/utils"
)

// Local storage keys.
const (
	KeyCompletedItems = "multisig-completed-items"
	KeyThreatProfile  = "multisig-threat-profile"
	KeyGuestSnapshot  = "multisig-guest-snapshot"
	reportKeyPrefix   = "multisig-report-"
)

// ErrReadOnly is returned by mutations while a shared report is displayed.
var ErrReadOnly = utils.New(utils.KindValidation, "checklist", "checklist is read-only")

// LocalStorage is the device-local key/value store.
type LocalStorage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// ReportDetails describes a report for print and share headers.
type ReportDetails struct {
	MultisigName    string `json:"multisigName,omitempty"`
	Reviewer        string `json:"reviewer,omitempty"`
	TransactionHash string `json:"transactionHash,omitempty"`
}

// Activity tells the presentation layer which background operations are
// running.
type Activity struct {
	RemoteLoad     bool
	RemoteSave     bool
	CreatingReport bool
	Auth           bool
}

// Options configures a Store. Catalog and Local are required.
type Options struct {
	Catalog  *catalog.Catalog
	Local    LocalStorage
	Gateway  remote.Gateway
	Auth     auth.Provider
	Notifier Notifier
	Clock    Clock
	// Random supplies report id entropy. Defaults to crypto/rand.
	Random    io.Reader
	SaveDelay time.Duration
	Logger    *zap.Logger
}

// Store is the single owner of checklist state. All methods are safe for
// concurrent use; network calls never run while the state lock is held.
type Store struct {
	cat      *catalog.Catalog
	local    LocalStorage
	gateway  remote.Gateway
	auth     auth.Provider
	notifier Notifier
	clock    Clock
	random   io.Reader
	logger   *zap.Logger
	saves    *debouncer

	// syncMu serializes session reconciliation, which spans network calls.
	syncMu sync.Mutex
	// bg tracks background saves so Close can wait for them.
	bg sync.WaitGroup

	mu        sync.Mutex
	completed map[string]struct{}
	profile   catalog.Profile
	readOnly  bool
	details   *ReportDetails

	userID        string
	remoteLoaded  bool
	loadingRemote bool

	// Guest state captured at sign-in and restored at sign-out.
	snapshot *guestState

	loads, pushes, creates, authOps int
	unsubscribe                     func()
	closed                          bool
}

type guestState struct {
	CompletedItems []string        `json:"completedItems"`
	Profile        catalog.Profile `json:"profile"`
}

// New builds a store and restores state from local storage. A corrupt
// completed-items value is reported as a notice and replaced by defaults.
func New(opts Options) (*Store, error) {
	if opts.Catalog == nil || opts.Local == nil {
		return nil, utils.New(utils.KindValidation, "checklist.New", "catalog and local storage are required")
	}
	s := &Store{
		cat:      opts.Catalog,
		local:    opts.Local,
		gateway:  opts.Gateway,
		auth:     opts.Auth,
		notifier: opts.Notifier,
		clock:    opts.Clock,
		random:   opts.Random,
		logger:   utils.OrNop(opts.Logger).Named("checklist"),
	}
	if s.gateway == nil {
		s.gateway = remote.Disabled{}
	}
	if s.auth == nil {
		s.auth = auth.Disabled{}
	}
	if s.notifier == nil {
		s.notifier = discardNotifier{}
	}
	if s.clock == nil {
		s.clock = SystemClock
	}
	delay := opts.SaveDelay
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	s.saves = newDebouncer(s.clock, delay)

	state, err := s.readLocalState()
	if err != nil {
		s.logger.Warn("discarding unreadable local progress", zap.Error(err))
		s.notifier.Notify(noticeChecklistError)
	}
	s.completed = toSet(state.CompletedItems)
	s.profile = state.Profile

	if raw, ok := s.local.Get(KeyGuestSnapshot); ok {
		var snap guestState
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			s.logger.Warn("discarding unreadable guest snapshot", zap.Error(err))
			_ = s.local.Remove(KeyGuestSnapshot)
		} else {
			s.snapshot = &snap
		}
	}
	return s, nil
}

// readLocalState returns the persisted guest state, defaulting missing values.
func (s *Store) readLocalState() (guestState, error) {
	st := guestState{Profile: catalog.DefaultProfile}
	if p, ok := s.local.Get(KeyThreatProfile); ok && p != "" {
		st.Profile = catalog.Profile(p)
	}
	raw, ok := s.local.Get(KeyCompletedItems)
	if !ok || raw == "" {
		return st, nil
	}
	if err := json.Unmarshal([]byte(raw), &st.CompletedItems); err != nil {
		return guestState{Profile: st.Profile}, utils.Wrap(utils.KindMalformed, "read "+KeyCompletedItems, err)
	}
	return st, nil
}

// Catalog is the catalog the store filters.
func (s *Store) Catalog() *catalog.Catalog { return s.cat }

// Toggle flips the completion of id. Unknown ids are accepted and simply
// never match a catalog item.
func (s *Store) Toggle(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return ErrReadOnly
	}
	if _, ok := s.completed[id]; ok {
		delete(s.completed, id)
	} else {
		s.completed[id] = struct{}{}
	}
	return s.changedLocked()
}

// SetSelectedProfile replaces the selected profile.
func (s *Store) SetSelectedProfile(p catalog.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return ErrReadOnly
	}
	s.profile = p
	return s.changedLocked()
}

// SetReadOnly switches between report viewing and interactive mode. Leaving
// read-only mode keeps the report's items, which from then on are persisted
// like any other edit. An account whose record was never loaded, because the
// session began while the report was shown, is seeded from those items
// rather than loaded over them.
func (s *Store) SetReadOnly(readOnly bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly == readOnly {
		return nil
	}
	s.readOnly = readOnly
	if readOnly {
		s.saves.Cancel()
		return nil
	}
	if s.userID != "" && !s.remoteLoaded && !s.loadingRemote && s.gateway.Configured() {
		s.remoteLoaded = true
	}
	return s.changedLocked()
}

// SetReportDetails attaches display metadata.
func (s *Store) SetReportDetails(d ReportDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details = &d
}

// changedLocked persists the current state locally and schedules a remote
// save when signed in.
func (s *Store) changedLocked() error {
	err := s.writeLocalLocked()
	if s.shouldSyncLocked() {
		s.scheduleSaveLocked()
	}
	return err
}

func (s *Store) writeLocalLocked() error {
	if s.readOnly {
		return nil
	}
	return s.writeLocalState(guestState{CompletedItems: sortedKeys(s.completed), Profile: s.profile})
}

func (s *Store) writeLocalState(st guestState) error {
	items := st.CompletedItems
	if items == nil {
		items = []string{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := s.local.Set(KeyCompletedItems, string(raw)); err != nil {
		return err
	}
	return s.local.Set(KeyThreatProfile, string(st.Profile))
}

func (s *Store) shouldSyncLocked() bool {
	return !s.closed && !s.readOnly && s.userID != "" && s.remoteLoaded && !s.loadingRemote && s.gateway.Configured()
}

func (s *Store) scheduleSaveLocked() {
	s.saves.Debounce(func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.bg.Add(1)
		s.mu.Unlock()
		defer s.bg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.pushRemote(ctx); err != nil {
			s.logger.Warn("background save failed", zap.Error(err))
		}
	})
}

// pushRemote sends the state as it is now. Sends are last-write-wins.
func (s *Store) pushRemote(ctx context.Context) error {
	s.mu.Lock()
	if !s.shouldSyncLocked() {
		s.mu.Unlock()
		return nil
	}
	userID := s.userID
	completed := sortedKeys(s.completed)
	profile := s.profile
	s.pushes++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pushes--
		s.mu.Unlock()
	}()
	if err := s.gateway.SaveUserChecklist(ctx, userID, completed, string(profile)); err != nil {
		return err
	}
	s.logger.Debug("saved checklist", zap.String("user_id", userID), zap.Int("completed", len(completed)))
	return nil
}

// Flush sends a pending debounced save immediately.
func (s *Store) Flush(ctx context.Context) error {
	if !s.saves.Cancel() {
		return nil
	}
	return s.pushRemote(ctx)
}

// Close flushes the pending save, detaches from the auth provider and waits
// for background saves. The store must not be used afterwards.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.Flush(ctx)

	s.mu.Lock()
	s.closed = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	s.saves.Cancel()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.bg.Wait()
	return err
}

// IsCompleted reports whether id is marked done.
func (s *Store) IsCompleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.completed[id]
	return ok
}

// CompletedItems returns the completed ids, sorted.
func (s *Store) CompletedItems() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.completed)
}

func (s *Store) SelectedProfile() catalog.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

func (s *Store) IsReadOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readOnly
}

// ReportDetails returns the attached metadata, if any.
func (s *Store) ReportDetails() (ReportDetails, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.details == nil {
		return ReportDetails{}, false
	}
	return *s.details, true
}

// UserID is the signed-in account, or "".
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// InFlight reports the operations currently running.
func (s *Store) InFlight() Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Activity{
		RemoteLoad:     s.loads > 0,
		RemoteSave:     s.pushes > 0,
		CreatingReport: s.creates > 0,
		Auth:           s.authOps > 0,
	}
}

// FilteredItems returns the items visible for the selected profile.
func (s *Store) FilteredItems(section catalog.Section) []catalog.Item {
	return Filter(s.cat.Items(), s.SelectedProfile(), section)
}

// Progress is the completion of one section.
func (s *Store) Progress(section catalog.Section) Progress {
	return CalculateProgress(s.FilteredItems(section), s.IsCompleted)
}

// TotalProgress is the completion across all visible items.
func (s *Store) TotalProgress() Progress {
	return CalculateProgress(s.FilteredItems(""), s.IsCompleted)
}

// CriticalProgress is the completion of visible critical items.
func (s *Store) CriticalProgress() Progress {
	return CriticalProgress(s.FilteredItems(""), s.IsCompleted)
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
