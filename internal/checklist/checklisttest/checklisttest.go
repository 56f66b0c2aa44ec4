// Package checklisttest provides deterministic collaborators for testing code
// built on the checklist store.
package checklisttest

import (
	"context"
	"sort"
	"sync"
	"time"

	"multisigcheck/internal/auth"
	"multisigcheck/internal/checklist"
	"multisigcheck/internal/remote"
)

// Clock is a manual clock. Timers only fire from Advance.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*timer
}

type timer struct {
	clock *Clock
	at    time.Time
	fn    func()
	done  bool
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// NewClock returns a clock set to now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) AfterFunc(d time.Duration, f func()) checklist.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &timer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and runs, in order, every timer that came
// due. Callbacks run on the calling goroutine.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*timer
	live := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.done:
		case !t.at.After(c.now):
			t.done = true
			due = append(due, t)
		default:
			live = append(live, t)
		}
	}
	c.timers = live
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

// Pending counts timers that have neither fired nor been stopped.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// Save records one SaveUserChecklist call.
type Save struct {
	UserID    string
	Completed []string
	Profile   string
}

// Gateway is an in-memory remote.Gateway that records calls and can be told
// to fail.
type Gateway struct {
	mu      sync.Mutex
	reports map[string]remote.Report
	users   map[string]remote.UserChecklist

	Saves        []Save
	CreateCalls  int
	GetUserCalls int
	GetReportErr error
	GetUserErr   error
	SaveErr      error
	CreateErr    error
	Unconfigured bool
}

// NewGateway returns an empty gateway.
func NewGateway() *Gateway {
	return &Gateway{
		reports: map[string]remote.Report{},
		users:   map[string]remote.UserChecklist{},
	}
}

func (g *Gateway) Configured() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.Unconfigured
}

func (g *Gateway) CreateReport(_ context.Context, r remote.Report) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CreateCalls++
	if g.CreateErr != nil {
		return "", g.CreateErr
	}
	if _, ok := g.reports[r.ID]; ok {
		return "", remote.ErrConflict
	}
	g.reports[r.ID] = r
	return r.ID, nil
}

func (g *Gateway) GetReportByID(_ context.Context, id string) (*remote.Report, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.GetReportErr != nil {
		return nil, g.GetReportErr
	}
	r, ok := g.reports[id]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return &r, nil
}

func (g *Gateway) SaveUserChecklist(_ context.Context, userID string, completed []string, profile string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Saves = append(g.Saves, Save{UserID: userID, Completed: append([]string(nil), completed...), Profile: profile})
	if g.SaveErr != nil {
		return g.SaveErr
	}
	g.users[userID] = remote.UserChecklist{UserID: userID, CompletedItems: completed, Profile: profile}
	return nil
}

func (g *Gateway) GetUserChecklist(_ context.Context, userID string) (*remote.UserChecklist, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.GetUserCalls++
	if g.GetUserErr != nil {
		return nil, g.GetUserErr
	}
	u, ok := g.users[userID]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return &u, nil
}

// PutReport seeds a report.
func (g *Gateway) PutReport(r remote.Report) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reports[r.ID] = r
}

// Report returns a stored report.
func (g *Gateway) Report(id string) (remote.Report, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.reports[id]
	return r, ok
}

// PutUser seeds a user record.
func (g *Gateway) PutUser(u remote.UserChecklist) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.users[u.UserID] = u
}

// SaveCount is the number of SaveUserChecklist calls so far.
func (g *Gateway) SaveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Saves)
}

// LastSave returns the most recent save.
func (g *Gateway) LastSave() (Save, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Saves) == 0 {
		return Save{}, false
	}
	return g.Saves[len(g.Saves)-1], true
}

// Notices collects every notice delivered to it.
type Notices struct {
	mu   sync.Mutex
	list []checklist.Notice
}

func (n *Notices) Notify(notice checklist.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, notice)
}

// Titles returns the titles received so far, in order.
func (n *Notices) Titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.list))
	for _, notice := range n.list {
		out = append(out, notice.Title)
	}
	return out
}

// Auth is an auth.Provider whose sign-in succeeds with Next.
type Auth struct {
	mu        sync.Mutex
	session   *auth.Session
	listeners map[int]func(*auth.Session)
	nextID    int

	Next      *auth.Session
	SignInErr error
}

func (a *Auth) GetSession(context.Context) (*auth.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session, nil
}

func (a *Auth) SignInWithOAuth(context.Context, auth.OAuthProvider) error {
	a.mu.Lock()
	if a.SignInErr != nil {
		a.mu.Unlock()
		return a.SignInErr
	}
	a.mu.Unlock()
	a.Set(a.Next)
	return nil
}

func (a *Auth) SignOut(context.Context) error {
	a.Set(nil)
	return nil
}

func (a *Auth) OnSessionChange(fn func(*auth.Session)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listeners == nil {
		a.listeners = map[int]func(*auth.Session){}
	}
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
	}
}

// Set replaces the session and notifies listeners.
func (a *Auth) Set(s *auth.Session) {
	a.mu.Lock()
	a.session = s
	fns := make([]func(*auth.Session), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
