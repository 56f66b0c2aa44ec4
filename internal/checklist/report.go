package checklist

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"multisigcheck/internal/catalog"
	"multisigcheck/internal/remote"
	"multisigcheck/internal/utils"
)

var (
	// ErrNameRequired is returned by CreateReport for a blank name.
	ErrNameRequired = utils.New(utils.KindValidation, "create report", "a report name is required")
	// ErrReportOpen is returned by LoadSharedReport while another report is
	// displayed.
	ErrReportOpen = utils.New(utils.KindValidation, "load report", "a report is already open")
	// ErrReportNotFound is returned when neither the backend nor local storage
	// knows the report.
	ErrReportNotFound = utils.New(utils.KindNotFound, "load report", "report not found")
)

// ShareRequest is the user input for a new shared report.
type ShareRequest struct {
	Name            string
	Reviewer        string
	TransactionHash string
}

// legacyReport is the record older clients kept in local storage.
type legacyReport struct {
	Name           string          `json:"name"`
	CompletedItems []string        `json:"completedItems"`
	Profile        catalog.Profile `json:"profile"`
}

// LoadSharedReport shows the report with the given id read-only. The backend
// is asked first; a report it does not know is looked up in local storage.
// Failures are surfaced as notices and leave the store interactive. A report
// can only be opened from interactive mode.
func (s *Store) LoadSharedReport(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		s.notifier.Notify(noticeReportNotFound)
		return ErrReportNotFound
	}

	s.mu.Lock()
	if s.readOnly {
		s.mu.Unlock()
		return ErrReportOpen
	}
	s.loads++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loads--
		s.mu.Unlock()
	}()

	rep, err := s.gateway.GetReportByID(ctx, id)
	switch {
	case err == nil:
		s.showReport(rep.CompletedItems, catalog.Profile(rep.Profile), ReportDetails{
			MultisigName:    rep.Name,
			Reviewer:        rep.Reviewer,
			TransactionHash: rep.TransactionHash,
		})
		s.logger.Info("loaded shared report", zap.String("report_id", id))
		return nil
	case !remote.IsNotFound(err):
		s.logger.Error("fetch report", zap.String("report_id", id), zap.Error(err))
		s.notifier.Notify(noticeReportRemoteError)
		return fmt.Errorf("load report %s: %w", id, err)
	}

	raw, ok := s.local.Get(reportKeyPrefix + id)
	if !ok {
		s.notifier.Notify(noticeReportNotFound)
		return ErrReportNotFound
	}
	var legacy legacyReport
	if err := json.Unmarshal([]byte(raw), &legacy); err != nil {
		s.logger.Warn("malformed local report", zap.String("report_id", id), zap.Error(err))
		s.notifier.Notify(noticeReportMalformed)
		return utils.Wrap(utils.KindMalformed, "load report "+id, err)
	}
	s.showReport(legacy.CompletedItems, legacy.Profile, ReportDetails{MultisigName: legacy.Name})
	s.logger.Info("loaded local report", zap.String("report_id", id))
	return nil
}

// showReport replaces the in-memory state. Local storage is left alone since
// the store is read-only from here on.
func (s *Store) showReport(items []string, profile catalog.Profile, details ReportDetails) {
	s.saves.Cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if items != nil {
		s.completed = toSet(items)
	}
	if profile != "" {
		s.profile = profile
	}
	s.details = &details
	s.readOnly = true
}

// CreateReport stores the current progress as a new immutable report and
// returns its id. Once stored, the request's details become the current
// report details.
func (s *Store) CreateReport(ctx context.Context, req ShareRequest) (string, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		s.notifier.Notify(noticeNameRequired)
		return "", ErrNameRequired
	}

	id, err := s.newReportID()
	if err != nil {
		s.notifier.Notify(linkErrorNotice(err))
		return "", err
	}

	s.mu.Lock()
	rep := remote.Report{
		ID:              id,
		Name:            req.Name,
		CompletedItems:  sortedKeys(s.completed),
		Profile:         string(s.profile),
		Reviewer:        req.Reviewer,
		TransactionHash: req.TransactionHash,
		Version:         s.cat.Version(),
		CreatedAt:       s.clock.Now().UTC(),
	}
	s.creates++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.creates--
		s.mu.Unlock()
	}()

	stored, err := s.gateway.CreateReport(ctx, rep)
	if err != nil {
		s.logger.Error("create report", zap.String("report_id", id), zap.Error(err))
		s.notifier.Notify(linkErrorNotice(err))
		return "", err
	}
	s.SetReportDetails(ReportDetails{
		MultisigName:    req.Name,
		Reviewer:        req.Reviewer,
		TransactionHash: req.TransactionHash,
	})
	s.logger.Info("created report", zap.String("report_id", stored), zap.Int("completed", len(rep.CompletedItems)))
	return stored, nil
}

const reportSuffixLen = 6

// newReportID is the creation time in base-36 milliseconds followed by a
// random base-36 suffix.
func (s *Store) newReportID() (string, error) {
	r := s.random
	if r == nil {
		r = rand.Reader
	}
	const (
		digits = "0123456789abcdefghijklmnopqrstuvwxyz"
		// Bytes at or above limit are dropped so every digit is equally likely.
		limit = 256 - 256%len(digits)
	)
	var b strings.Builder
	b.WriteString(strconv.FormatInt(s.clock.Now().UnixMilli(), 36))
	buf := make([]byte, reportSuffixLen)
	for n := 0; n < reportSuffixLen; {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("generate report id: %w", err)
		}
		for _, c := range buf {
			if n == reportSuffixLen {
				break
			}
			if int(c) >= limit {
				continue
			}
			b.WriteByte(digits[int(c)%len(digits)])
			n++
		}
	}
	return b.String(), nil
}

// ShareURL composes the address that opens report id.
func ShareURL(base, id string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse share base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("share base url must be absolute")
	}
	q := u.Query()
	q.Set("report", id)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ReportIDFromURL accepts either a bare report id or a share URL and returns
// the id, or "" when there is none.
func ReportIDFromURL(s string) string {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, "?/:") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return u.Query().Get("report")
}
