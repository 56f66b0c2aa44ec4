package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"multisigcheck/internal/utils"
)

// DefaultProfile is assumed when a stored user record carries no profile.
const DefaultProfile = "large"

// TokenSource returns the bearer token for the current session, or "".
type TokenSource func() string

// Client talks to the backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

// NewClient returns a gateway for the backend at baseURL. token may be nil.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		token:   token,
	}
}

func (c *Client) Configured() bool { return c.baseURL != "" }

func (c *Client) CreateReport(ctx context.Context, r Report) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/reports", r, &out); err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if out.ID == "" {
		out.ID = r.ID
	}
	return out.ID, nil
}

func (c *Client) GetReportByID(ctx context.Context, id string) (*Report, error) {
	var r Report
	if err := c.do(ctx, http.MethodGet, "/reports/"+url.PathEscape(id), nil, &r); err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	if r.CompletedItems == nil {
		r.CompletedItems = []string{}
	}
	return &r, nil
}

func (c *Client) SaveUserChecklist(ctx context.Context, userID string, completed []string, profile string) error {
	if completed == nil {
		completed = []string{}
	}
	body := UserChecklist{UserID: userID, CompletedItems: completed, Profile: profile}
	if err := c.do(ctx, http.MethodPut, userPath(userID), body, nil); err != nil {
		return fmt.Errorf("save user checklist: %w", err)
	}
	return nil
}

func (c *Client) GetUserChecklist(ctx context.Context, userID string) (*UserChecklist, error) {
	var uc UserChecklist
	if err := c.do(ctx, http.MethodGet, userPath(userID), nil, &uc); err != nil {
		return nil, fmt.Errorf("get user checklist: %w", err)
	}
	if uc.CompletedItems == nil {
		uc.CompletedItems = []string{}
	}
	if uc.Profile == "" {
		uc.Profile = DefaultProfile
	}
	return &uc, nil
}

func userPath(userID string) string {
	return "/users/" + url.PathEscape(userID) + "/checklist"
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return utils.Wrap(utils.KindRemote, method+" "+path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrConflict
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &utils.Error{
			Kind:    utils.KindRemote,
			Op:      method + " " + path,
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, readErrorMessage(resp.Body)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return utils.Wrap(utils.KindRemote, "decode response", err)
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "unreadable response"
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return "empty response"
	}
	return msg
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
