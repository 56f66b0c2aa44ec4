package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multisigcheck/internal/utils"
)

func TestClientGetReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/reports/abc":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"abc","name":"Treasury","completeditems":["verify-nonce"],"profile":"medium","transaction_hash":"0x1"}`))
		default:
			http.Error(w, `{"error":"report not found"}`, http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)

	r, err := c.GetReportByID(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "Treasury", r.Name)
	assert.Equal(t, []string{"verify-nonce"}, r.CompletedItems)
	assert.Equal(t, "0x1", r.TransactionHash)

	_, err = c.GetReportByID(context.Background(), "unknown")
	assert.True(t, IsNotFound(err))
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	var gotBody UserChecklist
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/users/u1/checklist", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), func() string { return "tok" })
	require.NoError(t, c.SaveUserChecklist(context.Background(), "u1", nil, "small"))

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, []string{}, gotBody.CompletedItems)
	assert.Equal(t, "small", gotBody.Profile)
}

func TestClientUserChecklistDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user_id":"u1"}`))
	}))
	defer srv.Close()

	uc, err := NewClient(srv.URL, srv.Client(), nil).GetUserChecklist(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{}, uc.CompletedItems)
	assert.Equal(t, DefaultProfile, uc.Profile)
}

func TestClientServerErrorIsRemoteKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client(), nil).CreateReport(context.Background(), Report{ID: "x", Name: "n"})
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindRemote))
	assert.Contains(t, err.Error(), "boom")
}

func TestClientConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client(), nil).CreateReport(context.Background(), Report{ID: "x", Name: "n"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestClientWithoutBaseURL(t *testing.T) {
	c := NewClient("", nil, nil)
	assert.False(t, c.Configured())
	_, err := c.GetReportByID(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDisabledGateway(t *testing.T) {
	var g Gateway = Disabled{}
	ctx := context.Background()

	assert.False(t, g.Configured())
	_, err := g.CreateReport(ctx, Report{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = g.GetReportByID(ctx, "x")
	assert.True(t, IsNotFound(err))
	assert.NoError(t, g.SaveUserChecklist(ctx, "u", nil, "large"))
	_, err = g.GetUserChecklist(ctx, "u")
	assert.True(t, IsNotFound(err))
}
