package gcclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lodthe/registry-gc/internal/gcrun"
	"github.com/lodthe/registry-gc/pkg/restapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Trigger(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr error
		anyErr  bool
	}{
		{name: "ok", status: http.StatusOK, body: restapi.SuccessBody},
		{name: "busy", status: http.StatusConflict, wantErr: ErrBusy},
		{name: "failed", status: http.StatusInternalServerError, wantErr: ErrFailed},
		{name: "unexpected status", status: http.StatusBadGateway, wantErr: ErrFailed},
		{name: "unexpected body", status: http.StatusOK, body: "<html></html>", anyErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			err := New(&Config{BaseURL: srv.URL + "/"}).Trigger(context.Background())

			switch {
			case tc.wantErr != nil:
				assert.ErrorIs(t, err, tc.wantErr)
			case tc.anyErr:
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestClient_TriggerContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := New(&Config{BaseURL: srv.URL}).Trigger(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_ListRuns(t *testing.T) {
	repo := gcrun.NewMemoryRepository(10)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(context.Background(), &gcrun.Run{
			ID:         gcrun.NewID(),
			StartedAt:  time.Now().Add(time.Duration(i) * time.Second),
			FinishedAt: time.Now().Add(time.Duration(i+1) * time.Second),
			OK:         true,
		}))
	}

	srv := httptest.NewServer(restapi.NewAdminRouter(repo))
	defer srv.Close()

	client := New(&Config{AdminURL: srv.URL})

	runs, err := client.ListRuns(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = client.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestClient_ListRunsWithoutAdminURL(t *testing.T) {
	_, err := New(&Config{BaseURL: "http://localhost:8000"}).ListRuns(context.Background(), 1)
	assert.Error(t, err)
}
