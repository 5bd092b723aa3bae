package restapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/lodthe/registry-gc/internal/gcrun"
	"github.com/lodthe/registry-gc/internal/gctrigger"
	"github.com/lodthe/registry-gc/internal/gctrigger/stubexecutor"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, exec *stubexecutor.Executor, cfg gctrigger.Config, opts ...gctrigger.Option) *gctrigger.Service {
	t.Helper()

	opts = append([]gctrigger.Option{gctrigger.WithSleeper(exec.Sleep)}, opts...)
	s, err := gctrigger.New(zlog.Logger.Level(zerolog.Disabled), cfg, exec, opts...)
	require.NoError(t, err)

	return s
}

func doRequest(t *testing.T, h http.Handler, method, target string) (*http.Response, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	resp := rec.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func TestTrigger_Success(t *testing.T) {
	exec := stubexecutor.New()
	router := NewRouter(RouterConfig{}, newTestService(t, exec, gctrigger.DefaultConfig))

	for _, target := range []string{"/", "/gc", "/any/path?x=1"} {
		resp, body := doRequest(t, router, http.MethodGet, target)

		assert.Equal(t, http.StatusOK, resp.StatusCode, target)
		assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"), target)
		assert.Equal(t, SuccessBody, body, target)
	}

	assert.Equal(t, 3, exec.Count(stubexecutor.OpCollect))
}

func TestTrigger_Failure(t *testing.T) {
	cases := []struct {
		name   string
		step   gctrigger.Step
		report gctrigger.StepReport
		err    error
	}{
		{name: "stop exec error", step: gctrigger.StepStop, err: errors.New("docker is unreachable")},
		{name: "collector non-zero exit", step: gctrigger.StepCollect, report: gctrigger.StepReport{ExitCode: 1}},
		{name: "start non-zero exit", step: gctrigger.StepStart, report: gctrigger.StepReport{ExitCode: 125}},
	}

	for _, tc := range cases {
		exec := stubexecutor.New().Respond(tc.step, tc.report, tc.err)
		router := NewRouter(RouterConfig{}, newTestService(t, exec, gctrigger.DefaultConfig))

		resp, body := doRequest(t, router, http.MethodGet, "/")

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, tc.name)
		assert.Empty(t, body, tc.name)
	}
}

func TestTrigger_Busy(t *testing.T) {
	exec := stubexecutor.New()
	started, release := exec.BlockCollector()
	defer release()

	router := NewRouter(RouterConfig{}, newTestService(t, exec, gctrigger.DefaultConfig))

	var wg sync.WaitGroup
	wg.Add(1)

	var firstStatus int
	var firstBody string
	go func() {
		defer wg.Done()

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		firstStatus, firstBody = rec.Code, rec.Body.String()
	}()

	<-started

	resp, body := doRequest(t, router, http.MethodGet, "/")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Empty(t, body)

	release()
	wg.Wait()

	assert.Equal(t, http.StatusOK, firstStatus)
	assert.Equal(t, SuccessBody, firstBody)
	assert.Equal(t, 1, exec.Count(stubexecutor.OpCollect))
}

type abandonedTrigger struct{}

func (abandonedTrigger) TriggerGC(ctx context.Context) (gctrigger.Outcome, error) {
	return gctrigger.Outcome{}, errors.Wrap(context.Canceled, "waiting for the running sequence failed")
}

func TestTrigger_Abandoned(t *testing.T) {
	resp, body := doRequest(t, NewRouter(RouterConfig{}, abandonedTrigger{}), http.MethodGet, "/")

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, body)
}

func TestTrigger_MethodNotAllowed(t *testing.T) {
	exec := stubexecutor.New()
	router := NewRouter(RouterConfig{}, newTestService(t, exec, gctrigger.DefaultConfig))

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		resp, _ := doRequest(t, router, method, "/")
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, method)
	}

	assert.Empty(t, exec.Calls())
}

func TestTrigger_RecordsRun(t *testing.T) {
	exec := stubexecutor.New()
	repo := gcrun.NewMemoryRepository(10)
	router := NewRouter(RouterConfig{}, newTestService(t, exec, gctrigger.DefaultConfig, gctrigger.WithRecorder(repo)))

	resp, _ := doRequest(t, router, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	runs, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	assert.True(t, runs[0].OK)
	assert.Len(t, runs[0].Steps, 4)
}
