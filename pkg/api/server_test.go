package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/batchsched/pkg/platform"
	"github.com/cuemby/batchsched/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *platform.BoltStore {
	t.Helper()
	s, err := platform.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHealthzReturnsOK(t *testing.T) {
	store := newTestStore(t)
	srv := New(store, nil, false)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListQueuesReturnsSavedQueues(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveQueue(&types.Queue{Name: "default", Priority: 1, State: types.QueueActive}))
	srv := New(store, nil, false)

	req := httptest.NewRequest(http.MethodGet, "/queues/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var queues []*types.Queue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queues))
	require.Len(t, queues, 1)
	require.Equal(t, "default", queues[0].Name)
}

func TestSetQueueStateWithoutLeaderWritesDirectly(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveQueue(&types.Queue{Name: "default", Priority: 1, State: types.QueueActive}))
	srv := New(store, nil, false)

	body, _ := json.Marshal(setQueueStateRequest{State: types.QueueNotActive})
	req := httptest.NewRequest(http.MethodPost, "/queues/default/state", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	queues, err := store.ListQueues()
	require.NoError(t, err)
	require.Equal(t, types.QueueNotActive, queues[0].State)
}

func TestSetQueueStateRejectsInvalidState(t *testing.T) {
	store := newTestStore(t)
	srv := New(store, nil, false)

	body, _ := json.Marshal(map[string]string{"state": "bogus"})
	req := httptest.NewRequest(http.MethodPost, "/queues/default/state", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJobNotFound(t *testing.T) {
	store := newTestStore(t)
	srv := New(store, nil, false)

	req := httptest.NewRequest(http.MethodGet, "/jobs/42", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobReturnsSavedJob(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveJob(&types.Job{JID: 3, State: types.JobWaiting, Queue: "default"}))
	srv := New(store, nil, false)

	req := httptest.NewRequest(http.MethodGet, "/jobs/3", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var job types.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.Equal(t, 3, job.JID)
}

func TestReadOnlyModeRejectsWrites(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveQueue(&types.Queue{Name: "default", Priority: 1, State: types.QueueActive}))
	srv := New(store, nil, true)

	body, _ := json.Marshal(setQueueStateRequest{State: types.QueueNotActive})
	req := httptest.NewRequest(http.MethodPost, "/queues/default/state", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRaftJoinUnavailableWithoutLeaderNode(t *testing.T) {
	store := newTestStore(t)
	srv := New(store, nil, false)

	body, _ := json.Marshal(raftJoinRequest{NodeID: "n2", Address: "127.0.0.1:9001"})
	req := httptest.NewRequest(http.MethodPost, "/raft/join", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusReportsRaftDisabledWithoutLeaderNode(t *testing.T) {
	store := newTestStore(t)
	srv := New(store, nil, false)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "disabled", body["raft"])
}
