package idx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DimaJoyti/contractfabric/pkg/clock"
	"github.com/DimaJoyti/contractfabric/pkg/errs"
	"github.com/DimaJoyti/contractfabric/pkg/logger"
)

type memStore struct {
	mu          sync.Mutex
	state       map[Network]State
	deployments map[string]Deployment
	publishers  map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		state:       make(map[Network]State),
		deployments: make(map[string]Deployment),
		publishers:  make(map[string]bool),
	}
}

func (s *memStore) GetState(_ context.Context, network Network) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[network]
	if !ok {
		return State{}, errs.New(errs.KindNotFound, "idx.state_not_found", "no state for network")
	}
	return st, nil
}

func (s *memStore) SaveState(_ context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[state.Network] = state
	return nil
}

func (s *memStore) UpsertDeployment(_ context.Context, d Deployment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s:%s", d.Network, d.ContractID)
	if _, exists := s.deployments[key]; exists {
		return false, nil
	}
	s.deployments[key] = d
	return true, nil
}

func (s *memStore) UpsertPublisher(_ context.Context, _ Network, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishers[address] = true
	return nil
}

// fakeHorizon serves a fixed latest ledger and canned operations for any
// requested ledger sequence.
func fakeHorizon(t *testing.T, latestSeq int64, opsPerLedger []Operation) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/ledgers":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"_embedded": map[string]any{
					"records": []map[string]any{{"sequence": latestSeq, "hash": "h", "prev_hash": "p"}},
				},
			})
		default:
			records := make([]map[string]any, 0, len(opsPerLedger))
			for _, op := range opsPerLedger {
				records = append(records, map[string]any{
					"id": op.ID, "transaction_hash": op.TxID, "type_code": op.TypeCode, "body": op.Body,
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"_embedded": map[string]any{"records": records},
			})
		}
	}))
}

func TestIndexer_RunCycle_AdvancesAndPersistsDeployment(t *testing.T) {
	contractID := "C" + repeatChar('Z', 50)
	ops := []Operation{{ID: "op1", TxID: "tx1", TypeCode: contractCreateTypeCode, Body: map[string]any{"contract_id": contractID, "source_account": "GDEPLOYER"}}}
	srv := fakeHorizon(t, 5, ops)
	defer srv.Close()

	store := newMemStore()
	rpc := NewRPCClient(srv.URL, time.Second)
	c := clock.NewFake(time.Unix(0, 0))
	ix := New(DefaultConfig(NetworkTestnet), rpc, store, nil, c, logger.New("test"))

	err := ix.runCycle(context.Background())
	require.NoError(t, err)

	st, err := store.GetState(context.Background(), NetworkTestnet)
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.LastIndexedLedger)

	_, found := store.deployments[fmt.Sprintf("%s:%s", NetworkTestnet, contractID)]
	assert.True(t, found)
	assert.True(t, store.publishers["GDEPLOYER"])
}

func TestIndexer_ProcessLedger_AbsorbsDuplicateDeployments(t *testing.T) {
	contractID := "C" + repeatChar('Y', 50)
	ops := []Operation{{ID: "op1", TxID: "tx1", TypeCode: contractCreateTypeCode, Body: map[string]any{"contract_id": contractID}}}
	srv := fakeHorizon(t, 5, ops)
	defer srv.Close()

	store := newMemStore()
	rpc := NewRPCClient(srv.URL, time.Second)
	ix := New(DefaultConfig(NetworkTestnet), rpc, store, nil, clock.NewFake(time.Unix(0, 0)), logger.New("test"))

	// The same create operation seen in two cycles lands exactly once.
	require.NoError(t, ix.processLedger(context.Background(), 1))
	require.NoError(t, ix.processLedger(context.Background(), 1))

	assert.Len(t, store.deployments, 1)
}

func TestIndexer_RunCycle_RespectsBatchMax(t *testing.T) {
	srv := fakeHorizon(t, 100, nil)
	defer srv.Close()

	store := newMemStore()
	rpc := NewRPCClient(srv.URL, time.Second)
	cfg := DefaultConfig(NetworkTestnet)
	cfg.BatchMax = 10
	ix := New(cfg, rpc, store, nil, clock.NewFake(time.Unix(0, 0)), logger.New("test"))

	require.NoError(t, ix.runCycle(context.Background()))
	st, _ := store.GetState(context.Background(), NetworkTestnet)
	assert.Equal(t, int64(10), st.LastIndexedLedger)
}

func TestIndexer_RunCycle_ReorgRollsBackToCheckpointAndResumes(t *testing.T) {
	srv := fakeHorizon(t, 650, nil)
	defer srv.Close()

	store := newMemStore()
	require.NoError(t, store.SaveState(context.Background(), State{
		Network: NetworkTestnet, LastIndexedLedger: 500, LastCheckpointLedger: 400,
	}))

	rpc := NewRPCClient(srv.URL, time.Second)
	cfg := DefaultConfig(NetworkTestnet)
	cfg.AntiReorgGap = 100
	cfg.BatchMax = 50
	ix := New(cfg, rpc, store, nil, clock.NewFake(time.Unix(0, 0)), logger.New("test"))

	// 650 - 500 > 100: the cycle rolls back to the checkpoint at 400,
	// then resumes from 401 within the same pass.
	require.NoError(t, ix.runCycle(context.Background()))
	st, _ := store.GetState(context.Background(), NetworkTestnet)
	assert.Equal(t, int64(450), st.LastIndexedLedger)
	assert.Equal(t, int64(450), st.LastCheckpointLedger)
}

func TestIndexer_RunCycle_CheckpointAdvancesAtDepth(t *testing.T) {
	srv := fakeHorizon(t, 20, nil)
	defer srv.Close()

	store := newMemStore()
	rpc := NewRPCClient(srv.URL, time.Second)
	cfg := DefaultConfig(NetworkTestnet)
	cfg.CheckpointDepth = 5
	cfg.BatchMax = 100
	ix := New(cfg, rpc, store, nil, clock.NewFake(time.Unix(0, 0)), logger.New("test"))

	require.NoError(t, ix.runCycle(context.Background()))
	st, _ := store.GetState(context.Background(), NetworkTestnet)
	assert.Equal(t, int64(20), st.LastIndexedLedger)
	assert.Equal(t, int64(20), st.LastCheckpointLedger)
}

func TestIndexer_RunCycleWithBackoff_RecordsErrorAfterExhaustingAttempts(t *testing.T) {
	// server that always 500s
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newMemStore()
	rpc := NewRPCClient(srv.URL, time.Second)
	cfg := DefaultConfig(NetworkTestnet)
	cfg.MaxAttempts = 2
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffMax = 2 * time.Millisecond
	ix := New(cfg, rpc, store, nil, clock.NewFake(time.Unix(0, 0)), logger.New("test"))

	ix.runCycleWithBackoff(context.Background())

	st, err := store.GetState(context.Background(), NetworkTestnet)
	require.NoError(t, err)
	assert.Equal(t, int32(1), st.ConsecutiveFailures)
	assert.NotEmpty(t, st.ErrorMessage)
}

func TestBackoffDuration_CapsAtMax(t *testing.T) {
	base := 2 * time.Second
	max := 10 * time.Second
	assert.Equal(t, 2*time.Second, backoffDuration(base, max, 1))
	assert.Equal(t, 4*time.Second, backoffDuration(base, max, 2))
	assert.Equal(t, 8*time.Second, backoffDuration(base, max, 3))
	assert.Equal(t, max, backoffDuration(base, max, 10))
}
