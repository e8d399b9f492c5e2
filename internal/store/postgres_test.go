//go:build integration

package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/DimaJoyti/contractfabric/internal/idx"
	"github.com/DimaJoyti/contractfabric/pkg/logger"
)

type PostgresIntegrationTestSuite struct {
	suite.Suite
	db        *sqlx.DB
	store     *Postgres
	container testcontainers.Container
	ctx       context.Context
}

func (s *PostgresIntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "fabric_test",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}
	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req, Started: true,
	})
	s.Require().NoError(err)
	s.container = container

	host, err := container.Host(s.ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(s.ctx, "5432")
	s.Require().NoError(err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=fabric_test sslmode=disable", host, port.Port())
	db, err := Open(dsn, 5, 2)
	s.Require().NoError(err)
	s.db = db

	s.db.MustExec(`
		CREATE TABLE indexer_state (
			network TEXT PRIMARY KEY,
			last_indexed_ledger_height BIGINT NOT NULL DEFAULT 0,
			last_checkpoint_ledger_height BIGINT NOT NULL DEFAULT 0,
			consecutive_failures INTEGER NOT NULL DEFAULT 0,
			indexed_at TIMESTAMPTZ,
			checkpoint_at TIMESTAMPTZ,
			error_message TEXT NOT NULL DEFAULT ''
		)`)
	s.db.MustExec(`
		CREATE TABLE publishers (
			id BIGSERIAL PRIMARY KEY,
			stellar_address TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	s.db.MustExec(`
		CREATE TABLE contracts (
			id BIGSERIAL PRIMARY KEY,
			contract_id TEXT NOT NULL,
			network TEXT NOT NULL,
			publisher_id TEXT NOT NULL,
			wasm_hash TEXT NOT NULL DEFAULT '',
			is_verified BOOLEAN NOT NULL DEFAULT false,
			op_id TEXT NOT NULL,
			tx_id TEXT NOT NULL,
			ledger_sequence BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (contract_id, network)
		)`)

	s.store = NewPostgres(s.db, logger.New("test"))
}

func (s *PostgresIntegrationTestSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationTestSuite) SetupTest() {
	s.db.MustExec("TRUNCATE TABLE contracts, publishers, indexer_state")
}

func (s *PostgresIntegrationTestSuite) TestGetState_NotFoundInitially() {
	_, err := s.store.GetState(s.ctx, idx.NetworkTestnet)
	s.Require().Error(err)
}

func (s *PostgresIntegrationTestSuite) TestSaveAndGetState_RoundTrips() {
	want := idx.State{
		Network: idx.NetworkTestnet, LastIndexedLedger: 42, LastCheckpointLedger: 40,
		ConsecutiveFailures: 1, IndexedAt: time.Now().UTC().Truncate(time.Second),
	}
	s.Require().NoError(s.store.SaveState(s.ctx, want))

	got, err := s.store.GetState(s.ctx, idx.NetworkTestnet)
	s.Require().NoError(err)
	s.Equal(want.LastIndexedLedger, got.LastIndexedLedger)
	s.Equal(want.LastCheckpointLedger, got.LastCheckpointLedger)
	s.Equal(want.ConsecutiveFailures, got.ConsecutiveFailures)
}

func (s *PostgresIntegrationTestSuite) TestSaveState_UpsertsOnConflict() {
	s.Require().NoError(s.store.SaveState(s.ctx, idx.State{Network: idx.NetworkTestnet, LastIndexedLedger: 1}))
	s.Require().NoError(s.store.SaveState(s.ctx, idx.State{Network: idx.NetworkTestnet, LastIndexedLedger: 2}))

	got, err := s.store.GetState(s.ctx, idx.NetworkTestnet)
	s.Require().NoError(err)
	s.Equal(int64(2), got.LastIndexedLedger)
}

func (s *PostgresIntegrationTestSuite) TestUpsertDeployment_IgnoresDuplicates() {
	d := idx.Deployment{ContractID: "C" + repeatChar(50), Deployer: "GDEPLOYER", OpID: "op1", TxID: "tx1", Network: idx.NetworkTestnet, LedgerSequence: 7}
	inserted, err := s.store.UpsertDeployment(s.ctx, d)
	s.Require().NoError(err)
	s.True(inserted)

	inserted, err = s.store.UpsertDeployment(s.ctx, d) // duplicate, no error
	s.Require().NoError(err)
	s.False(inserted)

	var count int
	s.Require().NoError(s.db.Get(&count, "SELECT count(*) FROM contracts WHERE contract_id = $1", d.ContractID))
	s.Equal(1, count)
}

func (s *PostgresIntegrationTestSuite) TestUpsertPublisher_IsIdempotent() {
	s.Require().NoError(s.store.UpsertPublisher(s.ctx, idx.NetworkTestnet, "GDEPLOYER"))
	s.Require().NoError(s.store.UpsertPublisher(s.ctx, idx.NetworkTestnet, "GDEPLOYER"))

	var count int
	s.Require().NoError(s.db.Get(&count, "SELECT count(*) FROM publishers WHERE stellar_address = $1", "GDEPLOYER"))
	s.Equal(1, count)
}

func repeatChar(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'A'
	}
	return string(b)
}

func TestPostgresIntegrationSuite(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("Skipping integration tests. Set INTEGRATION_TESTS=1 to run.")
	}
	suite.Run(t, new(PostgresIntegrationTestSuite))
}
