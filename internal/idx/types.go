// Package idx implements the Contract Request Fabric's blockchain indexer:
// a poll loop that discovers contract deployments on a Stellar-style
// network, tolerant of RPC failures and ledger reorganizations.
package idx

import "time"

// Network identifies a Stellar-style network the indexer polls.
type Network string

const (
	NetworkMainnet   Network = "mainnet"
	NetworkTestnet   Network = "testnet"
	NetworkFuturenet Network = "futurenet"
)

// State is the per-network indexer checkpoint.
type State struct {
	Network              Network
	LastIndexedLedger    int64
	LastCheckpointLedger int64
	ConsecutiveFailures  int32
	IndexedAt            time.Time
	CheckpointAt         time.Time
	ErrorMessage         string
}

// Deployment is a discovered contract-create operation.
type Deployment struct {
	ContractID     string
	Deployer       string
	OpID           string
	TxID           string
	LedgerSequence int64
	Network        Network
}

// Ledger is the subset of ledger metadata the indexer consults for reorg
// detection.
type Ledger struct {
	Sequence int64
	Hash     string
	PrevHash string
}

// Operation is a single ledger operation. Body carries the RPC's raw JSON
// object so extraction can consult whichever field name the network
// populated.
type Operation struct {
	ID       string
	TxID     string
	TypeCode int
	Body     map[string]any
}

// contractCreateTypeCode is the Stellar operation type code for contract
// creation.
const contractCreateTypeCode = 110
