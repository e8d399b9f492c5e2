package idx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DimaJoyti/contractfabric/pkg/errs"
)

// RPCClient is the three-call surface the indexer needs from a network's
// Horizon-style RPC endpoint: latest ledger, ledger by sequence, and ledger
// operations. The wire format is plain REST/JSON, not JSON-RPC, so this
// wraps net/http rather than a JSON-RPC 2.0 client.
type RPCClient struct {
	endpoint string
	http     *http.Client
}

// NewRPCClient returns an RPCClient bound to endpoint with a bounded
// per-call timeout.
func NewRPCClient(endpoint string, timeout time.Duration) *RPCClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RPCClient{endpoint: endpoint, http: &http.Client{Timeout: timeout}}
}

type ledgerRecord struct {
	Sequence int64  `json:"sequence"`
	ID       string `json:"id"`
	Hash     string `json:"hash"`
	PrevHash string `json:"prev_hash"`
}

type ledgerEnvelope struct {
	Embedded struct {
		Records []ledgerRecord `json:"records"`
	} `json:"_embedded"`
}

func (c *RPCClient) doGet(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return errs.Wrap(errs.KindConfig, "idx.rpc.bad_request", "building rpc request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindTransient, "idx.rpc.request_failed", "rpc request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errs.Wrap(errs.KindTransient, "idx.rpc.http_error",
			fmt.Sprintf("rpc returned HTTP %d: %s", resp.StatusCode, body), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Wrap(errs.KindTransient, "idx.rpc.invalid_response", "decoding rpc response", err)
	}
	return nil
}

// GetLatestLedger fetches the most recently closed ledger.
func (c *RPCClient) GetLatestLedger(ctx context.Context) (Ledger, error) {
	var env ledgerEnvelope
	if err := c.doGet(ctx, "/ledgers?order=desc&limit=1", &env); err != nil {
		return Ledger{}, err
	}
	if len(env.Embedded.Records) == 0 {
		return Ledger{}, errs.New(errs.KindTransient, "idx.rpc.empty_ledgers", "latest ledger response had no records")
	}
	r := env.Embedded.Records[0]
	return Ledger{Sequence: r.Sequence, Hash: r.Hash, PrevHash: r.PrevHash}, nil
}

// GetLedger fetches a single ledger by sequence.
func (c *RPCClient) GetLedger(ctx context.Context, sequence int64) (Ledger, error) {
	var r ledgerRecord
	if err := c.doGet(ctx, fmt.Sprintf("/ledgers/%d", sequence), &r); err != nil {
		return Ledger{}, err
	}
	return Ledger{Sequence: r.Sequence, Hash: r.Hash, PrevHash: r.PrevHash}, nil
}

type operationRecord struct {
	ID              string         `json:"id"`
	TransactionHash string         `json:"transaction_hash"`
	TypeCode        int            `json:"type_code"`
	Body            map[string]any `json:"body"`
}

type operationsEnvelope struct {
	Embedded struct {
		Records []operationRecord `json:"records"`
	} `json:"_embedded"`
}

// GetLedgerOperations fetches all operations recorded in the given ledger.
func (c *RPCClient) GetLedgerOperations(ctx context.Context, sequence int64) ([]Operation, error) {
	var env operationsEnvelope
	path := fmt.Sprintf("/ledgers/%d/operations?order=asc&limit=200", sequence)
	if err := c.doGet(ctx, path, &env); err != nil {
		return nil, err
	}

	ops := make([]Operation, 0, len(env.Embedded.Records))
	for _, r := range env.Embedded.Records {
		ops = append(ops, Operation{ID: r.ID, TxID: r.TransactionHash, TypeCode: r.TypeCode, Body: r.Body})
	}
	return ops, nil
}
