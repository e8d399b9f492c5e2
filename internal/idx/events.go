package idx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DimaJoyti/contractfabric/pkg/kafka"
)

// KafkaPublisher fire-and-forgets newly discovered deployments onto a
// Kafka topic for external consumers. The indexing cycle never depends on
// it: a lost event only delays downstream consumers.
type KafkaPublisher struct {
	producer kafka.Producer
	topic    string
}

// NewKafkaPublisher wraps an already-constructed kafka.Producer.
func NewKafkaPublisher(producer kafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

type deploymentEvent struct {
	ContractID     string `json:"contract_id"`
	Deployer       string `json:"deployer"`
	OpID           string `json:"op_id"`
	TxID           string `json:"tx_id"`
	LedgerSequence int64  `json:"ledger_sequence"`
	Network        string `json:"network"`
}

// PublishDeployment serializes d and produces it asynchronously, keyed by
// contract id so all events for one contract land on the same partition.
func (p *KafkaPublisher) PublishDeployment(_ context.Context, d Deployment) error {
	payload, err := json.Marshal(deploymentEvent{
		ContractID: d.ContractID, Deployer: d.Deployer, OpID: d.OpID, TxID: d.TxID,
		LedgerSequence: d.LedgerSequence, Network: string(d.Network),
	})
	if err != nil {
		return fmt.Errorf("marshal deployment event: %w", err)
	}

	p.producer.ProduceAsync(p.topic, []byte(d.ContractID), payload, func(err error) {
		// Errors are fire-and-forget: the indexer's own persistence is the
		// source of truth, so a lost event only delays external consumers.
		_ = err
	})
	return nil
}
