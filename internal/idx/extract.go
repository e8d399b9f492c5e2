package idx

import (
	"strings"
)

// candidateContractIDFields are checked in order; the first present string
// field wins.
var candidateContractIDFields = []string{"contract", "contract_id", "address"}

// candidateDeployerFields mirrors candidateContractIDFields for the
// deploying account.
var candidateDeployerFields = []string{"source_account", "funder", "developer"}

// extractDeployment converts a raw operation into a Deployment if it is a
// contract-create operation (type code 110) carrying a well-formed
// contract id. ok is false for any operation that should be skipped
// without aborting the cycle.
func extractDeployment(op Operation, network Network) (Deployment, bool) {
	if op.TypeCode != contractCreateTypeCode {
		return Deployment{}, false
	}

	contractID, ok := firstStringField(op.Body, candidateContractIDFields)
	if !ok || !validContractID(contractID) {
		return Deployment{}, false
	}

	deployer, _ := firstStringField(op.Body, candidateDeployerFields)

	return Deployment{
		ContractID:     contractID,
		Deployer:       deployer,
		OpID:           op.ID,
		TxID:           op.TxID,
		Network:        network,
	}, true
}

func firstStringField(body map[string]any, fields []string) (string, bool) {
	for _, f := range fields {
		if v, ok := body[f]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// validContractID requires a leading 'C' and a length in [40, 64].
func validContractID(id string) bool {
	if !strings.HasPrefix(id, "C") {
		return false
	}
	return len(id) >= 40 && len(id) <= 64
}
