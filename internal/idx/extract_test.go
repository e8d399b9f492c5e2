package idx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDeployment_Accepted(t *testing.T) {
	op := Operation{
		ID: "op1", TxID: "tx1", TypeCode: contractCreateTypeCode,
		Body: map[string]any{
			"contract_id":    "C" + repeatChar('A', 55),
			"source_account": "GDEPLOYER",
		},
	}
	d, ok := extractDeployment(op, NetworkTestnet)
	assert := assert.New(t)
	assert.True(ok)
	assert.Equal("C"+repeatChar('A', 55), d.ContractID)
	assert.Equal("GDEPLOYER", d.Deployer)
	assert.Equal("op1", d.OpID)
}

func TestExtractDeployment_WrongTypeCodeRejected(t *testing.T) {
	op := Operation{TypeCode: 1, Body: map[string]any{"contract_id": "C" + repeatChar('A', 55)}}
	_, ok := extractDeployment(op, NetworkTestnet)
	assert.False(t, ok)
}

func TestExtractDeployment_MalformedContractIDRejected(t *testing.T) {
	cases := []string{
		"Xshort",
		"C" + repeatChar('A', 10), // too short
		"C" + repeatChar('A', 100), // too long
		"",
	}
	for _, id := range cases {
		op := Operation{TypeCode: contractCreateTypeCode, Body: map[string]any{"contract_id": id}}
		_, ok := extractDeployment(op, NetworkTestnet)
		assert.False(t, ok, "expected rejection for %q", id)
	}
}

func TestExtractDeployment_FallsBackAcrossFieldNames(t *testing.T) {
	op := Operation{
		TypeCode: contractCreateTypeCode,
		Body:     map[string]any{"address": "C" + repeatChar('B', 50), "funder": "GFUNDER"},
	}
	d, ok := extractDeployment(op, NetworkMainnet)
	assert.True(t, ok)
	assert.Equal(t, "GFUNDER", d.Deployer)
}

func repeatChar(c byte, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = c
	}
	return string(b)
}
