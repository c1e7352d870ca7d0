package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNewDocuments(t *testing.T) {
	docs := testDocuments()

	require.Len(t, docs.Network.Sites, 2)
	assert.Equal(t, "cloud", docs.Network.Sites[0].SiteName)
	assert.Equal(t, []Platform{{PlatformName: "flink"}, {PlatformName: "spark"}}, docs.Network.Sites[0].AvailablePlatforms)
	assert.Equal(t, "edge", docs.Network.Sites[1].SiteName)

	var keys []string
	for _, op := range docs.Dictionary.Operators {
		keys = append(keys, op.ClassKey)
		assert.Equal(t, docs.Network.Sites, op.Sites)
	}
	assert.Equal(t, []string{"retrieve", "filter_examples"}, keys, "disabled operators are not listed")

	enc, err := docs.Encode()
	require.NoError(t, err)
	assert.Equal(t, "net", gjson.GetBytes(enc.Request, "network").String())
	assert.Equal(t, "dict", gjson.GetBytes(enc.Request, "dictionary").String())
	assert.Equal(t, "op-GS", gjson.GetBytes(enc.Request, "algorithm").String())
	assert.Equal(t, int64(1), gjson.GetBytes(enc.Request, "numberOfPlans").Int())
	assert.Equal(t, "Read", gjson.GetBytes(enc.Request, "workflow.operators.0.name").String())
	assert.Equal(t, "rtsa", gjson.GetBytes(enc.Dictionary, "operators.0.sites.1.availablePlatforms.0.platformName").String())
	assert.Equal(t, "Optimization", gjson.GetBytes(enc.Workflow, "enclosingOperatorName").String())
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want Algorithm
		err  bool
	}{
		{in: "op-ES", want: AlgorithmExhaustive},
		{in: "greedy", want: AlgorithmGreedy},
		{in: "", want: AlgorithmGreedy},
		{in: " Heuristic ", want: AlgorithmHeuristic},
		{in: "annealing", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	_, err := DecodeResponse([]byte(`{"optimizationRequestId":"x"}`))
	require.Error(t, err)

	resp, err := DecodeResponse([]byte(resultFor("x", "placed")))
	require.NoError(t, err)
	assert.Equal(t, "placed", resp.Workflow.WorkflowName)
}
