package cli

import (
	"bytes"
	"testing"

	"eve-arbitrage/internal/engine"
	"eve-arbitrage/internal/ranking"
	"eve-arbitrage/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand("1.2.3")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", out)
}

func TestRunCommand_RejectsFlags(t *testing.T) {
	_, err := execute(t, "run", "--top", "0")
	assert.ErrorContains(t, err, "--top")

	_, err = execute(t, "run", "--category", "spaceship")
	assert.ErrorIs(t, err, ranking.ErrUnknownCategory)
}

func TestPrintPage(t *testing.T) {
	routes := []engine.RouteCandidate{{
		TypeName: "Tritanium", OriginName: "Jita", DestinationName: "Amarr",
		BuyPrice: 4, SellPrice: 6, VolumeAvailable: 1000, NetProfitPerUnit: 1.5,
		NetProfitPct: 0.375, TotalNetProfit: 1500, Carrier: "Mammoth", Hops: 9, Risk: engine.RiskLow,
	}}
	page, err := ranking.Rank(routes, ranking.Filter{}, 1, 10)
	require.NoError(t, err)

	var out bytes.Buffer
	printPage(&out, &store.ResultBatch{RunID: "r1", Routes: routes}, page)
	s := out.String()
	assert.Contains(t, s, "Run r1: 1 routes")
	assert.Contains(t, s, "Tritanium")
	assert.Contains(t, s, "37.5%")
	assert.Contains(t, s, "low")

	out.Reset()
	empty, err := ranking.Rank(nil, ranking.Filter{}, 1, 10)
	require.NoError(t, err)
	printPage(&out, &store.ResultBatch{RunID: "r2"}, empty)
	assert.Contains(t, out.String(), "No routes found.")
}
