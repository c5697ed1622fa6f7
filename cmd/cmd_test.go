package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/michaelpento.lv/cyclearb/config"
	"github.com/michaelpento.lv/cyclearb/report/sqlite"
	"github.com/michaelpento.lv/cyclearb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPass(t *testing.T) {
	var buf bytes.Buffer
	renderPass(&buf, types.PassResult{
		ID: "p1",
		Opportunities: []types.Opportunity{
			{Path: []string{"A", "B", "C", "A"}, Exchanges: []string{"x", "y", "z"}, ProfitPct: 20, ProfitBps: 2000},
			{Path: []string{"A", "C", "D", "A"}, ProfitPct: 1},
		},
	}, 1)

	out := buf.String()
	assert.Contains(t, out, "pass p1")
	assert.Contains(t, out, "A -> B -> C -> A")
	assert.Contains(t, out, "20.0000")
	assert.NotContains(t, out, "A -> C -> D -> A")
}

func TestRenderEmptyPass(t *testing.T) {
	var buf bytes.Buffer
	renderPass(&buf, types.PassResult{ID: "p2", Opportunities: []types.Opportunity{}}, 0)
	assert.Contains(t, buf.String(), "no opportunities")
}

func TestCheckQuotes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
quotes:
  - {from: A, to: B, rate: 2}
  - {from: B, to: C, rate: 2}
  - {from: C, to: A, rate: -1}
  - {from: A, to: Z, rate: 1}
`), 0o644))

	cfg := config.DefaultConfig()
	cfg.Tokens = []types.Token{{ID: "A"}, {ID: "B"}, {ID: "C"}}

	stats, err := checkQuotes(context.Background(), cfg, path)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Admitted)
	require.Len(t, stats.Rejected, 2)

	var buf bytes.Buffer
	renderAdmission(&buf, stats)
	assert.Contains(t, buf.String(), "2 admitted, 2 rejected")
	assert.Contains(t, buf.String(), string(types.RejectUnknownToken))
	assert.Contains(t, buf.String(), string(types.RejectNonPositive))
}

func TestShowHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passes.db")
	var buf bytes.Buffer

	err := showHistory(context.Background(), &buf, path, 20)
	assert.ErrorIs(t, err, sqlite.ErrArchiveNotFound)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "history must not create the archive")

	archive, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, archive.Report(context.Background(), types.PassResult{
		ID:        "p1",
		StartedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Opportunities: []types.Opportunity{
			{Path: []string{"A", "B", "C", "A"}, Exchanges: []string{"x", "y", "z"}, ProfitPct: 20},
		},
	}))
	require.NoError(t, archive.Close())

	require.NoError(t, showHistory(context.Background(), &buf, path, 20))
	assert.Contains(t, buf.String(), "p1")
	assert.Contains(t, buf.String(), "A -> B -> C -> A")
	assert.Contains(t, buf.String(), "20.0000")
}
