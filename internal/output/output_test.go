package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/stats"
)

func TestPrinter_Plain(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPrinterWithWriters(&out, &errOut, false)

	p.Info("loading %s", "counties")
	p.Success("done")
	p.Error("failed: %d", 3)
	p.Header("Lofa")

	assert.Contains(t, out.String(), "loading counties\n")
	assert.Contains(t, out.String(), "[OK] done\n")
	assert.Contains(t, out.String(), "\nLofa\n────\n")
	assert.Equal(t, "[ERROR] failed: 3\n", errOut.String())
	assert.Equal(t, "12 ha", p.Loss("12 ha"))
}

func TestResolveColors(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	assert.False(t, ResolveColors())
}

func TestStatsTable(t *testing.T) {
	var buf bytes.Buffer
	rows := []stats.Row{
		{County: "Lofa", Year: 2019, LossHa: 1200, CumulativeHa: 45000, BaselineHa: 900000, Percent: 5},
		{County: "Lofa", Year: 2020, LossHa: 1500.4, CumulativeHa: 46500.4, BaselineHa: 900000, Percent: 5.1667},
	}
	require.NoError(t, StatsTable(&buf, rows))

	out := buf.String()
	assert.Contains(t, out, "2019")
	assert.Contains(t, out, "2020")
	assert.Contains(t, out, "1,500")
	assert.Contains(t, out, "46,500")
	assert.Contains(t, out, "5.17")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("2019")), bytes.Index(buf.Bytes(), []byte("2020")))
}

func TestCountiesTable(t *testing.T) {
	var buf bytes.Buffer
	rows := []stats.Row{
		{County: "Bomi", CumulativeHa: 10, BaselineHa: 100, Percent: 10},
		{County: "Nimba", CumulativeHa: 2000, BaselineHa: 10000, Percent: 20},
	}
	require.NoError(t, CountiesTable(&buf, rows))
	assert.Contains(t, buf.String(), "Bomi")
	assert.Contains(t, buf.String(), "Nimba")
	assert.Contains(t, buf.String(), "2,000")
}
