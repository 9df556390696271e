package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ignite/campaign-sheet-sync/internal/datanorm"
)

func readRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	return rows
}

func TestUnmatchedXLSX(t *testing.T) {
	recs := []*datanorm.Record{
		{Campaign: "totally_unstructured_name"},
		{Campaign: "another one"},
	}
	data, err := UnmatchedXLSX(recs)
	require.NoError(t, err)

	rows := readRows(t, data)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, "totally_unstructured_name", rows[1][0])
	assert.Equal(t, "another one", rows[2][0])
}

func TestUnmatchedXLSXEmpty(t *testing.T) {
	data, err := UnmatchedXLSX(nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{Columns}, readRows(t, data))
}

func TestUnmatchedFromBatch(t *testing.T) {
	batch, err := datanorm.Assemble(datanorm.Input{
		Name: "a.csv",
		Data: []byte("Campaigns,Orders,Clicks,CPC(USD),Start date\nacct_mkt_prod_red_shoes_b,1,2,1,01/01/25\nno_rule_here,1,2,1,01/01/25\nAUTOMATIC,1,2,1,01/01/25\n"),
	})
	require.NoError(t, err)
	require.NoError(t, datanorm.Normalize(batch))

	data, err := UnmatchedXLSX(datanorm.Unmatched(batch))
	require.NoError(t, err)
	rows := readRows(t, data)
	require.Len(t, rows, 2)
	assert.Equal(t, "no_rule_here", rows[1][0])
}

func TestArchiveKey(t *testing.T) {
	assert.Equal(t, "b-1/unmatched.xlsx", ArchiveKey("b-1"))
}
