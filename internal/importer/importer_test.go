package importer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestReadCSV(t *testing.T) {
	csvData := `Handle,Bio,Followers,Website
@sparkyjoe,"Electrician, DM to book",830,https://sparky.example
plainplumber,Plumber,,
`
	rows, err := ReadCSV(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "@sparkyjoe", rows[0]["Handle"])
	assert.Equal(t, "Electrician, DM to book", rows[0]["Bio"])
	assert.Equal(t, "830", rows[0]["Followers"])
	assert.Equal(t, "", rows[1]["Website"])
}

func TestReadCSV_ShortAndLongRows(t *testing.T) {
	csvData := "handle,bio,website\nshorty\nlongy,a bio,https://x.example,extra,cells\n"
	rows, err := ReadCSV(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	_, hasBio := rows[0]["bio"]
	assert.False(t, hasBio)
	assert.Equal(t, "https://x.example", rows[1]["website"])
	assert.Len(t, rows[1], 3)
}

func TestReadCSV_Empty(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadJSON(t *testing.T) {
	data := `[{"handle":"sparkyjoe","followers":830},{"name":"Plumber Co"}]`
	rows, err := ReadJSON(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "sparkyjoe", rows[0]["handle"])
	assert.Equal(t, float64(830), rows[0]["followers"])
}

func TestReadJSON_NotAnArray(t *testing.T) {
	_, err := ReadJSON(strings.NewReader(`{"handle":"x"}`))
	require.Error(t, err)
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.xlsx")
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	require.NoError(t, err)

	header := sheet.AddRow()
	for _, h := range []string{"handle", "bio", "followers"} {
		header.AddCell().SetString(h)
	}
	row := sheet.AddRow()
	row.AddCell().SetString("sparkyjoe")
	row.AddCell().SetString("electrician")
	row.AddCell().SetInt(830)

	require.NoError(t, f.Save(path))

	rows, err := ReadXLSX(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "sparkyjoe", rows[0]["handle"])
	assert.Equal(t, "electrician", rows[0]["bio"])
	assert.Equal(t, "830", rows[0]["followers"])
}

func TestReadFile_Dispatch(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "leads.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("handle\nsparkyjoe\n"), 0o644))
	rows, err := ReadFile(csvPath)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	jsonPath := filepath.Join(dir, "leads.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"handle":"a"}]`), 0o644))
	rows, err = ReadFile(jsonPath)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = ReadFile(filepath.Join(dir, "leads.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}
