package definition

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDefinition = `{
	"bankName": "Test Bank",
	"recognition": {"keywords": ["TEST BANK STATEMENT"]},
	"accountInfo": {"accountNumber": "Account:\\s*(\\d+)"},
	"period": {"start": "From\\s*(\\S+)", "end": "To\\s*(\\S+)"},
	"transaction": {
		"mainPattern": "(\\d{2}\\.\\d{2}\\.\\d{4})\\s+(.+?)\\s+(-?\\d+[\\.,]\\d{2})",
		"fields": {"date": 1, "description": 2, "amount": 3},
		"details": [{"label": "Reference", "field": "reference", "pattern": "Ref:\\s*(\\S+)"}]
	}
}`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(io.Discard)

	writeFile(t, dir, "testbank.json", validDefinition)
	writeFile(t, dir, "broken.json", `{"bankName": "Broken"`)
	writeFile(t, dir, "badregex.json", `{
		"bankName": "Bad Regex",
		"recognition": {"keywords": ["X"]},
		"transaction": {"mainPattern": "([unclosed", "fields": {"date": 1}}
	}`)
	writeFile(t, dir, "notes.txt", "not a definition")

	defs := Load(dir, logger)
	require.Len(t, defs, 1)
	assert.Equal(t, "Test Bank", defs[0].BankName)
	assert.NotNil(t, defs[0].MainRe())
	assert.NotNil(t, defs[0].AccountNumberRe())
	require.Len(t, defs[0].Transaction.Details, 1)
	assert.NotNil(t, defs[0].Transaction.Details[0].Re())
}

func TestLoadOrderIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(io.Discard)

	first := `{
		"bankName": "Alpha",
		"recognition": {"keywords": ["SHARED"]},
		"transaction": {"mainPattern": "x", "fields": {}}
	}`
	second := `{
		"bankName": "Beta",
		"recognition": {"keywords": ["SHARED"]},
		"transaction": {"mainPattern": "x", "fields": {}}
	}`
	writeFile(t, dir, "20-beta.json", second)
	writeFile(t, dir, "10-alpha.json", first)

	defs := Load(dir, logger)
	require.Len(t, defs, 2)
	assert.Equal(t, "Alpha", defs[0].BankName)
	assert.Equal(t, "Beta", defs[1].BankName)
}

func TestLoadMissingDirectory(t *testing.T) {
	logger := log.New(io.Discard)
	defs := Load(filepath.Join(t.TempDir(), "does-not-exist"), logger)
	assert.Empty(t, defs)
}

func TestDefinitionMatches(t *testing.T) {
	def := &Definition{
		Recognition: Recognition{Keywords: []string{"MSKB", "Moscow Bank"}},
	}
	assert.True(t, def.Matches("statement of Moscow Bank for March"))
	assert.True(t, def.Matches("MSKB monthly statement"))
	assert.False(t, def.Matches("some other bank"))
	assert.False(t, (&Definition{}).Matches("anything"))
}
