package tagcfg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// columns: 0, name, 2, 3, modbus start, 5..15, data type
func csvRow(name, modbusStart, dataType string) string {
	fields := make([]string, 17)
	fields[1] = name
	fields[4] = modbusStart
	fields[16] = dataType
	return strings.Join(fields, ",")
}

func TestImportProductivityCSV(t *testing.T) {
	csvData := strings.Join([]string{
		"header line",
		"comment line",
		csvRow("Gate Open", "2", "C"),          // coil at address 1
		csvRow("Trigger", "1", "C"),            // coil at address 0: reserved, skipped
		csvRow("Part Count", "400001", "R32I"), // register at address 0
		csvRow("Odd Register", "400002", "R32I"), // odd offset, unsupported
		csvRow("No Address", "", "C"),
		csvRow("Recipe Name", "400005", "STR16"), // string, unsupported
		csvRow("SomeFunc()", "3", "C"),           // function row, ignored
	}, "\n")

	newTags, dups, res, err := ImportProductivityCSV(strings.NewReader(csvData), nil)
	require.NoError(t, err)

	require.Len(t, newTags, 2)
	assert.Equal(t, Tag{Name: "Gate Open", Address: 1, Type: KindCoil, Scale: 1.0, Enabled: true}, newTags[0])
	assert.Equal(t, Tag{Name: "Part Count", Address: 0, Type: KindRegister, Scale: 1.0, Enabled: true}, newTags[1])

	assert.Empty(t, dups)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.SkippedNoAddress)
	assert.Equal(t, 2, res.SkippedUnsupported)
	assert.Equal(t, 0, res.SkippedDuplicates)
}

func TestImportProductivityCSV_Duplicates(t *testing.T) {
	existing := []Tag{{Name: "Already", Address: 1, Type: KindCoil, Enabled: true}}
	csvData := strings.Join([]string{
		"header",
		"comment",
		csvRow("Gate Open", "2", "C"), // coil at address 1, duplicate slot
	}, "\n")

	newTags, dups, res, err := ImportProductivityCSV(strings.NewReader(csvData), existing)
	require.NoError(t, err)
	assert.Empty(t, newTags)
	require.Len(t, dups, 1)
	assert.Equal(t, "Gate Open", dups[0].Name)
	assert.Equal(t, 1, res.SkippedDuplicates)
}
