package tagcfg

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ImportResult summarizes a Productivity CSV import run.
type ImportResult struct {
	Imported           int `json:"imported"`
	SkippedNoAddress   int `json:"skipped_no_address"`
	SkippedUnsupported int `json:"skipped_unsupported"`
	SkippedDuplicates  int `json:"skipped_duplicates"`
}

// Modbus offset of the first holding register in Productivity exports.
const registerBase = 400001

// coil-like Productivity data types
var coilTypes = map[string]bool{
	"C": true, "SBR": true, "MST": true, "DO": true, "DI": true,
}

// ImportProductivityCSV parses a Productivity-series tag export and converts
// it into tag definitions. Rows without a Modbus address, rows with
// unsupported data types (strings, structs) and registers not aligned to a
// 32-bit boundary are skipped and counted. Tags whose (address, kind) pair
// already exists in the current set are returned separately as duplicates.
// The trigger coil at address 0 is never imported.
func ImportProductivityCSV(r io.Reader, existing []Tag) (newTags, duplicates []Tag, res ImportResult, err error) {
	existingKeys := make(map[string]bool, len(existing))
	for _, t := range existing {
		existingKeys[fmt.Sprintf("%d|%s", t.Address, t.Kind())] = true
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	// header and comment lines
	for i := 0; i < 2; i++ {
		if _, err := reader.Read(); err == io.EOF {
			return nil, nil, res, nil
		}
	}

	for {
		row, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, nil, res, fmt.Errorf("read csv: %w", readErr)
		}
		if len(row) < 17 {
			continue
		}

		name := strings.TrimSpace(row[1])
		modbusStart := strings.TrimSpace(row[4])
		dataType := strings.TrimSpace(row[16])

		if modbusStart == "" {
			res.SkippedNoAddress++
			continue
		}
		if strings.HasSuffix(name, "()") {
			continue
		}

		baseType := strings.TrimLeft(dataType, "AR0123456789")
		if baseType == "" || strings.Contains(baseType, "STR") || strings.Contains(baseType, "STRUCT") {
			res.SkippedUnsupported++
			continue
		}

		start, convErr := strconv.Atoi(modbusStart)
		if convErr != nil {
			res.SkippedUnsupported++
			continue
		}

		var address int
		var kind string
		if coilTypes[baseType] {
			kind = KindCoil
			address = start - 1
			if address == 0 {
				// reserved for the trigger
				continue
			}
		} else {
			kind = KindRegister
			raw := start - registerBase
			if raw < 0 || raw%2 != 0 {
				res.SkippedUnsupported++
				continue
			}
			address = raw / 2
		}

		tag := Tag{
			Name:    name,
			Address: address,
			Type:    kind,
			Scale:   1.0,
			Enabled: true,
		}

		if existingKeys[fmt.Sprintf("%d|%s", address, kind)] {
			duplicates = append(duplicates, tag)
			res.SkippedDuplicates++
		} else {
			newTags = append(newTags, tag)
			res.Imported++
		}
	}

	return newTags, duplicates, res, nil
}
