package dbwriter

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plcwatch/plclogger/internal/schema"
	"github.com/plcwatch/plclogger/internal/tagcfg"
)

func newTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	doc := tagcfg.DefaultDocument()
	doc.Tags = []tagcfg.Tag{
		{Name: "Gate", Address: 1, Type: tagcfg.KindCoil, Scale: 1, Enabled: true},
		{Name: "Count", Address: 0, Type: tagcfg.KindRegister, Scale: 1, Enabled: true},
	}
	require.NoError(t, schema.EnsureSchema(path, doc))
	return path
}

func TestLog_InsertsOneRow(t *testing.T) {
	path := newTestDB(t)
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	record := map[string]any{
		"timestamp": "2024-01-15 12:00:00",
		"source":    "Modbus",
		"Gate":      "ON",
		"Count":     42.0,
	}
	require.NoError(t, w.Log(schema.TableName, record))

	db, err := sqlx.Connect("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var got struct {
		Timestamp string  `db:"timestamp"`
		Source    string  `db:"source"`
		Gate      string  `db:"Gate"`
		Count     float64 `db:"Count"`
	}
	require.NoError(t, db.Get(&got, "SELECT timestamp, source, Gate, Count FROM plc_data"))
	assert.Equal(t, "2024-01-15 12:00:00", got.Timestamp)
	assert.Equal(t, "Modbus", got.Source)
	assert.Equal(t, "ON", got.Gate)
	assert.Equal(t, 42.0, got.Count)
}

func TestLog_NilValueBecomesNull(t *testing.T) {
	path := newTestDB(t)
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	record := map[string]any{
		"timestamp": "2024-01-15 12:00:00",
		"source":    "Modbus",
		"Gate":      nil,
		"Count":     7.0,
	}
	require.NoError(t, w.Log(schema.TableName, record))

	db, err := sqlx.Connect("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var gate *string
	require.NoError(t, db.Get(&gate, "SELECT Gate FROM plc_data"))
	assert.Nil(t, gate)
}

func TestLog_UnknownColumnReportsError(t *testing.T) {
	path := newTestDB(t)
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	err = w.Log(schema.TableName, map[string]any{
		"timestamp": "2024-01-15 12:00:00",
		"source":    "Modbus",
		"NoSuch":    1.0,
	})
	assert.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	w, err := Open(newTestDB(t))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.Error(t, w.Log(schema.TableName, map[string]any{"source": "Modbus"}))
}

func TestOpen_EnablesWAL(t *testing.T) {
	path := newTestDB(t)
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	db, err := sqlx.Connect("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.Get(&mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)
}
