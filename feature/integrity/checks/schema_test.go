package checks

import (
	"testing"

	"stock-ledger/core/database"
	"stock-ledger/feature/stock/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}

	return gormDB, mock
}

func TestCheckSchema_NilDB(t *testing.T) {
	report, err := CheckSchema(nil, models.All())
	assert.Error(t, err)
	assert.Nil(t, report)
}

func TestCheckSchema_Migrated(t *testing.T) {
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	report, err := CheckSchema(db, models.All())
	require.NoError(t, err)
	assert.True(t, report.Matched)
	assert.Len(t, report.Tables, len(models.All()))
	assert.Equal(t, "ok", report.Tables["ledger_entries"].Status)
}

func TestCheckSchema_MissingTable(t *testing.T) {
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)

	report, err := CheckSchema(db, []any{&models.EntryRow{}})
	require.NoError(t, err)
	assert.False(t, report.Matched)
	assert.Contains(t, report.Errors, "Table ledger_entries does not exist")
}

func TestCheckSchema_MissingColumn(t *testing.T) {
	db, mock := setupMockDB(t)

	rows := sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"})
	rows.AddRow("id", "bigint unsigned", "NO", "PRI", nil, "auto_increment")
	rows.AddRow("event_id", "varchar(36)", "NO", "UNI", nil, "")
	rows.AddRow("timestamp", "datetime(3)", "NO", "MUL", nil, "")
	rows.AddRow("action", "varchar(32)", "NO", "", nil, "")
	mock.ExpectQuery("SHOW COLUMNS FROM `ledger_history`").WillReturnRows(rows)

	report, err := CheckSchema(db, []any{&models.HistoryRow{}})
	require.NoError(t, err)
	assert.False(t, report.Matched)

	tbl, ok := report.Tables["ledger_history"]
	require.True(t, ok)
	assert.Equal(t, "error", tbl.Status)
	assert.Contains(t, tbl.MissingColumns, "user_name")
	assert.NotContains(t, tbl.MissingColumns, "event_id")
	assert.NoError(t, mock.ExpectationsWereMet())
}
