package db

import "gorm.io/gorm"

// Dialect identifiers supported by the database layer.
const (
	// DialectPostgres is the PostgreSQL dialect name.
	DialectPostgres = "postgres"
	// DialectMySQL is the MySQL dialect name.
	DialectMySQL = "mysql"
	// DialectSQLite is the SQLite dialect name.
	DialectSQLite = "sqlite"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// SupportsRowLocking reports whether SELECT ... FOR UPDATE is honoured by the dialect.
// SQLite ignores the clause and serializes writers at the database level instead.
func SupportsRowLocking(conn *gorm.DB) bool {
	switch DialectName(conn) {
	case DialectPostgres, DialectMySQL:
		return true
	default:
		return false
	}
}
