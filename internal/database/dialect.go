package database

import "gorm.io/gorm"

// IsPostgres reports whether db talks to Postgres.
func IsPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

// Param returns a bind placeholder typed as sqlType.
//
// Postgres cannot infer the type of a parameter that appears in the select
// list of an INSERT ... SELECT, so it needs an explicit cast there. SQLite
// stores the driver value as-is and must not be cast.
func Param(db *gorm.DB, sqlType string) string {
	if IsPostgres(db) {
		return "CAST(? AS " + sqlType + ")"
	}
	return "?"
}
