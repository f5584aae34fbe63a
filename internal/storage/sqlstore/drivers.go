package sqlstore

import (
	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	_ "github.com/sijms/go-ora/v2"      // Oracle driver
	_ "modernc.org/sqlite"              // SQLite driver
)

func init() {
	// sqlx does not know the pure-Go driver names.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	sqlx.BindDriver("oracle", sqlx.NAMED)
}
