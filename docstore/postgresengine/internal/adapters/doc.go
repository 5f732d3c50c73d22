// Package adapters lets the repository run on pgxpool.Pool, sql.DB (lib/pq) or sqlx.DB
// through one DBAdapter interface. Statements are fully rendered SQL strings without arguments.
package adapters
