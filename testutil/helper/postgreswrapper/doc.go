// Package postgreswrapper opens a postgresengine.Repository on the test database for the adapter
// selected by ADAPTER_TYPE. Tests are skipped when the database is unreachable.
package postgreswrapper
