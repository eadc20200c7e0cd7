// Package database builds the process-wide data-access layer on top of Bun:
// connection management from DB_* configuration, the model registry and its
// association pass, table and foreign key creation, SQL seeding, logging and
// health checks.
package database
