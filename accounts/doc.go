// Package accounts is the Postgres account store behind authcore.Engine.
//
// Connections use the pgx stdlib driver through database/sql. The schema
// ships as embedded goose migrations; call [RunMigrations] at startup.
package accounts
