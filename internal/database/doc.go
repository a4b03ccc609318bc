// Package database provides the PostgreSQL connection pool.
//
// The database is optional. When configured, the server records sensor
// readings in the sensor_readings table and reports pool health on /health.
package database
