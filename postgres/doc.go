// Package postgres provides the pgx-backed user directory and refresh-token
// store, the context-carried transaction helper that lets a retention purge
// delete a user and its refresh record in one unit of work, and the embedded
// goose migrations for both tables.
package postgres
