// Package postgres provides PostgreSQL implementations of the build
// pipeline's store interfaces. All ownership transfers (claims, stale
// reclaims) are single atomic statements using FOR UPDATE SKIP LOCKED.
package postgres
