// Package connection is the HTTP client of the zonemesh admin API.
package connection
