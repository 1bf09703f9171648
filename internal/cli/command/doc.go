// Package command defines the zonemesh-cli commands.
//
// Every command reads one admin API endpoint of a zonemesh-server peer
// and prints the result as a table, JSON or YAML. The CLI only observes:
// sessions and instances are changed by the application embedding the
// peer, never from the command line.
package command
