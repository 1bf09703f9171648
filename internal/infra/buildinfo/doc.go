// Package buildinfo reports the version of the running binary.
//
// Release builds set the values with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/zonemesh-go/internal/infra/buildinfo.Version=v1.0.0"
//
// Unset values fall back to what the Go toolchain recorded in the binary.
package buildinfo
