// Package config defines the zonemesh-server configuration:
//
//   - spec.go: ServerConfig and its sections
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: secret masking for logs
//   - cluster.go: conversion to a clusterserver.Config
//
// Configuration is loaded by internal/infra/confloader from a YAML file
// and ZONEMESH_ environment variables.
package config
