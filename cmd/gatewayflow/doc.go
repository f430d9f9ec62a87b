/*
Package main provides gatewayflow's server entry point.

# Overview

cmd/gatewayflow is the executable entry point for the LLM API gateway:
it wires the Credential Resolver, Cost Estimator, PII Sanitizer, Vector
Store, Semantic Cache, Request Coalescer, Upstream Router, Event
Emitter, Proxy Pipeline, Agent-Run Ingestor, and Threshold Tuner into
one HTTP server, plus database migration, health-check, and version
subcommands. Configuration loads from YAML with environment-variable
overrides, logs structured output via zap, exposes Prometheus metrics
on a separate port, and supports configuration hot reload.

# Core types

  - Server       — owns the HTTP and metrics listeners and graceful shutdown
  - Middleware   — func(http.Handler) http.Handler, chained via Chain

# Subcommands

  - serve     — start the gateway
  - migrate   — apply/roll back database migrations
  - version   — print build metadata
  - health    — liveness probe over HTTP
*/
package main
