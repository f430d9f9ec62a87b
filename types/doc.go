// Copyright (c) Gatewayflow Authors.
// Licensed under the MIT License.

/*
Package types provides the shared data model and error vocabulary used
across the gateway.

It has zero dependencies on other gatewayflow packages to avoid import
cycles: every other package (credential, cache, router, pipeline, ingest,
api) imports types, never the other way around.

# Core types

  - Message / ToolCall / ToolSchema — the normalized chat wire shapes
  - Project / ProviderCredential    — per-project BYOK configuration
  - CacheEntry                      — one semantic-cache record
  - NormalizedEvent                 — the single observability record
  - AgentRun / AgentStep            — an ingested agent trace and its steps
  - Flag / CachingOpportunity       — derived annotations on a run
  - Error / ErrorCode               — structured error with HTTP status,
    retryable flag and upstream provider tag
*/
package types
