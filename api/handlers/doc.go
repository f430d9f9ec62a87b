// Package handlers implements gatewayflow's HTTP request handlers: chat
// completions (sync and SSE streaming), legacy text completions, embeddings,
// agent-run ingestion, the analytics proxy, and health/readiness checks.
//
// Every handler decodes its request body, delegates to the corresponding
// gateway component (pipeline, router, credential, ingest, tuner), and
// renders the result through the shared WriteSuccess/WriteError helpers in
// common.go. Errors always render as the flat {"error": "message"} envelope
// the public API uses, never a nested success/data/error shape.
package handlers
