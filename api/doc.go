// Package api holds the gateway's HTTP wire types.
//
// # API Overview
//
// gatewayflow exposes:
//   - POST /v1/chat/completions — normalized chat completions, with
//     server-sent-event streaming when stream=true
//   - POST /v1/completions — legacy single-prompt text completions
//   - POST /v1/embeddings — text embeddings, OpenAI-compatible
//   - POST /v1/agent-runs — agent trace ingestion
//   - GET /v1/analytics/* — read-only proxies to the analytics sink
//
// # Authentication
//
// The proxy and ingestion endpoints take `Authorization: Bearer <api_key>`,
// an opaque per-project key resolved against the external relational
// store (credential.APIKeyStore). The analytics endpoints take the same
// bearer token, or a dashboard-issued JWT as an alternate verification
// path.
package api
