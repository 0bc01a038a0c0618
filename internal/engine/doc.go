// Package engine is the request boundary of dynq.
//
// The engine maps logical query names to a description and a backing
// provider (Registry), converts wire requests (DTOs naming tokens by full
// key) into pipeline requests, and runs them through dquery.
//
// ARCHITECTURE:
//
// Request Flow:
//  1. A request id is generated (UUIDv7 in production)
//  2. The query name resolves to its description and provider
//  3. Every token of the request is parsed; all failures are reported at once
//  4. The query's entity column is checked against the authorizer
//  5. dquery builds and runs the pipeline; only the provider call blocks
//  6. The outcome is logged with the request id
//
// Collaborator hooks:
// Authorization (token.Authorizer) and synthetic subtokens
// (token.Extension) are supplied as options and reach discovery and
// parsing through the registry's token catalog.
//
// CRITICAL PATTERNS:
//
// No retries:
// Provider errors propagate unchanged inside a RequestError. Resilience
// belongs to the provider.
//
// Shared state:
// The registry and the token cache are the only state shared between
// requests; both are read-only once built.
package engine
