// Package client contains the client-side transport and bootstrap of the
// notesync local replica.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface): Ping,
//     SubmitChanges, PullChanges and attachment presigning.
//  2. A concrete gRPC implementation (see GRPCClient) that injects the access
//     token and realtime session id through an interceptor and maps gRPC
//     status codes to sentinel errors.
//  3. Local persistence bootstrap (InitDatabase) opening the SQLite replica
//     and applying the embedded goose migrations.
//
// # Error Handling
//
// Callers match with errors.Is: ErrUnavailable (retry later), ErrUnauthorized
// (stop and ask for a new token), ErrNotLoggedIn, and common.ErrValidation for
// requests the server rejected as malformed.
package client
