// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

// Package auth authenticates administrative callers.
//
// Administrators present an API key as a bearer token. The server holds only
// argon2id hashes of the accepted keys (config key admin.key_hashes); the
// `tessera hash-key` command produces them. Public and widget routes are
// not authenticated here.
package auth
