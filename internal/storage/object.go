/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage provides the object store backends the guide archive
// writes through.
package storage

import "context"

// ObjectStore abstracts keyed blob storage. Keys use forward slashes
// regardless of backend.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	CheckAccess(ctx context.Context) error
}
