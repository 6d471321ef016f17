package storage

import "mote/internal/errkind"

// ErrNotFound is returned by the KV helpers when a key is absent or
// expired.
var ErrNotFound = errkind.ErrNotFound
