// Package sync reconciles the local replica of a user's lists with the
// remote replica.
//
// A run classifies lists into six buckets (new, changed or deleted on either
// side) against the user's watermark, cascades the classification to list
// items, then applies the local-origin buckets to the remote store and the
// server-origin buckets to the local store. Conflicts resolve by
// last-write-wins on ModifiedAt, with ties going to the server. A local
// tombstone always wins.
package sync
