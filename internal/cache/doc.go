// Package cache defines the store that maps a validated status code to its
// image bytes. The default disk backend keeps one file per code at
// StoragePath/<code>.jpg and replaces it via temp file + rename, so readers
// never observe partial content. Memory (ristretto) and Redis backends share
// the same contract, letting the proxy layer and tests swap persistence
// without touching paths directly.
package cache
