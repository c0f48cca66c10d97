// Package fallback caches finished chat results for degrade-to-cache
// serving.
//
// # Overview
//
// Every successful terminal result is saved under its request fingerprint.
// When the retry executor exhausts its attempts against a failing upstream,
// it consults this cache and, on a non-expired hit, serves the stale result
// flagged with FallbackUsed instead of an error.
//
// The in-memory cache is TTL- and size-bounded: expired entries are removed
// by a background sweep, and when the cache is full the least recently
// accessed entry is evicted.
//
// # Persistence
//
// With a database path configured, saves are written through to a local
// SQLite file (WAL mode) and the cache warm-loads the surviving entries at
// startup, so a restart does not empty the safety net. Expired rows are
// pruned on a cron schedule. The state is per-process: nothing is shared
// across instances.
//
// # Usage
//
//	cache, err := fallback.NewCache(fallback.Config{
//	    TTL:        5 * time.Minute,
//	    MaxEntries: 1000,
//	    DBPath:     "/var/lib/bulwark/fallback.db",
//	})
//	defer cache.Close()
//
//	cache.Save(req.Fingerprint(), result)
//	if cached, ok := cache.Lookup(req.Fingerprint()); ok { ... }
//
// # Thread Safety
//
// Cache is safe for concurrent use.
package fallback
