package models

// CacheStats reports cache effectiveness counters. Errors counts soft
// failures where the store was unreachable and the lookup was treated
// as a miss.
type CacheStats struct {
	Backend string `json:"backend"`
	Entries int64  `json:"entries"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Errors  int64  `json:"errors"`
}
