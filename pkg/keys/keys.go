// Package keys centralizes cache key construction so every component derives
// keys the same way. A key embeds a schema version and the tool name alongside
// a digest of the canonical argument encoding; bumping Version invalidates all
// existing entries at once.
package keys

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Version is the key schema version. Bump it when the canonical encoding
// changes so stale entries are never served across an upgrade.
const Version = "v1"

// Prefix namespaces every key so gateway entries are identifiable in a
// shared store.
const Prefix = "bw"

// Canonical returns the canonical JSON encoding of an argument map.
// encoding/json writes map keys in sorted order, so maps with equal contents
// encode identically regardless of insertion order. Array order is preserved;
// it is semantic.
func Canonical(args map[string]any) ([]byte, error) {
	if len(args) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(args)
}

// ForTool derives the cache key for one tool invocation. Equal tool and
// argument contents always produce equal keys.
func ForTool(tool string, args map[string]any) (string, error) {
	canon, err := Canonical(args)
	if err != nil {
		return "", fmt.Errorf("canonicalize arguments: %w", err)
	}
	d := xxhash.New()
	_, _ = d.WriteString(tool)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(canon)
	return fmt.Sprintf("%s:%s:%s:%016x", Prefix, Version, tool, d.Sum64()), nil
}
