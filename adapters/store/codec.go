package store

import (
	"encoding/json"

	"github.com/layer-3/rangda/core"
)

// Persisted layout: a flat key-to-string map with "auth_methods" holding the
// JSON list of registered provider kinds and "auth_method_<kind>" holding
// each serialized token. No schema versioning; readers treat absent or
// malformed entries as missing.
const methodsKey = "auth_methods"

func methodKey(kind core.ProviderKind) string {
	return "auth_method_" + string(kind)
}

func decodeMethodsList(raw string) []core.ProviderKind {
	if raw == "" {
		return nil
	}
	var kinds []core.ProviderKind
	if err := json.Unmarshal([]byte(raw), &kinds); err != nil {
		return nil
	}
	return kinds
}

func encodeMethodsList(kinds []core.ProviderKind) string {
	if kinds == nil {
		kinds = []core.ProviderKind{}
	}
	raw, _ := json.Marshal(kinds)
	return string(raw)
}

func decodeToken(raw string) *core.AuthToken {
	var token core.AuthToken
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil
	}
	if token.Provider == "" && token.RawToken == "" {
		return nil
	}
	return &token
}

func appendKind(kinds []core.ProviderKind, kind core.ProviderKind) []core.ProviderKind {
	for _, k := range kinds {
		if k == kind {
			return kinds
		}
	}
	return append(kinds, kind)
}

func removeKind(kinds []core.ProviderKind, kind core.ProviderKind) []core.ProviderKind {
	out := kinds[:0]
	for _, k := range kinds {
		if k != kind {
			out = append(out, k)
		}
	}
	return out
}
