package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// CacheNamespace prefixes every attack-cache key so bulk operations can be
// scoped with a LIKE on any prefix of (namespace, version, method, impl).
const CacheNamespace = "aipop"

// CanonicalJSON renders v as deterministic JSON: object keys sorted, minimal
// separators, UTF-8, no trailing newline. Re-encoding canonical output is
// stable, which is what makes the cache fingerprint reproducible.
func CanonicalJSON(v interface{}) ([]byte, error) {
	norm, err := normalize(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, norm); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// normalize round-trips v through encoding/json so structs, typed maps and
// numeric types all collapse to the generic representation before ordering.
func normalize(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	return out, nil
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case json.Number:
		buf.WriteString(val.String())
		return nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}

// InputHash fingerprints one attack input as
// sha256(prompt || "|" || model || "|" || canonical_json(params)).
func InputHash(prompt, model string, params map[string]interface{}) (string, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	canon, err := CanonicalJSON(params)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte("|"))
	h.Write([]byte(model))
	h.Write([]byte("|"))
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CacheKey assembles the full stored key:
// <namespace>:v<version>:<method>:<implementation>:<input hash>.
func CacheKey(version, method, implementation, prompt, model string, params map[string]interface{}) (string, error) {
	hash, err := InputHash(prompt, model, params)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%s:%s:%s:%s", CacheNamespace, version, method, implementation, hash), nil
}
