package payos

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// canonicalQuery renders fields as sorted key=value pairs joined by "&".
// Arrays are JSON encoded with each element's keys sorted; null and the
// literal strings "null" and "undefined" become empty values.
func canonicalQuery(fields map[string]any) (string, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		value, err := canonicalValue(fields[k])
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(value)
	}
	return b.String(), nil
}

func canonicalValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		if val == "null" || val == "undefined" {
			return "", nil
		}
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	default:
		// Arrays and objects: encoding/json orders map keys.
		return encodeJSON(val)
	}
}

func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func sign(checksumKey string, fields map[string]any) (string, error) {
	query, err := canonicalQuery(fields)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(checksumKey))
	_, _ = mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func verify(checksumKey string, fields map[string]any, signature string) bool {
	expected, err := sign(checksumKey, fields)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// decodeFields keeps numbers as written so they sign byte-for-byte.
func decodeFields(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}
