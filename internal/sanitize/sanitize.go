// Package sanitize converts nested Go values into JSON-primitive trees.
//
// The output of Value contains only nil, bool, float64, string, []any and
// map[string]any, which is exactly what encoding/json produces when it
// decodes a document into an interface{}. A sanitized document therefore
// survives a store round trip deep-equal to itself.
package sanitize

import (
	"bytes"
	"crypto/sha256"
	"encoding"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// maxDepth bounds recursion so cyclic pointer graphs fail instead of hanging.
const maxDepth = 64

// maxExactInt is the largest integer magnitude a float64 holds exactly.
const maxExactInt = 1 << 53

// Document sanitizes v and requires the result to be a JSON object.
func Document(v any) (map[string]any, error) {
	out, err := Value(v)
	if err != nil {
		return nil, err
	}
	obj, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("sanitize: document must be an object, got %s", kindOf(out))
	}
	return obj, nil
}

// Value converts v into its JSON-primitive form. Date values become RFC 3339
// strings in UTC, identifiers become their canonical string form, numbers
// become float64 and strings are NFC-normalized.
//
// Conversions that would lose data fail with the path of the offending value:
// integers beyond 2^53, invalid UTF-8, NUL characters and object keys that
// collide once normalized.
func Value(v any) (any, error) {
	return value(v, "$", 0)
}

func value(v any, path string, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("sanitize: %s: nesting deeper than %d", path, maxDepth)
	}
	// Typed nil pointers must not reach value-receiver marshalers.
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, nil
	}

	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return text(val, path)
	case bool:
		return val, nil
	case float64:
		return finite(val, path)
	case float32:
		return finite(float64(val), path)
	case int:
		return signed(int64(val), path)
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return signed(val, path)
	case uint:
		return unsigned(uint64(val), path)
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return unsigned(val, path)
	case json.Number:
		return number(val, path)
	case json.RawMessage:
		decoded, err := decodeJSON(val)
		if err != nil {
			return nil, fmt.Errorf("sanitize: %s: %w", path, err)
		}
		return value(decoded, path, depth+1)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case *time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case uuid.UUID:
		return val.String(), nil
	case []byte:
		// Matches encoding/json, which writes byte slices as base64 strings.
		return base64.StdEncoding.EncodeToString(val), nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			if err := put(out, k, elem, path, depth); err != nil {
				return nil, err
			}
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			clean, err := value(elem, fmt.Sprintf("%s[%d]", path, i), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = clean
		}
		return out, nil
	case json.Marshaler:
		return viaJSON(val, path, depth)
	case encoding.TextMarshaler:
		b, err := val.MarshalText()
		if err != nil {
			return nil, fmt.Errorf("sanitize: %s: %w", path, err)
		}
		return text(string(b), path)
	}

	return reflectValue(reflect.ValueOf(v), path, depth)
}

// reflectValue handles typed maps, slices, arrays, pointers and structs.
func reflectValue(rv reflect.Value, path string, depth int) (any, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return value(rv.Elem().Interface(), path, depth+1)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("sanitize: %s: map key type %s is not a string", path, rv.Type().Key())
		}
		if rv.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			if err := put(out, iter.Key().String(), iter.Value().Interface(), path, depth); err != nil {
				return nil, err
			}
		}
		return out, nil
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			clean, err := value(rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = clean
		}
		return out, nil
	case reflect.Struct:
		return viaJSON(rv.Interface(), path, depth)
	case reflect.String:
		return text(rv.String(), path)
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return signed(rv.Int(), path)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return unsigned(rv.Uint(), path)
	case reflect.Float32, reflect.Float64:
		return finite(rv.Float(), path)
	}
	return nil, fmt.Errorf("sanitize: %s: unsupported type %s", path, rv.Type())
}

// put sanitizes elem and stores it under the normalized form of k.
func put(out map[string]any, k string, elem any, path string, depth int) error {
	at := path + "." + k
	key, err := text(k, at)
	if err != nil {
		return err
	}
	if _, dup := out[key]; dup {
		return fmt.Errorf("sanitize: %s: key collides with another key after Unicode normalization", at)
	}
	clean, err := value(elem, at, depth+1)
	if err != nil {
		return err
	}
	out[key] = clean
	return nil
}

// text NFC-normalizes s. Invalid UTF-8 and NUL are rejected: the first would
// be rewritten by the JSON encoder and Postgres refuses the second.
func text(s, path string) (string, error) {
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("sanitize: %s: invalid UTF-8", path)
	}
	if strings.IndexByte(s, 0) >= 0 {
		return "", fmt.Errorf("sanitize: %s: NUL character", path)
	}
	return norm.NFC.String(s), nil
}

func signed(n int64, path string) (any, error) {
	if n > maxExactInt || n < -maxExactInt {
		return nil, fmt.Errorf("sanitize: %s: integer %d cannot be stored exactly", path, n)
	}
	return float64(n), nil
}

func unsigned(n uint64, path string) (any, error) {
	if n > maxExactInt {
		return nil, fmt.Errorf("sanitize: %s: integer %d cannot be stored exactly", path, n)
	}
	return float64(n), nil
}

func number(n json.Number, path string) (any, error) {
	i, err := strconv.ParseInt(string(n), 10, 64)
	switch {
	case err == nil:
		return signed(i, path)
	case errors.Is(err, strconv.ErrRange):
		return nil, fmt.Errorf("sanitize: %s: integer %s cannot be stored exactly", path, n)
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return nil, fmt.Errorf("sanitize: %s: invalid number %q", path, n)
	}
	return finite(f, path)
}

// decodeJSON decodes a single JSON value, keeping numbers as json.Number.
func decodeJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

// viaJSON lets a type's own JSON encoding decide its shape, then sanitizes
// the decoded tree.
func viaJSON(v any, path string, depth int) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("sanitize: %s: %w", path, err)
	}
	decoded, err := decodeJSON(b)
	if err != nil {
		return nil, fmt.Errorf("sanitize: %s: %w", path, err)
	}
	return value(decoded, path, depth+1)
}

func finite(f float64, path string) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("sanitize: %s: non-finite number", path)
	}
	return f, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}

// Canonical encodes a sanitized value as compact JSON with sorted object keys
// and no HTML escaping. Equal documents always produce identical bytes.
func Canonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("sanitize: encode: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Digest returns the hex SHA-256 of canonical document bytes.
func Digest(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
