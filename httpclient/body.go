package httpclient

import (
	"fmt"
	"io"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// encodeBody converts verb data according to the body format.
//
//   - json: marshalled to JSON bytes
//   - form: encoded as a query string (nested maps use key[sub] notation)
//   - none: strings are parsed into url.Values, readers are drained so
//     retries can replay them, anything else passes through untouched
//
// nil data always yields a nil body.
func encodeBody(format BodyFormat, data any) (any, error) {
	if data == nil {
		return nil, nil
	}

	switch format {
	case BodyFormatJSON:
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("%w: json: %w", ErrBodyEncoding, err)
		}
		return b, nil

	case BodyFormatForm:
		b, err := encodeForm(data)
		if err != nil {
			return nil, fmt.Errorf("%w: form: %w", ErrBodyEncoding, err)
		}
		return b, nil
	}

	switch v := data.(type) {
	case string:
		values, err := url.ParseQuery(v)
		if err != nil {
			return nil, fmt.Errorf("%w: query string: %w", ErrBodyEncoding, err)
		}
		return values, nil
	case io.Reader:
		b, err := io.ReadAll(v)
		if err != nil {
			return nil, fmt.Errorf("%w: reader: %w", ErrBodyEncoding, err)
		}
		return b, nil
	}

	// Named byte slices such as json.RawMessage travel as raw bytes.
	if rv := reflect.ValueOf(data); rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return rv.Bytes(), nil
	}
	return data, nil
}

type formPair struct {
	key   string
	value string
}

// encodeForm builds an application/x-www-form-urlencoded payload.
// Raw strings and byte slices are assumed to be encoded already.
func encodeForm(data any) ([]byte, error) {
	switch v := data.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case url.Values:
		return []byte(v.Encode()), nil
	case map[string][]string:
		return []byte(url.Values(v).Encode()), nil
	case map[string]string:
		values := make(url.Values, len(v))
		for k, s := range v {
			values.Set(k, s)
		}
		return []byte(values.Encode()), nil
	case map[string]any:
		return joinFormPairs(flattenForm("", v, nil)), nil
	}

	// Structs and other composites go through their JSON shape so field
	// tags decide the parameter names.
	if kind := reflect.Indirect(reflect.ValueOf(data)).Kind(); kind != reflect.Struct && kind != reflect.Map {
		return nil, fmt.Errorf("unsupported form data type %T", data)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return joinFormPairs(flattenForm("", generic, nil)), nil
}

func flattenForm(prefix string, value any, pairs []formPair) []formPair {
	nest := func(key string) string {
		if prefix == "" {
			return key
		}
		return prefix + "[" + key + "]"
	}

	switch v := value.(type) {
	case nil:
		return pairs
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pairs = flattenForm(nest(k), v[k], pairs)
		}
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pairs = append(pairs, formPair{nest(k), v[k]})
		}
	case []any:
		for i, item := range v {
			pairs = flattenForm(nest(strconv.Itoa(i)), item, pairs)
		}
	case []string:
		for i, item := range v {
			pairs = append(pairs, formPair{nest(strconv.Itoa(i)), item})
		}
	default:
		pairs = append(pairs, formPair{prefix, formScalar(v)})
	}
	return pairs
}

func formScalar(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		if s {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

func joinFormPairs(pairs []formPair) []byte {
	var sb strings.Builder
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.value))
	}
	return []byte(sb.String())
}
