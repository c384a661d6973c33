package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/acme/callbridge/pkg/calls"
	apperrors "github.com/acme/callbridge/pkg/errors"
)

// The JSON API names a few fields differently from the keys the decoder reads.
var keyAliases = map[string]string{
	"sid":    calls.FieldSID,
	"status": calls.FieldStatus,
	"from":   calls.FieldFrom,
	"to":     calls.FieldTo,
}

// flatten turns a response body into string key/value pairs. JSON objects keep their
// scalar members, form bodies keep the first value per key. Nested values and nulls
// are dropped.
func flatten(contentType string, body []byte) (map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)

	switch {
	case mediaType == "application/x-www-form-urlencoded":
		return flattenForm(body)
	case mediaType == "application/json", mediaType == "", looksLikeJSON(body):
		return flattenJSON(body)
	default:
		return nil, fmt.Errorf("%w: rest transport: unsupported content type %q", apperrors.ErrUpstream, contentType)
	}
}

func looksLikeJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func flattenJSON(body []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: rest transport: decode json: %v", apperrors.ErrUpstream, err)
	}

	out := make(map[string]string, len(doc))
	for key, value := range doc {
		var s string
		switch v := value.(type) {
		case string:
			s = v
		case json.Number:
			s = v.String()
		case bool:
			s = strconv.FormatBool(v)
		default:
			continue
		}
		if k := canonicalKey(key); k != "" {
			out[k] = s
		}
	}
	return out, nil
}

func flattenForm(body []byte) (map[string]string, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: rest transport: decode form: %v", apperrors.ErrUpstream, err)
	}
	out := make(map[string]string, len(values))
	for key, vs := range values {
		k := canonicalKey(key)
		if len(vs) == 0 || k == "" {
			continue
		}
		out[k] = vs[0]
	}
	return out, nil
}

// canonicalKey maps JSON field names onto the decoder's PascalCase key space.
func canonicalKey(key string) string {
	if alias, ok := keyAliases[key]; ok {
		return alias
	}
	first, _ := utf8.DecodeRuneInString(key)
	if key == "" || unicode.IsUpper(first) {
		return key
	}
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-'
	})
	for i, part := range parts {
		r, size := utf8.DecodeRuneInString(part)
		parts[i] = string(unicode.ToUpper(r)) + part[size:]
	}
	return strings.Join(parts, "")
}
