package httpkit

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// MaxBodyBytes bounds inbound request bodies.
const MaxBodyBytes = 1 << 20

// ReadFields extracts the named string fields from a JSON object body or from
// url-encoded / multipart form data. Missing fields are returned as "".
// Only the body is read; the query string is ignored.
func ReadFields(w http.ResponseWriter, r *http.Request, names ...string) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	out := make(map[string]string, len(names))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var raw map[string]any
		if err := DecodeJSON(r, &raw); err != nil {
			return nil, fmt.Errorf("invalid json body: %w", err)
		}
		for _, n := range names {
			v, ok := raw[n]
			if !ok || v == nil {
				out[n] = ""
				continue
			}
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("field %s must be a string", n)
			}
			out[n] = s
		}
		return out, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if err := r.ParseMultipartForm(MaxBodyBytes); err != nil {
			return nil, fmt.Errorf("invalid multipart form: %w", err)
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form body: %w", err)
	}
	for _, n := range names {
		out[n] = r.PostFormValue(n)
	}
	return out, nil
}

// DecodeJSON decodes a single JSON value from the request body.
func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}
