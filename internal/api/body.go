package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// errMalformedBody marks a payload that could not be read or decoded.
var errMalformedBody = errors.New("malformed body")

// relayFields are the values extracted from a relay request body.
type relayFields struct {
	SessionID  string
	Message    string
	HasMessage bool // message present and textual
}

// parseRelayBody extracts session_id and message from a JSON, form-encoded or
// raw-text body. Webhook clients differ in what they send, so raw text is
// tried as JSON before giving up. The trace entry is filled as parsing goes.
func parseRelayBody(w http.ResponseWriter, r *http.Request, entry *TraceEntry) (relayFields, error) {
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return relayFields{}, fmt.Errorf("%w: read body: %v", errMalformedBody, err)
		}
		entry.setRawBody(body)

		var parsed interface{}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return relayFields{}, fmt.Errorf("%w: decode json: %v", errMalformedBody, err)
		}
		entry.ParsedBody = parsed
		return fieldsFromJSON(parsed), nil

	case "application/x-www-form-urlencoded", "multipart/form-data":
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(defaultMaxRequestBodySize)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return relayFields{}, fmt.Errorf("%w: parse form: %v", errMalformedBody, err)
		}
		form := make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				form[k] = v[0]
			}
		}
		entry.ParsedBody = form

		msg, ok := r.PostForm["message"]
		return relayFields{
			SessionID:  strings.TrimSpace(r.PostForm.Get("session_id")),
			Message:    firstOrEmpty(msg),
			HasMessage: ok && len(msg) > 0,
		}, nil

	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return relayFields{}, fmt.Errorf("%w: read body: %v", errMalformedBody, err)
		}
		entry.setRawBody(body)

		var parsed interface{}
		if err := json.Unmarshal(body, &parsed); err != nil {
			// Not JSON: leave the raw text in the trace and report no fields.
			return relayFields{}, nil
		}
		entry.ParsedBody = parsed
		return fieldsFromJSON(parsed), nil
	}
}

func fieldsFromJSON(parsed interface{}) relayFields {
	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return relayFields{}
	}
	var f relayFields
	if sid, ok := obj["session_id"].(string); ok {
		f.SessionID = strings.TrimSpace(sid)
	}
	if msg, ok := obj["message"].(string); ok {
		f.Message = msg
		f.HasMessage = true
	}
	return f
}

func firstOrEmpty(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}
