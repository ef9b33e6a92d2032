package gateway

import "strings"

// BodyKind classifies a response body by its declared content type.
// Data Lab services answer with plain text for most control calls, JSON
// for structured listings, and raw bytes for file payloads; the kind is
// decided once at the boundary so callers never sniff.
type BodyKind int

const (
	KindText BodyKind = iota
	KindJSON
	KindBinary
)

// Response is the normalized result of one service call: the HTTP status,
// the complete body, and the declared content type. The gateway only
// returns a Response for 2xx statuses; everything else becomes a
// ServiceError.
type Response struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// Kind returns the body classification for this response.
func (r *Response) Kind() BodyKind {
	ct := strings.ToLower(r.ContentType)

	switch {
	case strings.Contains(ct, "json"):
		return KindJSON
	case strings.HasPrefix(ct, "text/"), strings.Contains(ct, "ascii"):
		return KindText
	case ct == "":
		// Several endpoints omit the header on plain-text replies.
		return KindText
	default:
		return KindBinary
	}
}

// Text returns the body as a string with surrounding whitespace trimmed.
// Control endpoints reply with short tokens ("OK", "True", a job id) that
// sometimes carry a trailing newline.
func (r *Response) Text() string {
	return strings.TrimSpace(string(r.Body))
}
