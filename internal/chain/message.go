package chain

import (
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/net/http/httpguts"
)

// Message is the generic interface a Chain evaluates Rules against. Request
// and Response below are the two concrete implementations; a chain doesn't
// care which one it was handed, only which Fields the message exposes.
type Message interface {
	// Has reports whether the field is present/applicable on this message
	// (e.g. Status is never present on a Request).
	Has(f Field) bool

	// Get reads the field's current string value. ok is false for an
	// absent optional field (a header that isn't set).
	Get(f Field) (value string, ok bool)

	// Replace unconditionally sets the field to value.
	Replace(f Field, value string) error

	// Append extends a repeatable field (header, body); for
	// non-repeatable fields it behaves like Replace.
	Append(f Field, value string) error

	// Remove deletes the field. Meaningful only for headers; a no-op
	// otherwise.
	Remove(f Field)
}

// Request is the proxy's wire-independent representation of an HTTP
// request, used as both the Chain's Message and the payload handed to the
// external HTTP client.
type Request struct {
	Method string
	URL    *url.URL
	Proto  string
	Header http.Header
	Body   []byte
}

func (r *Request) Has(f Field) bool {
	switch f.Kind {
	case FieldKindMethod, FieldKindURI, FieldKindVersion, FieldKindBody:
		return true
	case FieldKindHeader:
		return len(r.Header.Values(f.HeaderName)) > 0
	default:
		return false
	}
}

func (r *Request) Get(f Field) (string, bool) {
	switch f.Kind {
	case FieldKindMethod:
		return r.Method, true
	case FieldKindURI:
		return r.URL.String(), true
	case FieldKindVersion:
		return r.Proto, true
	case FieldKindBody:
		return string(r.Body), true
	case FieldKindHeader:
		v := r.Header.Get(f.HeaderName)
		if v == "" && len(r.Header.Values(f.HeaderName)) == 0 {
			return "", false
		}
		return v, true
	default:
		return "", false
	}
}

func (r *Request) Replace(f Field, value string) error {
	switch f.Kind {
	case FieldKindMethod:
		r.Method = value
	case FieldKindURI:
		u, err := url.Parse(value)
		if err != nil {
			return err
		}
		r.URL = u
	case FieldKindVersion:
		r.Proto = value
	case FieldKindBody:
		r.Body = []byte(value)
	case FieldKindHeader:
		if !httpguts.ValidHeaderFieldName(f.HeaderName) || !httpguts.ValidHeaderFieldValue(value) {
			return errInvalidHeader(f.HeaderName)
		}
		r.Header.Set(f.HeaderName, value)
	}
	return nil
}

func (r *Request) Append(f Field, value string) error {
	switch f.Kind {
	case FieldKindHeader:
		if !httpguts.ValidHeaderFieldName(f.HeaderName) || !httpguts.ValidHeaderFieldValue(value) {
			return errInvalidHeader(f.HeaderName)
		}
		r.Header.Add(f.HeaderName, value)
		return nil
	case FieldKindBody:
		r.Body = append(r.Body, []byte(value)...)
		return nil
	default:
		return r.Replace(f, value)
	}
}

func (r *Request) Remove(f Field) {
	if f.Kind == FieldKindHeader {
		r.Header.Del(f.HeaderName)
	}
}

// Response is the proxy's wire-independent representation of an HTTP
// response.
type Response struct {
	Proto      string
	StatusCode int
	Reason     string
	Header     http.Header
	Body       []byte
}

func (r *Response) Has(f Field) bool {
	switch f.Kind {
	case FieldKindVersion, FieldKindBody, FieldKindStatus, FieldKindReason:
		return true
	case FieldKindHeader:
		return len(r.Header.Values(f.HeaderName)) > 0
	default:
		return false
	}
}

func (r *Response) Get(f Field) (string, bool) {
	switch f.Kind {
	case FieldKindVersion:
		return r.Proto, true
	case FieldKindStatus:
		return strconv.Itoa(r.StatusCode), true
	case FieldKindReason:
		return r.Reason, true
	case FieldKindBody:
		return string(r.Body), true
	case FieldKindHeader:
		v := r.Header.Get(f.HeaderName)
		if v == "" && len(r.Header.Values(f.HeaderName)) == 0 {
			return "", false
		}
		return v, true
	default:
		return "", false
	}
}

func (r *Response) Replace(f Field, value string) error {
	switch f.Kind {
	case FieldKindVersion:
		r.Proto = value
	case FieldKindStatus:
		code, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		r.StatusCode = code
	case FieldKindReason:
		r.Reason = value
	case FieldKindBody:
		r.Body = []byte(value)
	case FieldKindHeader:
		if !httpguts.ValidHeaderFieldName(f.HeaderName) || !httpguts.ValidHeaderFieldValue(value) {
			return errInvalidHeader(f.HeaderName)
		}
		r.Header.Set(f.HeaderName, value)
	}
	return nil
}

func (r *Response) Append(f Field, value string) error {
	switch f.Kind {
	case FieldKindHeader:
		if !httpguts.ValidHeaderFieldName(f.HeaderName) || !httpguts.ValidHeaderFieldValue(value) {
			return errInvalidHeader(f.HeaderName)
		}
		r.Header.Add(f.HeaderName, value)
		return nil
	case FieldKindBody:
		r.Body = append(r.Body, []byte(value)...)
		return nil
	default:
		return r.Replace(f, value)
	}
}

func (r *Response) Remove(f Field) {
	if f.Kind == FieldKindHeader {
		r.Header.Del(f.HeaderName)
	}
}

type invalidHeaderError string

func (e invalidHeaderError) Error() string { return "chain: invalid header field " + string(e) }

func errInvalidHeader(name string) error { return invalidHeaderError(name) }
