package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// Kind classifies a response.
type Kind int

const (
	Success Kind = iota
	Unauthorized
	Failure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Unauthorized:
		return "unauthorized"
	case Failure:
		return "failure"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Result is the classified outcome of one call. Body is set for Success
// (and kept for Failure when the server sent one); Message is set for
// Failure only. Err carries the cause when the server was never reached.
type Result struct {
	Kind    Kind
	Status  int
	Body    []byte
	Message string
	Err     error
}

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Fallback is the message used when a failed response carries none.
	Fallback string
}

func (r Request) String() string {
	s := r.Method + " " + r.Path
	if len(r.Query) > 0 {
		s += "?" + r.Query.Encode()
	}
	return s
}

// Decode parses a Success body into T. An empty body or a JSON null yields
// the zero value of T, which is how callers detect an absent payload.
func Decode[T any](r Result) (T, error) {
	var out T
	if r.Kind != Success {
		return out, errors.Errorf("decode %s result", r.Kind)
	}
	body := bytes.TrimSpace(r.Body)
	if len(body) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, errors.Wrap(err, "unexpected response from server")
	}
	return out, nil
}

func ListPolicies() Request {
	return Request{Method: http.MethodGet, Path: "/policies/", Fallback: "Failed to fetch policies"}
}

func SearchPolicies(term string) Request {
	return Request{
		Method:   http.MethodGet,
		Path:     "/policies/search/",
		Query:    url.Values{"query": {term}},
		Fallback: "Failed to fetch policies",
	}
}

func GetPolicy(id int64) Request {
	return Request{Method: http.MethodGet, Path: "/policies/" + strconv.FormatInt(id, 10), Fallback: "Failed to fetch policy"}
}

func MyNotifications() Request {
	return Request{Method: http.MethodGet, Path: "/notifications/me/", Fallback: "Failed to fetch notifications"}
}

func MarkNotificationRead(id int64) Request {
	return Request{
		Method:   http.MethodPut,
		Path:     "/notifications/" + strconv.FormatInt(id, 10) + "/read",
		Body:     ReadUpdate{Read: true},
		Fallback: "Failed to mark notification as read",
	}
}

func PolicyStatusSummary() Request {
	return Request{Method: http.MethodGet, Path: "/reports/policy-status-summary", Fallback: "Failed to fetch policy summary"}
}

func AttestationStatusFor(versionID int64) Request {
	return Request{
		Method:   http.MethodGet,
		Path:     "/reports/attestation-status/" + strconv.FormatInt(versionID, 10),
		Fallback: "Failed to fetch attestation status",
	}
}
