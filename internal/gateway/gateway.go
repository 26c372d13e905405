// Package gateway holds the API Gateway plumbing shared by the relay functions:
// CORS, JSON responses, status carrying errors and request accessors.
package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
)

// CORS describes the single origin policy applied to every response
type CORS struct {
	Origin  string
	Headers string
}

// Apply adds the CORS headers to resp
func (c CORS) Apply(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers["Access-Control-Allow-Origin"] = c.Origin
	resp.Headers["Access-Control-Allow-Methods"] = "POST, OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = c.Headers
	return resp
}

// Guard answers preflight and non POST requests.
// It reports false when the request should be handled.
func (c CORS) Guard(req *events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, bool) {
	switch req.HTTPMethod {
	case http.MethodOptions:
		return c.Apply(events.APIGatewayProxyResponse{StatusCode: http.StatusOK}), true
	case http.MethodPost:
		return events.APIGatewayProxyResponse{}, false
	default:
		return c.Apply(Error(http.StatusMethodNotAllowed, "Method not allowed")), true
	}
}

// StatusError is an error carrying the status to respond with
type StatusError struct {
	Status  int
	Message string
	Err     error
}

// NewStatusError returns a StatusError wrapping err
func NewStatusError(status int, message string, err error) *StatusError {
	return &StatusError{Status: status, Message: message, Err: err}
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// JSON returns a response with v as its body
func JSON(status int, v interface{}) events.APIGatewayProxyResponse {
	b, err := json.Marshal(v)
	if err != nil {
		return Error(http.StatusInternalServerError, err.Error())
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(b),
	}
}

// Error returns a response with an error message body
func Error(status int, msg string) events.APIGatewayProxyResponse {
	b, _ := json.Marshal(struct {
		Error string `json:"error"`
	}{Error: msg})
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(b),
	}
}

// FromError maps err to a response. Only a StatusError chooses its status,
// anything else is a 500 with the error text.
func FromError(err error) events.APIGatewayProxyResponse {
	var se *StatusError
	if errors.As(err, &se) {
		return Error(se.Status, se.Message)
	}
	return Error(http.StatusInternalServerError, err.Error())
}

// Header returns the first value of the named request header, ignoring case
func Header(req *events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	for k, vs := range req.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

// Body returns the raw request body
func Body(req *events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	return base64.StdEncoding.DecodeString(req.Body)
}

// RequestID returns the gateway request id, or a fresh one when absent
func RequestID(req *events.APIGatewayProxyRequest) string {
	if id := req.RequestContext.RequestID; id != "" {
		return id
	}
	return uuid.NewString()
}
