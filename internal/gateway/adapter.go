package gateway

import (
	"context"
	"encoding/base64"
	"io/ioutil"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
)

// Func is a Lambda proxy handler
type Func func(context.Context, *events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// Adapt serves a Lambda proxy handler over net/http
func Adapt(fn Func) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		req := &events.APIGatewayProxyRequest{
			Resource:          r.URL.Path,
			Path:              r.URL.Path,
			HTTPMethod:        r.Method,
			Headers:           map[string]string{},
			MultiValueHeaders: map[string][]string{},
			Body:              base64.StdEncoding.EncodeToString(body),
			IsBase64Encoded:   true,
			RequestContext: events.APIGatewayProxyRequestContext{
				RequestID:  uuid.NewString(),
				HTTPMethod: r.Method,
				Path:       r.URL.Path,
			},
		}
		for k, vs := range r.Header {
			req.MultiValueHeaders[k] = vs
			if len(vs) > 0 {
				req.Headers[k] = vs[0]
			}
		}
		if q := r.URL.Query(); len(q) > 0 {
			req.QueryStringParameters = map[string]string{}
			for k := range q {
				req.QueryStringParameters[k] = q.Get(k)
			}
		}

		resp, err := fn(r.Context(), req)
		if err != nil {
			resp = FromError(err)
		}

		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		for k, vs := range resp.MultiValueHeaders {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		out := []byte(resp.Body)
		if resp.IsBase64Encoded {
			if out, err = base64.StdEncoding.DecodeString(resp.Body); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(resp.StatusCode)
		w.Write(out)
	}
}
