package filerelay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/3tprintsolutions/formrelay/internal/client"
)

const stagedUploadsCreate = `
mutation stagedUploadsCreate($input: [StagedUploadInput!]!) {
  stagedUploadsCreate(input: $input) {
    stagedTargets {
      url
      resourceUrl
      parameters { name value }
    }
    userErrors { field message }
  }
}
`

const fileCreate = `
mutation fileCreate($files: [FileCreateInput!]!) {
  fileCreate(files: $files) {
    files { alt url ... on MediaImage { image { url } } }
    userErrors { field message }
  }
}
`

// StagedUploadInput asks for one staging slot
type StagedUploadInput struct {
	Resource   string `json:"resource"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mimeType"`
	HTTPMethod string `json:"httpMethod"`
}

// Parameter is a signed form field the staging endpoint expects
type Parameter struct {
	Name  string
	Value string
}

// StagedTarget is where one file is uploaded to
type StagedTarget struct {
	URL         string
	ResourceURL string
	Parameters  []Parameter
}

// FileCreateInput registers an uploaded file as a store asset
type FileCreateInput struct {
	OriginalSource string `json:"originalSource"`
	ContentType    string `json:"contentType"`
	Alt            string `json:"alt"`
}

// Shopify is an admin GraphQL API client
type Shopify struct {
	client *client.Client
}

// NewShopify returns a client for the GraphQL endpoint
func NewShopify(endpoint, token string, timeout time.Duration) (*Shopify, error) {
	c, err := client.New(endpoint, timeout, http.Header{
		"X-Shopify-Access-Token": {token},
		"Accept":                 {"application/json"},
	})
	if err != nil {
		return nil, err
	}
	return &Shopify{client: c}, nil
}

// graphql runs one operation and returns its data
func (s *Shopify) graphql(ctx context.Context, query string, variables interface{}) (gjson.Result, error) {

	in, err := json.Marshal(struct {
		Query     string      `json:"query"`
		Variables interface{} `json:"variables"`
	}{Query: query, Variables: variables})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("could not marshal graphql payload: %w", err)
	}

	status, out, err := s.client.Call(ctx, http.MethodPost, "", "application/json", in)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(out) {
		return gjson.Result{}, fmt.Errorf("invalid graphql response (status %d): %s", status, out)
	}

	res := gjson.ParseBytes(out)
	if errs := res.Get("errors"); errs.Exists() && errs.Type != gjson.Null {
		return gjson.Result{}, fmt.Errorf("%s", errs.Raw)
	}
	if !client.OK(status) {
		return gjson.Result{}, fmt.Errorf("%s", out)
	}

	return res.Get("data"), nil
}

// userErrors joins the mutation's user errors, empty when there are none
func userErrors(r gjson.Result) string {
	var msgs []string
	r.ForEach(func(_, e gjson.Result) bool {
		msg := e.Get("message").String()
		if f := e.Get("field"); f.Exists() && f.Type != gjson.Null {
			var parts []string
			f.ForEach(func(_, p gjson.Result) bool {
				parts = append(parts, p.String())
				return true
			})
			if len(parts) > 0 {
				msg = strings.Join(parts, ".") + ": " + msg
			}
		}
		msgs = append(msgs, msg)
		return true
	})
	return strings.Join(msgs, "; ")
}

// StageUploads requests one staging slot per input, in order
func (s *Shopify) StageUploads(ctx context.Context, inputs []StagedUploadInput) ([]StagedTarget, error) {

	data, err := s.graphql(ctx, stagedUploadsCreate, map[string]interface{}{"input": inputs})
	if err != nil {
		return nil, err
	}

	if ue := userErrors(data.Get("stagedUploadsCreate.userErrors")); ue != "" {
		return nil, fmt.Errorf("staged upload rejected: %v", ue)
	}

	var targets []StagedTarget
	data.Get("stagedUploadsCreate.stagedTargets").ForEach(func(_, t gjson.Result) bool {
		st := StagedTarget{
			URL:         t.Get("url").String(),
			ResourceURL: t.Get("resourceUrl").String(),
		}
		t.Get("parameters").ForEach(func(_, p gjson.Result) bool {
			st.Parameters = append(st.Parameters, Parameter{Name: p.Get("name").String(), Value: p.Get("value").String()})
			return true
		})
		targets = append(targets, st)
		return true
	})

	return targets, nil
}

// CreateFiles registers staged resources as files and returns the public URL
// of each created file that has one, in order. Warnings are user errors that
// did not stop the mutation.
func (s *Shopify) CreateFiles(ctx context.Context, files []FileCreateInput) (urls []string, warnings string, err error) {

	data, err := s.graphql(ctx, fileCreate, map[string]interface{}{"files": files})
	if err != nil {
		return nil, "", err
	}

	urls = []string{}
	data.Get("fileCreate.files").ForEach(func(_, f gjson.Result) bool {
		u := f.Get("url").String()
		if u == "" {
			u = f.Get("image.url").String()
		}
		if u != "" {
			urls = append(urls, u)
		}
		return true
	})

	return urls, userErrors(data.Get("fileCreate.userErrors")), nil
}
