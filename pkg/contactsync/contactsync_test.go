package contactsync

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/events/test"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/3tprintsolutions/formrelay/internal/config"
)

const testFields = `{"fields":[
	{"id":"5","title":"Garment Type"},
	{"id":"6","title":"garment color"},
	{"id":"7","title":" Screen Color Count "},
	{"id":8,"title":"Artwork Width (in)"},
	{"id":"9","title":"Tax Exempt"},
	{"id":"10","title":"Project Notes"},
	{"id":"11","title":"Quote – Per Shirt"},
	{"id":"12","title":"Quote – Subtotal"},
	{"id":"13","title":"Quote – Tax"},
	{"id":"14","title":"Quote – Total"},
	{"id":"15"}
]}`

// fakeAC stands in for the ActiveCampaign API
type fakeAC struct {
	t        *testing.T
	mu       sync.Mutex
	status   map[string]int
	syncBody string
	calls    []string
	bodies   map[string]string
}

func newFakeAC(t *testing.T) *fakeAC {
	return &fakeAC{
		t:        t,
		status:   map[string]int{},
		syncBody: `{"contact":{"id":"42","email":"ada@example.com"}}`,
		bodies:   map[string]string{},
	}
}

func (f *fakeAC) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	f.mu.Lock()
	defer f.mu.Unlock()

	if tok := r.Header.Get("Api-Token"); tok != "secret" {
		f.t.Errorf("wrong token header: %v", tok)
	}

	call := r.Method + " " + r.URL.Path
	f.calls = append(f.calls, call)

	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		f.t.Errorf("could not read request body: %v", err)
	}
	f.bodies[call] = string(body)

	w.Header().Set("Content-Type", "application/json")
	if s, ok := f.status[call]; ok {
		w.WriteHeader(s)
		w.Write([]byte(`{"message":"rejected"}`))
		return
	}

	switch call {
	case "GET /api/3/fields":
		if r.URL.Query().Get("limit") != "200" {
			f.t.Errorf("expected limit=200, got %v", r.URL.RawQuery)
		}
		w.Write([]byte(testFields))
	case "POST /api/3/contact/sync":
		w.Write([]byte(f.syncBody))
	default:
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}
}

func newTestHandler(t *testing.T, url string, cfg *config.Contact) *Handler {
	p, err := NewProvider(url, "secret", 0)
	if err != nil {
		t.Fatalf("could not make provider: %v", err)
	}
	cfg.Runtime.AllowedOrigin = "https://3tprintsolutions.com"
	return NewHandler(cfg, p, NewFieldCache(p.ListFields), zerolog.Nop())
}

// getRequest loads the recorded API Gateway request
func getRequest(t *testing.T) *events.APIGatewayProxyRequest {
	var req events.APIGatewayProxyRequest
	if err := json.Unmarshal(test.ReadJSONFromFile(t, "testdata/quote_request.json"), &req); err != nil {
		t.Fatalf("could not unmarshal request: %v", err)
	}
	return &req
}

func post(body string) *events.APIGatewayProxyRequest {
	return &events.APIGatewayProxyRequest{HTTPMethod: http.MethodPost, Body: body}
}

func fullConfig() *config.Contact {
	return &config.Contact{
		ListID:         "3",
		AutomationID:   "7",
		TagID:          "11",
		StaticFieldIDs: map[string]string{"printSize": "99"},
	}
}

func TestHandle(t *testing.T) {

	all := []string{
		"GET /api/3/fields",
		"POST /api/3/contact/sync",
		"POST /api/3/contactLists",
		"POST /api/3/automations/7/contacts",
		"POST /api/3/contactTags",
	}

	tt := []struct {
		name     string
		cfg      *config.Contact
		req      *events.APIGatewayProxyRequest
		status   map[string]int
		syncBody string
		code     int
		body     string
		calls    []string
	}{
		{name: "happy", cfg: fullConfig(), code: 200, body: `{"ok":true,"contactId":"42"}`, calls: all},
		{
			name:   "conflicts tolerated",
			cfg:    fullConfig(),
			status: map[string]int{all[2]: 409, all[3]: 409, all[4]: 409},
			code:   200,
			body:   `{"ok":true,"contactId":"42"}`,
			calls:  all,
		},
		{
			name:   "list fails",
			cfg:    fullConfig(),
			status: map[string]int{all[2]: 404},
			code:   404,
			body:   `{"error":"List subscribe failed"}`,
			calls:  all[:3],
		},
		{
			name:   "automation fails",
			cfg:    fullConfig(),
			status: map[string]int{all[3]: 422},
			code:   422,
			body:   `{"error":"Automation add failed"}`,
			calls:  all[:4],
		},
		{
			name:   "tag fails",
			cfg:    fullConfig(),
			status: map[string]int{all[2]: 409, all[4]: 403},
			code:   403,
			body:   `{"error":"Tag add failed"}`,
			calls:  all,
		},
		{
			name:   "upsert conflict is not tolerated",
			cfg:    fullConfig(),
			status: map[string]int{all[1]: 409},
			code:   409,
			body:   `{"error":"Contact sync failed"}`,
			calls:  all[:2],
		},
		{
			name:     "no contact id",
			cfg:      fullConfig(),
			syncBody: `{"contact":{}}`,
			code:     500,
			body:     `{"error":"No contact id returned"}`,
			calls:    all[:2],
		},
		{
			name:   "field listing fails",
			cfg:    fullConfig(),
			status: map[string]int{all[0]: 401},
			code:   500,
			calls:  all[:1],
		},
		{name: "nothing optional configured", cfg: &config.Contact{}, code: 200, body: `{"ok":true,"contactId":"42"}`, calls: all[:2]},
		{name: "tag only", cfg: &config.Contact{TagID: "11"}, code: 200, body: `{"ok":true,"contactId":"42"}`, calls: []string{all[0], all[1], all[4]}},
		{name: "missing email", cfg: fullConfig(), req: post(`{"name":"Ada","garmentType":"Hoodie"}`), code: 400, body: `{"error":"Email required"}`},
		{name: "empty email", cfg: fullConfig(), req: post(`{"email":""}`), code: 400, body: `{"error":"Email required"}`},
		{name: "not json", cfg: fullConfig(), req: post(`email=ada@example.com`), code: 400, body: `{"error":"Email required"}`},
		{name: "preflight", cfg: fullConfig(), req: &events.APIGatewayProxyRequest{HTTPMethod: http.MethodOptions}, code: 200},
		{name: "wrong method", cfg: fullConfig(), req: &events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet}, code: 405, body: `{"error":"Method not allowed"}`},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {

			ac := newFakeAC(t)
			for k, v := range tc.status {
				ac.status[k] = v
			}
			if tc.syncBody != "" {
				ac.syncBody = tc.syncBody
			}
			testSrv := httptest.NewServer(ac)
			defer testSrv.Close()

			req := tc.req
			if req == nil {
				req = getRequest(t)
			}

			res, err := newTestHandler(t, testSrv.URL, tc.cfg).Handle(context.Background(), req)
			if err != nil {
				t.Fatalf("could not call Handle: %v", err)
			}

			if res.StatusCode != tc.code {
				t.Errorf("expected %v, got %v: %v", tc.code, res.StatusCode, res.Body)
			}
			if tc.body != "" && res.Body != tc.body {
				t.Errorf("expected body %v, got %v", tc.body, res.Body)
			}
			if o := res.Headers["Access-Control-Allow-Origin"]; o != "https://3tprintsolutions.com" {
				t.Errorf("wrong origin header: %v", o)
			}
			if h := res.Headers["Access-Control-Allow-Headers"]; h != "Content-Type, Api-Token" {
				t.Errorf("wrong allowed headers: %v", h)
			}
			if diff := cmp.Diff(tc.calls, ac.calls); diff != "" {
				t.Errorf("remote calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandlePayloads(t *testing.T) {

	ac := newFakeAC(t)
	testSrv := httptest.NewServer(ac)
	defer testSrv.Close()

	res, err := newTestHandler(t, testSrv.URL, fullConfig()).Handle(context.Background(), getRequest(t))
	if err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected response %v: %v", res.StatusCode, err)
	}

	var got struct {
		Contact struct {
			Email       string       `json:"email"`
			Phone       string       `json:"phone"`
			FirstName   *string      `json:"firstName"`
			LastName    *string      `json:"lastName"`
			FieldValues []FieldValue `json:"fieldValues"`
		} `json:"contact"`
	}
	if err := json.Unmarshal([]byte(ac.bodies["POST /api/3/contact/sync"]), &got); err != nil {
		t.Fatalf("could not decode sync payload: %v", err)
	}

	if got.Contact.Email != "ada@example.com" || got.Contact.Phone != "555-0100" {
		t.Errorf("unexpected identity: %+v", got.Contact)
	}
	if got.Contact.FirstName == nil || *got.Contact.FirstName != "Ada" {
		t.Errorf("expected first name Ada, got %v", got.Contact.FirstName)
	}
	if got.Contact.LastName == nil || *got.Contact.LastName != "Mary Lovelace" {
		t.Errorf("expected last name Mary Lovelace, got %v", got.Contact.LastName)
	}

	want := []FieldValue{
		{Field: "5", Value: "Hoodie"},
		{Field: "7", Value: "3"},
		{Field: "99", Value: "Full Front"},
		{Field: "8", Value: "11.5"},
		{Field: "9", Value: "false"},
		{Field: "11", Value: "18.25"},
		{Field: "12", Value: "365"},
		{Field: "14", Value: "394.2"},
	}
	if diff := cmp.Diff(want, got.Contact.FieldValues); diff != "" {
		t.Errorf("field values mismatch (-want +got):\n%s", diff)
	}

	follow := map[string]string{
		"POST /api/3/contactLists":           `{"contactList":{"list":"3","contact":"42","status":1}}`,
		"POST /api/3/automations/7/contacts": `{"contact":{"id":"42"}}`,
		"POST /api/3/contactTags":            `{"contactTag":{"contact":"42","tag":"11"}}`,
	}
	for call, body := range follow {
		if ac.bodies[call] != body {
			t.Errorf("%v: expected %v, got %v", call, body, ac.bodies[call])
		}
	}
}

func TestHandleOmitsUnknownFields(t *testing.T) {

	ac := newFakeAC(t)
	testSrv := httptest.NewServer(ac)
	defer testSrv.Close()

	h := newTestHandler(t, testSrv.URL, &config.Contact{})
	res, err := h.Handle(context.Background(), post(`{"email":"ada@example.com","name":"Ada","printSize":"Full Front","locations":"Back"}`))
	if err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected response %v: %v", res.StatusCode, err)
	}

	want := `{"contact":{"email":"ada@example.com","phone":"","firstName":"Ada","fieldValues":[]}}`
	if got := ac.bodies["POST /api/3/contact/sync"]; got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestHandleReusesFieldCache(t *testing.T) {

	ac := newFakeAC(t)
	testSrv := httptest.NewServer(ac)
	defer testSrv.Close()

	h := newTestHandler(t, testSrv.URL, &config.Contact{})
	for i := 0; i < 3; i++ {
		res, err := h.Handle(context.Background(), getRequest(t))
		if err != nil || res.StatusCode != http.StatusOK {
			t.Fatalf("unexpected response %v: %v", res.StatusCode, err)
		}
	}

	fetches := 0
	for _, c := range ac.calls {
		if c == "GET /api/3/fields" {
			fetches++
		}
	}
	if fetches != 1 {
		t.Errorf("expected one field listing, got %v", fetches)
	}
}

func TestSplitName(t *testing.T) {

	tt := []struct {
		in, first, last string
	}{
		{in: "Ada", first: "Ada"},
		{in: "Ada Lovelace", first: "Ada", last: "Lovelace"},
		{in: "Ada  Mary Lovelace ", first: "Ada", last: "Mary Lovelace"},
		{in: " Lovelace", first: "", last: "Lovelace"},
		{in: ""},
	}

	for _, tc := range tt {
		first, last := splitName(tc.in)
		if first != tc.first || last != tc.last {
			t.Errorf("splitName(%q) = %q, %q; expected %q, %q", tc.in, first, last, tc.first, tc.last)
		}
	}
}
