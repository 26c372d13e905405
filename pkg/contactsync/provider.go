package contactsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/3tprintsolutions/formrelay/internal/client"
	"github.com/3tprintsolutions/formrelay/internal/gateway"
)

// Contact is the contact record upserted by email
type Contact struct {
	Email       string       `json:"email"`
	Phone       string       `json:"phone"`
	FirstName   string       `json:"firstName,omitempty"`
	LastName    string       `json:"lastName,omitempty"`
	FieldValues []FieldValue `json:"fieldValues"`
}

// Provider is an ActiveCampaign v3 API client
type Provider struct {
	client *client.Client
}

// NewProvider returns a Provider for the account at base
func NewProvider(base, token string, timeout time.Duration) (*Provider, error) {
	c, err := client.New(strings.TrimRight(base, "/")+"/", timeout, http.Header{
		"Api-Token": {token},
		"Accept":    {"application/json"},
	})
	if err != nil {
		return nil, err
	}
	return &Provider{client: c}, nil
}

// call sends a JSON request; a non 2xx reply is returned as a StatusError
func (p *Provider) call(ctx context.Context, method, path string, in interface{}) ([]byte, error) {

	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("could not marshal payload: %w", err)
		}
		body = b
	}

	status, out, err := p.client.Call(ctx, method, path, "application/json", body)
	if err != nil {
		return nil, err
	}
	if !client.OK(status) {
		return out, gateway.NewStatusError(status, http.StatusText(status), fmt.Errorf("%v %v replied: %s", method, path, out))
	}

	return out, nil
}

// ListFields returns the account's custom fields keyed by normalised title
func (p *Provider) ListFields(ctx context.Context) (map[string]string, error) {

	out, err := p.call(ctx, http.MethodGet, "api/3/fields?limit=200", nil)
	if err != nil {
		// not forwarded, a failed listing is an internal error
		return nil, fmt.Errorf("failed to load fields: %v", err)
	}

	fields := map[string]string{}
	gjson.GetBytes(out, "fields").ForEach(func(_, f gjson.Result) bool {
		title := f.Get("title").String()
		if title != "" {
			fields[normaliseTitle(title)] = f.Get("id").String()
		}
		return true
	})

	return fields, nil
}

// SyncContact creates or updates a contact by email and returns its id.
// The id is empty when the provider omitted it.
func (p *Provider) SyncContact(ctx context.Context, c Contact) (string, error) {

	out, err := p.call(ctx, http.MethodPost, "api/3/contact/sync", struct {
		Contact Contact `json:"contact"`
	}{Contact: c})
	if err != nil {
		return "", err
	}

	return gjson.GetBytes(out, "contact.id").String(), nil
}

// SubscribeList adds the contact to a list
func (p *Provider) SubscribeList(ctx context.Context, listID, contactID string) error {

	type contactList struct {
		List    string `json:"list"`
		Contact string `json:"contact"`
		Status  int    `json:"status"`
	}
	_, err := p.call(ctx, http.MethodPost, "api/3/contactLists", struct {
		ContactList contactList `json:"contactList"`
	}{ContactList: contactList{List: listID, Contact: contactID, Status: 1}})

	return err
}

// EnrollAutomation adds the contact to an automation
func (p *Provider) EnrollAutomation(ctx context.Context, automationID, contactID string) error {

	type contact struct {
		ID string `json:"id"`
	}
	path := "api/3/automations/" + url.PathEscape(automationID) + "/contacts"
	_, err := p.call(ctx, http.MethodPost, path, struct {
		Contact contact `json:"contact"`
	}{Contact: contact{ID: contactID}})

	return err
}

// ApplyTag tags the contact
func (p *Provider) ApplyTag(ctx context.Context, tagID, contactID string) error {

	type contactTag struct {
		Contact string `json:"contact"`
		Tag     string `json:"tag"`
	}
	_, err := p.call(ctx, http.MethodPost, "api/3/contactTags", struct {
		ContactTag contactTag `json:"contactTag"`
	}{ContactTag: contactTag{Contact: contactID, Tag: tagID}})

	return err
}
