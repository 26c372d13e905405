// Package contactsync copies a storefront quote form onto an ActiveCampaign
// contact, then subscribes, enrolls and tags that contact.
package contactsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/3tprintsolutions/formrelay/internal/config"
	"github.com/3tprintsolutions/formrelay/internal/gateway"
)

// ContactProvider is an abstraction for the marketing automation API
type ContactProvider interface {
	SyncContact(ctx context.Context, c Contact) (string, error)
	SubscribeList(ctx context.Context, listID, contactID string) error
	EnrollAutomation(ctx context.Context, automationID, contactID string) error
	ApplyTag(ctx context.Context, tagID, contactID string) error
}

// Submission is the identifying part of a quote form
type Submission struct {
	Name  string
	Email string `validate:"required"`
	Phone string
}

// Handler represents the contact sync function
type Handler struct {
	provider ContactProvider
	resolver *Resolver
	cfg      *config.Contact
	cors     gateway.CORS
	log      zerolog.Logger
}

type syncResult struct {
	OK        bool   `json:"ok"`
	ContactID string `json:"contactId"`
}

// enrollment is a follow up association made after the upsert.
// A 409 from the provider means it already exists.
type enrollment struct {
	name    string
	id      string
	message string
	run     func(ctx context.Context, id, contactID string) error
}

var validate = validator.New()

// NewHandler returns a new Handler. The cache outlives the handler's requests
// and is shared between them.
func NewHandler(cfg *config.Contact, p ContactProvider, cache *FieldCache, log zerolog.Logger) *Handler {
	return &Handler{
		provider: p,
		resolver: NewResolver(cfg.StaticFieldIDs, cache),
		cfg:      cfg,
		cors:     gateway.CORS{Origin: cfg.Runtime.AllowedOrigin, Headers: "Content-Type, Api-Token"},
		log:      log,
	}
}

// Handle deals with the incoming quote form
func (h *Handler) Handle(ctx context.Context, request *events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {

	if res, done := h.cors.Guard(request); done {
		return res, nil
	}

	log := h.log.With().Str("request_id", gateway.RequestID(request)).Logger()

	id, err := h.sync(log.WithContext(ctx), request)
	if err != nil {
		log.Error().Err(err).Msg("contact sync failed")
		return h.cors.Apply(gateway.FromError(err)), nil
	}

	log.Info().Str("contact_id", id).Msg("contact synced")
	return h.cors.Apply(gateway.JSON(http.StatusOK, syncResult{OK: true, ContactID: id})), nil
}

// parseSubmission reads the identifying fields of the form
func parseSubmission(body string) (*Submission, error) {

	s := &Submission{
		Name:  gjson.Get(body, "name").String(),
		Email: gjson.Get(body, "email").String(),
		Phone: gjson.Get(body, "phone").String(),
	}
	if err := validate.Struct(s); err != nil {
		return nil, gateway.NewStatusError(http.StatusBadRequest, "Email required", err)
	}

	return s, nil
}

// splitName splits on the first space
func splitName(name string) (first, last string) {
	parts := strings.SplitN(name, " ", 2)
	first = parts[0]
	if len(parts) == 2 {
		last = strings.TrimSpace(parts[1])
	}
	return first, last
}

// sync runs each step in order and stops at the first failure
func (h *Handler) sync(ctx context.Context, request *events.APIGatewayProxyRequest) (string, error) {

	log := zerolog.Ctx(ctx)

	raw, err := gateway.Body(request)
	if err != nil {
		return "", gateway.NewStatusError(http.StatusBadRequest, "Email required", err)
	}
	body := string(raw)

	sub, err := parseSubmission(body)
	if err != nil {
		return "", err
	}

	fvs, err := h.resolver.fieldValues(ctx, body)
	if err != nil {
		return "", err
	}

	first, last := splitName(sub.Name)
	contactID, err := h.provider.SyncContact(ctx, Contact{
		Email:       sub.Email,
		Phone:       sub.Phone,
		FirstName:   first,
		LastName:    last,
		FieldValues: fvs,
	})
	if err != nil {
		return "", upstream(err, "Contact sync failed")
	}
	if contactID == "" {
		return "", gateway.NewStatusError(http.StatusInternalServerError, "No contact id returned", nil)
	}
	log.Debug().Str("contact_id", contactID).Int("fields", len(fvs)).Msg("contact upserted")

	steps := []enrollment{
		{name: "list", id: h.cfg.ListID, message: "List subscribe failed", run: h.provider.SubscribeList},
		{name: "automation", id: h.cfg.AutomationID, message: "Automation add failed", run: h.provider.EnrollAutomation},
		{name: "tag", id: h.cfg.TagID, message: "Tag add failed", run: h.provider.ApplyTag},
	}

	for _, s := range steps {
		if s.id == "" {
			continue
		}
		err := s.run(ctx, s.id, contactID)
		if conflict(err) {
			log.Info().Str("step", s.name).Str("id", s.id).Msg("already applied")
			continue
		}
		if err != nil {
			return "", upstream(err, s.message)
		}
	}

	return contactID, nil
}

// conflict reports a 409 reply
func conflict(err error) bool {
	var se *gateway.StatusError
	return errors.As(err, &se) && se.Status == http.StatusConflict
}

// upstream keeps the provider's status and replaces the message.
// Transport failures stay internal.
func upstream(err error, message string) error {
	var se *gateway.StatusError
	if errors.As(err, &se) {
		return gateway.NewStatusError(se.Status, message, se.Err)
	}
	return fmt.Errorf("%v: %w", strings.ToLower(message), err)
}
