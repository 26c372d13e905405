// Package config loads function configuration from the environment.
//
// Variables are read through koanf, validated with go-playground/validator and
// passed to handlers at construction. Tokens may instead name an SSM parameter
// (the *_PARAM variables), resolved once at cold start.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/go-playground/validator/v10"
	// loads a .env file, when present, for local runs
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// DefaultOrigin is the storefront allowed to call the functions
const DefaultOrigin = "https://3tprintsolutions.com"

// ParameterGetter is an abstraction for a SSM client
type ParameterGetter interface {
	GetParameter(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error)
}

// Runtime holds settings shared by every function
type Runtime struct {
	AllowedOrigin string        `koanf:"allowed_origin" validate:"required,url"`
	LogLevel      string        `koanf:"log_level"`
	HTTPTimeout   time.Duration `koanf:"http_timeout" validate:"gte=0"`
}

// Contact configures the contact sync function
type Contact struct {
	Runtime      Runtime `koanf:"-"`
	APIURL       string  `koanf:"ac_api_url" validate:"required,url"`
	APIKey       string  `koanf:"ac_api_key" validate:"required_without=APIKeyParam"`
	APIKeyParam  string  `koanf:"ac_api_key_param"`
	ListID       string  `koanf:"ac_list_id"`
	AutomationID string  `koanf:"ac_automation_id"`
	TagID        string  `koanf:"ac_tag_id"`
	// FieldIDs pins form keys to custom field ids, as key=id,key=id
	FieldIDs string `koanf:"ac_field_ids"`

	StaticFieldIDs map[string]string `koanf:"-"`
}

// Files configures the file relay function
type Files struct {
	Runtime         Runtime `koanf:"-"`
	Store           string  `koanf:"shopify_store" validate:"required"`
	APIVersion      string  `koanf:"shopify_api_version" validate:"required"`
	AdminToken      string  `koanf:"shopify_admin_token" validate:"required_without=AdminTokenParam"`
	AdminTokenParam string  `koanf:"shopify_admin_token_param"`
}

// GraphQLURL returns the admin GraphQL endpoint of the store
func (f *Files) GraphQLURL() string {
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", f.Store, f.APIVersion)
}

var validate = validator.New()

// load reads the environment into a fresh koanf instance
func load() (*koanf.Koanf, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider("", ".", strings.ToLower), nil)
	if err != nil {
		return nil, fmt.Errorf("could not load environment: %w", err)
	}
	return k, nil
}

func loadRuntime(k *koanf.Koanf) (Runtime, error) {
	var r Runtime
	if err := k.Unmarshal("", &r); err != nil {
		return r, fmt.Errorf("could not unmarshal runtime config: %w", err)
	}
	if r.AllowedOrigin == "" {
		r.AllowedOrigin = DefaultOrigin
	}
	if r.LogLevel == "" {
		r.LogLevel = "info"
	}
	if err := validate.Struct(r); err != nil {
		return r, fmt.Errorf("invalid runtime config: %w", err)
	}
	return r, nil
}

// LoadContact reads and validates the contact sync configuration.
// ps may be nil when no token is held in SSM.
func LoadContact(ps ParameterGetter) (*Contact, error) {

	k, err := load()
	if err != nil {
		return nil, err
	}

	c := &Contact{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("could not unmarshal contact config: %w", err)
	}
	if c.Runtime, err = loadRuntime(k); err != nil {
		return nil, err
	}
	if err := validate.Struct(c); err != nil {
		return nil, fmt.Errorf("invalid contact config: %w", err)
	}

	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.StaticFieldIDs, err = parseFieldIDs(c.FieldIDs); err != nil {
		return nil, err
	}
	if c.APIKey, err = resolveSecret(ps, c.APIKey, c.APIKeyParam); err != nil {
		return nil, fmt.Errorf("could not resolve AC_API_KEY: %w", err)
	}

	return c, nil
}

// LoadFiles reads and validates the file relay configuration
func LoadFiles(ps ParameterGetter) (*Files, error) {

	k, err := load()
	if err != nil {
		return nil, err
	}

	f := &Files{}
	if err := k.Unmarshal("", f); err != nil {
		return nil, fmt.Errorf("could not unmarshal files config: %w", err)
	}
	if f.Runtime, err = loadRuntime(k); err != nil {
		return nil, err
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("invalid files config: %w", err)
	}

	if f.AdminToken, err = resolveSecret(ps, f.AdminToken, f.AdminTokenParam); err != nil {
		return nil, fmt.Errorf("could not resolve SHOPIFY_ADMIN_TOKEN: %w", err)
	}

	return f, nil
}

// parseFieldIDs parses "garmentType=12, printType=14"
func parseFieldIDs(s string) (map[string]string, error) {

	ids := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" || strings.TrimSpace(kv[1]) == "" {
			return nil, fmt.Errorf("invalid field id mapping %q", pair)
		}
		ids[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return ids, nil
}

// resolveSecret prefers a literal value over a SSM parameter
func resolveSecret(ps ParameterGetter, value, param string) (string, error) {

	if value != "" || param == "" {
		return value, nil
	}
	if ps == nil {
		return "", fmt.Errorf("parameter %v set but no SSM client available", param)
	}

	out, err := ps.GetParameter(&ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("could not get parameter %v: %w", param, err)
	}
	if out.Parameter == nil || aws.StringValue(out.Parameter.Value) == "" {
		return "", fmt.Errorf("parameter %v is empty", param)
	}

	return aws.StringValue(out.Parameter.Value), nil
}
