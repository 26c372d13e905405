// Command devserver serves both functions over plain HTTP for local work
// against the storefront theme.
package main

import (
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/3tprintsolutions/formrelay/internal/config"
	"github.com/3tprintsolutions/formrelay/internal/gateway"
	"github.com/3tprintsolutions/formrelay/internal/logger"
	"github.com/3tprintsolutions/formrelay/pkg/contactsync"
	"github.com/3tprintsolutions/formrelay/pkg/filerelay"
)

const (
	quotePath = "/api/quote-to-ac"
	filesPath = "/api/save-to-shopify-files"
)

func main() {

	base := logger.New(os.Getenv("LOG_LEVEL"), true)

	addr := os.Getenv("DEV_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))
	ps := ssm.New(sess, &aws.Config{Region: aws.String(os.Getenv("AWS_REGION"))})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// a function whose config does not load is left unmounted
	if h, err := quoteHandler(ps, base); err != nil {
		base.Warn().Err(err).Str("path", quotePath).Msg("contact sync disabled")
	} else {
		r.HandleFunc(quotePath, gateway.Adapt(h.Handle))
	}

	if h, err := filesHandler(ps, base); err != nil {
		base.Warn().Err(err).Str("path", filesPath).Msg("file relay disabled")
	} else {
		r.HandleFunc(filesPath, gateway.Adapt(h.Handle))
	}

	base.Info().Str("addr", addr).Msg("listening")
	if err := http.ListenAndServe(addr, r); err != nil {
		base.Fatal().Err(err).Msg("server stopped")
	}
}

func quoteHandler(ps config.ParameterGetter, base zerolog.Logger) (*contactsync.Handler, error) {

	cfg, err := config.LoadContact(ps)
	if err != nil {
		return nil, err
	}

	p, err := contactsync.NewProvider(cfg.APIURL, cfg.APIKey, cfg.Runtime.HTTPTimeout)
	if err != nil {
		return nil, err
	}

	return contactsync.NewHandler(cfg, p, contactsync.NewFieldCache(p.ListFields), logger.For(base, "quotetoac")), nil
}

func filesHandler(ps config.ParameterGetter, base zerolog.Logger) (*filerelay.Handler, error) {

	cfg, err := config.LoadFiles(ps)
	if err != nil {
		return nil, err
	}

	shop, err := filerelay.NewShopify(cfg.GraphQLURL(), cfg.AdminToken, cfg.Runtime.HTTPTimeout)
	if err != nil {
		return nil, err
	}

	return filerelay.NewHandler(cfg, shop, filerelay.NewUploader(cfg.Runtime.HTTPTimeout), logger.For(base, "savefiles")), nil
}
