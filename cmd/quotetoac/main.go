// Function quotetoac syncs storefront quote forms to ActiveCampaign.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"

	"github.com/3tprintsolutions/formrelay/internal/config"
	"github.com/3tprintsolutions/formrelay/internal/logger"
	"github.com/3tprintsolutions/formrelay/pkg/contactsync"
)

var h *contactsync.Handler

func init() {
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))
	ps := ssm.New(sess, &aws.Config{Region: aws.String(os.Getenv("AWS_REGION"))})

	cfg, err := config.LoadContact(ps)
	if err != nil {
		boot := logger.New("info", false)
		boot.Fatal().Err(err).Msg("could not load config")
	}
	log := logger.For(logger.New(cfg.Runtime.LogLevel, false), "quotetoac")

	p, err := contactsync.NewProvider(cfg.APIURL, cfg.APIKey, cfg.Runtime.HTTPTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create provider")
	}

	// one cache per warm container
	h = contactsync.NewHandler(cfg, p, contactsync.NewFieldCache(p.ListFields), log)
}

func handler(ctx context.Context, req *events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.Handle(ctx, req)
}

func main() {
	lambda.Start(handler)
}
