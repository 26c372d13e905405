// Function savefiles relays uploaded artwork into the Shopify store's Files.
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
	"github.com/3tprintsolutions/formrelay/pkg/filerelay"
)

var h *filerelay.Handler

func init() {
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))
	ps := ssm.New(sess, &aws.Config{Region: aws.String(os.Getenv("AWS_REGION"))})

	cfg, err := config.LoadFiles(ps)
	if err != nil {
		boot := logger.New("info", false)
		boot.Fatal().Err(err).Msg("could not load config")
	}
	log := logger.For(logger.New(cfg.Runtime.LogLevel, false), "savefiles")

	shop, err := filerelay.NewShopify(cfg.GraphQLURL(), cfg.AdminToken, cfg.Runtime.HTTPTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create shopify client")
	}

	h = filerelay.NewHandler(cfg, shop, filerelay.NewUploader(cfg.Runtime.HTTPTimeout), log)
}

func handler(ctx context.Context, req *events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.Handle(ctx, req)
}

func main() {
	lambda.Start(handler)
}
