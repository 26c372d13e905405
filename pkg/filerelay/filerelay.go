// Package filerelay saves artwork files posted by the storefront into the
// store's Files through Shopify's staged upload flow.
//
// Every file gets a staging target, is posted to it, and the staged resources
// are then registered with a single fileCreate. The first failure ends the
// request; files already staged are left for Shopify to expire.
package filerelay

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/3tprintsolutions/formrelay/internal/config"
	"github.com/3tprintsolutions/formrelay/internal/gateway"
)

// Assets is an abstraction for the store's asset API
type Assets interface {
	StageUploads(ctx context.Context, inputs []StagedUploadInput) ([]StagedTarget, error)
	CreateFiles(ctx context.Context, files []FileCreateInput) ([]string, string, error)
}

// Stager is an abstraction for posting bytes to a staging target
type Stager interface {
	Upload(ctx context.Context, t StagedTarget, f File) error
}

// Handler represents the file relay function
type Handler struct {
	assets Assets
	stager Stager
	cors   gateway.CORS
	log    zerolog.Logger
}

type emptyResult struct {
	OK    bool     `json:"ok"`
	Saved []string `json:"saved"`
	Note  string   `json:"note"`
}

type relayResult struct {
	OK    bool     `json:"ok"`
	Count int      `json:"count"`
	URLs  []string `json:"urls"`
}

// NewHandler returns a new Handler
func NewHandler(cfg *config.Files, a Assets, s Stager, log zerolog.Logger) *Handler {
	return &Handler{
		assets: a,
		stager: s,
		cors:   gateway.CORS{Origin: cfg.Runtime.AllowedOrigin, Headers: "Content-Type"},
		log:    log,
	}
}

// Handle deals with the incoming multipart submission
func (h *Handler) Handle(ctx context.Context, request *events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {

	if res, done := h.cors.Guard(request); done {
		return res, nil
	}

	log := h.log.With().Str("request_id", gateway.RequestID(request)).Logger()

	files, err := readFiles(request)
	if err != nil {
		log.Error().Err(err).Msg("could not read submission")
		return h.cors.Apply(gateway.FromError(err)), nil
	}

	if len(files) == 0 {
		return h.cors.Apply(gateway.JSON(http.StatusOK, emptyResult{OK: true, Saved: []string{}, Note: "No files in submission"})), nil
	}

	urls, err := h.relay(log.WithContext(ctx), files)
	if err != nil {
		log.Error().Err(err).Int("files", len(files)).Msg("file relay failed")
		return h.cors.Apply(gateway.FromError(err)), nil
	}

	log.Info().Int("files", len(files)).Int("urls", len(urls)).Msg("files saved")
	return h.cors.Apply(gateway.JSON(http.StatusOK, relayResult{OK: true, Count: len(urls), URLs: urls})), nil
}

// relay stages, uploads and registers files, returning their public URLs
func (h *Handler) relay(ctx context.Context, files []File) ([]string, error) {

	log := zerolog.Ctx(ctx)

	inputs := make([]StagedUploadInput, len(files))
	for i, f := range files {
		inputs[i] = StagedUploadInput{
			Resource:   "FILE",
			Filename:   f.filename(),
			MimeType:   f.mimeType(),
			HTTPMethod: http.MethodPost,
		}
	}

	targets, err := h.assets.StageUploads(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, gateway.NewStatusError(http.StatusInternalServerError, "No staged targets from Shopify", nil)
	}
	if len(targets) != len(files) {
		return nil, gateway.NewStatusError(http.StatusInternalServerError, "Target/file count mismatch",
			fmt.Errorf("%d targets for %d files", len(targets), len(files)))
	}

	// targets pair with files by position
	creates := make([]FileCreateInput, len(files))
	for i, f := range files {
		if err := h.stager.Upload(ctx, targets[i], f); err != nil {
			return nil, err
		}
		log.Debug().Str("file", f.Name).Int("bytes", len(f.Data)).Msg("staged")

		alt := f.Name
		if alt == "" {
			alt = "Upload"
		}
		creates[i] = FileCreateInput{OriginalSource: targets[i].ResourceURL, ContentType: "FILE", Alt: alt}
	}

	urls, warnings, err := h.assets.CreateFiles(ctx, creates)
	if err != nil {
		return nil, err
	}
	if warnings != "" {
		log.Warn().Str("user_errors", warnings).Msg("fileCreate reported errors")
	}

	return urls, nil
}
