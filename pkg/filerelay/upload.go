package filerelay

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/3tprintsolutions/formrelay/internal/client"
	"github.com/3tprintsolutions/formrelay/internal/gateway"
)

const (
	// FormField is the form field carrying the artwork files
	FormField = "art_files"
	// defaultMimeType is used when a part declares no type
	defaultMimeType = "application/octet-stream"
	maxMemory       = 32 << 20
)

// File is one submitted file
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// readFiles reads the files posted under FormField, in submission order.
// URL encoded forms carry no files.
func readFiles(request *events.APIGatewayProxyRequest) ([]File, error) {

	ct := gateway.Header(request, "Content-Type")
	if ct == "" {
		return nil, fmt.Errorf("missing content type")
	}
	mt, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return nil, fmt.Errorf("could not parse content type: %w", err)
	}

	switch {
	case mt == "application/x-www-form-urlencoded":
		return nil, nil
	case !strings.HasPrefix(mt, "multipart/"):
		return nil, fmt.Errorf("unsupported content type %v", mt)
	}

	body, err := gateway.Body(request)
	if err != nil {
		return nil, fmt.Errorf("could not decode body: %w", err)
	}

	form, err := multipart.NewReader(bytes.NewReader(body), params["boundary"]).ReadForm(maxMemory)
	if err != nil {
		return nil, fmt.Errorf("could not read form: %w", err)
	}
	defer form.RemoveAll()

	var files []File
	for _, fh := range form.File[FormField] {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("could not open %v: %w", fh.Filename, err)
		}
		data, err := ioutil.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("could not read %v: %w", fh.Filename, err)
		}
		files = append(files, File{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data})
	}

	return files, nil
}

// Uploader posts files to staging targets
type Uploader struct {
	client *client.Client
}

// NewUploader returns an Uploader. Staging URLs are absolute so there is no base.
func NewUploader(timeout time.Duration) *Uploader {
	c, _ := client.New("", timeout, nil)
	return &Uploader{client: c}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// uploadForm writes the target's parameters, in order, followed by the file
func uploadForm(t StagedTarget, f File) ([]byte, string, error) {

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, p := range t.Parameters {
		if err := w.WriteField(p.Name, p.Value); err != nil {
			return nil, "", err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(f.filename())))
	h.Set("Content-Type", f.mimeType())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}

// Upload sends one file to its staging target
func (u *Uploader) Upload(ctx context.Context, t StagedTarget, f File) error {

	body, ct, err := uploadForm(t, f)
	if err != nil {
		return fmt.Errorf("could not build upload form: %w", err)
	}

	status, out, err := u.client.Call(ctx, http.MethodPost, t.URL, ct, body)
	if err != nil {
		return err
	}
	if !client.OK(status) {
		return fmt.Errorf("staged upload failed: %s", out)
	}

	return nil
}

func (f File) filename() string {
	if f.Name == "" {
		return "upload"
	}
	return f.Name
}

func (f File) mimeType() string {
	if f.ContentType == "" {
		return defaultMimeType
	}
	return f.ContentType
}
