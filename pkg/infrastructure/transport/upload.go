package transport

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"storefront/pkg/common/domain"
)

const (
	maxUploadMemory = 32 << 20
	maxFileSize     = 10 << 20
)

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}

func parseMultipart(r *http.Request) error {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return errBadRequest("malformed multipart form: %v", err)
	}
	return nil
}

// formFiles reads every file sent under field. Only images are accepted.
func formFiles(r *http.Request, field string) ([]domain.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File[field]
	uploads := make([]domain.Upload, 0, len(headers))
	for _, header := range headers {
		upload, err := readFile(header)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	return uploads, nil
}

func formFile(r *http.Request, field string) (*domain.Upload, error) {
	uploads, err := formFiles(r, field)
	if err != nil || len(uploads) == 0 {
		return nil, err
	}
	return &uploads[0], nil
}

func readFile(header *multipart.FileHeader) (domain.Upload, error) {
	if header.Size > maxFileSize {
		return domain.Upload{}, errBadRequest("file %s is too large", header.Filename)
	}
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return domain.Upload{}, errBadRequest("file %s is not an image", header.Filename)
	}

	file, err := header.Open()
	if err != nil {
		return domain.Upload{}, errors.Wrapf(err, "open upload %s", header.Filename)
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		return domain.Upload{}, errors.Wrapf(err, "read upload %s", header.Filename)
	}
	return domain.Upload{Filename: sanitizeFilename(header.Filename), ContentType: contentType, Body: body}, nil
}

func sanitizeFilename(name string) string {
	name = name[strings.LastIndexAny(name, `/\`)+1:]
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	return name
}
