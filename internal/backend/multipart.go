package backend

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
)

// Form builds a multipart request body with string fields and optional
// file attachments, preserving insertion order.
type Form struct {
	fields []formField
	files  []FilePart
}

type formField struct {
	key   string
	value string
}

// FilePart is a single file attachment.
type FilePart struct {
	Field    string
	Filename string
	Content  []byte
}

// NewForm creates an empty multipart form.
func NewForm() *Form {
	return &Form{}
}

// AddField appends a string field. Empty values are skipped, matching the
// original console's conditional appends.
func (f *Form) AddField(key, value string) *Form {
	if value == "" {
		return f
	}
	f.fields = append(f.fields, formField{key: key, value: value})
	return f
}

// AddBool appends a boolean field as "true"/"false".
func (f *Form) AddBool(key string, value bool) *Form {
	f.fields = append(f.fields, formField{key: key, value: strconv.FormatBool(value)})
	return f
}

// AddFile appends a file attachment. A nil or empty part is skipped.
func (f *Form) AddFile(part *FilePart) *Form {
	if part == nil || len(part.Content) == 0 {
		return f
	}
	f.files = append(f.files, *part)
	return f
}

// encode renders the form into a multipart body and returns the reader
// and content type (with boundary).
func (f *Form) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, fld := range f.fields {
		if err := w.WriteField(fld.key, fld.value); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", fld.key, err)
		}
	}
	for _, fp := range f.files {
		part, err := w.CreateFormFile(fp.Field, fp.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("creating file part %s: %w", fp.Field, err)
		}
		if _, err := part.Write(fp.Content); err != nil {
			return nil, "", fmt.Errorf("writing file part %s: %w", fp.Field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}
