package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileUpload is a file entry inside request data. Put it in a data map to
// send the request as multipart/form-data:
//
//	resp, err := httpclient.NewRequest().Post(ctx, "https://example.com/upload", map[string]any{
//	    "title": "report",
//	    "file":  httpclient.File("/tmp/report.pdf"),
//	})
//
// The file is opened on every attempt, so retried requests resend the
// full content.
type FileUpload struct {
	// FileName is the name reported to the server.
	FileName string

	// ContentType defaults to application/octet-stream.
	ContentType string

	path    string
	content []byte
}

// File references a file on disk.
func File(path string) FileUpload {
	return FileUpload{FileName: filepath.Base(path), path: path}
}

// FileBytes wraps in-memory content as a file.
func FileBytes(fileName string, content []byte) FileUpload {
	return FileUpload{FileName: fileName, content: content}
}

func (f FileUpload) open() (io.ReadCloser, error) {
	if f.path != "" {
		return os.Open(f.path)
	}
	return io.NopCloser(bytes.NewReader(f.content)), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// isMultipartBody reports whether a pass-through body is sent as
// multipart/form-data, mirroring how array post fields behave in curl.
func isMultipartBody(body any) bool {
	switch body.(type) {
	case url.Values, map[string]string, map[string][]string, map[string]any:
		return true
	}
	return false
}

// buildMultipart encodes a field map. Keys are written in sorted order.
func buildMultipart(body any) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	var err error
	switch v := body.(type) {
	case url.Values:
		err = writeMultipartValues(writer, v)
	case map[string][]string:
		err = writeMultipartValues(writer, url.Values(v))
	case map[string]string:
		values := make(url.Values, len(v))
		for k, s := range v {
			values.Set(k, s)
		}
		err = writeMultipartValues(writer, values)
	case map[string]any:
		err = writeMultipartFields(writer, v)
	default:
		err = fmt.Errorf("unsupported multipart body %T", body)
	}
	if err != nil {
		return nil, "", err
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf, writer.FormDataContentType(), nil
}

func writeMultipartValues(w *multipart.Writer, values url.Values) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, v := range values[k] {
			if err := w.WriteField(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeMultipartFields(w *multipart.Writer, fields map[string]any) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := fields[k].(type) {
		case FileUpload:
			if err := writeFilePart(w, k, v); err != nil {
				return err
			}
		case *FileUpload:
			if err := writeFilePart(w, k, *v); err != nil {
				return err
			}
		default:
			for _, p := range flattenForm(k, v, nil) {
				if err := w.WriteField(p.key, p.value); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func writeFilePart(w *multipart.Writer, field string, file FileUpload) error {
	r, err := file.open()
	if err != nil {
		return err
	}
	defer r.Close()

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(file.FileName)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, r)
	return err
}
