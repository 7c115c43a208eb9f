package gateway

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/iliyamo/ems-console/internal/model"
)

// form builds a multipart/form-data body.  The first write error sticks and
// is reported by close.
type form struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

func newForm() *form {
	f := &form{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *form) field(name, value string) {
	if f.err != nil {
		return
	}
	f.err = f.w.WriteField(name, value)
}

func (f *form) file(name string, a *model.Attachment) {
	if f.err != nil || a == nil {
		return
	}
	filename := a.Filename
	if filename == "" {
		filename = "display-picture"
	}
	ct := a.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, name, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", ct)
	part, err := f.w.CreatePart(h)
	if err != nil {
		f.err = err
		return
	}
	_, f.err = part.Write(a.Data)
}

func (f *form) close() (*bytes.Buffer, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if err := f.w.Close(); err != nil {
		return nil, "", err
	}
	return &f.buf, f.w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func createForm(req model.CreateTenantRequest) (*bytes.Buffer, string, error) {
	f := newForm()
	f.field("Name", req.Name)
	f.field("Email", req.Email)
	f.file("DisplayPictureFile", req.DisplayPictureFile)
	if req.Remarks != "" {
		f.field("Remarks", req.Remarks)
	}
	for _, m := range req.Modules {
		f.field("Modules", string(m))
	}
	f.field("IsActivated", strconv.FormatBool(req.IsActivated))
	return f.close()
}

func updateForm(req model.UpdateTenantRequest) (*bytes.Buffer, string, error) {
	f := newForm()
	f.field("Id", strconv.FormatInt(req.ID, 10))
	if req.Name != "" {
		f.field("Name", req.Name)
	}
	f.file("DisplayPictureFile", req.DisplayPictureFile)
	if req.Remarks != "" {
		f.field("Remarks", req.Remarks)
	}
	for _, m := range req.Modules {
		f.field("Modules", string(m))
	}
	f.field("IsActivated", strconv.FormatBool(req.IsActivated))
	return f.close()
}
