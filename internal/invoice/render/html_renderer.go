package render

import (
	"bytes"
	_ "embed"
	"html/template"
)

//go:embed templates/invoice.html
var invoiceHTML string

type Renderer interface {
	RenderHTML(input RenderInput) (string, error)
}

type HTMLRenderer struct {
	tpl *template.Template
}

func NewRenderer() Renderer {
	return &HTMLRenderer{tpl: template.Must(template.New("invoice").Parse(invoiceHTML))}
}

func (r *HTMLRenderer) RenderHTML(input RenderInput) (string, error) {
	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, NewDocument(input)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
