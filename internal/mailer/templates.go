package mailer

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

//go:embed templates/*
var templateFS embed.FS

// Template names.
const (
	TemplateVerifyEmail   = "verify_email"
	TemplateResetPassword = "reset_password"
)

// TemplateData is the variable set available to every email template.
type TemplateData struct {
	Subject        string
	AppName        string
	Name           string
	Code           string
	ExpiresMinutes int
}

// Renderer renders the embedded HTML and plain-text email bodies.
type Renderer struct {
	html map[string]*htmltemplate.Template
	text map[string]*texttemplate.Template
}

// NewRenderer parses all embedded templates up front.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		html: make(map[string]*htmltemplate.Template),
		text: make(map[string]*texttemplate.Template),
	}

	for _, name := range []string{TemplateVerifyEmail, TemplateResetPassword} {
		h, err := htmltemplate.ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s html template: %w", name, err)
		}
		t, err := texttemplate.ParseFS(templateFS, "templates/"+name+".txt")
		if err != nil {
			return nil, fmt.Errorf("parse %s text template: %w", name, err)
		}
		r.html[name] = h
		r.text[name] = t
	}
	return r, nil
}

// Render returns the HTML and text bodies for the named template.
func (r *Renderer) Render(name string, data TemplateData) (string, string, error) {
	h, ok := r.html[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}

	var htmlBuf, textBuf bytes.Buffer
	if err := h.ExecuteTemplate(&htmlBuf, "base", data); err != nil {
		return "", "", fmt.Errorf("render %s html: %w", name, err)
	}
	if err := r.text[name].Execute(&textBuf, data); err != nil {
		return "", "", fmt.Errorf("render %s text: %w", name, err)
	}
	return htmlBuf.String(), textBuf.String(), nil
}
