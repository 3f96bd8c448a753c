package core

import (
	"embed"
	"html/template"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// View names understood by HTMLViews.
const (
	ViewIndex  = "index"
	ViewLogin  = "login"
	ViewAdmin  = "admin"
	ViewDenied = "denied"
	ViewError  = "error"
)

// ViewRenderer writes the named view as the response.
type ViewRenderer interface {
	Render(c *gin.Context, status int, view string, data gin.H)
}

// HTMLViews renders the embedded html/template set.
type HTMLViews struct {
	tmpl *template.Template
}

func NewHTMLViews() (*HTMLViews, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}
	return &HTMLViews{tmpl: tmpl}, nil
}

func (v *HTMLViews) Render(c *gin.Context, status int, view string, data gin.H) {
	c.Render(status, render.HTML{Template: v.tmpl, Name: view, Data: data})
}
