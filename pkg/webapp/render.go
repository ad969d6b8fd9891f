package webapp

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

var (
	//go:embed views/*.html
	templatesFS embed.FS
)

var viewNames = []string{
	"home",
	"user",
	"transaction",
	"transaction-complete",
	"balance",
	"error",
}

// templateRenderer executes the layout with the content of a named view.
type templateRenderer struct {
	templates map[string]*template.Template
}

func newTemplateRenderer() *templateRenderer {
	funcs := template.FuncMap{
		"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	}
	r := &templateRenderer{templates: make(map[string]*template.Template)}
	for _, name := range viewNames {
		r.templates[name] = template.Must(
			template.New(name).Funcs(funcs).ParseFS(templatesFS, "views/layout.html", "views/"+name+".html"),
		)
	}
	return r
}

func (r *templateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	t, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("view '%s' not found", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}
