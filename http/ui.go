package http

import (
	"embed"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"rvhrisk/clinical"
)

//go:embed templates/*.html
var templateFS embed.FS

func parseTemplates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

// fieldGroup 表单展示分组
type fieldGroup struct {
	Name   string
	Fields []clinical.FieldSpec
}

// indexView 首页视图数据
type indexView struct {
	Groups         []fieldGroup
	Defaults       []clinical.NamedValue
	ModelAvailable bool
	LoadError      string
}

// handleIndex 渲染评估表单页面
func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	cat := catalogFor(r.Header.Get("Accept-Language"))

	view := indexView{
		Groups:         groupSpecs(clinical.Specs()),
		Defaults:       clinical.DefaultRecord().Named(),
		ModelAvailable: h.loader.Available(),
	}
	if !view.ModelAvailable {
		view.LoadError = cat.ModelNotLoaded
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "index.html", view); err != nil {
		h.logger.Error("rendering index page", zap.Error(err))
	}
}

// groupSpecs 将表单控件按展示分组聚合，保持组内顺序
func groupSpecs(specs []clinical.FieldSpec) []fieldGroup {
	var groups []fieldGroup
	for _, s := range specs {
		if len(groups) == 0 || groups[len(groups)-1].Name != s.Group {
			groups = append(groups, fieldGroup{Name: s.Group})
		}
		g := &groups[len(groups)-1]
		g.Fields = append(g.Fields, s)
	}
	return groups
}
