package server

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/fiberplan/internal/export"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="id">
<head>
<meta charset="utf-8">
<title>KML to Master Pop Up</title>
<style>
body { font-family: sans-serif; max-width: 40rem; margin: 3rem auto; }
fieldset { border: 1px solid #ccc; padding: 1rem; }
label { display: block; margin: 0.5rem 0; }
</style>
</head>
<body>
<h1>KML to Master Pop Up</h1>
<form action="/process" method="post" enctype="multipart/form-data">
<fieldset>
<label>Design file (.kml / .kmz, max {{.MaxUploadMB}} MB)
<input type="file" name="{{.Field}}" accept=".kml,.kmz" required>
</label>
<label>Output format
<select name="format">
{{range .Formats}}<option value="{{.}}">{{.}}</option>
{{end}}</select>
</label>
<button type="submit">Process</button>
</fieldset>
</form>
</body>
</html>
`))

type indexData struct {
	Field       string
	MaxUploadMB int64
	Formats     []export.Format
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTemplate.Execute(w, indexData{
		Field:       FormField,
		MaxUploadMB: s.cfg.MaxUploadMB,
		Formats:     export.Formats,
	})
	if err != nil {
		zap.L().Warn("server: render index", zap.Error(err))
	}
}
