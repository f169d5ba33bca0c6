package chart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
)

// PlotlyURL is the plotly.js bundle loaded by generated pages.
const PlotlyURL = "https://cdn.plot.ly/plotly-2.35.2.min.js"

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="{{.PlotlyURL}}"></script>
<style>body{font-family:sans-serif;margin:16px;background:#fff}</style>
</head>
<body>
<h2>{{.Title}}</h2>
{{range .Figures}}<div id="{{.ID}}" class="figure"></div>
{{end}}<script>
{{range .Figures}}Plotly.newPlot({{.ID}}, {{.Data}}, {{.Layout}}, {responsive: true});
{{end}}</script>
</body>
</html>
`))

type pageFigure struct {
	ID     string
	Data   template.JS
	Layout template.JS
}

// HTML renders figures into a standalone page. Figure divs are numbered
// fig-0, fig-1, ... in order.
func HTML(title string, figures ...Figure) ([]byte, error) {
	page := struct {
		Title     string
		PlotlyURL string
		Figures   []pageFigure
	}{Title: title, PlotlyURL: PlotlyURL}

	for i, f := range figures {
		data, err := json.Marshal(f.Data)
		if err != nil {
			return nil, fmt.Errorf("encode figure %d data: %w", i, err)
		}
		layout, err := json.Marshal(f.Layout)
		if err != nil {
			return nil, fmt.Errorf("encode figure %d layout: %w", i, err)
		}
		page.Figures = append(page.Figures, pageFigure{
			ID:     fmt.Sprintf("fig-%d", i),
			Data:   template.JS(data),
			Layout: template.JS(layout),
		})
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
