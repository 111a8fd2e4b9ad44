package export

import (
	"bytes"
	"fmt"
	"html/template"
)

var htmlTemplate = template.Must(template.New("export").Funcs(template.FuncMap{
	"secs": func(v *float64) string {
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%.0f", *v)
	},
	"speaker": func(name, id string) string {
		if name != "" {
			return name
		}
		if id != "" {
			return id
		}
		return "unknown"
	},
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; color: #222; }
h1 { border-bottom: 2px solid #ddd; padding-bottom: .3rem; }
.meta { color: #666; font-size: .9rem; }
.segment { margin: .4rem 0; }
.speaker { font-weight: bold; }
.time { color: #999; font-size: .8rem; }
li.done { text-decoration: line-through; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">Generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}}{{if .Author}} by {{.Author}}{{end}}</p>
{{if .Session}}
<h2>Meeting</h2>
<ul>
<li>Room: {{.Session.RoomID}}</li>
<li>Status: {{.Session.Status}}</li>
{{if .Session.DurationSeconds}}<li>Duration: {{secs .Session.DurationSeconds}} seconds</li>{{end}}
{{range .Session.Participants}}<li>{{.Name}}</li>{{end}}
</ul>
{{end}}
{{if .Summaries}}
<h2>Summary</h2>
{{range .Summaries}}<p>{{.Content}}</p>{{end}}
{{end}}
{{if .ActionItems}}
<h2>Action Items</h2>
<ul>
{{range .ActionItems}}<li{{if eq (printf "%s" .Status) "completed"}} class="done"{{end}}>{{.Title}}{{if .AssignedTo}} ({{.AssignedTo}}){{end}}</li>{{end}}
</ul>
{{end}}
{{if .Transcript}}
<h2>Transcript</h2>
{{range .Transcript}}
<div class="segment"><span class="speaker">{{speaker .SpeakerName (printf "%s" .Speaker)}}</span>
<span class="time">{{.Timestamp.Format "15:04:05"}}</span><br>{{.Text}}</div>
{{end}}
{{end}}
</body>
</html>
`))

func renderHTML(doc document) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
