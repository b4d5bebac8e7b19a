package api

import "html/template"

const tmplPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>LLM Chess Coach</title>
<style>
*{box-sizing:border-box}
body{font-family:system-ui,sans-serif;background:#0d1117;color:#c9d1d9;font-size:14px;line-height:1.5;margin:0}
.container{max-width:860px;margin:0 auto;padding:24px}
h1{font-size:22px;color:#f0f6fc;margin:0 0 16px}
h2{font-size:15px;color:#8b949e;text-transform:uppercase;letter-spacing:.06em;margin:28px 0 8px}
form{display:inline}
.row{display:flex;gap:8px;align-items:center;flex-wrap:wrap;margin-bottom:12px}
input,select,button{font:inherit;padding:4px 8px;border-radius:4px;border:1px solid #30363d;background:#161b22;color:#c9d1d9}
button{background:#1f6feb;border-color:#1f6feb;color:#fff;cursor:pointer}
.run{background:#161b22;border:1px solid #30363d;border-radius:6px;padding:10px 12px;margin-bottom:12px}
.mono{font-family:monospace;color:#79c0ff}
pre{background:#161b22;border:1px solid #30363d;border-radius:6px;padding:12px;white-space:pre-wrap;word-break:break-word;font-size:12px}
table{width:100%;border-collapse:collapse;font-size:12px}
th{text-align:left;color:#8b949e;font-weight:600;padding:4px 8px;border-bottom:1px solid #30363d}
td{padding:4px 8px;border-bottom:1px solid #21262d}
.ready{color:#56d364}
.pending{color:#f59e0b}
.expired{color:#f87171}
</style>
</head>
<body>
<div class="container">
<h1>LLM Chess Coach</h1>

<div class="row">
<form method="post" action="/analyze">
Analysis Date:
<input type="date" name="date" value="{{.View.Date}}" onchange="saveField('date', this.value)">
<button type="submit">Analyze</button>
</form>
</div>

{{if .View.CanLoad}}
<div class="run">
<p>Run ID: <span class="mono">{{.View.RunID}}</span></p>
<form method="post" action="/analysis/load"><button type="submit">Load Analysis</button></form>
</div>
{{end}}

{{with .View.Analysis}}{{if not .Null}}<pre>{{.Pretty}}</pre>{{end}}{{end}}

<h2>Schedule Analysis</h2>
<form method="post" action="/schedule" class="row">
<input type="date" name="schedule_date" value="{{.View.Draft.Date}}" onchange="saveField('schedule_date', this.value)">
<select name="frequency" onchange="saveField('frequency', this.value)">
{{- range .Frequencies}}
<option value="{{.}}"{{if eq . $.View.Draft.Frequency}} selected{{end}}>{{title .}}</option>
{{- end}}
</select>
<button type="submit">Schedule</button>
</form>

{{if .Recent}}
<h2>Recent Runs</h2>
<table>
<tr><th>Run ID</th><th>Date</th><th>Status</th><th>Started</th></tr>
{{- range .Recent}}
<tr><td class="mono">{{.RunID}}</td><td>{{.Date}}</td><td class="{{.Status}}">{{.Status}}</td><td>{{fmtTime .CreatedAt}}</td></tr>
{{- end}}
</table>
{{end}}
</div>
<script>
function saveField(name, value) {
  var body = new URLSearchParams();
  body.set(name, value);
  fetch('/form', {method: 'POST', body: body});
}
{{with .Ack}}alert({{.}});{{end}}
</script>
</body>
</html>
`

var pageTemplate = template.Must(template.New("page").Funcs(funcMap).Parse(tmplPage))
