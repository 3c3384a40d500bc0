package api

const pageTemplates = `
{{define "form"}}<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Scope}}</title></head>
<body>
{{if .Notice}}<p class="notice">{{.Notice}}</p>{{end}}
<form method="post" action="/forms/{{.Scope}}">
{{.Inputs}}
<textarea name="message"></textarea>
<button type="submit">Send</button>
</form>
</body>
</html>
{{end}}

{{define "error"}}<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Error</title></head>
<body>
<p class="error">{{.Message}}</p>
</body>
</html>
{{end}}
`
