package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var protocolTemplate = template.Must(template.New("protocol").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(protocolTemplateHTML))

// TemplateData holds data for protocol template rendering
type TemplateData struct {
	Title         string
	Confidential  bool
	ChairName     string
	SecretaryName string
	StartedAt     time.Time
	EndedAt       time.Time
	Absentees     []string
	Sections      []TemplateSection
}

// TemplateSection holds one agenda item for the template
type TemplateSection struct {
	TopNumber  int
	Title      string
	Category   string
	NotesHTML  template.HTML
	VoteResult string
}

// RenderProtocolHTML renders the protocol template with provided data
func RenderProtocolHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := protocolTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// NotesToHTML converts plain protocol notes to paragraphs. Blank lines
// separate paragraphs; everything is escaped.
func NotesToHTML(notes string) template.HTML {
	notes = strings.ReplaceAll(notes, "\r\n", "\n")
	blocks := strings.Split(notes, "\n\n")

	var b strings.Builder
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		b.WriteString("<p>")
		lines := strings.Split(block, "\n")
		for i, line := range lines {
			if i > 0 {
				b.WriteString("<br>")
			}
			b.WriteString(template.HTMLEscapeString(line))
		}
		b.WriteString("</p>\n")
	}
	return template.HTML(b.String())
}

const protocolTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, 'Times New Roman', serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; }
    .meta { color: #555; font-size: 0.95em; margin-bottom: 2rem; }
    .meta dt { font-weight: bold; float: left; clear: left; width: 8em; }
    .meta dd { margin-left: 9em; }
    .confidential-banner { background: #7a1f1f; color: white; text-align: center; padding: 0.4rem; letter-spacing: 0.2em; text-transform: uppercase; font-size: 0.85em; }
    .vote { background: #f0f4f8; border-left: 3px solid #1f4e79; padding: 0.6rem 1rem; margin-top: 0.8rem; }
  </style>
</head>
<body>
  {{if .Confidential}}<div class="confidential-banner">Confidential</div>{{end}}
  <h1>{{.Title}}</h1>
  <dl class="meta">
    {{if not .StartedAt.IsZero}}<dt>Opened</dt><dd>{{formatDate .StartedAt "2006-01-02 15:04"}}</dd>{{end}}
    {{if not .EndedAt.IsZero}}<dt>Closed</dt><dd>{{formatDate .EndedAt "2006-01-02 15:04"}}</dd>{{end}}
    {{if .ChairName}}<dt>Chair</dt><dd>{{.ChairName}}</dd>{{end}}
    {{if .SecretaryName}}<dt>Secretary</dt><dd>{{.SecretaryName}}</dd>{{end}}
    {{if .Absentees}}<dt>Absent</dt><dd>{{range $i, $name := .Absentees}}{{if $i}}, {{end}}{{$name}}{{end}}</dd>{{end}}
  </dl>
  {{range .Sections}}
  <h2>TOP {{.TopNumber}}: {{.Title}}</h2>
  <div>{{.NotesHTML}}</div>
  {{if .VoteResult}}<div class="vote"><strong>Resolution:</strong> {{.VoteResult}}</div>{{end}}
  {{end}}
</body>
</html>`
