package notify

const emailHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Subject}}</title>
  <style>
    body {
      margin: 0;
      padding: 24px;
      background-color: #f3f4f6;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      color: #111827;
      line-height: 1.5;
    }

    .container {
      max-width: 640px;
      margin: 0 auto;
      background: #ffffff;
      border-radius: 8px;
      border: 1px solid #e5e7eb;
      overflow: hidden;
    }

    .header {
      padding: 20px 24px;
      background: linear-gradient(135deg, #463737 0%, #37393b 100%);
      color: #ffffff;
    }

    .title {
      font-size: 15px;
      opacity: 0.9;
    }

    .section {
      padding: 16px 24px;
      border-top: 1px solid #f3f4f6;
    }

    .section-title {
      font-size: 11px;
      font-weight: 700;
      color: #6b7280;
      text-transform: uppercase;
      letter-spacing: 0.1em;
      margin-bottom: 12px;
    }

    .run-id {
      font-size: 20px;
      font-weight: 700;
      letter-spacing: 0.05em;
      margin-bottom: 4px;
    }

    .status-failed {
      color: #b91c1c;
      font-weight: 600;
    }

    .status-ok {
      color: #15803d;
      font-weight: 600;
    }

    .meta-grid {
      display: table;
      width: 100%;
      font-size: 14px;
    }

    .meta-row {
      display: table-row;
    }

    .meta-label {
      display: table-cell;
      padding: 6px 16px 6px 0;
      color: #6b7280;
      font-weight: 500;
      white-space: nowrap;
      width: 100px;
    }

    .meta-value {
      display: table-cell;
      padding: 6px 0;
      color: #111827;
    }

    .summary-list {
      margin: 0;
      padding-left: 20px;
      font-size: 14px;
    }

    .summary-list li {
      margin-bottom: 8px;
      padding-left: 4px;
    }

    .footer {
      padding: 16px 24px;
      font-size: 12px;
      color: #9ca3af;
      text-align: center;
      background: #f9fafb;
      border-top: 1px solid #f3f4f6;
    }

    a {
      color: #0b3d91;
      text-decoration: none;
    }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <div class="run-id">Run {{.ShortID}}</div>
      <div class="title">{{if .Failed}}Pipeline failed{{else}}Pipeline completed{{end}} in {{round .Duration}}</div>
    </div>

    <div class="section">
      <div class="section-title">Steps</div>
      <div class="meta-grid">
        {{range .Steps}}
        <div class="meta-row">
          <div class="meta-label">{{.Name}}</div>
          <div class="meta-value">
            <span class="status-{{.Status}}">{{.Status}}</span>
            &middot; {{.Count}} items &middot; {{round .Duration}}
            {{if .Err}}<br />{{.Err}}{{else if .Note}}<br />{{.Note}}{{end}}
          </div>
        </div>
        {{end}}
      </div>
    </div>

    {{if .Outcomes}}
    <div class="section">
      <div class="section-title">Sheets</div>
      <ul class="summary-list">
        {{range .Outcomes}}
        <li>{{.Target.Sheet}}: {{.Status}}{{if .Rows}} ({{.Rows}} rows){{end}}{{if .Err}} &middot; {{.Err}}{{end}}</li>
        {{end}}
      </ul>
    </div>
    {{end}}

    <div class="footer">
      Run ID {{.RunID}} &middot; started {{.Started.Format "02 Jan 2006 3:04 PM"}}
    </div>
  </div>
</body>
</html>`
