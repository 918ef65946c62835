package templates

import "html/template"

// NotificationTemplate renders the body of notification emails.
var NotificationTemplate = template.Must(template.New("notification").Parse(notificationHTML))

const notificationHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #2d2d2d;">
  <h2>{{.Heading}}</h2>
  <p>{{.Message}}</p>
  {{if .Link}}<p><a href="{{.Link}}">Open WisdomWalk</a></p>{{end}}
  <p style="font-size: 12px; color: #888;">{{.SenderName}}</p>
</body>
</html>
`
