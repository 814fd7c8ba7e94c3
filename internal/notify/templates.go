package notify

import (
	"html/template"
	"strings"
	"time"
)

const (
	tokenSubject = "Your verification code"
	alertSubject = "Security alert on your account"
)

var tokenTemplate = template.Must(template.New("token").Parse(`<!DOCTYPE html>
<html>
<body style="font-family:Segoe UI,Arial,sans-serif;color:#333;max-width:560px;margin:0 auto;padding:24px">
  <h2 style="margin-bottom:4px">Login verification</h2>
  <p>Hello {{.DisplayName}},</p>
  <p>Use this code to finish signing in:</p>
  <div style="font-size:32px;letter-spacing:8px;font-weight:bold;background:#f4f6f8;border-radius:6px;padding:16px;text-align:center">{{.Code}}</div>
  <p>The code expires in {{.TTLMinutes}} minutes and can be used once. Requesting a new code cancels this one.</p>
  <p style="color:#777;font-size:13px">If you did not try to sign in, change your password now.</p>
</body>
</html>`))

var alertTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<body style="font-family:Segoe UI,Arial,sans-serif;color:#333;max-width:560px;margin:0 auto;padding:24px">
  <h2 style="margin-bottom:4px">Security alert</h2>
  <p>Hello {{.DisplayName}},</p>
  <p>We noticed this activity on your account:</p>
  <div style="background:#fff4f4;border-left:4px solid #d9534f;border-radius:4px;padding:12px 16px">{{.Action}}</div>
  <p style="color:#777;font-size:13px">At {{.When}}. If this was you, no action is needed. Otherwise change your password immediately.</p>
</body>
</html>`))

func renderTokenBody(displayName, code string, ttl time.Duration) (string, error) {
	var b strings.Builder
	err := tokenTemplate.Execute(&b, struct {
		DisplayName string
		Code        string
		TTLMinutes  int
	}{displayName, code, int(ttl.Minutes())})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

func renderAlertBody(displayName, action string, when time.Time) (string, error) {
	var b strings.Builder
	err := alertTemplate.Execute(&b, struct {
		DisplayName string
		Action      string
		When        string
	}{displayName, action, when.UTC().Format("2006-01-02 15:04 UTC")})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
