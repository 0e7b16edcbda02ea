package service

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/sandeepkv93/account-auth-service/internal/domain"
)

type notificationTemplate struct {
	subject string
	body    *template.Template
}

var notificationTemplates = map[domain.NotificationKind]notificationTemplate{
	domain.NotificationVerify: {
		subject: "Please verify your email address",
		body: template.Must(template.New("verify").Parse(`Hello {{.Name}},

Thanks for signing up. Please verify your email address to activate your account.

Verification token: {{.Token}}
{{if .Link}}Or open: {{.Link}}
{{end}}`)),
	},
	domain.NotificationVerified: {
		subject: "Email has been verified",
		body: template.Must(template.New("verified").Parse(`Hello {{.Name}},

Your email address has been verified. You can now sign in.
`)),
	},
	domain.NotificationRecover: {
		subject: "Recover password",
		body: template.Must(template.New("recover").Parse(`Hello {{.Name}},

We received a request to reset your password.

Password reset token: {{.Token}}
{{if .Link}}Or open: {{.Link}}
{{end}}
If you did not request this, you can ignore this email.
`)),
	},
	domain.NotificationReset: {
		subject: "Password has been reset",
		body: template.Must(template.New("reset").Parse(`Hello {{.Name}},

Your password has been changed. If this was not you, recover your account right away.
`)),
	},
}

// NotificationRenderer turns an outbox row into a deliverable message.
type NotificationRenderer struct {
	baseURL string
}

func NewNotificationRenderer(baseURL string) *NotificationRenderer {
	return &NotificationRenderer{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

func (r *NotificationRenderer) Render(row domain.NotificationOutbox) (Message, error) {
	tpl, ok := notificationTemplates[row.Kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification kind %q", row.Kind)
	}
	var body bytes.Buffer
	err := tpl.body.Execute(&body, struct {
		Name  string
		Token string
		Link  string
	}{Name: row.Name, Token: row.Token, Link: r.link(row.Kind, row.Token)})
	if err != nil {
		return Message{}, fmt.Errorf("render %s notification: %w", row.Kind, err)
	}
	return Message{To: row.Email, ToName: row.Name, Subject: tpl.subject, Body: body.String()}, nil
}

func (r *NotificationRenderer) link(kind domain.NotificationKind, token string) string {
	if r.baseURL == "" || token == "" {
		return ""
	}
	path := ""
	switch kind {
	case domain.NotificationVerify:
		path = "/verify"
	case domain.NotificationRecover:
		path = "/reset-password"
	default:
		return ""
	}
	return r.baseURL + path + "?token=" + url.QueryEscape(token)
}
