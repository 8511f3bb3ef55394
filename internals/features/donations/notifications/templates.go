// Package notifications renders donor mails and delivers them outside the
// reconciliation transaction.
package notifications

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

const (
	TemplatePaymentCompleted      = "payment_completed"
	TemplatePaymentFailed         = "payment_failed"
	TemplatePaymentFailedCrypto   = "payment_failed_crypto"
	TemplatePaymentRenewalFailed  = "payment_renewal_failed"
	TemplateSubscriptionCancelled = "subscription_cancelled"
	TemplateSubscriptionUpdated   = "subscription_updated"
	TemplateSubscriptionRenewed   = "subscription_renewed"
	TemplateSubscriptionExpired   = "subscription_expired"
	TemplateSubscriptionUpcoming  = "subscription_upcoming"
	TemplateGoalMet               = "goal_met"
)

type mailTemplate struct {
	subject string
	body    *template.Template
}

var catalog = map[string]mailTemplate{}

func register(key, subject, body string) {
	catalog[key] = mailTemplate{
		subject: subject,
		body:    template.Must(template.New(key).Option("missingkey=zero").Parse(strings.TrimLeft(body, "\n"))),
	}
}

func init() {
	register(TemplatePaymentCompleted, "Thank you for your donation", `
Dear {{.Name}},

We have received your donation of {{.Amount}} {{.Currency}}{{if .Campaign}} to "{{.Campaign}}"{{end}}.
Reference: {{.Reference}}
Payment method: {{.Method}}
Date: {{.Date}}

Thank you for your support.
`)
	register(TemplatePaymentFailed, "Your donation could not be processed", `
Dear {{.Name}},

Your donation of {{.Amount}} {{.Currency}} could not be completed{{if .Reason}}: {{.Reason}}{{end}}.
No money has been taken. You are welcome to try again.
`)
	register(TemplatePaymentFailedCrypto, "Your crypto donation could not be confirmed", `
Dear {{.Name}},

We could not confirm your cryptocurrency donation{{if .Reference}} ({{.Reference}}){{end}}.
If coins were sent, please reply to this mail with the transaction hash.
`)
	register(TemplatePaymentRenewalFailed, "Payment renewal failed", `
Dear {{.Name}},

We could not collect the latest payment for your monthly donation.
Please update your payment details to keep your support going.
`)
	register(TemplateSubscriptionCancelled, "Your subscription has been cancelled", `
Dear {{.Name}},

Your monthly donation has been cancelled. Thank you for everything you have given.
`)
	register(TemplateSubscriptionUpdated, "Your subscription has been updated", `
Dear {{.Name}},

Your monthly donation has been updated.{{if .NextBillingTime}} Next payment: {{.NextBillingTime}}.{{end}}
`)
	register(TemplateSubscriptionRenewed, "Thank you for renewing your donation", `
Dear {{.Name}},

Your monthly donation of {{.Amount}} {{.Currency}} has been renewed.
Reference: {{.Reference}}
`)
	register(TemplateSubscriptionExpired, "Your subscription has expired", `
Dear {{.Name}},

Your monthly donation has reached its end date. You can start a new one at any time.
`)
	register(TemplateSubscriptionUpcoming, "Reminder: upcoming subscription renewal", `
Dear {{.Name}},

Your next monthly donation{{if .Amount}} of {{.Amount}}{{end}} will be collected{{if .DueAt}} on {{.DueAt}}{{else}} soon{{end}}.
`)
	register(TemplateGoalMet, "A campaign you supported is fully funded", `
Dear {{.Name}},

"{{.Campaign}}" has reached its goal of {{.Required}} {{.Currency}}. Thank you for making it happen.
`)
}

// Known reports whether key names a registered template.
func Known(key string) bool {
	_, ok := catalog[key]
	return ok
}

type Message struct {
	To      string
	Subject string
	Body    string
}

// Render fills the template named key. Year is always available.
func Render(key, to string, data map[string]any) (Message, error) {
	t, ok := catalog[key]
	if !ok {
		return Message{}, fmt.Errorf("unknown mail template %q", key)
	}
	ctx := map[string]any{"Year": time.Now().Year()}
	for k, v := range data {
		ctx[k] = v
	}
	if _, ok := ctx["Name"]; !ok {
		ctx["Name"] = "Supporter"
	}

	var buf bytes.Buffer
	if err := t.body.Execute(&buf, ctx); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", key, err)
	}
	return Message{To: to, Subject: t.subject, Body: buf.String()}, nil
}
