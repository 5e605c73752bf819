package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"foodbridge.org/internal/market"
)

type message struct {
	subject *template.Template
	body    *template.Template
}

func must(kind market.NotificationKind, subject, body string) message {
	return message{
		subject: template.Must(template.New(string(kind) + ".subject").Option("missingkey=zero").Parse(subject)),
		body:    template.Must(template.New(string(kind) + ".body").Option("missingkey=zero").Parse(body)),
	}
}

var messages = map[market.NotificationKind]message{
	market.NotifyUserRegistered: must(market.NotifyUserRegistered,
		`Welcome to FoodBridge, {{.name}}`,
		`Hi {{.name}},

Your {{.role}} account is ready. {{if eq .role "ngo"}}Submit your organisation profile so an administrator can verify it.{{else}}You can start posting surplus food right away.{{end}}
`),
	market.NotifyDonationPosted: must(market.NotifyDonationPosted,
		`New donation near you: {{.food_name}}`,
		`{{.quantity}} of {{.food_name}} is available at {{.location}}.
Best before {{.expiry_time}}. Open your dashboard to request a pickup.
`),
	market.NotifyRequestCreated: must(market.NotifyRequestCreated,
		`Pickup request for {{.food_name}}`,
		`{{.organization}} would like to collect {{.food_name}}. Review the request from your dashboard.
`),
	market.NotifyRequestAccepted: must(market.NotifyRequestAccepted,
		`Pickup confirmed: {{.food_name}}`,
		`Your request for {{.quantity}} of {{.food_name}} was accepted.

Pickup location: {{.location}}
Donor: {{.donor_name}}
Email: {{.donor_email}}
{{- if .donor_phone}}
Phone: {{.donor_phone}}{{end}}
`),
	market.NotifyRequestCompleted: must(market.NotifyRequestCompleted,
		`Pickup completed: {{.food_name}}`,
		`{{.food_name}} has been collected{{if .organization}} by {{.organization}}{{end}}. Thank you for reducing food waste.
`),
	market.NotifyNGOVerified: must(market.NotifyNGOVerified,
		`{{.organization}} is verified`,
		`Your organisation {{.organization}} has been verified. You can now browse and request donations.
`),
	market.NotifyNGORejected: must(market.NotifyNGORejected,
		`{{.organization}} could not be verified`,
		`The profile submitted for {{.organization}} was not approved. You may submit a corrected profile.
`),
}

// Render produces the subject and plain-text body for n.
func Render(n market.Notification) (subject, body string, err error) {
	msg, ok := messages[n.Kind]
	if !ok {
		return "", "", fmt.Errorf("notify: no template for %q", n.Kind)
	}
	fields := n.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	var sb, bb bytes.Buffer
	if err := msg.subject.Execute(&sb, fields); err != nil {
		return "", "", fmt.Errorf("notify: render subject: %w", err)
	}
	if err := msg.body.Execute(&bb, fields); err != nil {
		return "", "", fmt.Errorf("notify: render body: %w", err)
	}
	return sb.String(), bb.String(), nil
}
