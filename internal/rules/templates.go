package rules

import "maps"

// Template names.
const (
	TemplateAssignment  = "assignment_notification"
	TemplateRejection   = "rejection_notification"
	TemplateInfoRequest = "info_request"
)

// MessageTemplate is a subject and body in text/template syntax. Rendering
// lives in the notify package; the tables only carry the text.
type MessageTemplate struct {
	Subject string `yaml:"subject" json:"subject"`
	Body    string `yaml:"body" json:"body"`
}

// Template returns the named template.
func (t *Tables) Template(name string) (MessageTemplate, bool) {
	tmpl, ok := t.templates[name]
	return tmpl, ok
}

// Templates returns a copy of every template keyed by name.
func (t *Tables) Templates() map[string]MessageTemplate {
	return maps.Clone(t.templates)
}

func defaultTemplates() map[string]MessageTemplate {
	return map[string]MessageTemplate{
		TemplateAssignment: {
			Subject: "New Cyber Insurance Submission Assigned - {{.work_item_title}}",
			Body: `Dear {{.underwriter_name}},

A new cyber insurance submission has been assigned to you:

Work Item ID: {{.work_item_id}}
Company: {{.company_name}}
Industry: {{.industry}}
Coverage Amount: ${{money .coverage_amount}}
Priority: {{.priority}}
Risk Score: {{fixed2 .risk_score}}

Please review the submission in the underwriting workbench.

Best regards,
Cyber Insurance System
`,
		},
		TemplateRejection: {
			Subject: "Cyber Insurance Application Status - {{.company_name}}",
			Body: `Dear {{.contact_name}},

Thank you for your interest in our cyber insurance coverage. After reviewing your application, we regret to inform you that we cannot proceed with your request at this time.

Reason: {{.rejection_reason}}

If you believe this decision was made in error or if your circumstances have changed, please don't hesitate to contact us.

Best regards,
Underwriting Team
`,
		},
		TemplateInfoRequest: {
			Subject: "Additional Information Required - {{.company_name}}",
			Body: `Dear {{.contact_name}},

We are reviewing your cyber insurance application and require additional information to proceed:

Missing Information:
{{bullets .missing_fields}}

Please provide this information at your earliest convenience so we can continue processing your application.

Best regards,
{{.underwriter_name}}
Underwriting Team
`,
		},
	}
}
