// Package notify renders the underwriting message templates and delivers
// them to underwriters and brokers.
package notify

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/normalize"
	"github.com/sells-group/uw-workbench/internal/rules"
)

// defaultContact is the salutation used for broker-facing messages.
const defaultContact = "Valued Client"

// Message is a rendered notification.
type Message struct {
	Template   string `json:"template"`
	WorkItemID string `json:"work_item_id"`
	Recipient  string `json:"recipient"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

var funcs = template.FuncMap{
	"money": func(v any) string {
		f, _ := normalize.ParseMoneyAmount(v)
		return normalize.Grouped(f, 2)
	},
	"fixed2": func(v any) string {
		f, _ := normalize.ParseNumber(v)
		return normalize.Grouped(f, 2)
	},
	"bullets": func(items []string) string {
		lines := make([]string, len(items))
		for i, it := range items {
			lines[i] = "• " + it
		}
		return strings.Join(lines, "\n")
	},
}

// Composer renders messages from the rule-table templates.
type Composer struct {
	tables *rules.Tables
}

// NewComposer returns a Composer backed by tables.
func NewComposer(tables *rules.Tables) *Composer {
	return &Composer{tables: tables}
}

// Render executes the named template against data.
func (c *Composer) Render(name string, data map[string]any) (subject, body string, err error) {
	tmpl, ok := c.tables.Template(name)
	if !ok {
		return "", "", eris.Errorf("notify: template %q not found", name)
	}
	if subject, err = execute(name+".subject", tmpl.Subject, data); err != nil {
		return "", "", err
	}
	if body, err = execute(name+".body", tmpl.Body, data); err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func execute(name, text string, data map[string]any) (string, error) {
	t, err := template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", eris.Wrapf(err, "notify: parse template %s", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", eris.Wrapf(err, "notify: render template %s", name)
	}
	return buf.String(), nil
}

// Assignment tells an underwriter a work item is theirs.
func (c *Composer) Assignment(underwriter string, item model.WorkItem) (Message, error) {
	data := map[string]any{
		"work_item_title":  orDefault(item.Title, "Unknown"),
		"underwriter_name": underwriter,
		"work_item_id":     item.ID,
		"company_name":     companyName(item),
		"industry":         orDefault(item.Industry, "Unknown"),
		"coverage_amount":  floatOrZero(item.CoverageAmount),
		"priority":         orDefault(string(item.Priority), string(model.PriorityMedium)),
		"risk_score":       floatOrZero(item.RiskScore),
	}
	return c.message(rules.TemplateAssignment, underwriter, item.ID, data)
}

// Rejection tells the broker a submission was declined.
func (c *Composer) Rejection(broker string, item model.WorkItem, reason string) (Message, error) {
	data := map[string]any{
		"company_name":     companyName(item),
		"contact_name":     defaultContact,
		"rejection_reason": reason,
	}
	return c.message(rules.TemplateRejection, broker, item.ID, data)
}

// InfoRequest asks the broker for the missing fields.
func (c *Composer) InfoRequest(broker string, item model.WorkItem, underwriter string, missing []string) (Message, error) {
	data := map[string]any{
		"company_name":     companyName(item),
		"contact_name":     defaultContact,
		"missing_fields":   missing,
		"underwriter_name": underwriter,
	}
	return c.message(rules.TemplateInfoRequest, broker, item.ID, data)
}

func (c *Composer) message(name, recipient, id string, data map[string]any) (Message, error) {
	subject, body, err := c.Render(name, data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Template:   name,
		WorkItemID: id,
		Recipient:  recipient,
		Subject:    subject,
		Body:       body,
	}, nil
}

// companyName prefers the insured named in the submission over the work
// item title.
func companyName(item model.WorkItem) string {
	if name := normalize.Submission(item.Fields).InsuredName; name != "" {
		return name
	}
	return orDefault(item.Title, "Unknown Company")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func floatOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
