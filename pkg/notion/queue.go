package notion

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/uw-workbench/internal/model"
)

// Queue statuses.
const (
	StatusQueued    = "Queued"
	StatusProcessed = "Processed"
	StatusDuplicate = "Duplicate"
	StatusFailed    = "Failed"
)

// maxRichText is Notion's per-block text limit.
const maxRichText = 2000

// Properties names the queue database columns. Columns not named here are
// read as submission fields keyed by their snake_cased name.
type Properties struct {
	Status    string
	Broker    string
	Body      string
	MessageID string
	WorkItem  string
	Notes     string
}

// DefaultProperties returns the standard queue column names.
func DefaultProperties() Properties {
	return Properties{
		Status:    "Status",
		Broker:    "Broker Email",
		Body:      "Email Body",
		MessageID: "Message ID",
		WorkItem:  "Work Item",
		Notes:     "Notes",
	}
}

// Submission is one queued broker submission.
type Submission struct {
	PageID    string
	MessageID string
	Subject   string
	From      string
	Body      string
	Fields    model.Fields
}

// Queue reads queued submissions and records their outcome.
type Queue struct {
	client Client
	dbID   string
	props  Properties
}

// NewQueue returns a Queue over dbID using the default column names.
func NewQueue(c Client, dbID string) *Queue {
	return &Queue{client: c, dbID: dbID, props: DefaultProperties()}
}

// WithProperties overrides the column names.
func (q *Queue) WithProperties(p Properties) *Queue {
	q.props = p
	return q
}

// Pending returns every page whose status is Queued.
func (q *Queue) Pending(ctx context.Context) ([]Submission, error) {
	pages, err := QueryByStatus(ctx, q.client, q.dbID, q.props.Status, StatusQueued)
	if err != nil {
		return nil, err
	}
	subs := make([]Submission, 0, len(pages))
	for _, p := range pages {
		subs = append(subs, q.parse(p))
	}
	return subs, nil
}

func (q *Queue) parse(p notionapi.Page) Submission {
	sub := Submission{PageID: string(p.ID), Fields: model.Fields{}}
	for name, prop := range p.Properties {
		if isTitle(prop) {
			sub.Subject = propertyText(prop)
			continue
		}
		switch name {
		case q.props.Status, q.props.WorkItem, q.props.Notes:
			continue
		case q.props.Broker:
			sub.From = propertyText(prop)
			continue
		case q.props.Body:
			sub.Body = propertyText(prop)
			continue
		case q.props.MessageID:
			sub.MessageID = propertyText(prop)
			continue
		}
		if v := propertyValue(prop); v != nil {
			sub.Fields[fieldKey(name)] = v
		}
	}
	if sub.MessageID == "" {
		sub.MessageID = "notion:" + sub.PageID
	}
	// Rows with no field columns are left empty so intake extracts from
	// the body.
	if _, ok := sub.Fields[model.FieldInsuredName]; !ok && sub.Subject != "" && len(sub.Fields) > 0 {
		sub.Fields[model.FieldInsuredName] = sub.Subject
	}
	return sub
}

// Complete writes the outcome back to the page.
func (q *Queue) Complete(ctx context.Context, pageID, status, workItemID, notes string) error {
	props := notionapi.Properties{
		q.props.Status: notionapi.StatusProperty{Status: notionapi.Status{Name: status}},
	}
	if workItemID != "" {
		props[q.props.WorkItem] = richText(workItemID)
	}
	if notes != "" {
		props[q.props.Notes] = richText(notes)
	}
	if _, err := q.client.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
		return eris.Wrapf(err, "notion: complete submission %s", pageID)
	}
	return nil
}

func richText(s string) notionapi.RichTextProperty {
	if r := []rune(s); len(r) > maxRichText {
		s = string(r[:maxRichText])
	}
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
		},
	}
}

func isTitle(prop notionapi.Property) bool {
	switch prop.(type) {
	case *notionapi.TitleProperty, notionapi.TitleProperty:
		return true
	}
	return false
}

func plain(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, r := range rt {
		if r.PlainText != "" {
			b.WriteString(r.PlainText)
		} else if r.Text != nil {
			b.WriteString(r.Text.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

func propertyText(prop notionapi.Property) string {
	if s, ok := propertyValue(prop).(string); ok {
		return s
	}
	return ""
}

// propertyValue flattens a property to a string, number or bool. Empty
// values return nil.
func propertyValue(prop notionapi.Property) any {
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		return nonEmpty(plain(p.Title))
	case notionapi.TitleProperty:
		return nonEmpty(plain(p.Title))
	case *notionapi.RichTextProperty:
		return nonEmpty(plain(p.RichText))
	case notionapi.RichTextProperty:
		return nonEmpty(plain(p.RichText))
	case *notionapi.EmailProperty:
		return nonEmpty(p.Email)
	case *notionapi.PhoneNumberProperty:
		return nonEmpty(p.PhoneNumber)
	case *notionapi.URLProperty:
		return nonEmpty(p.URL)
	case *notionapi.NumberProperty:
		return p.Number
	case *notionapi.CheckboxProperty:
		return p.Checkbox
	case *notionapi.SelectProperty:
		return nonEmpty(p.Select.Name)
	case *notionapi.MultiSelectProperty:
		names := make([]string, 0, len(p.MultiSelect))
		for _, o := range p.MultiSelect {
			names = append(names, o.Name)
		}
		return nonEmpty(strings.Join(names, ", "))
	case *notionapi.DateProperty:
		if p.Date == nil || p.Date.Start == nil {
			return nil
		}
		return time.Time(*p.Date.Start).Format("2006-01-02")
	}
	return nil
}

func nonEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// fieldKey converts a column name like "Coverage Amount" to coverage_amount.
func fieldKey(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
