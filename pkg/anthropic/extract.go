package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/resilience"
)

// ErrNoJSON is returned when a reply holds no JSON object.
var ErrNoJSON = eris.New("anthropic: reply contains no JSON object")

// extractionFields are the keys the model is asked to fill.
var extractionFields = []string{
	model.FieldInsuredName,
	model.FieldPolicyType,
	model.FieldEffectiveDate,
	model.FieldIndustry,
	model.FieldCoverageAmount,
	model.FieldEmployeeCount,
	model.FieldRevenue,
	model.FieldDataTypes,
	model.FieldSecurityMeasures,
	model.FieldCompanySize,
	model.FieldCreditRating,
	model.FieldYearsInBusiness,
	model.FieldContactEmail,
	model.FieldExistingCyberCoverage,
	"entity_type",
	"company_ein",
	"contact_name",
	"contact_phone",
	"business_address",
	"business_city",
	"business_state",
	"business_zip",
	"business_description",
	"deductible",
	"business_interruption_limit",
	"cyber_extortion_limit",
	"records_count",
}

const systemPrompt = `You extract cyber insurance submission details from broker emails.
Reply with a single JSON object and nothing else. Use these keys when the email states a value:
%s
Omit keys the email does not mention. Copy amounts as written (for example "$2,000,000").
Use YYYY-MM-DD for dates. Join lists such as security measures with ", ".`

// Extractor turns broker email text into submission fields.
type Extractor struct {
	client    Client
	model     string
	maxTokens int64
	retry     resilience.RetryConfig
	system    []SystemBlock
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithRetry overrides the retry policy for single extractions.
func WithRetry(cfg resilience.RetryConfig) ExtractorOption {
	return func(e *Extractor) { e.retry = cfg }
}

// NewExtractor returns an Extractor using the given model.
func NewExtractor(client Client, modelID string, maxTokens int64, opts ...ExtractorOption) *Extractor {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "extract")
	e := &Extractor{
		client:    client,
		model:     modelID,
		maxTokens: maxTokens,
		retry:     retry,
		system: []SystemBlock{{
			Text:         fmt.Sprintf(systemPrompt, strings.Join(extractionFields, ", ")),
			CacheControl: &CacheControl{TTL: "1h"},
		}},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) request(text string) MessageRequest {
	temp := 0.0
	return MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System:      e.system,
		Messages:    []Message{{Role: "user", Content: text}},
		Temperature: &temp,
	}
}

// Extract sends one email through the Messages API and parses the reply.
func (e *Extractor) Extract(ctx context.Context, text string) (model.Fields, error) {
	if strings.TrimSpace(text) == "" {
		return nil, eris.New("anthropic: empty submission text")
	}
	resp, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*MessageResponse, error) {
		return e.client.CreateMessage(ctx, e.request(text))
	})
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: extract")
	}
	resp.Usage.LogCost(e.model, "extract", false)
	return ParseFields(resp.Text())
}

// BatchExtraction is the outcome of ExtractBatch.
type BatchExtraction struct {
	Fields   map[string]model.Fields
	Failures map[string]error
}

// ExtractBatch extracts many emails keyed by caller ID. The first email is
// sent synchronously to warm the prompt cache and the rest go through the
// Batches API. Per-item failures are reported in Failures.
func (e *Extractor) ExtractBatch(ctx context.Context, texts map[string]string, opts ...PollOption) (*BatchExtraction, error) {
	out := &BatchExtraction{
		Fields:   make(map[string]model.Fields, len(texts)),
		Failures: make(map[string]error),
	}
	if len(texts) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(texts))
	for id := range texts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	primer := ids[0]
	fields, err := e.Extract(ctx, texts[primer])
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		out.Failures[primer] = err
	} else {
		out.Fields[primer] = fields
	}
	if len(ids) == 1 {
		return out, nil
	}

	// Custom IDs are positional so caller keys need not match the API's
	// custom_id pattern.
	req := BatchRequest{Requests: make([]BatchRequestItem, 0, len(ids)-1)}
	byCustom := make(map[string]string, len(ids)-1)
	for i, id := range ids[1:] {
		custom := fmt.Sprintf("sub-%d", i+1)
		byCustom[custom] = id
		req.Requests = append(req.Requests, BatchRequestItem{CustomID: custom, Params: e.request(texts[id])})
	}

	batch, err := e.client.CreateBatch(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: extract batch")
	}
	zap.L().Info("anthropic: extraction batch submitted",
		zap.String("batch_id", batch.ID),
		zap.Int("requests", len(req.Requests)),
	)
	if _, err := PollBatch(ctx, e.client, batch.ID, opts...); err != nil {
		return nil, err
	}
	iter, err := e.client.GetBatchResults(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	results, err := CollectBatchResults(iter)
	if err != nil {
		return nil, err
	}

	var usage TokenUsage
	for custom, msg := range results.Succeeded {
		id, ok := byCustom[custom]
		if !ok {
			continue
		}
		usage.add(msg.Usage)
		fields, err := ParseFields(msg.Text())
		if err != nil {
			out.Failures[id] = err
			continue
		}
		out.Fields[id] = fields
	}
	for _, f := range results.Failures {
		if id, ok := byCustom[f.CustomID]; ok {
			out.Failures[id] = eris.Errorf("anthropic: batch item %s", f.Type)
		}
	}
	for custom, id := range byCustom {
		if _, done := out.Fields[id]; done {
			continue
		}
		if _, failed := out.Failures[id]; !failed {
			out.Failures[id] = eris.Errorf("anthropic: batch item %s missing from results", custom)
		}
	}
	usage.LogCost(e.model, "extract_batch", true)
	return out, nil
}

func (u *TokenUsage) add(o TokenUsage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CacheCreationInputTokens += o.CacheCreationInputTokens
	u.CacheReadInputTokens += o.CacheReadInputTokens
}

// ParseFields decodes the first JSON object in text. Null and blank values
// are dropped so they read as missing.
func ParseFields(text string) (model.Fields, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, ErrNoJSON
	}
	var raw map[string]any
	if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&raw); err != nil {
		return nil, eris.Wrap(ErrNoJSON, err.Error())
	}
	fields := make(model.Fields, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		fields[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return fields, nil
}
