package sheetsync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// OracleResult is one normalization answer from the model. Original echoes
// back the input name so batch answers can be matched to their inputs.
type OracleResult struct {
	Original string  `json:"original"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Brand    *string `json:"brand"`
}

// NameOracle turns raw Vietnamese product names into normalized English
// identities. Implementations must be safe for concurrent use.
type NameOracle interface {
	NormalizeOne(ctx context.Context, rawName string) (*OracleResult, error)
	NormalizeBatch(ctx context.Context, rawNames []string) ([]OracleResult, error)
}

const (
	defaultOracleModel     = "claude-sonnet-4-20250514"
	defaultOracleTimeout   = 30 * time.Second
	defaultOracleBatchSize = 10
)

type anthropicOracle struct {
	client  anthropic.Client
	model   anthropic.Model
	timeout time.Duration
	enabled bool
}

// newAnthropicOracle builds the oracle from the environment. Without an API
// key the oracle is disabled and every call reports so; callers fall back to
// identity normalization instead of failing the sync.
func newAnthropicOracle() *anthropicOracle {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")

	model := defaultOracleModel
	if v := os.Getenv("ORACLE_MODEL"); v != "" {
		model = v
	}

	timeout := defaultOracleTimeout
	if v := os.Getenv("ORACLE_TIMEOUT_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			timeout = time.Duration(seconds) * time.Second
		}
	}

	return &anthropicOracle{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   anthropic.Model(model),
		timeout: timeout,
		enabled: apiKey != "",
	}
}

func oracleBatchSize() int {
	if v := os.Getenv("ORACLE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultOracleBatchSize
}

var errOracleDisabled = fmt.Errorf("oracle disabled: ANTHROPIC_API_KEY not set")

const oracleCategoryList = "supplements, skincare, cosmetics, fragrance, baby, food, bags, clothing, shoes, electronics, household, other"

const singlePromptTemplate = `You are a product name normalizer. Given a Vietnamese product name (often mixed with English brand names), extract:
1. Normalized English product name (clean, standardized)
2. Product category
3. Brand name (if identifiable)

Categories (use ONLY these): %s

Examples:
- "sữa rửa mặt kiehl" → name: "Kiehl's Face Wash", category: "skincare", brand: "Kiehl's"
- "túi katespade new york" → name: "Kate Spade Handbag", category: "bags", brand: "Kate Spade"
- "glucosamine kirland costco" → name: "Kirkland Glucosamine", category: "supplements", brand: "Kirkland"
- "nước hoa victoria secret" → name: "Victoria's Secret Perfume", category: "fragrance", brand: "Victoria's Secret"
- "sữa ensure cho người lớn" → name: "Ensure Adult Nutrition", category: "supplements", brand: "Ensure"
- "kem chống nắng neutrogena" → name: "Neutrogena Sunscreen", category: "skincare", brand: "Neutrogena"
- "bỉm huggies size 3" → name: "Huggies Diapers Size 3", category: "baby", brand: "Huggies"

Product name to normalize: "%s"

Respond in JSON format ONLY:
{"name": "...", "category": "...", "brand": "..." or null}`

const batchPromptTemplate = `You are a product name normalizer. Given Vietnamese product names (often mixed with English brand names), extract for EACH:
1. Normalized English product name (clean, standardized)
2. Product category
3. Brand name (if identifiable)

Categories (use ONLY these): %s

Product names to normalize:
%s

Respond in JSON array format ONLY:
[{"original": "...", "name": "...", "category": "...", "brand": "..." or null}, ...]`

func (o *anthropicOracle) complete(ctx context.Context, prompt string, maxTokens int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	message, err := o.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     o.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

func (o *anthropicOracle) NormalizeOne(ctx context.Context, rawName string) (*OracleResult, error) {
	if !o.enabled {
		return nil, errOracleDisabled
	}

	prompt := fmt.Sprintf(singlePromptTemplate, oracleCategoryList, rawName)
	responseText, err := o.complete(ctx, prompt, 256)
	if err != nil {
		return nil, err
	}

	var result OracleResult
	if err := decodeOracleObject(responseText, &result); err != nil {
		return nil, err
	}
	result.Original = rawName
	return &result, nil
}

func (o *anthropicOracle) NormalizeBatch(ctx context.Context, rawNames []string) ([]OracleResult, error) {
	if !o.enabled {
		return nil, errOracleDisabled
	}
	if len(rawNames) == 0 {
		return nil, nil
	}

	var listing strings.Builder
	for index, name := range rawNames {
		fmt.Fprintf(&listing, "%d. %q\n", index+1, name)
	}

	prompt := fmt.Sprintf(batchPromptTemplate, oracleCategoryList, strings.TrimRight(listing.String(), "\n"))
	responseText, err := o.complete(ctx, prompt, 1024)
	if err != nil {
		return nil, err
	}

	return decodeOracleArray(responseText)
}

var (
	jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)
	jsonArrayRegex  = regexp.MustCompile(`(?s)\[.*\]`)
)

// decodeOracleObject pulls the first JSON object out of a model response
// that may wrap it in prose or a code fence.
func decodeOracleObject(responseText string, out *OracleResult) error {
	match := jsonObjectRegex.FindString(responseText)
	if match == "" {
		return fmt.Errorf("no JSON object in oracle response")
	}
	return json.Unmarshal([]byte(match), out)
}

func decodeOracleArray(responseText string) ([]OracleResult, error) {
	match := jsonArrayRegex.FindString(responseText)
	if match == "" {
		return nil, fmt.Errorf("no JSON array in oracle response")
	}
	var results []OracleResult
	if err := json.Unmarshal([]byte(match), &results); err != nil {
		return nil, err
	}
	return results, nil
}
