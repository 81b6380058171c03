// Package semantic scores text similarity through the Anthropic API, either
// directly or via AWS Bedrock.
package semantic

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/ShayCichocki/chunkd/internal/collab"
)

const systemPrompt = `You compare two descriptions of software work and judge whether they target the same code.
Reply with a single number between 0.0 and 1.0.
0.0 means the descriptions concern entirely unrelated parts of the codebase.
1.0 means they describe the same change to the same code.
Reply with the number only.`

// Config selects the model and transport for the comparator.
type Config struct {
	// Model is the model name. Empty selects a small default model.
	Model string
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// UseAWSBedrock routes requests through AWS Bedrock.
	UseAWSBedrock bool
	// AWSRegion is the Bedrock region.
	AWSRegion string
	// AWSProfile is the optional AWS profile name.
	AWSProfile string
}

// Comparator implements collab.Comparator with a single model call per pair.
type Comparator struct {
	inner anthropic.Client
	model anthropic.Model
}

var _ collab.Comparator = (*Comparator)(nil)

// NewComparator creates the API-backed comparator.
func NewComparator(cfg Config) (*Comparator, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaude3_5Haiku20241022
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	return &Comparator{inner: anthropic.NewClient(opts...), model: model}, nil
}

// translateModelForBedrock converts Anthropic model names to cross-region
// Bedrock inference profile format.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

// Similarity asks the model to score the two texts and parses its reply.
func (c *Comparator) Similarity(ctx context.Context, a, b string) (float64, error) {
	prompt := fmt.Sprintf("Description A:\n%s\n\nDescription B:\n%s", a, b)

	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 16,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("similarity call failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += variant.Text
		}
	}
	return parseScore(text)
}

var scoreRe = regexp.MustCompile(`\d*\.?\d+`)

// parseScore extracts the first number from the model's reply and clamps it
// to [0,1].
func parseScore(text string) (float64, error) {
	match := scoreRe.FindString(text)
	if match == "" {
		return 0, fmt.Errorf("no score in model reply %q", text)
	}
	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing score %q: %w", match, err)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}
