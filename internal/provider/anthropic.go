package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/ShayCichocki/hive/internal/calllog"
	"github.com/ShayCichocki/hive/internal/config"
	"github.com/ShayCichocki/hive/pkg/models"
)

// anthropicMaxTokens caps completion length for adapter calls.
const anthropicMaxTokens = 8192

// smokeTimeout bounds the one-shot auth validation call.
const smokeTimeout = 15 * time.Second

// AnthropicAdapter serves Anthropic models through the vendor SDK's
// streaming API, optionally routed through AWS Bedrock.
type AnthropicAdapter struct {
	client      anthropic.Client
	log         *calllog.Store
	smoke       *smokeGate
	fingerprint string
	smokeModel  string
	bedrock     bool
}

// bedrockModels maps canonical model names to cross-region Bedrock
// inference profiles.
var bedrockModels = map[string]string{
	"claude-opus-4-5":   "us.anthropic.claude-opus-4-5-20251101-v1:0",
	"claude-sonnet-4-5": "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	"claude-haiku-4-5":  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
	"claude-opus-4":     "us.anthropic.claude-opus-4-20250514-v1:0",
	"claude-sonnet-3-5": "us.anthropic.claude-3-5-sonnet-20241022-v2:0",
}

// translateModelForBedrock converts a canonical model name to its
// Bedrock inference profile. Unknown names pass through unchanged.
func translateModelForBedrock(model string) string {
	if translated, ok := bedrockModels[model]; ok {
		return translated
	}
	return model
}

// AnthropicConfig configures the adapter.
type AnthropicConfig struct {
	// APIKey authenticates against the direct API.
	APIKey string
	// OAuthToken is a bearer token alternative to the API key.
	OAuthToken string
	// UseAWSBedrock routes through Bedrock instead of the direct API.
	UseAWSBedrock bool
	// AWSRegion is the Bedrock region.
	AWSRegion string
	// AWSProfile is the optional AWS profile name.
	AWSProfile string
	// SmokeModel is the model used for the auth smoke test.
	SmokeModel string
}

// NewAnthropicAdapter creates the Anthropic adapter.
func NewAnthropicAdapter(cfg AnthropicConfig, logStore *calllog.Store) (*AnthropicAdapter, error) {
	var opts []option.RequestOption
	var fingerprint string

	switch {
	case cfg.UseAWSBedrock:
		ctx := context.Background()
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
		fingerprint = "bedrock:" + cfg.AWSRegion + ":" + cfg.AWSProfile
	case cfg.OAuthToken != "":
		opts = append(opts, option.WithAuthToken(cfg.OAuthToken))
		fingerprint = cfg.OAuthToken
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
		fingerprint = cfg.APIKey
	default:
		return nil, &AuthMissingError{
			Provider: "anthropic",
			Guidance: "set ANTHROPIC_API_KEY, " + config.AnthropicOAuthEnv + ", or anthropic.api_key in config",
		}
	}

	smokeModel := cfg.SmokeModel
	if smokeModel == "" {
		smokeModel = "claude-haiku-4-5"
	}

	return &AnthropicAdapter{
		client:      anthropic.NewClient(opts...),
		log:         logStore,
		smoke:       newSmokeGate(),
		fingerprint: fingerprint,
		smokeModel:  smokeModel,
		bedrock:     cfg.UseAWSBedrock,
	}, nil
}

// Provider identifies this adapter.
func (a *AnthropicAdapter) Provider() models.Provider {
	return models.ProviderAnthropic
}

// Invoke makes one streaming completion call, accumulating text blocks
// to a final string. The smoke test runs before the first real call per
// credential; concurrent first calls share a single validation.
func (a *AnthropicAdapter) Invoke(ctx context.Context, req InvokeRequest) (*Result, error) {
	if err := a.smoke.ensure(a.fingerprint, func() error {
		return a.runSmokeTest(ctx)
	}); err != nil {
		return nil, err
	}
	return a.invokeOnce(ctx, req)
}

// runSmokeTest issues the minimal completion with a short timeout.
func (a *AnthropicAdapter) runSmokeTest(ctx context.Context) error {
	res, err := a.invokeOnce(ctx, InvokeRequest{
		Model:   a.smokeModel,
		Prompt:  SmokePrompt,
		Timeout: smokeTimeout,
		Caller:  "smoke-test",
		SkipLog: true,
	})
	if err != nil {
		return &SmokeTestFailedError{Provider: "anthropic", Err: err}
	}
	if !smokeOK(res.Text) {
		return &SmokeTestFailedError{Provider: "anthropic", Got: res.Text}
	}
	return nil
}

// invokeOnce performs the streaming call and logs the outcome.
func (a *AnthropicAdapter) invokeOnce(ctx context.Context, req InvokeRequest) (*Result, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, inputTok, outputTok, err := a.stream(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = &TimeoutError{Model: req.Model, Elapsed: elapsed}
		}
		a.record(req, "", 0, 0, elapsed, err)
		return nil, err
	}

	if inputTok == 0 {
		inputTok = calllog.EstimateTokensFromChars(req.Prompt)
	}
	if outputTok == 0 {
		outputTok = calllog.EstimateTokensFromChars(text)
	}

	a.record(req, text, inputTok, outputTok, elapsed, nil)

	return &Result{
		Text:         text,
		Provider:     models.ProviderAnthropic,
		DurationMs:   elapsed.Milliseconds(),
		InputTokens:  inputTok,
		OutputTokens: outputTok,
	}, nil
}

// stream consumes the SDK's event iterator to terminal state and
// accumulates text from assistant content blocks of type text. Token
// counts come from the usage on the accumulated terminal message.
func (a *AnthropicAdapter) stream(ctx context.Context, req InvokeRequest) (string, int64, int64, error) {
	model := req.Model
	if a.bedrock {
		model = translateModelForBedrock(model)
	}

	stream := a.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return "", 0, 0, fmt.Errorf("accumulate stream event: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return "", 0, 0, err
	}

	var text string
	for _, block := range message.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += variant.Text
		}
	}

	return text, message.Usage.InputTokens, message.Usage.OutputTokens, nil
}

// record passes the call outcome to the interaction store.
func (a *AnthropicAdapter) record(req InvokeRequest, text string, inputTok, outputTok int64, elapsed time.Duration, callErr error) {
	if req.SkipLog || a.log == nil {
		return
	}
	rec := models.CallRecord{
		Provider:     models.ProviderAnthropic,
		Model:        req.Model,
		Caller:       req.Caller,
		Prompt:       req.Prompt,
		Response:     text,
		InputTokens:  inputTok,
		OutputTokens: outputTok,
		CostEstimate: a.log.EstimateCost(req.Model, inputTok, outputTok),
		DurationMs:   elapsed.Milliseconds(),
		OK:           callErr == nil,
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	a.log.LogCall(rec)
}
