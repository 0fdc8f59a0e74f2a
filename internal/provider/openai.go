package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ShayCichocki/hive/internal/calllog"
	"github.com/ShayCichocki/hive/pkg/models"
)

// openAIEndpoint is the chat-completions URL.
const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIAdapter serves OpenAI models over plain HTTPS, authenticating
// with the OAuth access token from the auth store.
type OpenAIAdapter struct {
	auth       *AuthStore
	httpClient *http.Client
	log        *calllog.Store
	smoke      *smokeGate
	endpoint   string
	smokeModel string
}

// NewOpenAIAdapter creates the OpenAI adapter.
func NewOpenAIAdapter(auth *AuthStore, logStore *calllog.Store) *OpenAIAdapter {
	return &OpenAIAdapter{
		auth:       auth,
		httpClient: &http.Client{},
		log:        logStore,
		smoke:      newSmokeGate(),
		endpoint:   openAIEndpoint,
		smokeModel: "gpt-3.5-turbo",
	}
}

// Provider identifies this adapter.
func (a *OpenAIAdapter) Provider() models.Provider {
	return models.ProviderOpenAI
}

// chatRequest is the outbound chat-completions body.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the subset of the reply the adapter consumes.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Invoke makes one completion call. The smoke test runs before the
// first real call per access token; a refreshed token gets a fresh run.
func (a *OpenAIAdapter) Invoke(ctx context.Context, req InvokeRequest) (*Result, error) {
	token, err := a.auth.Token()
	if err != nil {
		return nil, err
	}

	if err := a.smoke.ensure(token, func() error {
		return a.runSmokeTest(ctx, token)
	}); err != nil {
		return nil, err
	}

	return a.invokeOnce(ctx, token, req)
}

// runSmokeTest issues the minimal completion with a short timeout.
func (a *OpenAIAdapter) runSmokeTest(ctx context.Context, token string) error {
	res, err := a.invokeOnce(ctx, token, InvokeRequest{
		Model:   a.smokeModel,
		Prompt:  SmokePrompt,
		Timeout: smokeTimeout,
		Caller:  "smoke-test",
		SkipLog: true,
	})
	if err != nil {
		return &SmokeTestFailedError{Provider: "openai", Err: err}
	}
	if !smokeOK(res.Text) {
		return &SmokeTestFailedError{Provider: "openai", Got: res.Text}
	}
	return nil
}

// invokeOnce performs the HTTP call and logs the outcome.
func (a *OpenAIAdapter) invokeOnce(ctx context.Context, token string, req InvokeRequest) (*Result, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, inputTok, outputTok, err := a.post(ctx, token, req)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
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
		Provider:     models.ProviderOpenAI,
		DurationMs:   elapsed.Milliseconds(),
		InputTokens:  inputTok,
		OutputTokens: outputTok,
	}, nil
}

// post sends the chat-completions request and parses the reply.
func (a *OpenAIAdapter) post(ctx context.Context, token string, req InvokeRequest) (string, int64, int64, error) {
	body, err := json.Marshal(chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "user", Content: req.Prompt},
		},
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, 0, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, 0, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, 0, NewHTTPError("openai", resp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", 0, 0, fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", 0, 0, fmt.Errorf("no choices in response")
	}

	return parsed.Choices[0].Message.Content, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens, nil
}

// record passes the call outcome to the interaction store.
func (a *OpenAIAdapter) record(req InvokeRequest, text string, inputTok, outputTok int64, elapsed time.Duration, callErr error) {
	if req.SkipLog || a.log == nil {
		return
	}
	rec := models.CallRecord{
		Provider:     models.ProviderOpenAI,
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
