package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adcanvas/adcanvas/internal/imaging"
)

const (
	defaultGeminiBaseURL    = "https://generativelanguage.googleapis.com"
	defaultGeminiAPIVersion = "v1beta"
	defaultGeminiImageModel = "gemini-2.5-flash-image"
	defaultGeminiTextModel  = "gemini-2.5-flash"

	maxFetchBytes    = 32 << 20
	maxErrorBodySize = 4096
)

const isolationPrompt = "Isolate the main product in this photo. Remove the background completely " +
	"and return the product alone as a PNG with a transparent background. Preserve every label, " +
	"logo, and piece of text on the product exactly as photographed."

type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	ImageModel string
	TextModel  string
	HTTPClient *http.Client
	Retry      RetryPolicy
}

// GeminiClient implements Isolator, Generator, Refiner, Upscaler,
// ScenePlanner, and SubjectEnhancer against the generative language REST
// API using inline base64 image payloads.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	apiVersion string
	imageModel string
	textModel  string
	httpClient *http.Client
	retry      RetryPolicy
	logger     *log.Logger
}

func NewGeminiClient(logger *log.Logger, cfg GeminiConfig) *GeminiClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		apiVersion = defaultGeminiAPIVersion
	}
	imageModel := strings.TrimSpace(cfg.ImageModel)
	if imageModel == "" {
		imageModel = defaultGeminiImageModel
	}
	textModel := strings.TrimSpace(cfg.TextModel)
	if textModel == "" {
		textModel = defaultGeminiTextModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}

	return &GeminiClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		imageModel: imageModel,
		textModel:  textModel,
		httpClient: httpClient,
		retry:      cfg.Retry,
		logger:     logger,
	}
}

type geminiRequest struct {
	Contents         []geminiContent   `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiAPIError   `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content geminiContentResponse `json:"content"`
}

type geminiContentResponse struct {
	Parts []geminiPartResponse `json:"parts"`
}

type geminiPartResponse struct {
	Text       string          `json:"text,omitempty"`
	InlineData *inlineDataResp `json:"inlineData,omitempty"`
}

type inlineDataResp struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type geminiErrorPayload struct {
	Error      *geminiAPIError `json:"error,omitempty"`
	RetryAfter float64         `json:"retry_after,omitempty"`
}

func (c *GeminiClient) IsolateProduct(ctx context.Context, imageURL string) (string, error) {
	raw, mimeType, err := c.fetchImage(ctx, imageURL)
	if err != nil {
		return "", fmt.Errorf("fetch product image: %w", err)
	}

	req := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{
			{Text: isolationPrompt},
			{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(raw)}},
		}}},
		GenerationConfig: &generationConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	}

	return c.imageCall(ctx, "isolate_product", req)
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	text := prompt
	if strings.TrimSpace(opts.NegativePrompt) != "" {
		text += "\n\nAvoid: " + opts.NegativePrompt
	}

	cfg := &generationConfig{ResponseModalities: []string{"TEXT", "IMAGE"}}
	if strings.TrimSpace(opts.AspectRatio) != "" {
		cfg.ImageConfig = &imageConfig{AspectRatio: opts.AspectRatio}
	}

	req := geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: text}}}},
		GenerationConfig: cfg,
	}

	return c.imageCall(ctx, "generate", req)
}

func (c *GeminiClient) GenerateBackground(ctx context.Context, locationText string) (string, error) {
	prompt := "Generate a photorealistic, professionally lit background scene for a commercial " +
		"product photograph. Scene: " + locationText + ". No products, no people, no text. " +
		"Leave clean open space in the lower third where a product will be placed."
	return c.Generate(ctx, prompt, GenerateOptions{})
}

func (c *GeminiClient) Refine(ctx context.Context, imageB64, instruction string) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{
			{Text: instruction},
			{InlineData: &inlineData{MimeType: "image/png", Data: stripDataURI(imageB64)}},
		}}},
		GenerationConfig: &generationConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	}

	return c.imageCall(ctx, "refine", req)
}

func (c *GeminiClient) Upscale(ctx context.Context, imageB64 string, factor int) (string, error) {
	if factor < 2 {
		factor = 2
	}
	instruction := fmt.Sprintf("Upscale this image to %dx its resolution. Increase sharpness and "+
		"detail but do not change the composition, colors, objects, or any text.", factor)
	return c.Refine(ctx, imageB64, instruction)
}

func (c *GeminiClient) EnhanceSubject(ctx context.Context, imageB64, mode string) (string, error) {
	instruction := fmt.Sprintf("Subtly enhance the %s of the person in this photo for a natural, "+
		"professional look. Do not alter any product, packaging, label, or text in the image.", mode)
	return c.Refine(ctx, imageB64, instruction)
}

func (c *GeminiClient) PlanScene(ctx context.Context, brief SceneBrief) (string, error) {
	var b strings.Builder
	b.WriteString("Describe, in two sentences, a photographic background scene for a commercial ")
	b.WriteString("product image. Respond with the scene description only.\n")
	fmt.Fprintf(&b, "Product: %s\n", brief.ProductName)
	if brief.Audience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", brief.Audience)
	}
	if brief.Persona != "" {
		fmt.Fprintf(&b, "Persona in frame: %s\n", brief.Persona)
	}
	if brief.Location != "" {
		fmt.Fprintf(&b, "Requested setting: %s\n", brief.Location)
	}
	if brief.Brand.Tone != "" {
		fmt.Fprintf(&b, "Brand tone: %s\n", brief.Brand.Tone)
	}
	if len(brief.Brand.Palette) > 0 {
		fmt.Fprintf(&b, "Brand palette: %s\n", strings.Join(brief.Brand.Palette, ", "))
	}

	req := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: b.String()}}}},
	}

	var description string
	err := c.retry.Do(ctx, "plan_scene", func() error {
		resp, err := c.generateContent(ctx, c.textModel, req)
		if err != nil {
			return err
		}
		text, err := firstText(resp)
		if err != nil {
			return err
		}
		description = text
		return nil
	})
	return strings.TrimSpace(description), err
}

func (c *GeminiClient) imageCall(ctx context.Context, op string, req geminiRequest) (string, error) {
	var imageB64 string
	err := c.retry.Do(ctx, op, func() error {
		resp, err := c.generateContent(ctx, c.imageModel, req)
		if err != nil {
			return err
		}
		data, err := firstImage(resp)
		if err != nil {
			return err
		}
		imageB64 = data
		return nil
	})
	return imageB64, err
}

func (c *GeminiClient) generateContent(ctx context.Context, model string, req geminiRequest) (*geminiResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		rle := rateLimitFromResponse(httpResp, respBody)
		c.logger.Printf("provider throttled model=%s: %v", model, rle)
		return nil, rle
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status=%d body=%s", httpResp.StatusCode, truncate(respBody, maxErrorBodySize))
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("provider error status=%s: %s", resp.Error.Status, resp.Error.Message)
	}

	return &resp, nil
}

func (c *GeminiClient) fetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch returned status=%d for %s", resp.StatusCode, imageURL)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, "", err
	}

	// Error pages served with a 200 are a real failure mode for CDNs; sniff
	// before handing bytes to a model.
	if err := imaging.SniffImageBytes(raw); err != nil {
		return nil, "", fmt.Errorf("fetched buffer for %s: %w", imageURL, err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/png"
	}

	return raw, mimeType, nil
}

func rateLimitFromResponse(resp *http.Response, body []byte) error {
	rle := &RateLimitError{Message: string(truncate(body, maxErrorBodySize))}

	var payload geminiErrorPayload
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.RetryAfter > 0 {
			rle.RetryAfter = time.Duration(payload.RetryAfter * float64(time.Second))
		}
		if payload.Error != nil {
			rle.Message = payload.Error.Message
		}
	}

	if rle.RetryAfter == 0 {
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil {
				rle.RetryAfter = time.Duration(seconds) * time.Second
			}
		}
	}
	if rle.RetryAfter == 0 {
		rle.RetryAfter = 5 * time.Second
	}

	return rle
}

func firstImage(resp *geminiResponse) (string, error) {
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				return part.InlineData.Data, nil
			}
		}
	}
	return "", errors.New("provider response contains no image data")
}

func firstText(resp *geminiResponse) (string, error) {
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text, nil
			}
		}
	}
	return "", errors.New("provider response contains no text")
}

func stripDataURI(encoded string) string {
	encoded = strings.TrimSpace(encoded)
	if !strings.HasPrefix(encoded, "data:") {
		return encoded
	}
	if idx := strings.Index(encoded, "base64,"); idx >= 0 {
		return encoded[idx+len("base64,"):]
	}
	return encoded
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
