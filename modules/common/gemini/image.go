package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"scene-composer-server/modules/common/apperr"
	"scene-composer-server/modules/common/model"
)

const noReasonText = "No specific reason provided by the AI."

// ImageClient - 합성 이미지 생성 협력자
type ImageClient struct {
	pool  *Pool
	model string
}

func NewImageClient(pool *Pool, modelName string) *ImageClient {
	return &ImageClient{pool: pool, model: modelName}
}

// Generate - 인물 사진들과 지시문으로 합성 이미지 생성, data URI 반환
func (c *ImageClient) Generate(ctx context.Context, images []model.Image, themePrompt, feedback string, faceLock bool) (string, error) {
	if len(images) == 0 {
		return "", &apperr.ValidationError{Field: "subjectImages", Message: "no-subject-provided"}
	}

	parts := []*genai.Part{genai.NewPartFromText(BuildCompositePrompt(themePrompt, feedback, faceLock))}
	for _, img := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: img.MIMEType,
				Data:     img.Data,
			},
		})
	}

	content := &genai.Content{Role: genai.RoleUser, Parts: parts}

	log.Printf("🎨 Calling Gemini (%s): %d images, feedback=%v, faceLock=%v", c.model, len(images), feedback != "", faceLock)

	result, _, err := withRetry(ctx, c.pool, "image", func(client *genai.Client) (*genai.GenerateContentResponse, error) {
		return client.Models.GenerateContent(ctx, c.model, []*genai.Content{content}, &genai.GenerateContentConfig{
			ResponseModalities: []string{string(genai.ModalityImage), string(genai.ModalityText)},
		})
	})
	if err != nil {
		return "", classify(err)
	}

	return extractImage(result)
}

// extractImage - 첫 후보에서 이미지 파트를 찾아 data URI로 변환
// 이미지가 없으면 텍스트 파트를 거부 사유로 사용
func extractImage(result *genai.GenerateContentResponse) (string, error) {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", &apperr.GenerationRefusedError{Reason: noReasonText}
	}

	candidate := result.Candidates[0]
	reason := ""
	for _, part := range candidate.Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 && strings.HasPrefix(part.InlineData.MIMEType, "image/") {
			log.Printf("✅ Received image from Gemini: %d bytes", len(part.InlineData.Data))
			return fmt.Sprintf("data:%s;base64,%s", part.InlineData.MIMEType, base64.StdEncoding.EncodeToString(part.InlineData.Data)), nil
		}
		if reason == "" && part.Text != "" {
			reason = part.Text
		}
	}

	if reason == "" {
		if candidate.FinishReason == genai.FinishReasonSafety || candidate.FinishReason == genai.FinishReasonProhibitedContent {
			return "", &apperr.ContentPolicyError{Err: fmt.Errorf("finish reason %s", candidate.FinishReason)}
		}
		reason = noReasonText
	}

	log.Printf("❌ Image generation failed. AI Response: %s", reason)
	return "", &apperr.GenerationRefusedError{Reason: reason}
}
