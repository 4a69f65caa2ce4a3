package gemini

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"google.golang.org/genai"

	"scene-composer-server/modules/common/apperr"
	"scene-composer-server/modules/common/model"
)

// VideoClient - 이미지 → 루프 비디오 생성 협력자 (long-running operation)
type VideoClient struct {
	pool  *Pool
	model string

	// 작업 이름 → 시작한 키 인덱스 (같은 키로 폴링/다운로드해야 함)
	jobKeys sync.Map
	// Vertex 백엔드는 URI 대신 바이트로 돌려줌. 작업 이름 → 영상 바이트
	inline sync.Map
}

const inlinePrefix = "inline:"

func NewVideoClient(pool *Pool, modelName string) *VideoClient {
	return &VideoClient{pool: pool, model: modelName}
}

// StartAnimation - 비디오 생성 작업 시작, 작업 핸들(operation name) 반환
func (c *VideoClient) StartAnimation(ctx context.Context, source model.Image, themePrompt string, durationSeconds int, feedback string) (string, error) {
	if len(source.Data) == 0 {
		return "", &apperr.ValidationError{Field: "sourceImage", Message: "source image is required"}
	}

	prompt := BuildAnimationPrompt(themePrompt, durationSeconds, feedback)
	image := &genai.Image{ImageBytes: source.Data, MIMEType: source.MIMEType}

	log.Printf("🎬 Starting video generation (%s): %ds, %d bytes source", c.model, durationSeconds, len(source.Data))

	op, keyIndex, err := withRetry(ctx, c.pool, "video", func(client *genai.Client) (*genai.GenerateVideosOperation, error) {
		return client.Models.GenerateVideos(ctx, c.model, prompt, image, &genai.GenerateVideosConfig{
			NumberOfVideos: 1,
		})
	})
	if err != nil {
		return "", classify(err)
	}

	c.jobKeys.Store(op.Name, keyIndex)
	log.Printf("✅ Video operation started: %s", op.Name)
	return op.Name, nil
}

// PollStatus - 작업 상태 확인
func (c *VideoClient) PollStatus(ctx context.Context, handle string) (model.VideoStatus, error) {
	op, err := c.clientFor(handle).Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: handle}, nil)
	if err != nil {
		return model.VideoStatus{}, classify(err)
	}

	status := interpretOperation(op)
	if status.Done && strings.HasPrefix(status.VideoURI, inlinePrefix) {
		c.inline.Store(handle, op.Response.GeneratedVideos[0].Video.VideoBytes)
	}
	if status.Done {
		log.Printf("📥 Video operation %s finished (err=%v)", handle, status.Err)
	}
	return status, nil
}

// Download - 완료된 비디오 URI에서 바이트 다운로드
func (c *VideoClient) Download(ctx context.Context, handle, uri string) ([]byte, error) {
	if v, ok := c.inline.LoadAndDelete(handle); ok {
		c.jobKeys.Delete(handle)
		return v.([]byte), nil
	}

	client := c.clientFor(handle)
	data, err := client.Files.Download(ctx, genai.NewDownloadURIFromVideo(&genai.Video{URI: uri}), nil)
	if err != nil {
		return nil, classify(err)
	}
	c.jobKeys.Delete(handle)
	log.Printf("📥 Video downloaded: %d bytes", len(data))
	return data, nil
}

func (c *VideoClient) clientFor(handle string) *genai.Client {
	if v, ok := c.jobKeys.Load(handle); ok {
		return c.pool.client(v.(int))
	}
	return c.pool.client(0)
}

// interpretOperation - 작업 결과를 VideoStatus로 변환
func interpretOperation(op *genai.GenerateVideosOperation) model.VideoStatus {
	if op == nil || !op.Done {
		return model.VideoStatus{}
	}

	if op.Error != nil {
		msg := fmt.Sprint(op.Error["message"])
		if op.Error["message"] == nil {
			msg = fmt.Sprint(op.Error)
		}
		return model.VideoStatus{Done: true, Err: &apperr.GenerationFailedError{Message: msg}}
	}

	if op.Response != nil && len(op.Response.GeneratedVideos) > 0 {
		if v := op.Response.GeneratedVideos[0]; v != nil && v.Video != nil {
			if v.Video.URI != "" {
				return model.VideoStatus{Done: true, VideoURI: v.Video.URI}
			}
			if len(v.Video.VideoBytes) > 0 {
				return model.VideoStatus{Done: true, VideoURI: inlinePrefix + op.Name}
			}
		}
	}

	if op.Response != nil && op.Response.RAIMediaFilteredCount > 0 {
		return model.VideoStatus{Done: true, Err: &apperr.ContentPolicyError{
			Err: fmt.Errorf("safety filter: %v", op.Response.RAIMediaFilteredReasons),
		}}
	}

	return model.VideoStatus{Done: true, Err: &apperr.GenerationFailedError{Message: "No video link was returned."}}
}
