package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"

	"scene-composer-server/modules/common/utils"
)

// Uploader - 이미지 업로드 후 공개 URL 반환
type Uploader interface {
	UploadImage(ctx context.Context, userID string, data []byte) (string, error)
}

type Client struct {
	supabase *supabase.Client
	bucket   string
}

// NewClient - Storage 클라이언트 생성
func NewClient(client *supabase.Client, bucket string) *Client {
	return &Client{
		supabase: client,
		bucket:   bucket,
	}
}

// UploadImage - Supabase Storage에 이미지 업로드 (WebP 변환 포함)
func (c *Client) UploadImage(ctx context.Context, userID string, imageData []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	webpData, err := utils.ConvertToWebP(imageData, 90.0)
	if err != nil {
		return "", fmt.Errorf("failed to convert image to WebP: %w", err)
	}

	fileName := fmt.Sprintf("scene_%d_%s.webp", time.Now().UnixMilli(), uuid.NewString()[:8])
	filePath := fmt.Sprintf("user-%s/%s", userID, fileName)

	log.Printf("📤 Uploading WebP image to storage: %s/%s", c.bucket, filePath)

	contentType := "image/webp"
	if _, err := c.supabase.Storage.UploadFile(c.bucket, filePath, bytes.NewReader(webpData), storage_go.FileOptions{
		ContentType: &contentType,
	}); err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}

	publicURL := c.supabase.Storage.GetPublicUrl(c.bucket, filePath).SignedURL
	log.Printf("✅ WebP image uploaded successfully: %s (%d bytes)", filePath, len(webpData))
	return publicURL, nil
}
