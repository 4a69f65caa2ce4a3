package animation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Downloader - 완료된 영상 바이트 다운로드
type Downloader interface {
	Download(ctx context.Context, handle, uri string) ([]byte, error)
}

// VideoStore - 생성된 영상을 메모리에 잠시 보관하고 /api/videos/{id}로 제공
type VideoStore struct {
	downloader Downloader
	videos     *cache.Cache
}

// NewVideoStore - ttl 동안 보관
func NewVideoStore(downloader Downloader, ttl time.Duration) *VideoStore {
	return &VideoStore{
		downloader: downloader,
		videos:     cache.New(ttl, ttl*2),
	}
}

// Publish - 다운로드 후 보관, 재생 URL 반환
func (s *VideoStore) Publish(ctx context.Context, handle, uri string) (string, error) {
	data, err := s.downloader.Download(ctx, handle, uri)
	if err != nil {
		return "", fmt.Errorf("failed to download video: %w", err)
	}

	id := uuid.NewString()
	s.videos.SetDefault(id, data)
	log.Printf("💾 Video cached: %s (%d bytes, %d cached)", id, len(data), s.videos.ItemCount())
	return "/api/videos/" + id, nil
}

// Get - 보관된 영상 조회
func (s *VideoStore) Get(id string) ([]byte, bool) {
	v, ok := s.videos.Get(id)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}
