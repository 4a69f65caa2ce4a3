package memories

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"scene-composer-server/modules/common/apperr"
	"scene-composer-server/modules/common/model"
	"scene-composer-server/modules/common/storage"
	"scene-composer-server/modules/common/utils"
)

const listLimit = 100

// Store - app_memories 접근
type Store interface {
	Insert(ctx context.Context, m model.Memory) error
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Memory, error)
}

type Service struct {
	store    Store
	uploader storage.Uploader
	now      func() time.Time
}

func NewService(store Store, uploader storage.Uploader) *Service {
	return &Service{store: store, uploader: uploader, now: time.Now}
}

// Save - 생성된 이미지를 사용자 앨범에 저장. data URI면 스토리지에 업로드 후 URL 저장
func (s *Service) Save(ctx context.Context, userID, imageURL string) (*model.Memory, error) {
	if imageURL == "" {
		return nil, &apperr.ValidationError{Field: "imageUrl", Message: "image is required"}
	}

	publicURL := imageURL
	if strings.HasPrefix(imageURL, "data:") {
		img, err := utils.ParseDataURI(imageURL)
		if err != nil {
			return nil, &apperr.ValidationError{Field: "imageUrl", Message: err.Error()}
		}
		publicURL, err = s.uploader.UploadImage(ctx, userID, img.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to upload memory: %w", err)
		}
	}

	memory := model.Memory{
		MemoryID:  uuid.NewString(),
		UserID:    userID,
		ImageURL:  publicURL,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Insert(ctx, memory); err != nil {
		return nil, err
	}

	log.Printf("📸 [Memories] Saved %s for %s", memory.MemoryID, userID)
	return &memory, nil
}

// List - 최신순
func (s *Service) List(ctx context.Context, userID string) ([]model.Memory, error) {
	return s.store.ListByUser(ctx, userID, listLimit)
}

// SupabaseStore - app_memories 테이블
type SupabaseStore struct {
	supabase *supabase.Client
}

func NewSupabaseStore(client *supabase.Client) *SupabaseStore {
	return &SupabaseStore{supabase: client}
}

func (s *SupabaseStore) Insert(ctx context.Context, m model.Memory) error {
	_, _, err := s.supabase.From("app_memories").
		Insert(m, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

func (s *SupabaseStore) ListByUser(ctx context.Context, userID string, limit int) ([]model.Memory, error) {
	data, _, err := s.supabase.From("app_memories").
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}

	var memories []model.Memory
	if err := json.Unmarshal(data, &memories); err != nil {
		return nil, fmt.Errorf("failed to parse memories: %w", err)
	}
	return memories, nil
}
