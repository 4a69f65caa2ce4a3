package spotlight

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"scene-composer-server/modules/common/apperr"
	"scene-composer-server/modules/common/model"
)

// SupabaseStore - app_spotlight 테이블
type SupabaseStore struct {
	supabase *supabase.Client
}

func NewSupabaseStore(client *supabase.Client) *SupabaseStore {
	return &SupabaseStore{supabase: client}
}

func (s *SupabaseStore) Insert(ctx context.Context, scene model.SpotlightScene) error {
	_, _, err := s.supabase.From("app_spotlight").
		Insert(scene, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to insert spotlight scene: %w", err)
	}
	return nil
}

func (s *SupabaseStore) Get(ctx context.Context, sceneID string) (model.SpotlightScene, error) {
	data, _, err := s.supabase.From("app_spotlight").
		Select("*", "", false).
		Eq("scene_id", sceneID).
		Execute()
	if err != nil {
		return model.SpotlightScene{}, fmt.Errorf("failed to fetch spotlight scene: %w", err)
	}

	var scenes []model.SpotlightScene
	if err := json.Unmarshal(data, &scenes); err != nil {
		return model.SpotlightScene{}, fmt.Errorf("failed to parse spotlight scene: %w", err)
	}
	if len(scenes) == 0 {
		return model.SpotlightScene{}, fmt.Errorf("spotlight scene %s: %w", sceneID, apperr.ErrNotFound)
	}
	return scenes[0], nil
}

func (s *SupabaseStore) List(ctx context.Context, limit int) ([]model.SpotlightScene, error) {
	data, _, err := s.supabase.From("app_spotlight").
		Select("*", "", false).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list spotlight scenes: %w", err)
	}

	var scenes []model.SpotlightScene
	if err := json.Unmarshal(data, &scenes); err != nil {
		return nil, fmt.Errorf("failed to parse spotlight scenes: %w", err)
	}
	return scenes, nil
}

func (s *SupabaseStore) CompareAndUpdate(ctx context.Context, expectedLikes int, next model.SpotlightScene) (bool, error) {
	data, _, err := s.supabase.From("app_spotlight").
		Update(map[string]interface{}{
			"likes":             next.Likes,
			"watermark_removed": next.WatermarkRemoved,
		}, "", "").
		Eq("scene_id", next.SceneID).
		Eq("likes", strconv.Itoa(expectedLikes)).
		Execute()
	if err != nil {
		return false, fmt.Errorf("failed to update likes: %w", err)
	}

	var updated []model.SpotlightScene
	if err := json.Unmarshal(data, &updated); err != nil {
		return false, fmt.Errorf("failed to parse update result: %w", err)
	}
	return len(updated) == 1, nil
}

func (s *SupabaseStore) SetWatermarkRemoved(ctx context.Context, sceneID string) error {
	_, _, err := s.supabase.From("app_spotlight").
		Update(map[string]interface{}{"watermark_removed": true}, "", "minimal").
		Eq("scene_id", sceneID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to remove watermark: %w", err)
	}
	return nil
}
