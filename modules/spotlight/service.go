package spotlight

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"scene-composer-server/modules/common/apperr"
	"scene-composer-server/modules/common/auth"
	"scene-composer-server/modules/common/model"
	"scene-composer-server/modules/common/storage"
	"scene-composer-server/modules/common/utils"
)

const (
	maxUpdateAttempts = 5
	listLimit         = 50
	rotationPeriod    = 5 * time.Second
)

// Store - app_spotlight 접근
type Store interface {
	Insert(ctx context.Context, scene model.SpotlightScene) error
	Get(ctx context.Context, sceneID string) (model.SpotlightScene, error)
	List(ctx context.Context, limit int) ([]model.SpotlightScene, error)
	// CompareAndUpdate - likes가 expectedLikes일 때만 갱신
	CompareAndUpdate(ctx context.Context, expectedLikes int, next model.SpotlightScene) (bool, error)
	SetWatermarkRemoved(ctx context.Context, sceneID string) error
}

// LikeSet - 장면별 좋아요 한 사용자 집합 (redis.Store)
type LikeSet interface {
	AddMember(ctx context.Context, key, member string) (bool, error)
	RemoveMember(ctx context.Context, key, member string) error
	IsMember(ctx context.Context, key, member string) (bool, error)
}

// Ledger - 과금 (credit.Ledger)
type Ledger interface {
	Charge(ctx context.Context, userID string, amount int, reason string) (int, error)
	Credit(ctx context.Context, userID string, amount int, reason string) (int, error)
}

type Service struct {
	store               Store
	likes               LikeSet
	ledger              Ledger
	uploader            storage.Uploader
	sponsorCost         int
	removeWatermarkCost int
	now                 func() time.Time
}

func NewService(store Store, likes LikeSet, ledger Ledger, uploader storage.Uploader, sponsorCost, removeWatermarkCost int) *Service {
	return &Service{
		store:               store,
		likes:               likes,
		ledger:              ledger,
		uploader:            uploader,
		sponsorCost:         sponsorCost,
		removeWatermarkCost: removeWatermarkCost,
		now:                 time.Now,
	}
}

func likeKey(sceneID string) string {
	return "spotlight:likes:" + sceneID
}

// Sponsor - 크레딧을 내고 장면을 스포트라이트에 올림 (좋아요 0, 워터마크 있음)
// 작성자 표시는 인증된 사용자 이름
func (s *Service) Sponsor(ctx context.Context, user auth.User, req SponsorRequest) (*model.SpotlightScene, error) {
	if req.ImageURL == "" {
		return nil, &apperr.ValidationError{Field: "imageUrl", Message: "generate a scene before sponsoring it"}
	}
	userID := user.ID
	creator := strings.TrimPrefix(strings.TrimSpace(user.Name), "@")
	if creator == "" {
		return nil, &apperr.ValidationError{Field: "creator", Message: "account has no display name"}
	}

	var upload []byte
	if strings.HasPrefix(req.ImageURL, "data:") {
		img, err := utils.ParseDataURI(req.ImageURL)
		if err != nil {
			return nil, &apperr.ValidationError{Field: "imageUrl", Message: err.Error()}
		}
		upload = img.Data
	}

	if _, err := s.ledger.Charge(ctx, userID, s.sponsorCost, "Spotlight sponsor"); err != nil {
		return nil, err
	}

	imageURL := req.ImageURL
	if upload != nil {
		url, err := s.uploader.UploadImage(ctx, userID, upload)
		if err != nil {
			s.refund(ctx, userID, s.sponsorCost)
			return nil, fmt.Errorf("failed to upload spotlight scene: %w", err)
		}
		imageURL = url
	}

	scene := model.SpotlightScene{
		SceneID:   "scene_" + uuid.NewString(),
		ImageURL:  imageURL,
		Creator:   "@" + creator,
		CreatorID: userID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Insert(ctx, scene); err != nil {
		s.refund(ctx, userID, s.sponsorCost)
		return nil, err
	}

	log.Printf("🌟 [Spotlight] %s sponsored %s", scene.Creator, scene.SceneID)
	return &scene, nil
}

// Like - 사용자당 한 번. 이미 좋아요 했으면 liked=false와 현재 상태 반환
func (s *Service) Like(ctx context.Context, userID, sceneID string) (*model.SpotlightScene, bool, error) {
	current, err := s.store.Get(ctx, sceneID)
	if err != nil {
		return nil, false, err
	}

	added, err := s.likes.AddMember(ctx, likeKey(sceneID), userID)
	if err != nil {
		return nil, false, err
	}
	if !added {
		return &current, false, nil
	}

	next, err := s.countLike(ctx, sceneID, current)
	if err != nil {
		// 카운트가 안 올라갔으면 다시 누를 수 있게 되돌림
		if rerr := s.likes.RemoveMember(context.WithoutCancel(ctx), likeKey(sceneID), userID); rerr != nil {
			log.Printf("⚠️  [Spotlight] Failed to roll back like of %s on %s: %v", userID, sceneID, rerr)
		}
		return nil, false, err
	}
	return next, true, nil
}

// countLike - likes CAS 갱신, 경합 시 다시 읽고 재시도
func (s *Service) countLike(ctx context.Context, sceneID string, current model.SpotlightScene) (*model.SpotlightScene, error) {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		next := applyLike(current)
		ok, err := s.store.CompareAndUpdate(ctx, current.Likes, next)
		if err != nil {
			return nil, err
		}
		if ok {
			if next.WatermarkRemoved && !current.WatermarkRemoved {
				log.Printf("🎉 [Spotlight] %s reached %d likes, watermark removed", sceneID, LikeThreshold)
			}
			return &next, nil
		}

		log.Printf("🔄 [Spotlight] Concurrent like on %s, retrying (%d/%d)", sceneID, attempt, maxUpdateAttempts)
		if current, err = s.store.Get(ctx, sceneID); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed to record like after %d attempts", maxUpdateAttempts)
}

// RemoveWatermark - 크레딧을 내고 장면의 워터마크 제거
func (s *Service) RemoveWatermark(ctx context.Context, userID, sceneID string) (*model.SpotlightScene, error) {
	scene, err := s.store.Get(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	if scene.WatermarkRemoved {
		return &scene, nil
	}

	if _, err := s.ledger.Charge(ctx, userID, s.removeWatermarkCost, "Remove spotlight watermark"); err != nil {
		return nil, err
	}
	if err := s.store.SetWatermarkRemoved(ctx, sceneID); err != nil {
		s.refund(ctx, userID, s.removeWatermarkCost)
		return nil, err
	}

	scene.WatermarkRemoved = true
	log.Printf("✨ [Spotlight] Watermark removed from %s by %s", sceneID, userID)
	return &scene, nil
}

// List - 최신순 목록. userID가 있으면 좋아요 여부 포함
func (s *Service) List(ctx context.Context, userID string) ([]SceneView, error) {
	scenes, err := s.store.List(ctx, listLimit)
	if err != nil {
		return nil, err
	}

	views := make([]SceneView, 0, len(scenes))
	for _, scene := range scenes {
		view := SceneView{SpotlightScene: scene}
		if userID != "" {
			liked, err := s.likes.IsMember(ctx, likeKey(scene.SceneID), userID)
			if err != nil {
				return nil, err
			}
			view.LikedByMe = liked
		}
		views = append(views, view)
	}
	return views, nil
}

// Current - 5초마다 돌아가며 보여줄 장면 인덱스
func (s *Service) Current(count int) int {
	if count == 0 {
		return -1
	}
	return int(s.now().Unix()/int64(rotationPeriod/time.Second)) % count
}

func (s *Service) refund(ctx context.Context, userID string, amount int) {
	if _, err := s.ledger.Credit(context.WithoutCancel(ctx), userID, amount, "Spotlight refund"); err != nil {
		log.Printf("⚠️  [Spotlight] Refund of %d to %s failed: %v", amount, userID, err)
	}
}
