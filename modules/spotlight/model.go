package spotlight

import "scene-composer-server/modules/common/model"

// LikeThreshold - 이 좋아요 수에 도달하면 워터마크 자동 제거
const LikeThreshold = 40

// SceneView - 목록 응답 (내가 좋아요 했는지 포함)
type SceneView struct {
	model.SpotlightScene
	LikedByMe bool `json:"liked_by_me"`
}

// SponsorRequest - 스포트라이트 등록 요청 (작성자는 로그인 사용자)
type SponsorRequest struct {
	ImageURL string `json:"imageUrl"`
}

// applyLike - 좋아요 1 증가, 임계값 도달 시 워터마크 제거. 이미 제거된 상태는 유지
func applyLike(scene model.SpotlightScene) model.SpotlightScene {
	scene.Likes++
	if scene.Likes >= LikeThreshold {
		scene.WatermarkRemoved = true
	}
	return scene
}
