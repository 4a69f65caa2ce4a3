package prompt

import (
	"math/rand/v2"
	"strings"
	"time"

	"scene-composer-server/modules/catalog"
	"scene-composer-server/modules/common/apperr"
)

// GenerationMode - 단일 인물 사진에서 AI 동반 인물 생성 모드
type GenerationMode string

const (
	ModeNone    GenerationMode = "none"
	ModePartner GenerationMode = "partner"
	ModeChild   GenerationMode = "child"
)

// Outcome - 어떤 분기로 프롬프트가 만들어졌는지
type Outcome string

const (
	OutcomeOverride        Outcome = "override"
	OutcomeMultiConfigured Outcome = "multi_configured"
	OutcomeMultiRandom     Outcome = "multi_random"
	OutcomeSolo            Outcome = "solo"
	OutcomePartner         Outcome = "partner"
	OutcomeChild           Outcome = "child"
)

// 해석 불가 시 대체 문구
const (
	fallbackSoloPose  = "a confident pose"
	fallbackGroupPose = "a happy pose"
	fallbackTheme     = "a beautiful scene"
)

var randomOutcomes = []Outcome{OutcomeSolo, OutcomePartner, OutcomeChild}

// SingleSubjectSettings - 사진이 정확히 1장일 때만 의미 있음
type SingleSubjectSettings struct {
	Mode        GenerationMode `json:"generationMode"`
	PartnerType string         `json:"partnerType"`
	ChildGender string         `json:"childGender"`
	Ethnicity   string         `json:"companionEthnicity"`
}

// DefaultSingleSubjectSettings - 기본값 (Partner / Son / Auto-detect)
func DefaultSingleSubjectSettings() SingleSubjectSettings {
	return SingleSubjectSettings{
		Mode:        ModeNone,
		PartnerType: "Partner",
		ChildGender: "Son",
		Ethnicity:   catalog.AutoDetect,
	}
}

// Input - 이미지를 제외한 생성 요청
type Input struct {
	SubjectCount int
	Scene        *catalog.SceneConfiguration
	FreeText     string
	Customizing  bool
	Single       SingleSubjectSettings
}

// Builder - 사용자 선택을 하나의 지시문으로 조립
type Builder struct {
	Catalog *catalog.Catalog
	Rand    catalog.Rand
}

// NewBuilder - rng가 nil이면 시간 기반 시드 사용
func NewBuilder(c *catalog.Catalog, rng catalog.Rand) *Builder {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return &Builder{Catalog: c, Rand: rng}
}

// Build - 프롬프트 생성
func (b *Builder) Build(in Input) (string, error) {
	p, _, err := b.BuildDetailed(in)
	return p, err
}

// BuildDetailed - 프롬프트와 선택된 분기를 함께 반환
func (b *Builder) BuildDetailed(in Input) (string, Outcome, error) {
	if in.FreeText != "" {
		return in.FreeText, OutcomeOverride, nil
	}

	switch {
	case in.SubjectCount > 1:
		return b.buildMulti(in)
	case in.SubjectCount == 1 && !in.Customizing:
		return b.buildSingleRandom()
	case in.SubjectCount == 1:
		return b.buildSingleCustom(in)
	default:
		return "", "", &apperr.ValidationError{Field: "subjectImages", Message: "no-subject-provided"}
	}
}

func (b *Builder) buildMulti(in Input) (string, Outcome, error) {
	fragments := b.Catalog.Fragments(in.Scene)
	if len(fragments) > 0 {
		return strings.Join(fragments, ", ") + ".", OutcomeMultiConfigured, nil
	}

	pose, okPose := catalog.RandomFrom(b.Rand, b.Catalog.PoseOptions())
	theme, okTheme := catalog.RandomFrom(b.Rand, b.Catalog.ThemeOptions())
	if !okPose || !okTheme {
		return "", "", &apperr.ValidationError{Field: "catalog", Message: "no options available"}
	}
	return pose.PromptFragment + ", " + theme.PromptFragment + ".", OutcomeMultiRandom, nil
}

func (b *Builder) buildSingleRandom() (string, Outcome, error) {
	theme := b.randomTheme()
	outcome := randomOutcomes[b.Rand.IntN(len(randomOutcomes))]

	switch outcome {
	case OutcomeSolo:
		return b.soloSentence(theme), OutcomeSolo, nil
	case OutcomePartner:
		partnerType := "Partner"
		if l, ok := catalog.RandomLabel(b.Rand, b.Catalog.PartnerTypes); ok {
			partnerType = l.Value
		}
		return b.companionSentence(ModePartner, partnerType, catalog.AutoDetect, theme), OutcomePartner, nil
	default:
		childGender := "Son"
		if l, ok := catalog.RandomLabel(b.Rand, b.Catalog.ChildGenders); ok {
			childGender = l.Value
		}
		return b.companionSentence(ModeChild, childGender, catalog.AutoDetect, theme), OutcomeChild, nil
	}
}

func (b *Builder) buildSingleCustom(in Input) (string, Outcome, error) {
	theme := strings.Join(b.Catalog.Fragments(in.Scene), ", ")
	if theme == "" {
		theme = b.randomTheme()
	}

	s := in.Single
	switch s.Mode {
	case ModePartner:
		return b.companionSentence(ModePartner, s.PartnerType, s.Ethnicity, theme), OutcomePartner, nil
	case ModeChild:
		return b.companionSentence(ModeChild, s.ChildGender, s.Ethnicity, theme), OutcomeChild, nil
	default:
		return b.soloSentence(theme), OutcomeSolo, nil
	}
}

func (b *Builder) randomTheme() string {
	if opt, ok := catalog.RandomFrom(b.Rand, b.Catalog.ThemeOptions()); ok {
		return opt.PromptFragment
	}
	return fallbackTheme
}

func (b *Builder) poseFrom(categoryID, fallback string) string {
	if opt, ok := b.Catalog.RandomOption(b.Rand, categoryID); ok {
		return opt.PromptFragment
	}
	return fallback
}

func (b *Builder) soloSentence(theme string) string {
	return "A solo person in " + b.poseFrom(catalog.CategorySolo, fallbackSoloPose) + ", " + theme + "."
}

// companionSentence - 파트너/자녀 생성 지시문 (인종이 Auto-detect가 아니면 명시)
func (b *Builder) companionSentence(mode GenerationMode, label, ethnicity, theme string) string {
	var sb strings.Builder
	sb.WriteString("A single person is in the photo. ")
	sb.WriteString("Generate an AI-generated " + label + " for them. ")

	explicit := ethnicity != "" && ethnicity != catalog.AutoDetect
	var poseCategory string
	if mode == ModePartner {
		if explicit {
			sb.WriteString("The partner should have an ethnicity of " + ethnicity + ". ")
		} else {
			sb.WriteString("The partner should have features that are a plausible and aesthetically complementary blend to the original person. ")
		}
		poseCategory = catalog.CategoryCouples
	} else {
		if explicit {
			sb.WriteString("The child should have an ethnicity of " + ethnicity + ". ")
		} else {
			sb.WriteString("The child should appear to be a plausible genetic blend of the person in the photo. ")
		}
		poseCategory = catalog.CategoryFamily
	}

	sb.WriteString("They are in " + b.poseFrom(poseCategory, fallbackGroupPose) + ". The scene is: " + theme + ".")
	return sb.String()
}
