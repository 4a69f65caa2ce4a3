package catalog

import (
	_ "embed"
	"fmt"
	"log"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog - 포즈/테마 옵션 레지스트리 (로드 후 불변)
type Catalog struct {
	Poses        []Category          `yaml:"poses" json:"poses"`
	Themes       []Category          `yaml:"themes" json:"themes"`
	PartnerTypes []Label             `yaml:"partnerTypes" json:"partnerTypes"`
	ChildGenders []Label             `yaml:"childGenders" json:"childGenders"`
	Ethnicities  []Label             `yaml:"ethnicities" json:"ethnicities"`
	Suggestions  map[string][]string `yaml:"suggestions" json:"suggestions"`

	byCategory map[string]*Category
	byOption   map[string]Option
	poseOpts   []Option
	themeOpts  []Option
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default - 내장 catalog.yaml 로드 (프로세스당 한 번)
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(defaultCatalogYAML)
		if err != nil {
			log.Fatalf("❌ Failed to load embedded catalog: %v", err)
		}
		log.Printf("✅ Catalog loaded: %d pose categories, %d theme categories, %d options",
			len(c.Poses), len(c.Themes), len(c.byOption))
		defaultCatalog = c
	})
	return defaultCatalog
}

// Parse - YAML에서 카탈로그 생성 및 검증
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c.byCategory = make(map[string]*Category)
	c.byOption = make(map[string]Option)

	index := func(cats []Category, kind Kind) ([]Option, error) {
		var flat []Option
		for i := range cats {
			cat := &cats[i]
			cat.Kind = kind
			if cat.ID == "" {
				return nil, fmt.Errorf("%s category #%d has no id", kind, i)
			}
			if _, dup := c.byCategory[cat.ID]; dup {
				return nil, fmt.Errorf("duplicate category id: %s", cat.ID)
			}
			if len(cat.Options) == 0 {
				return nil, fmt.Errorf("category %s has no options", cat.ID)
			}
			c.byCategory[cat.ID] = cat
			for _, opt := range cat.Options {
				if opt.ID == "" || opt.PromptFragment == "" {
					return nil, fmt.Errorf("category %s has an option without id or prompt fragment", cat.ID)
				}
				if _, dup := c.byOption[opt.ID]; dup {
					return nil, fmt.Errorf("duplicate option id: %s", opt.ID)
				}
				c.byOption[opt.ID] = opt
				flat = append(flat, opt)
			}
		}
		return flat, nil
	}

	var err error
	if c.poseOpts, err = index(c.Poses, KindPose); err != nil {
		return nil, err
	}
	if c.themeOpts, err = index(c.Themes, KindTheme); err != nil {
		return nil, err
	}
	return &c, nil
}

// Category - 카테고리 조회
func (c *Catalog) Category(categoryID string) (*Category, bool) {
	cat, ok := c.byCategory[categoryID]
	return cat, ok
}

// FindOption - 카테고리 안에서 옵션 조회 (없으면 false, 치명적이지 않음)
func (c *Catalog) FindOption(categoryID, optionID string) (Option, bool) {
	cat, ok := c.byCategory[categoryID]
	if !ok {
		return Option{}, false
	}
	for _, opt := range cat.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return Option{}, false
}

// LookupOption - 카테고리 구분 없이 옵션 ID로 조회
func (c *Catalog) LookupOption(optionID string) (Option, bool) {
	opt, ok := c.byOption[optionID]
	return opt, ok
}

// AllOptions - 포즈 + 테마 전체 옵션 (포즈 먼저)
func (c *Catalog) AllOptions() []Option {
	out := make([]Option, 0, len(c.poseOpts)+len(c.themeOpts))
	out = append(out, c.poseOpts...)
	return append(out, c.themeOpts...)
}

// PoseOptions - 전체 포즈 옵션
func (c *Catalog) PoseOptions() []Option { return c.poseOpts }

// ThemeOptions - 전체 테마 옵션
func (c *Catalog) ThemeOptions() []Option { return c.themeOpts }

// Categories - 종류별 카테고리 목록
func (c *Catalog) Categories(kind Kind) []Category {
	if kind == KindPose {
		return c.Poses
	}
	return c.Themes
}

// RandomOption - 카테고리에서 균등 확률로 옵션 하나 선택
func (c *Catalog) RandomOption(rng Rand, categoryID string) (Option, bool) {
	cat, ok := c.byCategory[categoryID]
	if !ok || len(cat.Options) == 0 {
		return Option{}, false
	}
	return cat.Options[rng.IntN(len(cat.Options))], true
}

// RandomCategory - 포즈/테마 카탈로그에서 균등 확률로 카테고리 하나 선택
func (c *Catalog) RandomCategory(rng Rand, kind Kind) (*Category, bool) {
	cats := c.Categories(kind)
	if len(cats) == 0 {
		return nil, false
	}
	return &cats[rng.IntN(len(cats))], true
}

// RandomFrom - 평탄화된 옵션 목록에서 하나 선택
func RandomFrom(rng Rand, opts []Option) (Option, bool) {
	if len(opts) == 0 {
		return Option{}, false
	}
	return opts[rng.IntN(len(opts))], true
}

// RandomLabel - 고정 선택지에서 하나 선택
func RandomLabel(rng Rand, labels []Label) (Label, bool) {
	if len(labels) == 0 {
		return Label{}, false
	}
	return labels[rng.IntN(len(labels))], true
}

// SurpriseMe - 랜덤 포즈 카테고리/옵션 + 랜덤 테마 카테고리/옵션으로 설정 생성
func (c *Catalog) SurpriseMe(rng Rand) *SceneConfiguration {
	scene := NewSceneConfiguration()
	for _, kind := range []Kind{KindPose, KindTheme} {
		cat, ok := c.RandomCategory(rng, kind)
		if !ok {
			continue
		}
		if opt, ok := c.RandomOption(rng, cat.ID); ok {
			scene.Set(cat.ID, opt.ID)
		}
	}
	return scene
}

// Fragments - 설정된 카테고리의 프롬프트 조각을 삽입 순서대로 수집 (해석 불가 항목은 제외)
func (c *Catalog) Fragments(scene *SceneConfiguration) []string {
	var out []string
	for _, categoryID := range scene.Keys() {
		optionID, _ := scene.Get(categoryID)
		if opt, ok := c.FindOption(categoryID, optionID); ok {
			out = append(out, opt.PromptFragment)
		}
	}
	return out
}
