package prompt

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-composer-server/modules/catalog"
	"scene-composer-server/modules/common/apperr"
)

// seqRand - 미리 정한 순서대로 값을 돌려주는 난수 소스
type seqRand struct {
	values []int
	i      int
}

func (r *seqRand) IntN(n int) int {
	v := r.values[r.i%len(r.values)]
	r.i++
	return v % n
}

func scene(pairs ...string) *catalog.SceneConfiguration {
	s := catalog.NewSceneConfiguration()
	for i := 0; i+1 < len(pairs); i += 2 {
		s.Set(pairs[i], pairs[i+1])
	}
	return s
}

func fragmentsOf(c *catalog.Catalog, categoryID string) []string {
	cat, _ := c.Category(categoryID)
	var out []string
	for _, o := range cat.Options {
		out = append(out, o.PromptFragment)
	}
	return out
}

func TestOverrideWins(t *testing.T) {
	b := NewBuilder(catalog.Default(), rand.New(rand.NewPCG(1, 1)))

	for _, in := range []Input{
		{SubjectCount: 1, FreeText: "me on the moon", Customizing: true, Single: SingleSubjectSettings{Mode: ModePartner, PartnerType: "Wife"}},
		{SubjectCount: 1, FreeText: "me on the moon", Scene: scene("travel", "travel_paris")},
		{SubjectCount: 3, FreeText: "me on the moon"},
	} {
		p, outcome, err := b.BuildDetailed(in)
		require.NoError(t, err)
		assert.Equal(t, "me on the moon", p)
		assert.Equal(t, OutcomeOverride, outcome)
	}
}

func TestZeroSubjectsIsValidationError(t *testing.T) {
	b := NewBuilder(catalog.Default(), rand.New(rand.NewPCG(1, 1)))

	p, err := b.Build(Input{SubjectCount: 0, Scene: scene("travel", "travel_paris")})
	assert.Empty(t, p)

	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "no-subject-provided", verr.Message)
}

func TestMultiSubjectConfigured(t *testing.T) {
	b := NewBuilder(catalog.Default(), rand.New(rand.NewPCG(1, 1)))

	p, err := b.Build(Input{SubjectCount: 2, Scene: scene("couples", "couples_hugging", "travel", "travel_paris")})
	require.NoError(t, err)
	assert.Equal(t, "a couple hugging closely and warmly, in Paris with the Eiffel Tower in the background.", p)

	p, err = b.Build(Input{SubjectCount: 2, Scene: scene("travel", "travel_paris", "couples", "couples_hugging")})
	require.NoError(t, err)
	assert.Equal(t, "in Paris with the Eiffel Tower in the background, a couple hugging closely and warmly.", p)
}

func TestMultiSubjectDropsUnresolvable(t *testing.T) {
	b := NewBuilder(catalog.Default(), rand.New(rand.NewPCG(1, 1)))

	p, err := b.Build(Input{SubjectCount: 4, Scene: scene("couples", "bogus", "daily_life", "daily_cafe")})
	require.NoError(t, err)
	assert.Equal(t, "in a cozy, warm cafe, drinking coffee.", p)
}

func TestMultiSubjectRandomDrawsOnePoseAndOneTheme(t *testing.T) {
	c := catalog.Default()
	b := NewBuilder(c, rand.New(rand.NewPCG(9, 9)))

	for i := 0; i < 200; i++ {
		p, outcome, err := b.BuildDetailed(Input{SubjectCount: 2, Scene: scene("travel", "bogus")})
		require.NoError(t, err)
		require.Equal(t, OutcomeMultiRandom, outcome)
		require.True(t, strings.HasSuffix(p, "."))

		poses, themes := 0, 0
		for _, o := range c.PoseOptions() {
			if strings.HasPrefix(p, o.PromptFragment+", ") {
				poses++
			}
		}
		for _, o := range c.ThemeOptions() {
			if strings.HasSuffix(p, ", "+o.PromptFragment+".") {
				themes++
			}
		}
		assert.Equal(t, 1, poses, p)
		assert.Equal(t, 1, themes, p)
	}
}

func TestSingleRandomDistribution(t *testing.T) {
	b := NewBuilder(catalog.Default(), rand.New(rand.NewPCG(42, 42)))

	const draws = 3000
	counts := map[Outcome]int{}
	for i := 0; i < draws; i++ {
		_, outcome, err := b.BuildDetailed(Input{SubjectCount: 1})
		require.NoError(t, err)
		counts[outcome]++
	}

	for _, o := range []Outcome{OutcomeSolo, OutcomePartner, OutcomeChild} {
		share := float64(counts[o]) / draws
		assert.InDelta(t, 1.0/3.0, share, 0.05, "outcome %s share %.3f", o, share)
	}
}

func TestSingleRandomSentences(t *testing.T) {
	c := catalog.Default()

	// theme=0 (travel_paris), outcome=0 (solo), pose=0 (solo_confident)
	b := NewBuilder(c, &seqRand{values: []int{0, 0, 0}})
	p, err := b.Build(Input{SubjectCount: 1})
	require.NoError(t, err)
	assert.Equal(t, "A solo person in a confident solo pose, looking directly at the camera, in Paris with the Eiffel Tower in the background.", p)

	// theme=1 (travel_beach), outcome=1 (partner), partnerType=1 (Husband), pose=2 (couples_hugging)
	b = NewBuilder(c, &seqRand{values: []int{1, 1, 1, 2}})
	p, err = b.Build(Input{SubjectCount: 1})
	require.NoError(t, err)
	assert.Equal(t, "A single person is in the photo. Generate an AI-generated Husband for them. "+
		"The partner should have features that are a plausible and aesthetically complementary blend to the original person. "+
		"They are in a couple hugging closely and warmly. The scene is: on a beautiful tropical beach at sunset.", p)

	// theme=0, outcome=2 (child), gender=1 (Daughter), pose=2 (family_group_hug)
	b = NewBuilder(c, &seqRand{values: []int{0, 2, 1, 2}})
	p, err = b.Build(Input{SubjectCount: 1})
	require.NoError(t, err)
	assert.Equal(t, "A single person is in the photo. Generate an AI-generated Daughter for them. "+
		"The child should appear to be a plausible genetic blend of the person in the photo. "+
		"They are in a warm family group hug. The scene is: in Paris with the Eiffel Tower in the background.", p)
}

func TestSingleCustomPartnerAutoDetect(t *testing.T) {
	c := catalog.Default()
	b := NewBuilder(c, rand.New(rand.NewPCG(5, 5)))

	p, outcome, err := b.BuildDetailed(Input{
		SubjectCount: 1,
		Customizing:  true,
		Scene:        scene("travel", "travel_beach"),
		Single:       SingleSubjectSettings{Mode: ModePartner, PartnerType: "Husband", Ethnicity: catalog.AutoDetect},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomePartner, outcome)

	prefix := "A single person is in the photo. Generate an AI-generated Husband for them. " +
		"The partner should have features that are a plausible and aesthetically complementary blend to the original person. They are in "
	suffix := ". The scene is: on a beautiful tropical beach at sunset."
	require.True(t, strings.HasPrefix(p, prefix), p)
	require.True(t, strings.HasSuffix(p, suffix), p)

	pose := strings.TrimSuffix(strings.TrimPrefix(p, prefix), suffix)
	assert.Contains(t, fragmentsOf(c, "couples"), pose)
}

func TestSingleCustomExplicitEthnicity(t *testing.T) {
	b := NewBuilder(catalog.Default(), &seqRand{values: []int{0}})

	p, err := b.Build(Input{
		SubjectCount: 1,
		Customizing:  true,
		Scene:        scene("travel", "travel_paris", "daily_life", "daily_cafe"),
		Single:       SingleSubjectSettings{Mode: ModeChild, ChildGender: "Son", Ethnicity: "Persian"},
	})
	require.NoError(t, err)
	assert.Equal(t, "A single person is in the photo. Generate an AI-generated Son for them. "+
		"The child should have an ethnicity of Persian. "+
		"They are in a classic family portrait pose, smiling at the camera. "+
		"The scene is: in Paris with the Eiffel Tower in the background, in a cozy, warm cafe, drinking coffee.", p)
}

func TestSingleCustomSoloFallsBackToRandomTheme(t *testing.T) {
	c := catalog.Default()
	// theme draw=3 (travel_tokyo), solo pose=1 (solo_thoughtful)
	b := NewBuilder(c, &seqRand{values: []int{3, 1}})

	p, err := b.Build(Input{SubjectCount: 1, Customizing: true, Single: DefaultSingleSubjectSettings()})
	require.NoError(t, err)
	assert.Equal(t, "A solo person in a thoughtful solo pose, looking away from the camera, on a busy, neon-lit street in Tokyo at night.", p)
}

func TestFallbackPhrases(t *testing.T) {
	empty, err := catalog.Parse([]byte(`
poses:
  - id: friends
    options:
      - {id: friends_selfie, promptFragment: "a fun group selfie pose"}
themes: []
`))
	require.NoError(t, err)
	b := NewBuilder(empty, &seqRand{values: []int{0}})

	p, err := b.Build(Input{SubjectCount: 1, Customizing: true})
	require.NoError(t, err)
	assert.Equal(t, "A solo person in a confident pose, a beautiful scene.", p)

	p, err = b.Build(Input{SubjectCount: 1, Customizing: true, Single: SingleSubjectSettings{Mode: ModePartner, PartnerType: "Wife", Ethnicity: catalog.AutoDetect}})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, "They are in a happy pose. The scene is: a beautiful scene."), p)
}

func TestSameSeedSamePrompt(t *testing.T) {
	c := catalog.Default()
	a, err := NewBuilder(c, rand.New(rand.NewPCG(11, 12))).Build(Input{SubjectCount: 1})
	require.NoError(t, err)
	b, err := NewBuilder(c, rand.New(rand.NewPCG(11, 12))).Build(Input{SubjectCount: 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
