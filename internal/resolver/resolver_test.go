package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veyra-labs/memcore/internal/domain"
	"github.com/veyra-labs/memcore/internal/registry"
)

type fakeEntities struct {
	byName           map[string]*domain.CanonicalEntity
	byAlias          map[string]*domain.CanonicalEntity
	byAliasConfidence map[string]float64
	fuzzy            []domain.EntityWithSimilarity
	byExternal       map[string]*domain.CanonicalEntity
	created          []*domain.CanonicalEntity
	aliases          []string
}

func (f *fakeEntities) GetByID(ctx context.Context, entityID string) (*domain.CanonicalEntity, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeEntities) FindExact(ctx context.Context, canonicalName string) (*domain.CanonicalEntity, error) {
	if e, ok := f.byName[canonicalName]; ok {
		return e, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEntities) FindByAlias(ctx context.Context, aliasText string, userID string) (*domain.CanonicalEntity, float64, error) {
	if e, ok := f.byAlias[aliasText]; ok {
		return e, f.byAliasConfidence[aliasText], nil
	}
	return nil, 0, domain.ErrNotFound
}

func (f *fakeEntities) FuzzySearch(ctx context.Context, text string, threshold float64) ([]domain.EntityWithSimilarity, error) {
	var out []domain.EntityWithSimilarity
	for _, c := range f.fuzzy {
		if c.Similarity >= threshold {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeEntities) Create(ctx context.Context, e *domain.CanonicalEntity) error {
	f.created = append(f.created, e)
	return nil
}

func (f *fakeEntities) CreateAlias(ctx context.Context, canonicalEntityID, aliasText string, source domain.AliasSource, userID string, confidence float64, metadata map[string]any) (*domain.EntityAlias, error) {
	f.aliases = append(f.aliases, aliasText)
	return &domain.EntityAlias{AliasID: "a1", CanonicalEntityID: canonicalEntityID, AliasText: aliasText, Source: source}, nil
}

func (f *fakeEntities) LookupByExternalRef(ctx context.Context, table, primaryKey string) (*domain.CanonicalEntity, error) {
	if e, ok := f.byExternal[table+":"+primaryKey]; ok {
		return e, nil
	}
	return nil, domain.ErrNotFound
}

type fakeLLM struct {
	reply string
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string, maxTokens int, timeout time.Duration) (string, error) {
	return f.reply, nil
}

type fakeDomainLookup struct {
	table, pk, displayName string
	ok                     bool
}

func (f *fakeDomainLookup) FindCandidate(ctx context.Context, entityType, mention string) (string, string, string, bool, error) {
	return f.table, f.pk, f.displayName, f.ok, nil
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	return registry.New()
}

func TestExactMatchShortCircuits(t *testing.T) {
	entities := &fakeEntities{byName: map[string]*domain.CanonicalEntity{
		"Kay Media": {EntityID: "customer:kay_media", CanonicalName: "Kay Media"},
	}}
	r := New(entities, nil, nil, newRegistry(t))

	res, err := r.Resolve(context.Background(), "Kay Media", "customer", "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "exact", res.Stage)
	assert.Equal(t, "customer:kay_media", res.Entity.EntityID)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestAliasMatchUsesNormalizedKey(t *testing.T) {
	entities := &fakeEntities{
		byName: map[string]*domain.CanonicalEntity{},
		byAlias: map[string]*domain.CanonicalEntity{
			"kay media": {EntityID: "customer:kay_media", CanonicalName: "Kay Media"},
		},
		byAliasConfidence: map[string]float64{"kay media": 0.88},
	}
	r := New(entities, nil, nil, newRegistry(t))

	res, err := r.Resolve(context.Background(), "KAY MEDIA", "customer", "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "alias", res.Stage)
	assert.Equal(t, 0.88, res.Confidence)
}

func TestFuzzyAutoAcceptLearnsAlias(t *testing.T) {
	entities := &fakeEntities{
		byName:  map[string]*domain.CanonicalEntity{},
		byAlias: map[string]*domain.CanonicalEntity{},
		fuzzy: []domain.EntityWithSimilarity{
			{CanonicalEntity: domain.CanonicalEntity{EntityID: "customer:kay_media", CanonicalName: "Kay Media"}, Similarity: 0.92},
			{CanonicalEntity: domain.CanonicalEntity{EntityID: "customer:kay_corp", CanonicalName: "Kay Corp"}, Similarity: 0.40},
		},
	}
	r := New(entities, nil, nil, newRegistry(t))

	res, err := r.Resolve(context.Background(), "Kay Mediaa", "customer", "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "fuzzy", res.Stage)
	assert.Equal(t, "customer:kay_media", res.Entity.EntityID)
	assert.Equal(t, 0.92, res.Confidence)
	require.Len(t, entities.aliases, 1)
	assert.Equal(t, "Kay Mediaa", entities.aliases[0])
}

func TestFuzzyAmbiguousRaisesError(t *testing.T) {
	entities := &fakeEntities{
		byName:  map[string]*domain.CanonicalEntity{},
		byAlias: map[string]*domain.CanonicalEntity{},
		fuzzy: []domain.EntityWithSimilarity{
			{CanonicalEntity: domain.CanonicalEntity{EntityID: "customer:kay_media", CanonicalName: "Kay Media"}, Similarity: 0.90},
			{CanonicalEntity: domain.CanonicalEntity{EntityID: "customer:kay_media_group", CanonicalName: "Kay Media Group"}, Similarity: 0.89},
		},
	}
	r := New(entities, nil, nil, newRegistry(t))

	_, err := r.Resolve(context.Background(), "Kay Media", "customer", "u1", "")
	require.Error(t, err)
	var ambig *domain.AmbiguousEntity
	require.ErrorAs(t, err, &ambig)
	assert.Len(t, ambig.Candidates, 2)
}

func TestFuzzyBelowThresholdFallsThroughToNotFound(t *testing.T) {
	entities := &fakeEntities{
		byName:  map[string]*domain.CanonicalEntity{},
		byAlias: map[string]*domain.CanonicalEntity{},
		fuzzy:   nil,
	}
	r := New(entities, nil, nil, newRegistry(t))

	_, err := r.Resolve(context.Background(), "Zyx Unknown", "customer", "u1", "")
	require.Error(t, err)
	var notFound *domain.EntityNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestCoreferenceMatchResolvesPronoun(t *testing.T) {
	entities := &fakeEntities{
		byName: map[string]*domain.CanonicalEntity{
			"Kay Media": {EntityID: "customer:kay_media", CanonicalName: "Kay Media"},
		},
		byAlias: map[string]*domain.CanonicalEntity{},
	}
	llm := &fakeLLM{reply: "Kay Media"}
	r := New(entities, llm, nil, newRegistry(t))

	res, err := r.Resolve(context.Background(), "they", "customer", "u1", "user mentioned Kay Media earlier")
	require.NoError(t, err)
	assert.Equal(t, "coreference", res.Stage)
	assert.Equal(t, "customer:kay_media", res.Entity.EntityID)
	assert.Equal(t, 0.75, res.Confidence)
}

func TestLazyCreateMintsEntityFromDomainDB(t *testing.T) {
	entities := &fakeEntities{
		byName:     map[string]*domain.CanonicalEntity{},
		byAlias:    map[string]*domain.CanonicalEntity{},
		byExternal: map[string]*domain.CanonicalEntity{},
	}
	lookup := &fakeDomainLookup{table: "customers", pk: "42", displayName: "Kay Media", ok: true}
	r := New(entities, nil, lookup, newRegistry(t))

	res, err := r.Resolve(context.Background(), "Kay Media", "customer", "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "domain_db", res.Stage)
	assert.Equal(t, 0.90, res.Confidence)
	require.Len(t, entities.created, 1)
	assert.Equal(t, "customer:kay_media", entities.created[0].EntityID)
	assert.Equal(t, "customers", entities.created[0].ExternalRef.Table)
}

func TestLazyCreateReturnsExistingOnExternalRefMatch(t *testing.T) {
	existing := &domain.CanonicalEntity{EntityID: "customer:kay_media", CanonicalName: "Kay Media"}
	entities := &fakeEntities{
		byName:     map[string]*domain.CanonicalEntity{},
		byAlias:    map[string]*domain.CanonicalEntity{},
		byExternal: map[string]*domain.CanonicalEntity{"customers:42": existing},
	}
	lookup := &fakeDomainLookup{table: "customers", pk: "42", displayName: "Kay Media", ok: true}
	r := New(entities, nil, lookup, newRegistry(t))

	res, err := r.Resolve(context.Background(), "Kay Media", "customer", "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "domain_db", res.Stage)
	assert.Equal(t, existing, res.Entity)
	assert.Empty(t, entities.created)
}

func TestEmptyMentionIsNotFound(t *testing.T) {
	r := New(&fakeEntities{}, nil, nil, newRegistry(t))
	_, err := r.Resolve(context.Background(), "", "customer", "u1", "")
	require.Error(t, err)
	var notFound *domain.EntityNotFound
	require.ErrorAs(t, err, &notFound)
}
