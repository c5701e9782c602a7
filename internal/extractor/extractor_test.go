package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veyra-labs/memcore/internal/domain"
	"github.com/veyra-labs/memcore/internal/llm"
	"github.com/veyra-labs/memcore/internal/registry"
)

type fakeSemanticStore struct {
	byID         map[string]*domain.SemanticMemory
	bySubjPred   map[string][]domain.SemanticMemory
	created      []domain.SemanticMemory
	reinforceErr error
}

func newFakeSemanticStore() *fakeSemanticStore {
	return &fakeSemanticStore{byID: map[string]*domain.SemanticMemory{}, bySubjPred: map[string][]domain.SemanticMemory{}}
}

func (f *fakeSemanticStore) key(subjectID, predicate string) string { return subjectID + "|" + predicate }

func (f *fakeSemanticStore) Create(ctx context.Context, m *domain.SemanticMemory) error {
	if m.MemoryID == "" {
		m.MemoryID = "mem-" + subjectCounterKey(len(f.created))
	}
	cp := *m
	f.byID[m.MemoryID] = &cp
	f.created = append(f.created, cp)
	k := f.key(m.SubjectEntityID, m.Predicate)
	f.bySubjPred[k] = append(f.bySubjPred[k], cp)
	return nil
}

func subjectCounterKey(n int) string {
	return string(rune('a' + n))
}

func (f *fakeSemanticStore) GetByID(ctx context.Context, memoryID string) (*domain.SemanticMemory, error) {
	m, ok := f.byID[memoryID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}
func (f *fakeSemanticStore) FindBySubjectPredicate(ctx context.Context, subjectID, predicate, userID string) ([]domain.SemanticMemory, error) {
	return f.bySubjPred[f.key(subjectID, predicate)], nil
}
func (f *fakeSemanticStore) FindSimilar(ctx context.Context, embedding []float32, limit int, filters domain.SemanticFilters) ([]domain.SemanticWithScore, error) {
	return nil, nil
}
func (f *fakeSemanticStore) FindReinforcements(ctx context.Context, subjectID, predicate, excludeID string) ([]domain.SemanticMemory, error) {
	return nil, nil
}
func (f *fakeSemanticStore) FindByEntities(ctx context.Context, entityIDs []string, userID string, limit int) ([]domain.SemanticMemory, error) {
	return nil, nil
}
func (f *fakeSemanticStore) Update(ctx context.Context, m *domain.SemanticMemory) error {
	if f.reinforceErr != nil {
		return f.reinforceErr
	}
	cp := *m
	f.byID[m.MemoryID] = &cp
	return nil
}

type fakeConflictStore struct {
	created []domain.MemoryConflict
}

func (f *fakeConflictStore) Create(ctx context.Context, c *domain.MemoryConflict) error {
	c.ConflictID = "conflict-1"
	f.created = append(f.created, *c)
	return nil
}
func (f *fakeConflictStore) Update(ctx context.Context, c *domain.MemoryConflict) error { return nil }
func (f *fakeConflictStore) GetByID(ctx context.Context, conflictID string) (*domain.MemoryConflict, error) {
	return nil, domain.ErrNotFound
}

func TestExtractCreatesNewMemoryFromTriples(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Response = `[{"subject_entity_id":"customer:kay_media","predicate":"prefers_delivery_day","predicate_type":"preference","object_value":{"day":"Tuesday"},"original_text":"Kay Media prefers Tuesday delivery"}]`

	semantic := newFakeSemanticStore()
	conflicts := &fakeConflictStore{}
	reg := registry.New()

	ex := New(semantic, conflicts, mock, nil, nil, reg)
	event := &domain.ChatEvent{EventID: "evt1", Role: "user", Content: "We prefer Tuesday deliveries."}

	result, err := ex.Extract(context.Background(), "u1", event, nil)
	require.NoError(t, err)
	require.Len(t, result.Memories, 1)
	assert.Equal(t, "prefers_delivery_day", result.Memories[0].Predicate)
	assert.Empty(t, result.Conflicts)
}

func TestExtractSetsRelatedEntitiesFromResolved(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Response = `[{"subject_entity_id":"customer:kay_media","predicate":"prefers_delivery_day","predicate_type":"preference","object_value":{"day":"Tuesday"},"original_text":"Kay Media prefers Tuesday delivery"}]`

	semantic := newFakeSemanticStore()
	conflicts := &fakeConflictStore{}
	reg := registry.New()
	ex := New(semantic, conflicts, mock, nil, nil, reg)
	event := &domain.ChatEvent{EventID: "evt1", Role: "user", Content: "We prefer Tuesday deliveries."}

	resolved := []domain.CanonicalEntity{
		{EntityID: "customer:kay_media", CanonicalName: "Kay Media"},
		{EntityID: "person:jane_doe", CanonicalName: "Jane Doe"},
	}
	result, err := ex.Extract(context.Background(), "u1", event, resolved)
	require.NoError(t, err)
	require.Len(t, result.Memories, 1)
	assert.ElementsMatch(t, []string{"customer:kay_media", "person:jane_doe"}, result.Memories[0].RelatedEntities)
}

func TestExtractRejectsInvalidPredicateType(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Response = `[{"subject_entity_id":"customer:kay_media","predicate":"likes_cats","predicate_type":"bogus","object_value":{"v":true},"original_text":"n/a"}]`

	semantic := newFakeSemanticStore()
	conflicts := &fakeConflictStore{}
	reg := registry.New()
	ex := New(semantic, conflicts, mock, nil, nil, reg)
	event := &domain.ChatEvent{EventID: "evt1", Role: "user", Content: "something"}

	result, err := ex.Extract(context.Background(), "u1", event, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Memories)
	assert.Empty(t, result.Conflicts)
	assert.Empty(t, semantic.created)
}

func TestExtractConfidenceHintCanOnlyLowerNotRaiseConfidence(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Response = `[{"subject_entity_id":"customer:kay_media","predicate":"prefers_delivery_day","predicate_type":"preference","object_value":{"day":"Tuesday"},"original_text":"n/a","confidence_hint":0.2}]`

	semantic := newFakeSemanticStore()
	conflicts := &fakeConflictStore{}
	reg := registry.New()
	ex := New(semantic, conflicts, mock, nil, nil, reg)
	event := &domain.ChatEvent{EventID: "evt1", Role: "user", Content: "something"}

	result, err := ex.Extract(context.Background(), "u1", event, nil)
	require.NoError(t, err)
	require.Len(t, result.Memories, 1)
	assert.Equal(t, 0.2, result.Memories[0].Confidence)
}

func TestExtractReinforcesIdenticalTriple(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Response = `[{"subject_entity_id":"customer:kay_media","predicate":"prefers_delivery_day","predicate_type":"preference","object_value":{"day":"Tuesday"},"original_text":"prefers Tuesday"}]`

	semantic := newFakeSemanticStore()
	semantic.byID["existing"] = &domain.SemanticMemory{
		MemoryID: "existing", SubjectEntityID: "customer:kay_media", Predicate: "prefers_delivery_day",
		ObjectValue: map[string]any{"day": "tuesday"}, Confidence: 0.7,
	}
	semantic.bySubjPred[semantic.key("customer:kay_media", "prefers_delivery_day")] = []domain.SemanticMemory{*semantic.byID["existing"]}

	conflicts := &fakeConflictStore{}
	reg := registry.New()
	ex := New(semantic, conflicts, mock, nil, nil, reg)
	event := &domain.ChatEvent{EventID: "evt1", Role: "user", Content: "We prefer Tuesday deliveries."}

	result, err := ex.Extract(context.Background(), "u1", event, nil)
	require.NoError(t, err)
	require.Len(t, result.Memories, 1)
	assert.Equal(t, "existing", result.Memories[0].MemoryID)
	assert.Equal(t, 1, result.Memories[0].ReinforcementCount)
	assert.Empty(t, result.Conflicts)
}

func TestExtractRecordsMemoryVsMemoryConflictOnDisagreement(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Response = `[{"subject_entity_id":"customer:kay_media","predicate":"prefers_delivery_day","predicate_type":"preference","object_value":{"day":"Wednesday"},"original_text":"prefers Wednesday"}]`

	semantic := newFakeSemanticStore()
	existing := domain.SemanticMemory{
		MemoryID: "existing", SubjectEntityID: "customer:kay_media", Predicate: "prefers_delivery_day",
		ObjectValue: map[string]any{"day": "tuesday"}, Confidence: 0.7,
	}
	semantic.byID["existing"] = &existing
	semantic.bySubjPred[semantic.key("customer:kay_media", "prefers_delivery_day")] = []domain.SemanticMemory{existing}

	conflicts := &fakeConflictStore{}
	reg := registry.New()
	ex := New(semantic, conflicts, mock, nil, nil, reg)
	event := &domain.ChatEvent{EventID: "evt1", Role: "user", Content: "Actually we prefer Wednesday."}

	result, err := ex.Extract(context.Background(), "u1", event, nil)
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, domain.ConflictMemoryVsMemory, result.Conflicts[0].ConflictType)
	require.Len(t, conflicts.created, 1)
}

func TestExtractMalformedJSONYieldsZeroTriples(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Response = "not json at all"

	semantic := newFakeSemanticStore()
	conflicts := &fakeConflictStore{}
	reg := registry.New()
	ex := New(semantic, conflicts, mock, nil, nil, reg)
	event := &domain.ChatEvent{EventID: "evt1", Role: "user", Content: "hello"}

	result, err := ex.Extract(context.Background(), "u1", event, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Memories)
	assert.Empty(t, result.Conflicts)
}

type fakeDBChecker struct {
	table string
	value map[string]any
	ok    bool
}

func (f *fakeDBChecker) CurrentValue(ctx context.Context, subjectEntityID, predicate string) (string, map[string]any, bool, error) {
	return f.table, f.value, f.ok, nil
}

func TestExtractRecordsMemoryVsDBConflict(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Response = `[{"subject_entity_id":"customer:kay_media","predicate":"payment_terms","predicate_type":"attribute","object_value":{"terms":"net_30"},"original_text":"net 30 terms"}]`

	semantic := newFakeSemanticStore()
	conflicts := &fakeConflictStore{}
	dbChecker := &fakeDBChecker{table: "customers", value: map[string]any{"terms": "net_15"}, ok: true}
	reg := registry.New()

	ex := New(semantic, conflicts, mock, nil, dbChecker, reg)
	event := &domain.ChatEvent{EventID: "evt1", Role: "user", Content: "Our terms are net 30."}

	result, err := ex.Extract(context.Background(), "u1", event, nil)
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, domain.ConflictMemoryVsDB, result.Conflicts[0].ConflictType)
	require.Len(t, result.Memories, 1)
	assert.Equal(t, result.Memories[0].MemoryID, result.Conflicts[0].ConflictData.MemoryAID)
}
