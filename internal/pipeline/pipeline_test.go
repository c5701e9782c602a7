package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veyra-labs/memcore/internal/domain"
	"github.com/veyra-labs/memcore/internal/extractor"
	"github.com/veyra-labs/memcore/internal/lifecycle"
	"github.com/veyra-labs/memcore/internal/registry"
	"github.com/veyra-labs/memcore/internal/resolver"
	"github.com/veyra-labs/memcore/internal/retrieval"
)

type fakeEvents struct {
	byHash map[string]*domain.ChatEvent
	n      int
}

func newFakeEvents() *fakeEvents { return &fakeEvents{byHash: map[string]*domain.ChatEvent{}} }

func (f *fakeEvents) Create(ctx context.Context, e *domain.ChatEvent) error {
	if existing, ok := f.byHash[e.ContentHash]; ok {
		*e = *existing
		return nil
	}
	f.n++
	e.EventID = "event-" + string(rune('a'+f.n))
	f.byHash[e.ContentHash] = e
	return nil
}
func (f *fakeEvents) GetByContentHash(ctx context.Context, hash string) (*domain.ChatEvent, error) {
	if e, ok := f.byHash[hash]; ok {
		return e, nil
	}
	return nil, domain.ErrNotFound
}
func (f *fakeEvents) GetByID(ctx context.Context, eventID string) (*domain.ChatEvent, error) {
	for _, e := range f.byHash {
		if e.EventID == eventID {
			return e, nil
		}
	}
	return nil, domain.ErrNotFound
}

type fakeEpisodic struct {
	created []domain.EpisodicMemory
}

func (f *fakeEpisodic) Create(ctx context.Context, m *domain.EpisodicMemory) error {
	m.MemoryID = "episode-1"
	f.created = append(f.created, *m)
	return nil
}
func (f *fakeEpisodic) FindByEntities(ctx context.Context, entityIDs []string, userID string, limit int) ([]domain.EpisodicMemory, error) {
	return nil, nil
}
func (f *fakeEpisodic) FindSimilar(ctx context.Context, embedding []float32, limit int, userID string) ([]domain.EpisodicWithScore, error) {
	return nil, nil
}
func (f *fakeEpisodic) AttenuateImportance(ctx context.Context, memoryIDs []string, factor float64) error {
	return nil
}
func (f *fakeEpisodic) CountForScope(ctx context.Context, userID string, scopeType domain.ScopeType, scopeIdentifier string) (int, error) {
	return 0, nil
}
func (f *fakeEpisodic) GetForScope(ctx context.Context, userID string, scopeType domain.ScopeType, scopeIdentifier string, limit int) ([]domain.EpisodicMemory, error) {
	return nil, nil
}

type fakeSemantic struct {
	memories map[string]*domain.SemanticMemory
}

func newFakeSemantic() *fakeSemantic { return &fakeSemantic{memories: map[string]*domain.SemanticMemory{}} }

func (f *fakeSemantic) Create(ctx context.Context, m *domain.SemanticMemory) error {
	m.MemoryID = "memory-" + string(rune('a'+len(f.memories)))
	m.LastValidatedAt = time.Now()
	cp := *m
	f.memories[m.MemoryID] = &cp
	return nil
}
func (f *fakeSemantic) GetByID(ctx context.Context, memoryID string) (*domain.SemanticMemory, error) {
	if m, ok := f.memories[memoryID]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}
func (f *fakeSemantic) FindBySubjectPredicate(ctx context.Context, subjectID, predicate, userID string) ([]domain.SemanticMemory, error) {
	return nil, nil
}
func (f *fakeSemantic) FindSimilar(ctx context.Context, embedding []float32, limit int, filters domain.SemanticFilters) ([]domain.SemanticWithScore, error) {
	return nil, nil
}
func (f *fakeSemantic) FindReinforcements(ctx context.Context, subjectID, predicate, excludeID string) ([]domain.SemanticMemory, error) {
	return nil, nil
}
func (f *fakeSemantic) FindByEntities(ctx context.Context, entityIDs []string, userID string, limit int) ([]domain.SemanticMemory, error) {
	return nil, nil
}
func (f *fakeSemantic) Update(ctx context.Context, m *domain.SemanticMemory) error {
	cp := *m
	f.memories[m.MemoryID] = &cp
	return nil
}

type fakeConflicts struct {
	created []domain.MemoryConflict
	updated []domain.MemoryConflict
}

func (f *fakeConflicts) Create(ctx context.Context, c *domain.MemoryConflict) error {
	c.ConflictID = "conflict-1"
	f.created = append(f.created, *c)
	return nil
}
func (f *fakeConflicts) Update(ctx context.Context, c *domain.MemoryConflict) error {
	f.updated = append(f.updated, *c)
	return nil
}
func (f *fakeConflicts) GetByID(ctx context.Context, conflictID string) (*domain.MemoryConflict, error) {
	return nil, domain.ErrNotFound
}

type fakeEntities struct{}

func (f *fakeEntities) GetByID(ctx context.Context, entityID string) (*domain.CanonicalEntity, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeEntities) FindExact(ctx context.Context, canonicalName string) (*domain.CanonicalEntity, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeEntities) FindByAlias(ctx context.Context, aliasText, userID string) (*domain.CanonicalEntity, float64, error) {
	return nil, 0, domain.ErrNotFound
}
func (f *fakeEntities) FuzzySearch(ctx context.Context, text string, threshold float64) ([]domain.EntityWithSimilarity, error) {
	return nil, nil
}
func (f *fakeEntities) Create(ctx context.Context, e *domain.CanonicalEntity) error { return nil }
func (f *fakeEntities) CreateAlias(ctx context.Context, canonicalEntityID, aliasText string, source domain.AliasSource, userID string, confidence float64, metadata map[string]any) (*domain.EntityAlias, error) {
	return nil, nil
}
func (f *fakeEntities) LookupByExternalRef(ctx context.Context, table, primaryKey string) (*domain.CanonicalEntity, error) {
	return nil, domain.ErrNotFound
}

type fakeSummaries struct{}

func (f *fakeSummaries) Create(ctx context.Context, s *domain.MemorySummary) error { return nil }
func (f *fakeSummaries) GetByScope(ctx context.Context, scopeType domain.ScopeType, scopeIdentifier, userID string) ([]domain.MemorySummary, error) {
	return nil, nil
}
func (f *fakeSummaries) FindSimilar(ctx context.Context, embedding []float32, limit int, userID string) ([]domain.SummaryWithScore, error) {
	return nil, nil
}

func buildPipeline(t *testing.T) (*Pipeline, *fakeSemantic, *fakeConflicts) {
	t.Helper()
	reg := registry.New()

	events := newFakeEvents()
	episodic := &fakeEpisodic{}
	semantic := newFakeSemantic()
	conflictStore := &fakeConflicts{}

	res := resolver.New(&fakeEntities{}, nil, nil, reg)
	ex := extractor.New(semantic, conflictStore, nil, nil, nil, reg)
	conflictSvc := lifecycle.NewConflictService(semantic, conflictStore)
	retriever := retrieval.New(res, nil, semantic, episodic, &fakeSummaries{}, nil, nil, reg)

	p := New(events, episodic, semantic, res, ex, conflictSvc, retriever, nil, nil)
	return p, semantic, conflictStore
}

func TestIngestIsIdempotentOnContentHash(t *testing.T) {
	p, _, _ := buildPipeline(t)
	ctx := context.Background()

	e1, err := p.Ingest(ctx, "u1", "s1", "user", "hello", nil)
	require.NoError(t, err)
	e2, err := p.Ingest(ctx, "u1", "s1", "user", "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, e1.EventID, e2.EventID)
}

func TestProcessTurnRecordsEpisodeAndReturnsReplyContext(t *testing.T) {
	p, _, _ := buildPipeline(t)
	ctx := context.Background()

	result, err := p.ProcessTurn(ctx, "u1", "s1", "user", "I prefer email over phone", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Event)
	require.NotNil(t, result.ReplyContext)
	assert.Empty(t, result.Extracted.Memories) // no LLM wired, so nothing extracted
}

func TestProcessTurnExcludesMemoriesCreatedThisTurn(t *testing.T) {
	p, semantic, _ := buildPipeline(t)
	ctx := context.Background()

	// Seed a pre-existing memory. The fake stores' similarity and entity
	// queries return nothing, so retrieval surfaces no memories here.
	pre := &domain.SemanticMemory{UserID: "u1", SubjectEntityID: "customer:kay_media", Predicate: "prefers_channel", Status: domain.StatusActive}
	require.NoError(t, semantic.Create(ctx, pre))

	result, err := p.ProcessTurn(ctx, "u1", "s1", "user", "no durable fact here", nil, nil)
	require.NoError(t, err)

	for _, r := range result.ReplyContext.Memories {
		for _, m := range result.Extracted.Memories {
			assert.NotEqual(t, m.MemoryID, r.MemoryID)
		}
	}
}

func TestResolveConflictsInvalidatesStaleMemoryBeforeReturning(t *testing.T) {
	p, semantic, conflicts := buildPipeline(t)
	ctx := context.Background()

	stale := &domain.SemanticMemory{UserID: "u1", SubjectEntityID: "customer:kay_media", Predicate: "payment_terms", Status: domain.StatusActive}
	require.NoError(t, semantic.Create(ctx, stale))

	conflict := domain.MemoryConflict{
		ConflictType: domain.ConflictMemoryVsDB,
		ConflictData: domain.ConflictData{MemoryAID: stale.MemoryID, DBTable: "customers"},
	}

	err := p.resolveConflicts(ctx, []domain.MemoryConflict{conflict})
	require.NoError(t, err)

	updated, err := semantic.GetByID(ctx, stale.MemoryID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvalidated, updated.Status)
	require.Len(t, conflicts.updated, 1)
	assert.NotNil(t, conflicts.updated[0].ResolutionStrategy)
	assert.Equal(t, domain.StrategyTrustDB, *conflicts.updated[0].ResolutionStrategy)
}
