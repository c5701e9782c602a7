// Package pipeline orchestrates one conversational turn end to end:
// ingest, resolve, extract, resolve conflicts, then retrieve — tying
// together every other component package.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veyra-labs/memcore/internal/domain"
	"github.com/veyra-labs/memcore/internal/extractor"
	"github.com/veyra-labs/memcore/internal/lifecycle"
	"github.com/veyra-labs/memcore/internal/resolver"
	"github.com/veyra-labs/memcore/internal/retrieval"
)

type Pipeline struct {
	events    domain.ChatEventStore
	episodic  domain.EpisodicStore
	semantic  domain.SemanticStore
	resolver  *resolver.Resolver
	extractor *extractor.Extractor
	conflicts *lifecycle.ConflictService
	retriever *retrieval.Retriever
	embedder  domain.EmbeddingClient
	logger    *zap.Logger
}

func New(
	events domain.ChatEventStore,
	episodic domain.EpisodicStore,
	semantic domain.SemanticStore,
	res *resolver.Resolver,
	ex *extractor.Extractor,
	conflicts *lifecycle.ConflictService,
	retriever *retrieval.Retriever,
	embedder domain.EmbeddingClient,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		events: events, episodic: episodic, semantic: semantic,
		resolver: res, extractor: ex, conflicts: conflicts, retriever: retriever, embedder: embedder,
		logger: logger,
	}
}

// Ingest records one turn idempotently: two calls with the same
// session, content, and second-truncated timestamp return the same
// event rather than creating a duplicate.
func (p *Pipeline) Ingest(ctx context.Context, userID, sessionID, role, content string, metadata map[string]any) (*domain.ChatEvent, error) {
	now := time.Now()
	event := &domain.ChatEvent{
		SessionID:   sessionID,
		UserID:      userID,
		Role:        role,
		Content:     content,
		ContentHash: domain.ComputeContentHash(sessionID, content, now),
		Metadata:    metadata,
	}
	if err := p.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("ingest chat event: %w", err)
	}
	return event, nil
}

// TurnResult is everything a single ProcessTurn call produced, for
// callers that want visibility beyond the final ReplyContext (tests,
// logging, metrics).
type TurnResult struct {
	Event        *domain.ChatEvent
	Extracted    *extractor.Result
	ReplyContext *domain.ReplyContext
}

// ProcessTurn runs the full per-turn flow: ingest, resolve every
// mention, extract semantic memories, auto-resolve any conflicts found,
// record an episodic memory of the turn, and retrieve a ReplyContext.
// Retrieval excludes memories this same turn just created — a freshly
// extracted fact is reflected in the episodic record of what happened,
// not re-surfaced as a "recalled" memory in the same breath it was
// learned.
func (p *Pipeline) ProcessTurn(ctx context.Context, userID, sessionID, role, content string, mentions []string, metadata map[string]any) (*TurnResult, error) {
	event, err := p.Ingest(ctx, userID, sessionID, role, content, metadata)
	if err != nil {
		p.logger.Error("ingest failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}

	entities, entityIDs := p.resolveAll(ctx, userID, mentions, content)
	if len(mentions) > 0 {
		p.logger.Debug("mentions resolved",
			zap.String("event_id", event.EventID),
			zap.Int("mentions", len(mentions)),
			zap.Int("resolved", len(entities)))
	}

	extracted, err := p.extractor.Extract(ctx, userID, event, entities)
	if err != nil {
		p.logger.Error("extraction failed", zap.String("event_id", event.EventID), zap.Error(err))
		return nil, fmt.Errorf("extract turn: %w", err)
	}
	if len(extracted.Conflicts) > 0 {
		p.logger.Info("conflicts detected this turn",
			zap.String("event_id", event.EventID),
			zap.Int("count", len(extracted.Conflicts)))
	}

	if err := p.resolveConflicts(ctx, extracted.Conflicts); err != nil {
		p.logger.Error("conflict resolution failed", zap.String("event_id", event.EventID), zap.Error(err))
		return nil, err
	}

	if err := p.recordEpisode(ctx, userID, sessionID, event, entityIDs, extracted); err != nil {
		p.logger.Error("episode recording failed", zap.String("event_id", event.EventID), zap.Error(err))
		return nil, err
	}

	excluded := make(map[string]bool, len(extracted.Memories))
	for _, m := range extracted.Memories {
		excluded[m.MemoryID] = true
	}

	query := domain.Query{Text: content, UserID: userID, SessionID: sessionID, Mentions: mentions}
	reply, err := p.retriever.Retrieve(ctx, query, extracted.Conflicts)
	if err != nil {
		return nil, fmt.Errorf("retrieve reply context: %w", err)
	}
	reply.Memories = excludeMemories(reply.Memories, excluded)

	return &TurnResult{Event: event, Extracted: extracted, ReplyContext: reply}, nil
}

func excludeMemories(results []domain.ScoredResult, excluded map[string]bool) []domain.ScoredResult {
	if len(excluded) == 0 {
		return results
	}
	out := results[:0]
	for _, r := range results {
		if !excluded[r.MemoryID] {
			out = append(out, r)
		}
	}
	return out
}

func (p *Pipeline) resolveAll(ctx context.Context, userID string, mentions []string, content string) ([]domain.CanonicalEntity, []string) {
	var entities []domain.CanonicalEntity
	var ids []string
	for _, mention := range mentions {
		res, err := p.resolver.Resolve(ctx, mention, resolver.ClassifyMentionType(mention), userID, content)
		if err != nil || res == nil {
			continue
		}
		entities = append(entities, *res.Entity)
		ids = append(ids, res.Entity.EntityID)
	}
	return entities, ids
}

// resolveConflicts auto-resolves every conflict the extractor detected
// this turn, happening-before the reply is finalized. memory_vs_memory
// conflicts are resolved by loading both competing memories;
// memory_vs_db conflicts by loading the stale one.
func (p *Pipeline) resolveConflicts(ctx context.Context, conflicts []domain.MemoryConflict) error {
	for i := range conflicts {
		c := &conflicts[i]
		switch c.ConflictType {
		case domain.ConflictMemoryVsMemory:
			a, err := p.semantic.GetByID(ctx, c.ConflictData.MemoryAID)
			if err != nil {
				return fmt.Errorf("load conflict memory a: %w", err)
			}
			b, err := p.semantic.GetByID(ctx, c.ConflictData.MemoryBID)
			if err != nil {
				return fmt.Errorf("load conflict memory b: %w", err)
			}
			if err := p.conflicts.ResolveMemoryVsMemory(ctx, c, a, b); err != nil {
				return fmt.Errorf("resolve memory_vs_memory conflict: %w", err)
			}

		case domain.ConflictMemoryVsDB:
			stale, err := p.semantic.GetByID(ctx, c.ConflictData.MemoryAID)
			if err != nil {
				return fmt.Errorf("load stale memory: %w", err)
			}
			if err := p.conflicts.ResolveMemoryVsDB(ctx, c, stale); err != nil {
				return fmt.Errorf("resolve memory_vs_db conflict: %w", err)
			}
		}
	}
	return nil
}

// recordEpisode captures "what happened" in this turn as an episodic
// memory, independent of whatever durable facts were (or weren't)
// extracted from it.
func (p *Pipeline) recordEpisode(ctx context.Context, userID, sessionID string, event *domain.ChatEvent, entityIDs []string, extracted *extractor.Result) error {
	importance := 0.3
	if len(extracted.Memories) > 0 {
		importance = 0.6
	}
	if len(extracted.Conflicts) > 0 {
		importance = 0.8
	}

	episode := &domain.EpisodicMemory{
		UserID:        userID,
		SessionID:     sessionID,
		Summary:       event.Content,
		Entities:      entityIDs,
		Importance:    importance,
		SourceEventID: event.EventID,
	}
	if p.embedder != nil {
		if vec, err := p.embedder.Embed(ctx, event.Content); err == nil {
			episode.Embedding = vec
		}
	}
	if err := p.episodic.Create(ctx, episode); err != nil {
		return fmt.Errorf("record episodic memory: %w", err)
	}
	return nil
}
