package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/veyra-labs/memcore/internal/domain"
	"github.com/veyra-labs/memcore/internal/registry"
	"github.com/veyra-labs/memcore/internal/resolver"
)

// domainTargetTypes is every downstream entity type domain augmentation
// can reach; used in full only for a mention classified as a generic
// customer, where any of these could be relevant. A mention classified
// as a specific coded type is narrowed to just that one (see
// resolveMentions).
var domainTargetTypes = []string{"sales_order", "work_order", "invoice", "payment", "task"}

// Retriever assembles a ReplyContext for one turn's query: it resolves
// mentions, generates candidates across memory layers in parallel,
// scores and ranks them, augments with domain facts, evaluates
// proactive triggers, flags memories due for validation, and redacts
// PII before anything is handed back to a reply generator.
type Retriever struct {
	resolver  *resolver.Resolver
	embedder  domain.EmbeddingClient
	semantic  domain.SemanticStore
	episodic  domain.EpisodicStore
	summaries domain.SummaryStore
	procedures domain.ProceduralStore
	augmenter *DomainAugmenter
	reg       *registry.Registry

	// PolicyRecorder, if set, is invoked whenever PII redaction fires so
	// the event itself becomes a durable policy-type semantic memory.
	PolicyRecorder func(ctx context.Context, userID string, kind string, count int)
}

func New(
	res *resolver.Resolver,
	embedder domain.EmbeddingClient,
	semantic domain.SemanticStore,
	episodic domain.EpisodicStore,
	summaries domain.SummaryStore,
	procedures domain.ProceduralStore,
	augmenter *DomainAugmenter,
	reg *registry.Registry,
) *Retriever {
	return &Retriever{
		resolver: res, embedder: embedder, semantic: semantic, episodic: episodic,
		summaries: summaries, procedures: procedures, augmenter: augmenter, reg: reg,
	}
}

// Retrieve runs the full retrieval pipeline for q. conflicts is whatever
// memory_vs_memory/memory_vs_db conflicts the orchestrator detected
// earlier this turn — retrieval only projects them for display, it does
// not detect or resolve them.
func (r *Retriever) Retrieve(ctx context.Context, q domain.Query, conflicts []domain.MemoryConflict) (*domain.ReplyContext, error) {
	now := time.Now()

	entities, entityIDs, targetTypes := r.resolveMentions(ctx, q)

	var embedding []float32
	if r.embedder != nil {
		vec, err := r.embedder.Embed(ctx, q.Text)
		if err != nil {
			return nil, &domain.ResourceExhaustion{Resource: "embedding provider", Cause: err}
		}
		embedding = vec
	}

	cands, err := r.gatherCandidates(ctx, q, entityIDs, embedding, now)
	if err != nil {
		return nil, err
	}
	scored := scoreCandidates(cands, entityIDs, r.reg, "factual_entity_focused", now)

	var facts []domain.DomainFact
	if r.augmenter != nil {
		for i := range entities {
			f, err := r.augmenter.Augment(ctx, &entities[i], targetTypes[i])
			if err != nil {
				return nil, err
			}
			facts = append(facts, f...)
		}
	}

	var notices []domain.ProactiveNotice
	if r.procedures != nil && embedding != nil {
		procs, err := r.procedures.FindSimilar(ctx, embedding, r.reg.TopK(), q.UserID)
		if err != nil {
			return nil, fmt.Errorf("find procedural candidates: %w", err)
		}
		notices = evaluateProactiveNotices(procs, facts)
	}

	var prompts []string
	for i := range scored {
		if scored[i].Layer != domain.LayerSemantic {
			continue
		}
		m, err := r.semantic.GetByID(ctx, scored[i].MemoryID)
		if err != nil {
			continue
		}
		if p := validationPrompt(m.OriginalText, m.LastValidatedAt, scored[i].EffectiveConfidence, r.reg, now); p != "" {
			prompts = append(prompts, p)
		}
	}

	redactedQuery, counts := redactPII(q.Text)
	for i := range scored {
		redacted, c := redactPII(scored[i].OriginalText)
		scored[i].OriginalText = redacted
		for k, v := range c {
			counts[k] += v
		}
	}
	if r.PolicyRecorder != nil {
		for kind, count := range counts {
			r.PolicyRecorder(ctx, q.UserID, kind, count)
		}
	}

	var conflictSummaries []domain.ConflictSummary
	for _, c := range conflicts {
		conflictSummaries = append(conflictSummaries, domain.ConflictSummary{
			ConflictType:       c.ConflictType,
			MemoryValue:        c.ConflictData.MemoryValue,
			DBValue:            c.ConflictData.DBValue,
			ResolutionStrategy: c.ResolutionStrategy,
		})
	}

	return &domain.ReplyContext{
		QueryText:         redactedQuery,
		DomainFacts:       facts,
		Memories:          scored,
		ProactiveNotices:  notices,
		ValidationPrompts: prompts,
		ConflictsDetected: conflictSummaries,
	}, nil
}

// resolveMentions resolves every mention in q, skipping (and not
// failing the turn over) any that comes back not found; an ambiguous
// mention is likewise skipped. The pipeline's own mention resolution
// skips it the same way, so an AmbiguousEntity does not reach the
// caller and the turn is not halted. Alongside each resolved entity it classifies the
// mention's surface form to narrow which downstream types domain
// augmentation bothers walking to: a coded mention like "INV-4821"
// only needs its own type, a bare name is augmented against every
// downstream type since it could be any of them.
func (r *Retriever) resolveMentions(ctx context.Context, q domain.Query) ([]domain.CanonicalEntity, []string, [][]string) {
	if r.resolver == nil {
		return nil, nil, nil
	}
	var entities []domain.CanonicalEntity
	var ids []string
	var targetTypes [][]string
	for _, mention := range q.Mentions {
		entityType := resolver.ClassifyMentionType(mention)
		res, err := r.resolver.Resolve(ctx, mention, entityType, q.UserID, q.Text)
		if err != nil || res == nil {
			continue
		}
		entities = append(entities, *res.Entity)
		ids = append(ids, res.Entity.EntityID)
		if entityType == "customer" {
			targetTypes = append(targetTypes, domainTargetTypes)
		} else {
			targetTypes = append(targetTypes, []string{entityType})
		}
	}
	return entities, ids, targetTypes
}
