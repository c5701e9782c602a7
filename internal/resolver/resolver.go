// Package resolver implements entity resolution: turning a free-text
// mention into a canonical entity via a five-stage pipeline, each stage
// only running if the previous one came up empty.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/veyra-labs/memcore/internal/domain"
	"github.com/veyra-labs/memcore/internal/registry"
	"github.com/veyra-labs/memcore/internal/resolver/normalize"
)

// DomainLookup resolves a mention against the authoritative domain
// database as the last-resort lazy-create stage (stage 5). It is kept
// separate from domain.DomainDB because the lookup shape (by entity
// type + free text) is resolver-specific, not a generic query executor.
type DomainLookup interface {
	// FindCandidate looks for a row in the domain DB matching mention for
	// the given entity type, returning the external table/primary key and
	// a display name to use as the canonical name if a new entity must be
	// minted. ok is false if nothing plausible was found.
	FindCandidate(ctx context.Context, entityType, mention string) (table string, primaryKey string, displayName string, ok bool, err error)
}

// CoreferenceTimeout bounds the LLM coreference call (stage 4); a slow
// provider must never stall an entire turn.
const CoreferenceTimeout = 5 * time.Second

type Resolver struct {
	entities domain.EntityStore
	llm      domain.LLMClient
	domain   DomainLookup
	reg      *registry.Registry
}

func New(entities domain.EntityStore, llm domain.LLMClient, domainLookup DomainLookup, reg *registry.Registry) *Resolver {
	return &Resolver{entities: entities, llm: llm, domain: domainLookup, reg: reg}
}

// Result is what a successful resolution produces, plus how it got there
// — Stage names the stage that matched ("exact", "alias", "fuzzy",
// "coreference", "domain_db") and Confidence weighs the resolution itself
// (distinct from any confidence on memories built from it).
type Result struct {
	Entity     *domain.CanonicalEntity
	Stage      string
	Confidence float64
}

// Per-stage confidence values for stages that don't carry their own
// measured score (exact/alias/fuzzy do; coreference and domain_db don't).
const (
	exactMatchConfidence       = 1.0
	coreferenceMatchConfidence = 0.75
	lazyCreateConfidence       = 0.90
)

// Resolve runs the five-stage pipeline for a single mention. entityType
// is a hint (e.g. "customer", "project") used to scope coreference and
// the domain-DB fallback; fuzzy search is not scoped by it, and an empty
// entityType skips the domain-DB fallback. conversationContext is the
// recent turn text, used only by stage 4 (coreference), which runs for
// any mention the first three stages missed.
func (r *Resolver) Resolve(ctx context.Context, mention string, entityType string, userID string, conversationContext string) (*Result, error) {
	if mention == "" {
		return nil, &domain.EntityNotFound{Mention: mention}
	}

	if e, err := r.exactMatch(ctx, mention); err != nil {
		return nil, err
	} else if e != nil {
		return &Result{Entity: e, Stage: "exact", Confidence: exactMatchConfidence}, nil
	}

	if e, conf, err := r.aliasMatch(ctx, mention, userID); err != nil {
		return nil, err
	} else if e != nil {
		return &Result{Entity: e, Stage: "alias", Confidence: conf}, nil
	}

	e, sim, err := r.fuzzyMatch(ctx, mention, userID)
	if err != nil {
		return nil, err
	}
	if e != nil {
		return &Result{Entity: e, Stage: "fuzzy", Confidence: sim}, nil
	}

	if r.llm != nil {
		e, err := r.coreferenceMatch(ctx, mention, entityType, userID, conversationContext)
		if err != nil {
			return nil, err
		}
		if e != nil {
			return &Result{Entity: e, Stage: "coreference", Confidence: coreferenceMatchConfidence}, nil
		}
	}

	e, err = r.lazyCreate(ctx, mention, entityType, userID)
	if err != nil {
		return nil, err
	}
	if e != nil {
		return &Result{Entity: e, Stage: "domain_db", Confidence: lazyCreateConfidence}, nil
	}

	return nil, &domain.EntityNotFound{Mention: mention}
}

func (r *Resolver) exactMatch(ctx context.Context, mention string) (*domain.CanonicalEntity, error) {
	e, err := r.entities.FindExact(ctx, mention)
	if err == domain.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("exact match: %w", err)
	}
	return e, nil
}

func (r *Resolver) aliasMatch(ctx context.Context, mention, userID string) (*domain.CanonicalEntity, float64, error) {
	e, confidence, err := r.entities.FindByAlias(ctx, normalize.AliasKey(mention), userID)
	if err == domain.ErrNotFound {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("alias match: %w", err)
	}
	return e, confidence, nil
}

// fuzzyMatch runs trigram similarity search, then applies the
// auto-accept/ambiguity-margin logic: the top candidate is accepted
// automatically only if its score clears FuzzyAuto() AND it beats the
// runner-up by at least AmbiguityMargin(); candidates within the margin
// of each other raise AmbiguousEntity instead of guessing. A successful
// auto-accept records a fuzzy_learned alias so the same mention resolves
// via the (cheaper) alias stage next time.
func (r *Resolver) fuzzyMatch(ctx context.Context, mention, userID string) (*domain.CanonicalEntity, float64, error) {
	candidates, err := r.entities.FuzzySearch(ctx, mention, r.reg.FuzzyThreshold())
	if err != nil {
		return nil, 0, fmt.Errorf("fuzzy search: %w", err)
	}
	if len(candidates) == 0 {
		return nil, 0, nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Similarity > candidates[j].Similarity })
	best := candidates[0]

	if best.Similarity < r.reg.FuzzyAuto() {
		return nil, 0, nil
	}

	margin := r.reg.AmbiguityMargin()
	var tied []domain.ResolutionCandidate
	for _, c := range candidates {
		if best.Similarity-c.Similarity < margin {
			tied = append(tied, domain.ResolutionCandidate{EntityID: c.EntityID, Similarity: c.Similarity})
		}
	}
	if len(tied) > 1 {
		return nil, 0, &domain.AmbiguousEntity{Mention: mention, Candidates: tied}
	}

	if _, err := r.entities.CreateAlias(ctx, best.EntityID, mention, domain.AliasSourceFuzzyLearned, userID, best.Similarity, nil); err != nil {
		if _, ok := err.(*domain.ErrAliasCollision); !ok {
			return nil, 0, fmt.Errorf("record fuzzy_learned alias: %w", err)
		}
	}

	entity := best.CanonicalEntity
	return &entity, best.Similarity, nil
}

// coreferenceMatch asks the LLM which entity the mention refers to, given
// conversationContext. It never invents a new entity: the reply is only
// accepted if it exactly matches an existing canonical name (whether or
// not that entity appears in conversationContext). A failed or empty LLM
// reply, NONE, or an unknown name falls through to the next stage rather
// than erroring the turn.
func (r *Resolver) coreferenceMatch(ctx context.Context, mention, entityType, userID, conversationContext string) (*domain.CanonicalEntity, error) {
	if conversationContext == "" {
		return nil, nil
	}
	prompt := fmt.Sprintf(
		"Conversation so far:\n%s\n\nWhich entity does %q refer to? Reply with just the canonical name, or NONE if unclear.",
		conversationContext, mention,
	)
	reply, err := r.llm.Complete(ctx, prompt, 32, CoreferenceTimeout)
	if err != nil || reply == "" || reply == "NONE" {
		return nil, nil
	}
	e, err := r.entities.FindExact(ctx, reply)
	if err == domain.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("coreference lookup: %w", err)
	}
	return e, nil
}

// lazyCreate is the final stage: look the mention up against the
// read-only domain database and, if found, mint a new canonical entity
// keyed off that row. Nothing is invented if the domain DB has no match.
func (r *Resolver) lazyCreate(ctx context.Context, mention, entityType, userID string) (*domain.CanonicalEntity, error) {
	if r.domain == nil || entityType == "" {
		return nil, nil
	}
	table, pk, displayName, ok, err := r.domain.FindCandidate(ctx, entityType, mention)
	if err != nil {
		return nil, fmt.Errorf("domain db lookup: %w", err)
	}
	if !ok {
		return nil, nil
	}

	if existing, err := r.entities.LookupByExternalRef(ctx, table, pk); err == nil {
		return existing, nil
	} else if err != domain.ErrNotFound {
		return nil, fmt.Errorf("lookup by external ref: %w", err)
	}

	e := &domain.CanonicalEntity{
		EntityID:        entityType + ":" + normalize.Slug(displayName),
		EntityType:      entityType,
		CanonicalName:   displayName,
		ExternalRef:     &domain.ExternalRef{Table: table, PrimaryKey: pk},
		CreatedByUserID: userID,
	}
	if err := r.entities.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("lazy create entity: %w", err)
	}
	return e, nil
}
