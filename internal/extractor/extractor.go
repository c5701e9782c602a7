// Package extractor implements LLM-guided triple extraction: turning a
// chat event plus its resolved entities into semantic memories, while
// probing for conflicts against what is already stored.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/veyra-labs/memcore/internal/domain"
	"github.com/veyra-labs/memcore/internal/lifecycle"
	"github.com/veyra-labs/memcore/internal/registry"
)

// extractionTimeout bounds the LLM call; a malformed or absent response
// yields zero triples rather than failing the turn.
const extractionTimeout = 10 * time.Second

// DBChecker probes the domain database for a value that would
// contradict a freshly extracted triple (memory_vs_db conflicts). It is
// deliberately narrow: given a subject entity and predicate, return the
// domain's current value if that predicate has a domain-DB-backed
// counterpart, or ok=false if this predicate isn't domain-checkable.
type DBChecker interface {
	CurrentValue(ctx context.Context, subjectEntityID, predicate string) (table string, value map[string]any, ok bool, err error)
}

type rawTriple struct {
	SubjectEntityID string         `json:"subject_entity_id"`
	Predicate       string         `json:"predicate"`
	PredicateType   string         `json:"predicate_type"`
	ObjectValue     map[string]any `json:"object_value"`
	OriginalText    string         `json:"original_text"`
	ConfidenceHint  float64        `json:"confidence_hint"`
}

// Result is what one Extract call produced: newly persisted (or
// reinforced) memories, and conflicts detected along the way. Conflicts
// are recorded but left unresolved — resolving them is the lifecycle
// package's job, invoked by the turn orchestrator before the reply is
// finalized.
type Result struct {
	Memories  []domain.SemanticMemory
	Conflicts []domain.MemoryConflict
}

type Extractor struct {
	semantic  domain.SemanticStore
	conflicts domain.ConflictStore
	llm       domain.LLMClient
	embedder  domain.EmbeddingClient
	dbChecker DBChecker
	reinforce *lifecycle.ReinforceService
	reg       *registry.Registry
}

func New(semantic domain.SemanticStore, conflicts domain.ConflictStore, llm domain.LLMClient, embedder domain.EmbeddingClient, dbChecker DBChecker, reg *registry.Registry) *Extractor {
	return &Extractor{
		semantic:  semantic,
		conflicts: conflicts,
		llm:       llm,
		embedder:  embedder,
		dbChecker: dbChecker,
		reinforce: lifecycle.NewReinforceService(semantic, reg),
		reg:       reg,
	}
}

// Extract runs the LLM extraction prompt over the event content plus the
// entities already resolved for this turn, then persists each triple:
// reinforcing it if an identical (subject, predicate, object) memory
// already exists, creating a new one otherwise, and recording a conflict
// when the object disagrees with the domain DB or, failing that, with an
// existing memory. When both disagree only the memory_vs_db conflict is
// recorded.
func (e *Extractor) Extract(ctx context.Context, userID string, event *domain.ChatEvent, resolved []domain.CanonicalEntity) (*Result, error) {
	triples, err := e.runExtraction(ctx, event.Content, resolved)
	if err != nil {
		// An ExtractionFailure is dropped here without being logged: the
		// turn proceeds with zero triples.
		return &Result{}, nil
	}

	relatedEntityIDs := make([]string, len(resolved))
	for i, r := range resolved {
		relatedEntityIDs[i] = r.EntityID
	}

	result := &Result{}
	for _, t := range triples {
		if t.SubjectEntityID == "" || t.Predicate == "" {
			continue
		}
		if !domain.ValidPredicateType(t.PredicateType) {
			// An unknown predicate_type is rejected, not guessed at.
			continue
		}
		t.ObjectValue = normalizeObjectValue(t.ObjectValue)
		mem, conflict, err := e.persist(ctx, userID, event, t, relatedEntityIDs)
		if err != nil {
			return nil, err
		}
		if mem != nil {
			result.Memories = append(result.Memories, *mem)
		}
		if conflict != nil {
			result.Conflicts = append(result.Conflicts, *conflict)
		}
	}
	return result, nil
}

func (e *Extractor) runExtraction(ctx context.Context, content string, resolved []domain.CanonicalEntity) ([]rawTriple, error) {
	if e.llm == nil || strings.TrimSpace(content) == "" {
		return nil, nil
	}

	var names strings.Builder
	for _, r := range resolved {
		fmt.Fprintf(&names, "- %s (%s)\n", r.CanonicalName, r.EntityID)
	}

	prompt := fmt.Sprintf(extractionPrompt, names.String(), content)
	raw, err := e.llm.Complete(ctx, prompt, 1024, extractionTimeout)
	if err != nil {
		return nil, &domain.ExtractionFailure{Reason: err.Error()}
	}

	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var triples []rawTriple
	if err := json.Unmarshal([]byte(raw), &triples); err != nil {
		// Malformed JSON yields zero triples, not an error to the caller.
		return nil, nil
	}
	return triples, nil
}

const extractionPrompt = `Entities already identified in this conversation:
%s
Message: %q

Extract any durable facts, preferences, or requirements about the entities above as a JSON array of objects with fields: subject_entity_id, predicate, predicate_type (one of preference, requirement, observation, policy, attribute), object_value (an object), original_text (a natural-language restatement of the fact), confidence_hint (your own confidence in this extraction, 0 to 1). Return [] if nothing durable was said. Reply with only the JSON array.`

func (e *Extractor) persist(ctx context.Context, userID string, event *domain.ChatEvent, t rawTriple, relatedEntityIDs []string) (*domain.SemanticMemory, *domain.MemoryConflict, error) {
	existing, err := e.semantic.FindBySubjectPredicate(ctx, t.SubjectEntityID, t.Predicate, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("check existing memories: %w", err)
	}

	for _, ex := range existing {
		if objectsEqual(ex.ObjectValue, t.ObjectValue) {
			updated, err := e.reinforce.Reinforce(ctx, ex.MemoryID)
			if err != nil {
				return nil, nil, fmt.Errorf("reinforce matching memory: %w", err)
			}
			return updated, nil, nil
		}
	}

	if conflict, err := e.checkDomainConflict(ctx, t); err != nil {
		return nil, nil, err
	} else if conflict != nil {
		// A domain-contradicting claim is still recorded (provenance
		// matters even for claims the domain DB overrides), but flagged.
		mem, err := e.create(ctx, userID, event, t, relatedEntityIDs)
		if err != nil {
			return nil, nil, err
		}
		conflict.ConflictData.MemoryAID = mem.MemoryID
		if err := e.conflicts.Update(ctx, conflict); err != nil {
			return nil, nil, fmt.Errorf("link memory_vs_db conflict to memory: %w", err)
		}
		return mem, conflict, nil
	}

	if len(existing) > 0 {
		conflict := &domain.MemoryConflict{
			ConflictType: domain.ConflictMemoryVsMemory,
			ConflictData: domain.ConflictData{
				MemoryAID:   existing[0].MemoryID,
				Predicate:   t.Predicate,
				MemoryValue: t.ObjectValue,
			},
		}
		if err := e.conflicts.Create(ctx, conflict); err != nil {
			return nil, nil, fmt.Errorf("record memory_vs_memory conflict: %w", err)
		}
		mem, err := e.create(ctx, userID, event, t, relatedEntityIDs)
		if err != nil {
			return nil, nil, err
		}
		conflict.ConflictData.MemoryBID = mem.MemoryID
		return mem, conflict, nil
	}

	mem, err := e.create(ctx, userID, event, t, relatedEntityIDs)
	if err != nil {
		return nil, nil, err
	}
	return mem, nil, nil
}

func (e *Extractor) checkDomainConflict(ctx context.Context, t rawTriple) (*domain.MemoryConflict, error) {
	if e.dbChecker == nil {
		return nil, nil
	}
	table, dbValue, ok, err := e.dbChecker.CurrentValue(ctx, t.SubjectEntityID, t.Predicate)
	if err != nil {
		return nil, fmt.Errorf("domain conflict check: %w", err)
	}
	if !ok || objectsEqual(dbValue, t.ObjectValue) {
		return nil, nil
	}
	conflict := &domain.MemoryConflict{
		ConflictType: domain.ConflictMemoryVsDB,
		ConflictData: domain.ConflictData{
			Predicate:   t.Predicate,
			MemoryValue: t.ObjectValue,
			DBValue:     dbValue,
			DBTable:     table,
		},
	}
	if err := e.conflicts.Create(ctx, conflict); err != nil {
		return nil, fmt.Errorf("record memory_vs_db conflict: %w", err)
	}
	return conflict, nil
}

// create persists a brand-new semantic memory. t.PredicateType must
// already be validated by the caller — create never guesses at an
// unrecognized one.
func (e *Extractor) create(ctx context.Context, userID string, event *domain.ChatEvent, t rawTriple, relatedEntityIDs []string) (*domain.SemanticMemory, error) {
	originalText := t.OriginalText
	if originalText == "" {
		originalText = fmt.Sprintf("%s %s %v", t.SubjectEntityID, t.Predicate, t.ObjectValue)
	}

	mem := &domain.SemanticMemory{
		UserID:               userID,
		SubjectEntityID:      t.SubjectEntityID,
		Predicate:            t.Predicate,
		PredicateType:        domain.PredicateType(t.PredicateType),
		ObjectValue:          t.ObjectValue,
		OriginalText:         originalText,
		SourceText:           event.Content,
		RelatedEntities:      relatedEntityIDs,
		Confidence:           evidenceConfidence(event, t.ConfidenceHint),
		ExtractedFromEventID: event.EventID,
	}

	if e.embedder != nil {
		if vec, err := e.embedder.Embed(ctx, originalText); err == nil {
			mem.Embedding = vec
		}
	}

	if err := e.semantic.Create(ctx, mem); err != nil {
		return nil, fmt.Errorf("persist extracted memory: %w", err)
	}
	return mem, nil
}

// evidenceConfidence sets the initial confidence for a freshly extracted
// memory. A user's own words about themselves are the strongest
// evidence available to the extractor; everything else starts lower and
// climbs through reinforcement. confidenceHint is the LLM's own stated
// confidence in the extraction; it can only pull the base value down,
// never inflate it past what the source role already earns, and never
// past MaxConfidence.
func evidenceConfidence(event *domain.ChatEvent, confidenceHint float64) float64 {
	base := 0.55
	if event.Role == "user" {
		base = 0.75
	}
	if confidenceHint <= 0 {
		return base
	}
	if confidenceHint < base {
		base = confidenceHint
	}
	if base > domain.MaxConfidence {
		base = domain.MaxConfidence
	}
	return base
}

// normalizeObjectValue lowercases string-valued fields so enum-like
// values ("Tuesday" vs "tuesday") compare equal instead of surfacing as
// a spurious memory_vs_memory conflict.
func normalizeObjectValue(v map[string]any) map[string]any {
	if v == nil {
		return nil
	}
	out := make(map[string]any, len(v))
	for k, val := range v {
		if s, ok := val.(string); ok {
			out[k] = strings.ToLower(s)
		} else {
			out[k] = val
		}
	}
	return out
}

func objectsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return string(ja) == string(jb)
}
