package category

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// refreshEveryN triggers a keyword/snippet refresh every N cards assigned
// to a profile (spec §4.4).
const refreshEveryN = 10

// CardInput is the minimal card shape the profile manager needs to fold a
// newly-assigned card into a profile's centroid/keywords/snippets.
type CardInput struct {
	Content   string
	Embedding []float32
	Keywords  []string
}

// Manager owns profile lifecycle: creation from member cards, running
// updates on assignment, merges, and deletion (spec §4.4 Profile manager).
type Manager struct {
	store     Store
	retriever *Retriever
}

// NewManager wraps store (and, if non-nil, keeps retriever's indexes in
// sync with every mutation).
func NewManager(store Store, retriever *Retriever) *Manager {
	return &Manager{store: store, retriever: retriever}
}

// ProfileByName looks up a profile by its exact (case-insensitive) name,
// for callers that only have a category name to work with (e.g. the
// self-correction job reflecting a node's assigned category back into
// the profile store).
func (m *Manager) ProfileByName(ctx context.Context, name string) (Profile, bool, error) {
	return m.store.GetByName(ctx, name)
}

// SeedDefaults inserts the three low-confidence seed profiles
// ("Programming", "Documentation", "Research") with zero-vector
// centroids and confidence 0.3, only if the store is currently empty
// (spec §4.4).
func (m *Manager) SeedDefaults(ctx context.Context, embeddingDim int) error {
	existing, err := m.store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("category: seed defaults: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	if embeddingDim <= 0 {
		embeddingDim = defaultEmbeddingDim
	}

	seeds := []struct{ name, desc string }{
		{"Programming", "Code, software engineering, and development topics."},
		{"Documentation", "Reference material, guides, and how-tos."},
		{"Research", "Papers, findings, and exploratory investigation."},
	}

	for _, seed := range seeds {
		p := Profile{
			ID:                newProfileID(),
			Name:              seed.name,
			Description:       seed.desc,
			CentroidEmbedding: make([]float32, embeddingDim),
			Confidence:        0.3,
			CreatedAt:         time.Now(),
			LastUpdated:       time.Now(),
		}
		if err := m.store.Add(ctx, p); err != nil {
			return fmt.Errorf("category: seed profile %s: %w", seed.name, err)
		}
		if m.retriever != nil {
			m.retriever.AddProfile(p)
		}
	}
	return nil
}

// CreateProfile builds a new profile from its first member card(s):
// centroid = mean of embeddings, keywords = top-20 by frequency,
// snippets = up to 3 leading 150-char extracts (spec §4.4).
func (m *Manager) CreateProfile(ctx context.Context, name, description string, initialCards []CardInput, parentID string) (Profile, error) {
	centroid := meanEmbedding(initialCards, defaultEmbeddingDim)
	keywords, scores := extractKeywords(initialCards, 20)
	snippets := representativeSnippets(initialCards, 3)

	p := Profile{
		ID:                newProfileID(),
		Name:              name,
		Description:       description,
		CentroidEmbedding: centroid,
		Keywords:          keywords,
		KeywordScores:     scores,
		Snippets:          snippets,
		ParentID:          parentID,
		CardCount:         len(initialCards),
		Confidence:        0.5,
		CreatedAt:         time.Now(),
		LastUpdated:       time.Now(),
	}

	if err := m.store.Add(ctx, p); err != nil {
		return Profile{}, fmt.Errorf("category: create profile: %w", err)
	}
	if m.retriever != nil {
		m.retriever.AddProfile(p)
	}
	return p, nil
}

// UpdateProfileWithCard folds one newly-assigned card into profileID's
// running centroid and statistics, refreshing keywords/snippets every
// refreshEveryN assignments (spec §4.4).
func (m *Manager) UpdateProfileWithCard(ctx context.Context, profileID string, card CardInput, memberCards []CardInput, isUserCorrection bool) (Profile, error) {
	p, ok, err := m.store.Get(ctx, profileID)
	if err != nil {
		return Profile{}, fmt.Errorf("category: get profile: %w", err)
	}
	if !ok {
		return Profile{}, fmt.Errorf("category: profile %s not found", profileID)
	}

	if len(card.Embedding) > 0 {
		p.CentroidEmbedding = runningMean(p.CentroidEmbedding, card.Embedding, p.CardCount)
	}
	p.CardCount++
	p.UpdateStatistics(isUserCorrection)

	if p.CardCount%refreshEveryN == 0 && len(memberCards) > 0 {
		keywords, scores := extractKeywords(memberCards, 20)
		p.Keywords = keywords
		p.KeywordScores = scores
		p.Snippets = representativeSnippets(memberCards, 3)
	}

	if err := m.store.Update(ctx, p); err != nil {
		return Profile{}, fmt.Errorf("category: update profile: %w", err)
	}
	if m.retriever != nil {
		m.retriever.UpdateProfile(p)
	}
	return p, nil
}

// MergeProfiles folds profile2 into profile1: centroid is the card-count
// weighted mean, keywords unioned and truncated to 20, snippets
// truncated to 3, counters summed; profile2 is removed from both the
// store and the retriever (spec §4.4).
func (m *Manager) MergeProfiles(ctx context.Context, id1, id2, newName string) (Profile, error) {
	p1, ok1, err := m.store.Get(ctx, id1)
	if err != nil {
		return Profile{}, err
	}
	p2, ok2, err := m.store.Get(ctx, id2)
	if err != nil {
		return Profile{}, err
	}
	if !ok1 || !ok2 {
		return Profile{}, fmt.Errorf("category: merge: one or both profiles not found")
	}

	total := p1.CardCount + p2.CardCount
	centroid := make([]float32, len(p1.CentroidEmbedding))
	for i := range centroid {
		var a, b float32
		if i < len(p1.CentroidEmbedding) {
			a = p1.CentroidEmbedding[i]
		}
		if i < len(p2.CentroidEmbedding) {
			b = p2.CentroidEmbedding[i]
		}
		if total > 0 {
			centroid[i] = (a*float32(p1.CardCount) + b*float32(p2.CardCount)) / float32(total)
		}
	}

	keywords := unionTruncated(p1.Keywords, p2.Keywords, 20)
	kwScores := make(map[string]float64, len(p1.KeywordScores)+len(p2.KeywordScores))
	for k, v := range p1.KeywordScores {
		kwScores[k] = v
	}
	for k, v := range p2.KeywordScores {
		kwScores[k] = v
	}

	snippets := append(append([]string{}, p1.Snippets...), p2.Snippets...)
	if len(snippets) > 3 {
		snippets = snippets[:3]
	}

	name := newName
	if name == "" {
		name = p1.Name
	}

	merged := Profile{
		ID:                p1.ID,
		Name:              name,
		Description:       p1.Description,
		CentroidEmbedding: centroid,
		Keywords:          keywords,
		KeywordScores:     kwScores,
		Snippets:          snippets,
		ParentID:          p1.ParentID,
		CardCount:         total,
		Confidence:        (p1.Confidence + p2.Confidence) / 2,
		UserCorrections:   p1.UserCorrections + p2.UserCorrections,
		AutoAssignments:   p1.AutoAssignments + p2.AutoAssignments,
		CreatedAt:         p1.CreatedAt,
		LastUpdated:       time.Now(),
	}

	if err := m.store.Update(ctx, merged); err != nil {
		return Profile{}, fmt.Errorf("category: merge update: %w", err)
	}
	if err := m.store.Remove(ctx, id2); err != nil {
		return Profile{}, fmt.Errorf("category: merge remove: %w", err)
	}
	if m.retriever != nil {
		m.retriever.UpdateProfile(merged)
		m.retriever.RemoveProfile(id2)
	}
	return merged, nil
}

// DeleteProfile removes a profile from the store and the retriever.
func (m *Manager) DeleteProfile(ctx context.Context, id string) error {
	if m.retriever != nil {
		m.retriever.RemoveProfile(id)
	}
	if err := m.store.Remove(ctx, id); err != nil {
		return fmt.Errorf("category: delete profile: %w", err)
	}
	return nil
}

func newProfileID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return "cat_" + hex.EncodeToString(buf[:])
}

func meanEmbedding(cards []CardInput, dim int) []float32 {
	var withEmb []CardInput
	for _, c := range cards {
		if len(c.Embedding) > 0 {
			withEmb = append(withEmb, c)
		}
	}
	if len(withEmb) == 0 {
		if dim <= 0 {
			dim = defaultEmbeddingDim
		}
		return make([]float32, dim)
	}

	d := len(withEmb[0].Embedding)
	sum := make([]float64, d)
	for _, c := range withEmb {
		for i := 0; i < d && i < len(c.Embedding); i++ {
			sum[i] += float64(c.Embedding[i])
		}
	}
	out := make([]float32, d)
	for i, s := range sum {
		out[i] = float32(s / float64(len(withEmb)))
	}
	return out
}

func runningMean(centroid, next []float32, n int) []float32 {
	out := make([]float32, len(centroid))
	if len(centroid) == 0 {
		out = make([]float32, len(next))
	}
	for i := range out {
		var c, x float32
		if i < len(centroid) {
			c = centroid[i]
		}
		if i < len(next) {
			x = next[i]
		}
		out[i] = (c*float32(n) + x) / float32(n+1)
	}
	return out
}

func extractKeywords(cards []CardInput, topK int) ([]string, map[string]float64) {
	counts := make(map[string]int)
	total := 0
	for _, c := range cards {
		for _, kw := range c.Keywords {
			counts[kw]++
			total++
		}
	}
	if total == 0 {
		return nil, nil
	}

	type kv struct {
		k string
		v float64
	}
	scored := make([]kv, 0, len(counts))
	for k, c := range counts {
		scored = append(scored, kv{k, float64(c) / float64(total)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].v != scored[j].v {
			return scored[i].v > scored[j].v
		}
		return scored[i].k < scored[j].k
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}

	keywords := make([]string, len(scored))
	scores := make(map[string]float64, len(scored))
	for i, e := range scored {
		keywords[i] = e.k
		scores[e.k] = e.v
	}
	return keywords, scores
}

func representativeSnippets(cards []CardInput, maxSnippets int) []string {
	var out []string
	for i, c := range cards {
		if i >= maxSnippets {
			break
		}
		sentence := c.Content
		if idx := strings.IndexByte(sentence, '.'); idx >= 0 {
			sentence = sentence[:idx]
		}
		if len(sentence) > 150 {
			sentence = sentence[:150]
		}
		sentence = strings.TrimSpace(sentence)
		if sentence != "" {
			out = append(out, sentence)
		}
	}
	return out
}

func unionTruncated(a, b []string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
