package category

import (
	"context"
	"math"
	"sort"
	"strings"
)

// Scored pairs a profile with its Stage-A combined score.
type Scored struct {
	Profile Profile
	Score   float64
}

// vectorIndex is a flat cosine-similarity index over profile centroids,
// mirroring category_retriever.py's VectorIndex (no ANN structure — fine
// up to a few thousand profiles).
type vectorIndex struct {
	embeddings map[string][]float32
}

func newVectorIndex() *vectorIndex {
	return &vectorIndex{embeddings: make(map[string][]float32)}
}

func (v *vectorIndex) add(id string, embedding []float32) { v.embeddings[id] = embedding }
func (v *vectorIndex) remove(id string)                   { delete(v.embeddings, id) }

func (v *vectorIndex) search(query []float32, topK int) []Scored {
	if len(v.embeddings) == 0 {
		return nil
	}
	scores := make([]Scored, 0, len(v.embeddings))
	for id, emb := range v.embeddings {
		scores = append(scores, Scored{Profile: Profile{ID: id}, Score: cosine(query, emb)})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if len(scores) > topK {
		scores = scores[:topK]
	}
	return scores
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, x := range a {
		na += float64(x) * float64(x)
	}
	for _, x := range b {
		nb += float64(x) * float64(x)
	}
	denom := math.Sqrt(na)*math.Sqrt(nb) + 1e-10
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// keywordIndex is an inverted index with BM25-style scoring (spec §4.4:
// k1=1.5, b=0.75, IDF = log((N-df+0.5)/(df+0.5)+1)).
type keywordIndex struct {
	postings   map[string]map[string]float64 // term(lower) -> profileID -> tf-weight
	docLengths map[string]int
	numDocs    int
	avgDocLen  float64
}

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

func newKeywordIndex() *keywordIndex {
	return &keywordIndex{postings: make(map[string]map[string]float64), docLengths: make(map[string]int)}
}

func (k *keywordIndex) add(id string, keywords []string, scores map[string]float64) {
	k.docLengths[id] = len(keywords)
	k.numDocs++
	k.updateAvgLen()

	for _, kw := range keywords {
		lower := strings.ToLower(kw)
		bucket, ok := k.postings[lower]
		if !ok {
			bucket = make(map[string]float64)
			k.postings[lower] = bucket
		}
		score := scores[kw]
		if score == 0 {
			score = 1.0
		}
		bucket[id] = score
	}
}

func (k *keywordIndex) remove(id string) {
	for _, bucket := range k.postings {
		delete(bucket, id)
	}
	if _, ok := k.docLengths[id]; ok {
		delete(k.docLengths, id)
		k.numDocs--
		k.updateAvgLen()
	}
}

func (k *keywordIndex) updateAvgLen() {
	if k.numDocs <= 0 {
		k.avgDocLen = 0
		return
	}
	total := 0
	for _, l := range k.docLengths {
		total += l
	}
	k.avgDocLen = float64(total) / float64(k.numDocs)
}

func (k *keywordIndex) search(queryKeywords []string, topK int) []Scored {
	if len(k.postings) == 0 || len(queryKeywords) == 0 {
		return nil
	}

	scores := make(map[string]float64)
	for _, kw := range queryKeywords {
		lower := strings.ToLower(kw)
		bucket, ok := k.postings[lower]
		if !ok {
			continue
		}
		df := len(bucket)
		idf := math.Log((float64(k.numDocs)-float64(df)+0.5)/(float64(df)+0.5) + 1.0)

		for id, tf := range bucket {
			docLen := float64(k.docLengths[id])
			if docLen == 0 {
				docLen = 1
			}
			numerator := tf * (bm25K1 + 1)
			denominator := tf + bm25K1*(1-bm25B+bm25B*(docLen/k.avgDocLen))
			scores[id] += idf * (numerator / denominator)
		}
	}

	out := make([]Scored, 0, len(scores))
	for id, s := range scores {
		out = append(out, Scored{Profile: Profile{ID: id}, Score: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// Retriever is Stage A of the two-stage classifier: fast vector+lexical
// candidate retrieval over the profile population.
type Retriever struct {
	store  Store
	vector *vectorIndex
	kw     *keywordIndex
}

// NewRetriever builds a Retriever and populates its indexes from every
// profile currently in store.
func NewRetriever(ctx context.Context, store Store) (*Retriever, error) {
	r := &Retriever{store: store, vector: newVectorIndex(), kw: newKeywordIndex()}
	profiles, err := store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		r.AddProfile(p)
	}
	return r, nil
}

// AddProfile indexes a profile for retrieval.
func (r *Retriever) AddProfile(p Profile) {
	r.vector.add(p.ID, p.CentroidEmbedding)
	r.kw.add(p.ID, p.Keywords, p.KeywordScores)
}

// RemoveProfile drops a profile from both indexes.
func (r *Retriever) RemoveProfile(id string) {
	r.vector.remove(id)
	r.kw.remove(id)
}

// UpdateProfile re-indexes a profile after its content has changed.
func (r *Retriever) UpdateProfile(p Profile) {
	r.RemoveProfile(p.ID)
	r.AddProfile(p)
}

// RetrieveCandidates returns up to topK profiles combining cosine
// similarity over centroids and BM25 over keywords, alpha-weighted
// (spec §4.4: alpha=0.6 default, each list normalized to [0,1] before
// combination).
func (r *Retriever) RetrieveCandidates(ctx context.Context, embedding []float32, keywords []string, topK int, alpha float64) ([]Scored, error) {
	if topK <= 0 {
		topK = 10
	}
	if alpha == 0 {
		alpha = 0.6
	}

	semantic := normalize(r.vector.search(embedding, 20))
	lexical := normalize(r.kw.search(keywords, 20))

	combined := make(map[string]float64)
	for id, s := range semantic {
		combined[id] += alpha * s
	}
	for id, s := range lexical {
		combined[id] += (1 - alpha) * s
	}

	ids := make([]string, 0, len(combined))
	for id := range combined {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if combined[ids[i]] != combined[ids[j]] {
			return combined[ids[i]] > combined[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > topK {
		ids = ids[:topK]
	}

	out := make([]Scored, 0, len(ids))
	for _, id := range ids {
		p, ok, err := r.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, Scored{Profile: p, Score: combined[id]})
	}
	return out, nil
}

func normalize(scores []Scored) map[string]float64 {
	out := make(map[string]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	min, max := scores[0].Score, scores[0].Score
	for _, s := range scores {
		if s.Score < min {
			min = s.Score
		}
		if s.Score > max {
			max = s.Score
		}
	}
	if max == min {
		for _, s := range scores {
			out[s.Profile.ID] = 1.0
		}
		return out
	}
	for _, s := range scores {
		out[s.Profile.ID] = (s.Score - min) / (max - min)
	}
	return out
}
