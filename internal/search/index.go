// Package search provides a concurrency-safe in-memory index over the text
// of service requests.
//
// Documents are keyed by request id and can be added, replaced and removed
// while queries run. Tokens are case folded and stripped of diacritics, so
// "Özel ders" matches "ozel DERS".
//
// Scoring is query coverage: score = |Q ∩ D| / |Q|. Ties are broken by
// Jaccard similarity |Q ∩ D| / |Q ∪ D| (shorter, tighter documents first)
// and then by id for a stable order.
package search

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Result is a ranked document id with its score in (0, 1].
type Result struct {
	ID    string
	Score float64
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	minScore  float64
}

func defaultConfig() config {
	return config{minScore: 0}
}

// WithStopwords drops the given words from documents and queries.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = fold(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMinScore hides results scoring below s. Values outside [0,1] are
// ignored.
func WithMinScore(s float64) Option {
	return func(c *config) {
		if s >= 0 && s <= 1 {
			c.minScore = s
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	tokens map[string]struct{}
}

// Index maps request ids to their token sets.
type Index struct {
	cfg  config
	mu   sync.RWMutex
	docs map[string]doc
}

// New returns an empty index.
func New(opts ...Option) *Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Index{cfg: cfg, docs: make(map[string]doc)}
}

// Put indexes the concatenation of fields under id, replacing any previous
// document. A document without tokens removes id.
func (i *Index) Put(id string, fields ...string) {
	toks := tokenize(strings.Join(fields, " "), i.cfg.stopwords)
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(toks) == 0 {
		delete(i.docs, id)
		return
	}
	i.docs[id] = doc{tokens: toks}
}

// Remove drops id from the index.
func (i *Index) Remove(id string) {
	i.mu.Lock()
	delete(i.docs, id)
	i.mu.Unlock()
}

// Len reports the number of indexed documents.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}

// TopK returns up to k best-matching ids. k <= 0 returns every match.
func (i *Index) TopK(q string, k int) []Result {
	if strings.TrimSpace(q) == "" {
		return nil
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	type scored struct {
		id      string
		score   float64
		jaccard float64
	}

	i.mu.RLock()
	buf := make([]scored, 0, len(i.docs))
	for id, d := range i.docs {
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		score := float64(over) / float64(qLen)
		if score < i.cfg.minScore {
			continue
		}
		union := float64(qLen + len(d.tokens) - over)
		buf = append(buf, scored{id: id, score: score, jaccard: float64(over) / union})
	}
	i.mu.RUnlock()
	if len(buf) == 0 {
		return nil
	}

	sort.Slice(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].jaccard != buf[b].jaccard {
			return buf[a].jaccard > buf[b].jaccard
		}
		return buf[a].id < buf[b].id
	})

	if k <= 0 || k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for n := 0; n < k; n++ {
		out[n] = Result{ID: buf[n].id, Score: buf[n].score}
	}
	return out
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

var folder = cases.Fold()

// fold lower-cases s for caseless matching and strips combining marks.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return folder.String(out)
}

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(fold(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
