// Package textcluster groups short texts by TF-IDF similarity with k-means.
package textcluster

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

// ErrEmptyVocabulary is returned when no term survives tokenization, stop-word removal and
// document-frequency pruning.
var ErrEmptyVocabulary = errors.New("empty vocabulary")

// VectorizerOptions controls term extraction and pruning.
type VectorizerOptions struct {
	// StopWords are removed after tokenization, before n-grams are formed.
	StopWords map[string]struct{}

	// NGramMin and NGramMax bound the n-gram sizes (inclusive).
	NGramMin int
	NGramMax int

	// MinDF is the minimum number of documents a term must occur in.
	MinDF int

	// MaxFeatures keeps only the terms with the highest corpus frequency (0 = unlimited).
	MaxFeatures int
}

// DefaultVectorizerOptions: English stop words, unigrams and bigrams, min_df=3, 20k features.
func DefaultVectorizerOptions() VectorizerOptions {
	return VectorizerOptions{
		StopWords:   EnglishStopWords,
		NGramMin:    1,
		NGramMax:    2,
		MinDF:       3,
		MaxFeatures: 20000,
	}
}

// Vector is a sparse row. Indices are ascending vocabulary positions.
type Vector struct {
	Indices []int
	Values  []float64
}

func (v Vector) sqNorm() float64 {
	var s float64
	for _, x := range v.Values {
		s += x * x
	}
	return s
}

// dotDense returns v·d for a dense vector d.
func (v Vector) dotDense(d []float64) float64 {
	var s float64
	for i, j := range v.Indices {
		s += v.Values[i] * d[j]
	}
	return s
}

// Vectorizer learns a vocabulary and smoothed IDF weights from a corpus.
type Vectorizer struct {
	opts  VectorizerOptions
	vocab []string
	index map[string]int
	idf   []float64
}

func NewVectorizer(opts VectorizerOptions) *Vectorizer {
	if opts.NGramMin <= 0 {
		opts.NGramMin = 1
	}
	if opts.NGramMax < opts.NGramMin {
		opts.NGramMax = opts.NGramMin
	}
	if opts.MinDF <= 0 {
		opts.MinDF = 1
	}
	return &Vectorizer{opts: opts}
}

// Vocabulary returns the learned terms in column order (lexicographic).
func (v *Vectorizer) Vocabulary() []string {
	return v.vocab
}

// IDF returns the learned inverse document frequency per column.
func (v *Vectorizer) IDF() []float64 {
	return v.idf
}

// FitTransform learns the vocabulary from docs and returns one L2-normalized TF-IDF row per doc.
//
// Weights are raw term count × (ln((1+n)/(1+df)) + 1). A document with no vocabulary terms is a
// zero row.
func (v *Vectorizer) FitTransform(docs []string) ([]Vector, error) {
	counts := make([]map[string]int, len(docs))
	df := make(map[string]int)
	total := make(map[string]int)
	for i, doc := range docs {
		c := make(map[string]int)
		for _, term := range v.analyze(doc) {
			c[term]++
		}
		for term, n := range c {
			df[term]++
			total[term] += n
		}
		counts[i] = c
	}
	if len(df) == 0 {
		return nil, fmt.Errorf("%w: documents contain only stop words or no tokens", ErrEmptyVocabulary)
	}

	var terms []string
	for term, d := range df {
		if d >= v.opts.MinDF {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: no terms remain after pruning (min_df=%d)", ErrEmptyVocabulary, v.opts.MinDF)
	}

	if v.opts.MaxFeatures > 0 && len(terms) > v.opts.MaxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			ti, tj := total[terms[i]], total[terms[j]]
			if ti != tj {
				return ti > tj
			}
			return terms[i] < terms[j]
		})
		terms = terms[:v.opts.MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v.vocab = terms
	v.index = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	for j, term := range terms {
		v.index[term] = j
		v.idf[j] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	rows := make([]Vector, len(docs))
	for i, c := range counts {
		var row Vector
		for term := range c {
			if j, ok := v.index[term]; ok {
				row.Indices = append(row.Indices, j)
			}
		}
		sort.Ints(row.Indices)
		row.Values = make([]float64, len(row.Indices))
		for k, j := range row.Indices {
			row.Values[k] = float64(c[v.vocab[j]]) * v.idf[j]
		}
		if norm := math.Sqrt(row.sqNorm()); norm > 0 {
			for k := range row.Values {
				row.Values[k] /= norm
			}
		}
		rows[i] = row
	}
	return rows, nil
}

// analyze lower-cases, tokenizes, removes stop words and expands n-grams.
func (v *Vectorizer) analyze(doc string) []string {
	tokens := Tokenize(strings.ToLower(doc))
	if len(v.opts.StopWords) > 0 {
		kept := tokens[:0]
		for _, t := range tokens {
			if _, stop := v.opts.StopWords[t]; !stop {
				kept = append(kept, t)
			}
		}
		tokens = kept
	}

	var out []string
	for n := v.opts.NGramMin; n <= v.opts.NGramMax; n++ {
		if n == 1 {
			out = append(out, tokens...)
			continue
		}
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

// Tokenize returns the maximal runs of at least two word characters (letters, numbers, underscore).
func Tokenize(s string) []string {
	var out []string
	start, runes := -1, 0
	flush := func(end int) {
		if start >= 0 && runes >= 2 {
			out = append(out, s[start:end])
		}
		start, runes = -1, 0
	}
	for i, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' {
			if start < 0 {
				start = i
			}
			runes++
			continue
		}
		flush(i)
	}
	flush(len(s))
	return out
}
