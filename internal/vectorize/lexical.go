// Package vectorize turns free text into vectors. Lexical fits a TF-IDF model
// on one candidate pool; Embedder calls a dense embedding provider.
package vectorize

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Tokenize lowercases text and returns runs of two or more Unicode letters,
// digits or underscores, with English stop words removed.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if !englishStopWords[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// Lexical is a TF-IDF model fitted on exactly one pool of texts. It is built
// per request and must not be reused for a different pool: its vocabulary
// and weights only make sense relative to the texts it was fitted on.
type Lexical struct {
	vocab   map[string]int
	terms   []string
	idf     []float64
	vectors [][]float64
}

// NewLexical fits the model on texts and vectorizes each of them.
func NewLexical(texts []string) *Lexical {
	docs := make([][]string, len(texts))
	df := make(map[string]int)
	for i, t := range texts {
		docs[i] = Tokenize(t)
		seen := make(map[string]bool, len(docs[i]))
		for _, tok := range docs[i] {
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}

	terms := make([]string, 0, len(df))
	for tok := range df {
		terms = append(terms, tok)
	}
	sort.Strings(terms)

	l := &Lexical{
		vocab: make(map[string]int, len(terms)),
		terms: terms,
		idf:   make([]float64, len(terms)),
	}
	n := float64(len(texts))
	for i, tok := range terms {
		l.vocab[tok] = i
		// Smoothed idf: ln((1+n)/(1+df)) + 1.
		l.idf[i] = math.Log((1+n)/(1+float64(df[tok]))) + 1
	}

	l.vectors = make([][]float64, len(docs))
	for i, doc := range docs {
		l.vectors[i] = l.transform(doc)
	}
	return l
}

func (l *Lexical) transform(tokens []string) []float64 {
	v := make([]float64, len(l.terms))
	for _, tok := range tokens {
		if j, ok := l.vocab[tok]; ok {
			v[j]++
		}
	}
	var sq float64
	for j := range v {
		v[j] *= l.idf[j]
		sq += v[j] * v[j]
	}
	if sq == 0 {
		return v
	}
	norm := math.Sqrt(sq)
	for j := range v {
		v[j] /= norm
	}
	return v
}

// Vectors returns one L2-normalized vector per fitted text, in input order.
// Texts with no vocabulary terms map to the zero vector.
func (l *Lexical) Vectors() [][]float64 { return l.vectors }

// Terms returns the fitted vocabulary in column order.
func (l *Lexical) Terms() []string { return l.terms }

// Transform vectorizes text against the fitted vocabulary. Unknown terms
// are ignored.
func (l *Lexical) Transform(text string) []float64 {
	return l.transform(Tokenize(text))
}

// VectorizeCorpus fits a model on texts and returns their vectors.
func VectorizeCorpus(texts []string) [][]float64 {
	return NewLexical(texts).Vectors()
}
