// Package hashtag scores hashtag suggestions against the persisted
// popularity table and refreshes that table from upstream sources.
package hashtag

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"trendpipe/internal/storage"
	logx "trendpipe/pkg/logx"
)

const candidateLimit = 30

// Suggestion is one scored candidate.
type Suggestion struct {
	Tag            string  `json:"tag"`
	Engagement     float64 `json:"engagement"`
	PostCount      int     `json:"postCount"`
	RelevanceScore float64 `json:"relevanceScore"`
	FinalScore     float64 `json:"finalScore"`
}

// CandidateStore is the slice of storage the scorer reads.
type CandidateStore interface {
	TopHashtags(ctx context.Context, platform storage.Platform, category string, limit int) ([]storage.HashtagRecord, error)
}

type Scorer struct {
	store CandidateStore
	log   logx.Logger
}

func NewScorer(store CandidateStore, log logx.Logger) *Scorer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scorer{store: store, log: log}
}

// Suggest ranks up to count hashtags for text within category.
//
// Relevance is a lexical-overlap heuristic: a token matches a candidate when
// either contains the other as a substring, weighted by twice the token's
// frequency in the text. The blend deliberately favors engagement
// (0.7 engagement + 0.3 relevance). Ties keep popularity order, which is the
// input order from the store.
func (s *Scorer) Suggest(ctx context.Context, text, category string, count int) ([]Suggestion, error) {
	if count <= 0 {
		count = 15
	}
	candidates, err := s.store.TopHashtags(ctx, storage.PlatformInstagram, category, candidateLimit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []Suggestion{}, nil
	}

	freq := tokenFrequency(text)

	scored := make([]Suggestion, 0, len(candidates))
	for _, c := range candidates {
		name := strings.ToLower(strings.TrimPrefix(c.Tag, "#"))
		relevance := 0.0
		for tok, n := range freq {
			if strings.Contains(name, tok) || strings.Contains(tok, name) {
				relevance += float64(n) * 2
			}
		}
		scored = append(scored, Suggestion{
			Tag:            c.Tag,
			Engagement:     c.Engagement,
			PostCount:      c.PostCount,
			RelevanceScore: relevance,
			FinalScore:     c.Engagement*0.7 + relevance*0.3,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].FinalScore > scored[j].FinalScore })
	if len(scored) > count {
		scored = scored[:count]
	}
	return scored, nil
}

// tokenFrequency lowercases text, strips everything but letters, digits and
// whitespace (any script), splits on whitespace and drops short tokens.
func tokenFrequency(text string) map[string]int {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			return r
		default:
			return -1
		}
	}, strings.ToLower(text))

	freq := map[string]int{}
	for _, tok := range strings.Fields(cleaned) {
		if len([]rune(tok)) <= 3 {
			continue
		}
		freq[tok]++
	}
	return freq
}
