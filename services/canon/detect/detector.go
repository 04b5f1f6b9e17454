// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package detect finds probably-duplicate label pairs within a project.
//
// # Description
//
// The detector always works on the complete active label set of a project,
// never on a UI page. Its only pruning is the length-ratio bound: for
// fold-cased texts of lengths la <= lb, similarity can never exceed la/lb,
// so pairs below the threshold on that bound alone are skipped without being
// scored. The pruning is exact, not approximate; no qualifying pair is ever
// dropped.
//
// Lexical scores come from normalized Levenshtein distance. Semantic scores
// are supplied by an external embedding comparator when one is configured;
// the detector performs no semantic clustering itself.
//
// Output is advisory. Proposed pairs are persisted for review but no label
// is ever mutated here.
package detect

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jinterlante1206/AleutianCodex/services/canon/datatypes"
)

// DefaultThreshold is the minimum lexical similarity for a proposed pair.
const DefaultThreshold = 0.8

// Options configures one detection run.
type Options struct {
	// Threshold is the minimum lexical similarity in [0,1].
	// Zero means DefaultThreshold.
	Threshold float64

	// MaxResults caps the returned pairs after ranking (0 = unlimited).
	MaxResults int
}

// SemanticComparator supplies externally computed semantic similarity for a
// pair of label texts. Implementations typically call an embedding service.
type SemanticComparator interface {
	Compare(ctx context.Context, a, b string) (float64, error)
}

// Ledger is the slice of the store the detector needs.
type Ledger interface {
	ActiveLabels(ctx context.Context, projectID string) ([]datatypes.Label, error)
	EvidenceCounts(ctx context.Context, projectID string) (map[string]int, error)
	ReplaceProposedPairs(ctx context.Context, projectID string, pairs []datatypes.CandidatePair) error
}

// Detector produces ranked duplicate-candidate pairs.
type Detector struct {
	ledger     Ledger
	comparator SemanticComparator
}

// NewDetector creates a detector. comparator may be nil, in which case pairs
// carry only lexical scores.
func NewDetector(ledger Ledger, comparator SemanticComparator) *Detector {
	return &Detector{ledger: ledger, comparator: comparator}
}

// candidate is the detector's working view of one active label.
type candidate struct {
	id   string
	text string
	norm []rune
	refs int
}

// Detect runs duplicate detection over the full active set of a project.
//
// # Description
//
// Scores all pairs passing the length-ratio prune, keeps those at or above
// the threshold, ranks them (lexical desc, then source text), annotates them
// with semantic scores when a comparator is configured, and replaces the
// project's previously proposed pairs.
//
// # Outputs
//
//   - []datatypes.CandidatePair: Ranked pairs, source = suggested merge-away
//     label, target = suggested surviving canonical.
//   - error: Ledger errors or ctx cancellation.
func (d *Detector) Detect(ctx context.Context, projectID string, opts Options) ([]datatypes.CandidatePair, error) {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	labels, err := d.ledger.ActiveLabels(ctx, projectID)
	if err != nil {
		return nil, err
	}
	refs, err := d.ledger.EvidenceCounts(ctx, projectID)
	if err != nil {
		return nil, err
	}

	cands := make([]candidate, len(labels))
	for i := range labels {
		cands[i] = candidate{
			id:   labels[i].ID,
			text: labels[i].Text,
			norm: []rune(datatypes.NormalizeLabelText(labels[i].Text)),
			refs: refs[labels[i].ID],
		}
	}

	// Shortest first so the inner loop can stop as soon as the length
	// ratio alone puts every later pairing below the threshold.
	sort.Slice(cands, func(i, j int) bool {
		if len(cands[i].norm) != len(cands[j].norm) {
			return len(cands[i].norm) < len(cands[j].norm)
		}
		return cands[i].text < cands[j].text
	})

	pairs, err := d.scorePairs(ctx, projectID, cands, threshold)
	if err != nil {
		return nil, err
	}

	if d.comparator != nil {
		d.annotateSemantic(ctx, pairs)
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].LexicalScore != pairs[j].LexicalScore {
			return pairs[i].LexicalScore > pairs[j].LexicalScore
		}
		if pairs[i].SourceText != pairs[j].SourceText {
			return pairs[i].SourceText < pairs[j].SourceText
		}
		return pairs[i].TargetText < pairs[j].TargetText
	})

	if opts.MaxResults > 0 && len(pairs) > opts.MaxResults {
		pairs = pairs[:opts.MaxResults]
	}

	if err := d.ledger.ReplaceProposedPairs(ctx, projectID, pairs); err != nil {
		return nil, err
	}

	slog.Info("Duplicate detection complete",
		"project_id", projectID,
		"active_labels", len(labels),
		"pairs", len(pairs),
		"threshold", threshold)
	return pairs, nil
}

// scorePairs fans the outer loop out over the available cores. Workers take
// strided outer indices so the triangular workload stays balanced.
func (d *Detector) scorePairs(ctx context.Context, projectID string, cands []candidate, threshold float64) ([]datatypes.CandidatePair, error) {
	workers := runtime.GOMAXPROCS(0)
	if workers > len(cands) {
		workers = len(cands)
	}
	if workers < 1 {
		workers = 1
	}

	detectedAt := time.Now()
	buckets := make([][]datatypes.CandidatePair, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			var local []datatypes.CandidatePair
			for i := w; i < len(cands); i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				a := &cands[i]
				for j := i + 1; j < len(cands); j++ {
					b := &cands[j]
					// len(b.norm) >= len(a.norm) by sort order; the ratio is
					// an upper bound on similarity, so breaking here cannot
					// drop a qualifying pair.
					if len(b.norm) > 0 && float64(len(a.norm))/float64(len(b.norm)) < threshold {
						break
					}
					score := lexicalSimilarity(a.norm, b.norm)
					if score < threshold {
						continue
					}
					target, source := suggestTarget(a, b)
					local = append(local, datatypes.CandidatePair{
						ProjectID:     projectID,
						SourceLabelID: source.id,
						TargetLabelID: target.id,
						SourceText:    source.text,
						TargetText:    target.text,
						LexicalScore:  score,
						State:         datatypes.PairProposed,
						DetectedAt:    detectedAt,
					})
				}
			}
			buckets[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var pairs []datatypes.CandidatePair
	for _, b := range buckets {
		pairs = append(pairs, b...)
	}
	return pairs, nil
}

// suggestTarget picks the surviving canonical for a pair: more linked
// evidence wins, then the shorter text, then lexicographic order. The
// ordering is total, so the suggestion is stable across runs.
func suggestTarget(a, b *candidate) (target, source *candidate) {
	switch {
	case a.refs != b.refs:
		if a.refs > b.refs {
			return a, b
		}
		return b, a
	case len(a.norm) != len(b.norm):
		if len(a.norm) < len(b.norm) {
			return a, b
		}
		return b, a
	case a.text <= b.text:
		return a, b
	default:
		return b, a
	}
}

// annotateSemantic attaches comparator scores. Comparator failures degrade
// the pair to lexical-only rather than failing the run.
func (d *Detector) annotateSemantic(ctx context.Context, pairs []datatypes.CandidatePair) {
	for i := range pairs {
		score, err := d.comparator.Compare(ctx, pairs[i].SourceText, pairs[i].TargetText)
		if err != nil {
			slog.Warn("Semantic comparator failed, keeping lexical score only",
				"source", pairs[i].SourceText,
				"target", pairs[i].TargetText,
				"error", err)
			continue
		}
		s := score
		pairs[i].SemanticScore = &s
	}
}
