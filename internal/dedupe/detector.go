// Package dedupe decides whether a capture repeats an already counted roll.
package dedupe

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/stocktake/internal/common"
	"github.com/joseph-ayodele/stocktake/internal/entity"
	"github.com/joseph-ayodele/stocktake/internal/hashing"
	"github.com/joseph-ayodele/stocktake/internal/metrics"
)

type Kind string

const (
	KindNone       Kind = "none"
	KindExact      Kind = "exact"
	KindPerceptual Kind = "perceptual"
	KindData       Kind = "data"
)

const (
	ExactConfidence = 100.0
	DataConfidence  = 95.0

	// DefaultPerceptualThreshold is the minimum fingerprint similarity (percent)
	// that counts as a re-capture of the same label.
	DefaultPerceptualThreshold = 85.0
)

// Query describes one capture. RollID is excluded from the candidates and may
// be uuid.Nil before the roll is stored.
type Query struct {
	RollID         uuid.UUID `json:"roll_id,omitempty"`
	SessionID      uuid.UUID `json:"session_id"`
	ContentHash    string    `json:"content_hash"`
	PerceptualHash string    `json:"perceptual_hash,omitempty"`
	Quality        string    `json:"quality,omitempty"`
	Color          string    `json:"color,omitempty"`
	LotNumber      string    `json:"lot_number,omitempty"`
	Meters         *float64  `json:"meters,omitempty"`
}

// Match names the earlier capture a duplicate points at.
type Match struct {
	RollID     uuid.UUID `json:"roll_id"`
	SessionID  uuid.UUID `json:"session_id"`
	SequenceNo int       `json:"sequence_no"`
}

type Result struct {
	Duplicate  bool    `json:"duplicate"`
	Kind       Kind    `json:"kind"`
	Confidence float64 `json:"confidence"`
	Match      *Match  `json:"match,omitempty"`
}

// RollFinder is the part of the roll store the detector reads.
type RollFinder interface {
	FindByContentHash(ctx context.Context, hash string, exclude uuid.UUID) (*entity.CountedRoll, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*entity.CountedRoll, error)
}

type Detector struct {
	rolls     RollFinder
	threshold float64
	logger    *slog.Logger
}

type Option func(*Detector)

func WithThreshold(pct float64) Option {
	return func(d *Detector) {
		if pct > 0 && pct <= 100 {
			d.threshold = pct
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

func NewDetector(rolls RollFinder, opts ...Option) *Detector {
	d := &Detector{
		rolls:     rolls,
		threshold: DefaultPerceptualThreshold,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Check runs the exact, perceptual and data tiers in that order and returns
// on the first hit. A failed lookup in any tier ends the check with no match.
func (d *Detector) Check(ctx context.Context, q Query) Result {
	res := d.check(ctx, q)
	metrics.DuplicateChecksTotal.WithLabelValues(string(res.Kind)).Inc()
	if res.Duplicate {
		d.logger.Info("duplicate capture detected",
			"kind", res.Kind,
			"confidence", res.Confidence,
			"session_id", q.SessionID,
			"matched_roll_id", res.Match.RollID,
			"matched_sequence_no", res.Match.SequenceNo,
		)
	}
	return res
}

func (d *Detector) check(ctx context.Context, q Query) Result {
	res, found, err := d.exact(ctx, q)
	if err != nil {
		d.failOpen("exact", q, err)
		return notDuplicate()
	}
	if found {
		return res
	}

	var candidates []*entity.CountedRoll
	if q.SessionID != uuid.Nil {
		rolls, err := d.rolls.ListBySession(ctx, q.SessionID)
		if err != nil {
			d.failOpen("session", q, err)
			return notDuplicate()
		}
		for _, r := range rolls {
			if r.ID != q.RollID {
				candidates = append(candidates, r)
			}
		}
	}

	if r, ok := d.perceptual(q, candidates); ok {
		return r
	}
	if r, ok := dataMatch(q, candidates); ok {
		return r
	}
	return notDuplicate()
}

func (d *Detector) exact(ctx context.Context, q Query) (Result, bool, error) {
	if q.ContentHash == "" {
		return Result{}, false, nil
	}
	roll, err := d.rolls.FindByContentHash(ctx, q.ContentHash, q.RollID)
	if errors.Is(err, common.ErrNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	return hit(KindExact, ExactConfidence, roll), true, nil
}

func (d *Detector) perceptual(q Query, candidates []*entity.CountedRoll) (Result, bool) {
	if q.PerceptualHash == "" {
		return Result{}, false
	}
	var (
		best      *entity.CountedRoll
		bestScore float64
	)
	for _, c := range candidates {
		if c.PerceptualHash == nil || *c.PerceptualHash == "" {
			continue
		}
		if s := hashing.Similarity(q.PerceptualHash, *c.PerceptualHash); s > bestScore {
			best, bestScore = c, s
		}
	}
	if best == nil || bestScore < d.threshold {
		return Result{}, false
	}
	return hit(KindPerceptual, bestScore, best), true
}

// dataMatch needs every field of the query; a partial reading never matches.
func dataMatch(q Query, candidates []*entity.CountedRoll) (Result, bool) {
	if q.Quality == "" || q.Color == "" || q.LotNumber == "" || q.Meters == nil {
		return Result{}, false
	}
	for _, c := range candidates {
		m := c.EffectiveMeters()
		if m == nil || *m != *q.Meters {
			continue
		}
		if strings.EqualFold(c.EffectiveQuality(), q.Quality) &&
			strings.EqualFold(c.EffectiveColor(), q.Color) &&
			strings.EqualFold(c.EffectiveLotNumber(), q.LotNumber) {
			return hit(KindData, DataConfidence, c), true
		}
	}
	return Result{}, false
}

func (d *Detector) failOpen(tier string, q Query, err error) {
	metrics.DuplicateCheckErrors.WithLabelValues(tier).Inc()
	d.logger.Warn("duplicate check lookup failed, treating as no duplicate",
		"tier", tier, "session_id", q.SessionID, "roll_id", q.RollID, "err", err)
}

func hit(kind Kind, conf float64, roll *entity.CountedRoll) Result {
	return Result{
		Duplicate:  true,
		Kind:       kind,
		Confidence: conf,
		Match:      &Match{RollID: roll.ID, SessionID: roll.SessionID, SequenceNo: roll.SequenceNo},
	}
}

func notDuplicate() Result {
	return Result{Kind: KindNone}
}
