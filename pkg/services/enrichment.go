package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prospecthq/prospect-engine/pkg/epc"
	"github.com/prospecthq/prospect-engine/pkg/geo"
	"github.com/prospecthq/prospect-engine/pkg/matching"
	"github.com/prospecthq/prospect-engine/pkg/models"
	"github.com/prospecthq/prospect-engine/pkg/pipeline"
	"github.com/prospecthq/prospect-engine/pkg/planning"
	"github.com/prospecthq/prospect-engine/pkg/scoring"
)

// EPCSearcher is the slice of the register client the enricher needs.
type EPCSearcher interface {
	SearchByPostcode(ctx context.Context, postcode string) ([]epc.Certificate, error)
}

// BroadbandChecker is the slice of the coverage client the enricher needs.
type BroadbandChecker interface {
	CoverageByPostcode(ctx context.Context, postcode string) (*models.BroadbandCoverage, error)
}

// Enricher runs the enrichment stages over one canonical record: geocoding,
// planning constraints, energy certificate matching, broadband coverage, and
// finally scoring. Any nil dependency disables its stage; a stage failure is
// returned but never blocks the stages that already ran from being kept.
type Enricher struct {
	geocoder  geo.Geocoder
	dataset   *planning.FeatureCollection
	epc       EPCSearcher
	broadband BroadbandChecker
	logger    *zap.Logger
}

// NewEnricher creates an enricher. Every dependency may be nil.
func NewEnricher(geocoder geo.Geocoder, dataset *planning.FeatureCollection, epcClient EPCSearcher, broadband BroadbandChecker, logger *zap.Logger) *Enricher {
	return &Enricher{
		geocoder:  geocoder,
		dataset:   dataset,
		epc:       epcClient,
		broadband: broadband,
		logger:    logger.Named("enricher"),
	}
}

// Enrich mutates the record in place and reports whether anything changed.
// The returned error is the first stage failure, after all remaining stages
// have been given their chance to run.
func (e *Enricher) Enrich(ctx context.Context, p *models.Property) (bool, error) {
	changed := false
	var firstErr error

	if e.geocode(ctx, p) {
		changed = true
	}
	if e.applyPlanning(p) {
		changed = true
	}

	epcChanged, err := e.applyEPC(ctx, p)
	if epcChanged {
		changed = true
	}
	if err != nil && firstErr == nil {
		firstErr = err
	}

	bbChanged, err := e.applyBroadband(ctx, p)
	if bbChanged {
		changed = true
	}
	if err != nil && firstErr == nil {
		firstErr = err
	}

	if e.rescore(p) {
		changed = true
	}
	return changed, firstErr
}

// geocode fills missing coordinates. Geocoding failures were already logged
// and cached by the geo service; here a nil location just means the later
// location-dependent stages are skipped.
func (e *Enricher) geocode(ctx context.Context, p *models.Property) bool {
	if e.geocoder == nil || (p.Latitude != nil && p.Longitude != nil) {
		return false
	}
	loc := e.geocoder.Geocode(ctx, p.Address, p.Postcode)
	if loc == nil {
		return false
	}
	w := newFieldWriter(p, "geocoder", models.SourceEnriched, time.Now().UTC())
	w.Location(&loc.Lat, &loc.Lng)
	return w.Changed()
}

// applyPlanning checks the record's coordinates against the restricted-area
// dataset. The verdict is recomputed on every pass so dataset updates take
// effect without a separate backfill.
func (e *Enricher) applyPlanning(p *models.Property) bool {
	if e.dataset == nil || p.Latitude == nil || p.Longitude == nil {
		return false
	}

	result := planning.IsRestricted(*p.Latitude, *p.Longitude, e.dataset)
	changed := p.InRestrictedArea == nil || *p.InRestrictedArea != result.InArea || p.RestrictedAreaName != result.AreaName

	in := result.InArea
	p.InRestrictedArea = &in
	p.RestrictedAreaName = result.AreaName

	if result.InArea && result.AreaName != "" {
		merged := planning.MergeConstraintStrings(p.Constraints, []string{result.AreaName})
		if len(merged) != len(p.Constraints) {
			changed = true
		}
		p.Constraints = merged
	}

	if changed {
		w := newFieldWriter(p, "planning-dataset", models.SourceOfficial, time.Now().UTC())
		w.record(FieldConstraints)
	}
	return changed
}

// applyEPC joins the record onto the energy certificate register by postcode
// search plus strict address matching. No certificate above the strict
// threshold means no EPC data, never a guess.
func (e *Enricher) applyEPC(ctx context.Context, p *models.Property) (bool, error) {
	if e.epc == nil || p.EPCRating != "" {
		return false, nil
	}

	certs, err := e.epc.SearchByPostcode(ctx, p.Postcode)
	if err != nil {
		return false, fmt.Errorf("epc search failed: %w", err)
	}
	if len(certs) == 0 {
		return false, nil
	}

	candidates := make([]matching.Candidate, len(certs))
	for i, cert := range certs {
		candidates[i] = matching.Candidate{ID: cert.CertificateRef, Address: cert.Address, Payload: cert}
	}
	best, score := matching.BestMatch(p.Address, candidates, matching.StrictOptions())
	if best == nil {
		e.logger.Debug("No certificate matched above strict threshold",
			zap.String("property_id", p.ID),
			zap.Int("candidates", len(certs)))
		return false, nil
	}

	cert := best.Payload.(epc.Certificate)
	e.logger.Debug("Matched energy certificate",
		zap.String("property_id", p.ID),
		zap.String("certificate", cert.CertificateRef),
		zap.Int("score", score))

	w := newFieldWriter(p, "epc-register", models.SourceOfficial, time.Now().UTC())
	w.String(FieldEPC, &p.EPCRating, cert.CurrentRating)
	w.String(FieldEPC, &p.EPCCertificate, cert.CertificateRef)
	if cert.EfficiencyScore > 0 {
		w.Int(FieldEPC, &p.EPCScore, &cert.EfficiencyScore)
	}
	if cert.TotalFloorAreaM2 > 0 {
		w.Float(FieldFloorArea, &p.FloorAreaSqm, &cert.TotalFloorAreaM2)
		w.String(FieldFloorArea, &p.FloorAreaBand, scoring.FloorAreaBand(cert.TotalFloorAreaM2))
	}
	return w.Changed(), nil
}

// applyBroadband fetches coverage once per record. Rate-limit errors
// propagate so the orchestrator can back off; a postcode with no coverage
// data is simply left without the field.
func (e *Enricher) applyBroadband(ctx context.Context, p *models.Property) (bool, error) {
	if e.broadband == nil || p.Broadband != nil {
		return false, nil
	}

	coverage, err := e.broadband.CoverageByPostcode(ctx, p.Postcode)
	if err != nil {
		var perr *pipeline.Error
		if errors.As(err, &perr) && perr.Kind == pipeline.KindRateLimited {
			return false, err
		}
		return false, fmt.Errorf("broadband lookup failed: %w", err)
	}
	if coverage == nil {
		return false, nil
	}

	p.Broadband = coverage
	w := newFieldWriter(p, "broadband-coverage", models.SourceOfficial, time.Now().UTC())
	w.record(FieldBroadband)
	return true, nil
}

// rescore recomputes the deal score from the record's current fields. The
// score is always a pure function of those fields, so this runs on every
// pass and is cheap when nothing changed.
func (e *Enricher) rescore(p *models.Property) bool {
	result := scoring.Score(p)

	changed := p.DealScore == nil || *p.DealScore != result.DealScore ||
		p.Classification != result.Classification ||
		p.Breakdown == nil || *p.Breakdown != result.Breakdown ||
		p.IsPotentialHMO == nil || *p.IsPotentialHMO != result.IsPotentialHMO

	score := result.DealScore
	breakdown := result.Breakdown
	hmo := result.IsPotentialHMO
	p.DealScore = &score
	p.Breakdown = &breakdown
	p.Classification = result.Classification
	p.IsPotentialHMO = &hmo
	return changed
}
