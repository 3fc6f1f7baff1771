package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prospecthq/prospect-engine/pkg/apperrors"
	"github.com/prospecthq/prospect-engine/pkg/models"
)

const propertyColumns = `id, uprn, address, address_key, postcode, city,
	latitude, longitude, listing_type, price, bedrooms, bathrooms, property_type,
	epc_rating, epc_score, epc_certificate, floor_area_sqm, floor_area_band,
	constraints, in_restricted_area, restricted_area_name, broadband,
	deal_score, classification, breakdown, is_potential_hmo, provenance,
	last_seen_at, stale, stale_marked_at, created_at, updated_at`

type postgresPropertyRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPropertyRepository creates the Postgres-backed gateway.
func NewPostgresPropertyRepository(pool *pgxpool.Pool) PropertyRepository {
	return &postgresPropertyRepository{pool: pool}
}

var _ PropertyRepository = (*postgresPropertyRepository)(nil)

func (r *postgresPropertyRepository) GetByID(ctx context.Context, id string) (*models.Property, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *postgresPropertyRepository) GetByUPRN(ctx context.Context, uprn string) (*models.Property, error) {
	return r.getOne(ctx, "uprn = $1", uprn)
}

func (r *postgresPropertyRepository) GetByAddressKey(ctx context.Context, key string) (*models.Property, error) {
	return r.getOne(ctx, "address_key = $1", key)
}

func (r *postgresPropertyRepository) getOne(ctx context.Context, where string, arg any) (*models.Property, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM properties WHERE %s`, propertyColumns, where), arg)
	p, err := scanProperty(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	return p, nil
}

func (r *postgresPropertyRepository) Upsert(ctx context.Context, p *models.Property) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	constraints, err := json.Marshal(p.Constraints)
	if err != nil {
		return fmt.Errorf("failed to encode constraints: %w", err)
	}
	broadband, err := nullableJSON(p.Broadband)
	if err != nil {
		return fmt.Errorf("failed to encode broadband: %w", err)
	}
	breakdown, err := nullableJSON(p.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to encode breakdown: %w", err)
	}
	provenance, err := json.Marshal(p.Provenance)
	if err != nil {
		return fmt.Errorf("failed to encode provenance: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO properties (
			id, uprn, address, address_key, postcode, city,
			latitude, longitude, listing_type, price, bedrooms, bathrooms, property_type,
			epc_rating, epc_score, epc_certificate, floor_area_sqm, floor_area_band,
			constraints, in_restricted_area, restricted_area_name, broadband,
			deal_score, classification, breakdown, is_potential_hmo, provenance,
			last_seen_at, stale, stale_marked_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, $21, $22,
			$23, $24, $25, $26, $27,
			$28, $29, $30, $31, $32
		)
		ON CONFLICT (id) DO UPDATE SET
			uprn = EXCLUDED.uprn,
			address = EXCLUDED.address,
			address_key = EXCLUDED.address_key,
			postcode = EXCLUDED.postcode,
			city = EXCLUDED.city,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			listing_type = EXCLUDED.listing_type,
			price = EXCLUDED.price,
			bedrooms = EXCLUDED.bedrooms,
			bathrooms = EXCLUDED.bathrooms,
			property_type = EXCLUDED.property_type,
			epc_rating = EXCLUDED.epc_rating,
			epc_score = EXCLUDED.epc_score,
			epc_certificate = EXCLUDED.epc_certificate,
			floor_area_sqm = EXCLUDED.floor_area_sqm,
			floor_area_band = EXCLUDED.floor_area_band,
			constraints = EXCLUDED.constraints,
			in_restricted_area = EXCLUDED.in_restricted_area,
			restricted_area_name = EXCLUDED.restricted_area_name,
			broadband = EXCLUDED.broadband,
			deal_score = EXCLUDED.deal_score,
			classification = EXCLUDED.classification,
			breakdown = EXCLUDED.breakdown,
			is_potential_hmo = EXCLUDED.is_potential_hmo,
			provenance = EXCLUDED.provenance,
			last_seen_at = EXCLUDED.last_seen_at,
			stale = EXCLUDED.stale,
			stale_marked_at = EXCLUDED.stale_marked_at,
			updated_at = EXCLUDED.updated_at`,
		p.ID, nullable(p.UPRN), p.Address, AddressKey(p.Address, p.Postcode), p.Postcode, p.City,
		p.Latitude, p.Longitude, nullable(string(p.ListingType)), p.Price, p.Bedrooms, p.Bathrooms, p.PropertyType,
		p.EPCRating, p.EPCScore, p.EPCCertificate, p.FloorAreaSqm, p.FloorAreaBand,
		constraints, p.InRestrictedArea, p.RestrictedAreaName, broadband,
		p.DealScore, nullable(string(p.Classification)), breakdown, p.IsPotentialHMO, provenance,
		p.LastSeenAt, p.Stale, p.StaleMarkedAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert property: %w", err)
	}
	return nil
}

func (r *postgresPropertyRepository) Query(ctx context.Context, filter PropertyFilter) ([]*models.Property, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.ID != "" {
		conditions = append(conditions, fmt.Sprintf("id = $%d", argIdx))
		args = append(args, filter.ID)
		argIdx++
	}
	if filter.City != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(city) = LOWER($%d)", argIdx))
		args = append(args, filter.City)
		argIdx++
	}
	if len(filter.Postcodes) > 0 {
		// The column keeps the display form, so both sides are normalized
		// for the comparison.
		normed := make([]string, len(filter.Postcodes))
		for i, pc := range filter.Postcodes {
			normed[i] = models.NormalizePostcode(pc)
		}
		conditions = append(conditions, fmt.Sprintf("UPPER(REPLACE(postcode, ' ', '')) = ANY($%d)", argIdx))
		args = append(args, normed)
		argIdx++
	}
	if filter.Stale != nil {
		conditions = append(conditions, fmt.Sprintf("stale = $%d", argIdx))
		args = append(args, *filter.Stale)
		argIdx++
	}
	if filter.LastSeenBefore != nil {
		conditions = append(conditions, fmt.Sprintf("last_seen_at < $%d", argIdx))
		args = append(args, *filter.LastSeenBefore)
		argIdx++
	}

	query := fmt.Sprintf(`SELECT %s FROM properties WHERE %s ORDER BY id`,
		propertyColumns, strings.Join(conditions, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer rows.Close()

	var out []*models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating properties: %w", err)
	}
	return out, nil
}

func (r *postgresPropertyRepository) MarkStaleBefore(ctx context.Context, cutoff, markedAt time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE properties
		SET stale = TRUE, stale_marked_at = $2, updated_at = $2
		WHERE stale = FALSE AND last_seen_at < $1`,
		cutoff, markedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale properties: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *postgresPropertyRepository) UpsertLicence(ctx context.Context, propertyID string, lic models.Licence) error {
	conditions, err := json.Marshal(lic.Conditions)
	if err != nil {
		return fmt.Errorf("failed to encode licence conditions: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO licences (
			property_id, property_ref, type_code, number, status,
			start_date, end_date, conditions, source, source_type, last_updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (property_id, property_ref, type_code, number) DO UPDATE SET
			status = EXCLUDED.status,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			conditions = EXCLUDED.conditions,
			source = EXCLUDED.source,
			source_type = EXCLUDED.source_type,
			last_updated_at = EXCLUDED.last_updated_at`,
		propertyID, lic.PropertyRef, lic.TypeCode, lic.Number, string(lic.Status),
		lic.StartDate, lic.EndDate, conditions, lic.Source, string(lic.SourceType), lic.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert licence: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(row rowScanner) (*models.Property, error) {
	p := &models.Property{}
	var (
		uprn, listingType, classification *string
		constraints, broadband            []byte
		breakdown, provenance             []byte
	)

	err := row.Scan(
		&p.ID, &uprn, &p.Address, new(string), &p.Postcode, &p.City,
		&p.Latitude, &p.Longitude, &listingType, &p.Price, &p.Bedrooms, &p.Bathrooms, &p.PropertyType,
		&p.EPCRating, &p.EPCScore, &p.EPCCertificate, &p.FloorAreaSqm, &p.FloorAreaBand,
		&constraints, &p.InRestrictedArea, &p.RestrictedAreaName, &broadband,
		&p.DealScore, &classification, &breakdown, &p.IsPotentialHMO, &provenance,
		&p.LastSeenAt, &p.Stale, &p.StaleMarkedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if uprn != nil {
		p.UPRN = *uprn
	}
	if listingType != nil {
		p.ListingType = models.ListingType(*listingType)
	}
	if classification != nil {
		p.Classification = models.Classification(*classification)
	}
	if len(constraints) > 0 {
		if err := json.Unmarshal(constraints, &p.Constraints); err != nil {
			return nil, fmt.Errorf("failed to decode constraints: %w", err)
		}
	}
	if len(broadband) > 0 {
		if err := json.Unmarshal(broadband, &p.Broadband); err != nil {
			return nil, fmt.Errorf("failed to decode broadband: %w", err)
		}
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &p.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to decode breakdown: %w", err)
		}
	}
	if len(provenance) > 0 {
		if err := json.Unmarshal(provenance, &p.Provenance); err != nil {
			return nil, fmt.Errorf("failed to decode provenance: %w", err)
		}
	}
	return p, nil
}

// nullable maps the empty string to SQL NULL so partial unique indexes on
// uprn behave.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableJSON(v any) ([]byte, error) {
	switch t := v.(type) {
	case *models.BroadbandCoverage:
		if t == nil {
			return nil, nil
		}
	case *models.ScoreBreakdown:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
