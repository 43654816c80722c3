// Package restaurant provides the PostgreSQL-backed restaurant catalog used
// by group voting. Search prefilters candidates with a bounding box in SQL,
// then applies the exact great-circle distance in Go.
package restaurant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/feastfriends/feastfriends/internal/geo"
)

// Restaurant is one catalog entry.
type Restaurant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Address  string    `json:"address,omitempty"`
	Cuisine  string    `json:"cuisine"`
	Budget   float64   `json:"budget"` // typical per-person spend
	Rating   float64   `json:"rating,omitempty"`
	Location geo.Point `json:"location"`

	// DistanceKm is populated by Search relative to the query point.
	DistanceKm float64 `json:"distance_km,omitempty"`
}

// Query narrows a restaurant search. Cuisine is optional; Limit defaults to
// 20 when zero.
type Query struct {
	Center   geo.Point
	RadiusKm float64
	Cuisine  string
	Limit    int
}

// Store manages the restaurant catalog in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a restaurant store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a restaurant into the catalog.
func (s *Store) Create(ctx context.Context, r *Restaurant) error {
	const query = `
		INSERT INTO restaurants (id, name, address, cuisine, budget, rating, lat, lng)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Name, r.Address, r.Cuisine, r.Budget, r.Rating, r.Location.Lat, r.Location.Lng)
	if err != nil {
		return fmt.Errorf("restaurant: insert %s: %w", r.ID, err)
	}
	return nil
}

// Get retrieves a restaurant by ID. Returns nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*Restaurant, error) {
	const query = `
		SELECT id, name, address, cuisine, budget, rating, lat, lng
		FROM restaurants
		WHERE id = $1`

	var r Restaurant
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.Name, &r.Address, &r.Cuisine, &r.Budget, &r.Rating, &r.Location.Lat, &r.Location.Lng)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("restaurant: get %s: %w", id, err)
	}
	return &r, nil
}

// Name resolves a restaurant ID to its display name. Returns an empty name
// for unknown IDs.
func (s *Store) Name(ctx context.Context, id string) (string, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}
	return r.Name, nil
}

// Search returns restaurants within radiusKm of the center, nearest first.
// The SQL query prefilters on a bounding box around the center; the exact
// haversine distance is computed in Go and rows outside the radius are
// dropped.
func (s *Store) Search(ctx context.Context, q Query) ([]Restaurant, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}

	minLat, maxLat, minLng, maxLng := geo.BoundingBox(q.Center, q.RadiusKm)

	query := `
		SELECT id, name, address, cuisine, budget, rating, lat, lng
		FROM restaurants
		WHERE lat BETWEEN $1 AND $2
		  AND lng BETWEEN $3 AND $4`
	args := []interface{}{minLat, maxLat, minLng, maxLng}

	if q.Cuisine != "" {
		query += ` AND cuisine = $5`
		args = append(args, q.Cuisine)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("restaurant: search: %w", err)
	}
	defer rows.Close()

	var results []Restaurant
	for rows.Next() {
		var r Restaurant
		if err := rows.Scan(&r.ID, &r.Name, &r.Address, &r.Cuisine, &r.Budget, &r.Rating, &r.Location.Lat, &r.Location.Lng); err != nil {
			return nil, fmt.Errorf("restaurant: scan: %w", err)
		}
		r.DistanceKm = geo.HaversineKm(q.Center, r.Location)
		if r.DistanceKm <= q.RadiusKm {
			results = append(results, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].DistanceKm < results[j].DistanceKm
	})
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}
