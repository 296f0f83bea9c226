package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/olehk/movebot/internal/model"
	"github.com/olehk/movebot/internal/store"
)

// ListCities returns all cities ordered by name.
func (s *Store) ListCities(ctx context.Context) ([]model.City, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM cities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing cities: %w", err)
	}
	defer rows.Close()

	var cities []model.City
	for rows.Next() {
		var c model.City
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scanning city: %w", err)
		}
		cities = append(cities, c)
	}
	return cities, rows.Err()
}

// AddCity creates a city.
func (s *Store) AddCity(ctx context.Context, name string) (*model.City, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO cities (name) VALUES ($1) RETURNING id`, name,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("adding city: %w", err)
	}
	return &model.City{ID: id, Name: name}, nil
}

// DeleteCity removes a city and, via cascade, its points.
func (s *Store) DeleteCity(ctx context.Context, id int64) error {
	return s.deleteRow(ctx, "deleting city", `DELETE FROM cities WHERE id = $1`, id)
}

// ListPoints returns the points of a city ordered by name.
func (s *Store) ListPoints(ctx context.Context, cityID int64) ([]model.Point, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, city_id, name FROM points WHERE city_id = $1 ORDER BY name`, cityID)
	if err != nil {
		return nil, fmt.Errorf("listing points: %w", err)
	}
	defer rows.Close()

	var points []model.Point
	for rows.Next() {
		var p model.Point
		if err := rows.Scan(&p.ID, &p.CityID, &p.Name); err != nil {
			return nil, fmt.Errorf("scanning point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// GetPoint returns a point by ID.
func (s *Store) GetPoint(ctx context.Context, id int64) (*model.Point, error) {
	var p model.Point
	err := s.db.QueryRowContext(ctx,
		`SELECT id, city_id, name FROM points WHERE id = $1`, id,
	).Scan(&p.ID, &p.CityID, &p.Name)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting point: %w", err)
	}
	return &p, nil
}

// AddPoint creates a point in a city.
func (s *Store) AddPoint(ctx context.Context, cityID int64, name string) (*model.Point, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO points (city_id, name) VALUES ($1, $2) RETURNING id`,
		cityID, name,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("adding point: %w", err)
	}
	return &model.Point{ID: id, CityID: cityID, Name: name}, nil
}

// DeletePoint removes a point.
func (s *Store) DeletePoint(ctx context.Context, id int64) error {
	return s.deleteRow(ctx, "deleting point", `DELETE FROM points WHERE id = $1`, id)
}

// CountPoints returns the total number of points across all cities.
func (s *Store) CountPoints(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM points`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return count, nil
}

func (s *Store) deleteRow(ctx context.Context, action, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
