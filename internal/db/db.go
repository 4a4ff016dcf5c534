package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"metro-simulator/internal/geo"
	"metro-simulator/internal/lines"
	"metro-simulator/internal/route"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Store reads line definitions from the lines, stations and polyline_points
// tables.
type Store struct {
	db *sql.DB
}

var _ lines.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Line(ctx context.Context, id int) (*route.Line, error) {
	var l route.Line
	err := s.db.QueryRowContext(ctx, `SELECT id, name, COALESCE(color, '') FROM lines WHERE id = $1`, id).
		Scan(&l.ID, &l.Name, &l.Color)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", lines.ErrLineNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query line: %w", err)
	}
	if err := s.fill(ctx, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) Lines(ctx context.Context) ([]route.Line, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, COALESCE(color, '') FROM lines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query lines: %w", err)
	}
	var out []route.Line
	for rows.Next() {
		var l route.Line
		if err := rows.Scan(&l.ID, &l.Name, &l.Color); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.fill(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) fill(ctx context.Context, l *route.Line) error {
	var err error
	if l.Stations, err = FetchStations(ctx, s.db, l.ID); err != nil {
		return err
	}
	if l.Polyline, err = FetchPolyline(ctx, s.db, l.ID); err != nil {
		return err
	}
	return lines.Check(l)
}

func FetchStations(ctx context.Context, db *sql.DB, lineID int) ([]route.Station, error) {
	q := `SELECT id, name, lat, lon, speed_min, speed_max
          FROM stations WHERE line_id = $1 ORDER BY seq`
	rows, err := db.QueryContext(ctx, q, lineID)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()
	var out []route.Station
	for rows.Next() {
		var st route.Station
		var smin, smax sql.NullFloat64
		if err := rows.Scan(&st.ID, &st.Name, &st.Position.Lat, &st.Position.Lon, &smin, &smax); err != nil {
			return nil, err
		}
		if smin.Valid || smax.Valid {
			st.Speed = &route.SpeedLimit{Min: smin.Float64, Max: smax.Float64}
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// pointRow is one polyline_points row before conversion.
type pointRow struct {
	Lat, Lon     float64
	SpeedMin     sql.NullFloat64
	SpeedMax     sql.NullFloat64
	StationID    sql.NullInt64
	IsFixed      bool
	AlertMessage sql.NullString
	AlertType    sql.NullString
}

func (r pointRow) point() route.PathPoint {
	p := route.PathPoint{
		Position: geo.Point{Lat: r.Lat, Lon: r.Lon},
		Speed:    route.SpeedLimit{Min: r.SpeedMin.Float64, Max: r.SpeedMax.Float64},
		IsFixed:  r.IsFixed,
	}
	if r.StationID.Valid {
		id := int(r.StationID.Int64)
		p.IsStation = true
		p.StationID = &id
	}
	// an alert_type of none marks a point without an alert
	if r.AlertMessage.Valid && r.AlertMessage.String != "" {
		sev := route.SeverityInfo
		if r.AlertType.Valid && r.AlertType.String != "" {
			sev = route.Severity(r.AlertType.String)
		}
		if sev != route.SeverityNone {
			p.Alert = &route.PointAlert{Message: r.AlertMessage.String, Severity: sev}
		}
	}
	return p
}

// FetchPolyline returns the master polyline of a line in sequence order.
// Both plain lat/lon columns and a PostGIS loc geography are supported.
func FetchPolyline(ctx context.Context, db *sql.DB, lineID int) ([]route.PathPoint, error) {
	cols, err := hasColumns(ctx, db, "public", "polyline_points", "lat", "lon", "loc")
	if err != nil {
		return nil, fmt.Errorf("introspect polyline_points columns: %w", err)
	}
	var coords string
	switch {
	case cols["lat"] && cols["lon"]:
		coords = "lat, lon"
	case cols["loc"]:
		coords = "ST_Y(loc::geometry), ST_X(loc::geometry)"
	default:
		return nil, fmt.Errorf("polyline_points table missing expected columns (lat/lon or loc)")
	}
	q := `SELECT ` + coords + `, speed_min, speed_max, station_id,
                 COALESCE(is_fixed, false), alert_message, alert_type
          FROM polyline_points WHERE line_id = $1 ORDER BY seq`
	rows, err := db.QueryContext(ctx, q, lineID)
	if err != nil {
		return nil, fmt.Errorf("query polyline_points: %w", err)
	}
	defer rows.Close()
	var pts []route.PathPoint
	for rows.Next() {
		var r pointRow
		if err := rows.Scan(&r.Lat, &r.Lon, &r.SpeedMin, &r.SpeedMax, &r.StationID, &r.IsFixed, &r.AlertMessage, &r.AlertType); err != nil {
			return nil, err
		}
		pts = append(pts, r.point())
	}
	return pts, rows.Err()
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
