package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"bus-tracker/internal/fleet"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Open connects to a GTFS database. The driver is picked from the DSN, see
// driverFor.
func Open(dsn string) (*sql.DB, error) {
	driver, source, err := driverFor(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, err
	}
	if driver == driverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

type routeRow struct {
	id, shortName, longName string
}

type stopRow struct {
	tripID   string
	seq      int
	arrival  string
	stopID   string
	stopName string
	lat, lng float64
}

// FetchRoutes reads the route table of a standard GTFS import and returns one
// fleet.Route per route_id. The stop sequence of each route is taken from its
// trip with the most stop_times (ties go to the lowest trip_id). Routes
// without any trip are skipped. Queries use no placeholders so the same SQL
// runs on both Postgres and SQLite.
func FetchRoutes(ctx context.Context, db *sql.DB) ([]fleet.Route, error) {
	routes, err := fetchRouteRows(ctx, db)
	if err != nil {
		return nil, err
	}
	trips, err := fetchLongestTrips(ctx, db)
	if err != nil {
		return nil, err
	}
	if len(trips) == 0 {
		return nil, nil
	}
	stops, err := fetchStopRows(ctx, db)
	if err != nil {
		return nil, err
	}
	return assembleRoutes(routes, trips, stops), nil
}

func fetchRouteRows(ctx context.Context, db *sql.DB) ([]routeRow, error) {
	q := `SELECT route_id, COALESCE(route_short_name, ''), COALESCE(route_long_name, '')
FROM routes ORDER BY route_id`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()
	var out []routeRow
	for rows.Next() {
		var r routeRow
		if err := rows.Scan(&r.id, &r.shortName, &r.longName); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// longestTrips ranks each route's trips by stop_times count; ties go to the
// lowest trip_id. Window functions run on both Postgres and SQLite.
const longestTrips = `WITH trip_len AS (
    SELECT t.route_id, t.trip_id, COUNT(*) AS n
    FROM trips t
    JOIN stop_times st ON st.trip_id = t.trip_id
    GROUP BY t.route_id, t.trip_id
), longest AS (
    SELECT route_id, trip_id FROM (
        SELECT route_id, trip_id,
               ROW_NUMBER() OVER (PARTITION BY route_id ORDER BY n DESC, trip_id) AS rn
        FROM trip_len
    ) ranked
    WHERE rn = 1
)
`

// fetchLongestTrips maps route_id to the trip_id with the most stop_times.
func fetchLongestTrips(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, longestTrips+`SELECT route_id, trip_id FROM longest`)
	if err != nil {
		return nil, fmt.Errorf("query trip lengths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var routeID, tripID string
		if err := rows.Scan(&routeID, &tripID); err != nil {
			return nil, err
		}
		out[routeID] = tripID
	}
	return out, rows.Err()
}

// fetchStopRows reads stop_times for the longest trip of each route only.
func fetchStopRows(ctx context.Context, db *sql.DB) ([]stopRow, error) {
	q := longestTrips + `SELECT st.trip_id, st.stop_sequence,
       COALESCE(CAST(st.arrival_time AS TEXT), ''),
       s.stop_id, COALESCE(s.stop_name, ''), s.stop_lat, s.stop_lon
FROM longest l
JOIN stop_times st ON st.trip_id = l.trip_id
JOIN stops s ON s.stop_id = st.stop_id
ORDER BY st.trip_id, st.stop_sequence`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query stop_times: %w", err)
	}
	defer rows.Close()
	var out []stopRow
	for rows.Next() {
		var r stopRow
		if err := rows.Scan(&r.tripID, &r.seq, &r.arrival, &r.stopID, &r.stopName, &r.lat, &r.lng); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// assembleRoutes builds routes from already fetched rows. stops must be
// ordered by trip then stop_sequence.
func assembleRoutes(routes []routeRow, trips map[string]string, stops []stopRow) []fleet.Route {
	byTrip := make(map[string][]stopRow)
	for _, s := range stops {
		byTrip[s.tripID] = append(byTrip[s.tripID], s)
	}

	var out []fleet.Route
	for _, r := range routes {
		rows := byTrip[trips[r.id]]
		if len(rows) == 0 {
			continue
		}
		route := fleet.Route{ID: r.id, Label: routeLabel(r), Stops: make([]fleet.Stop, len(rows))}
		first := parseDaySeconds(rows[0].arrival)
		for i, s := range rows {
			route.Stops[i] = fleet.Stop{
				ID:           s.stopID,
				Name:         s.stopName,
				Lat:          s.lat,
				Lng:          s.lng,
				ArrivalLabel: arrivalLabel(parseDaySeconds(s.arrival) - first),
			}
		}
		out = append(out, route)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func routeLabel(r routeRow) string {
	switch {
	case r.shortName != "" && r.longName != "":
		return r.shortName + " " + r.longName
	case r.longName != "":
		return r.longName
	case r.shortName != "":
		return r.shortName
	default:
		return r.id
	}
}

// arrivalLabel renders an offset from the first stop in whole minutes.
func arrivalLabel(sec int) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%d mins", sec/60)
}

// parseDaySeconds parses HH:MM:SS possibly with hours >= 24.
func parseDaySeconds(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	sec := 0
	if len(parts) > 2 {
		sec, _ = strconv.Atoi(parts[2])
	}
	total := h*3600 + m*60 + sec
	if total < 0 {
		total = 0
	}
	return total
}
