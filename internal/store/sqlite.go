package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eve-arbitrage/internal/engine"
	"eve-arbitrage/internal/logger"
	"eve-arbitrage/internal/sde"

	_ "modernc.org/sqlite"
)

// SQLite stores batches in a SQLite database. A batch and its routes are
// written in one transaction.
type SQLite struct {
	sql     *sql.DB
	history int
	now     func() time.Time
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at path and runs migrations.
// ":memory:" opens a private in-memory database.
func OpenSQLite(path string, history int) (*SQLite, error) {
	if history <= 0 {
		history = 1
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		dsn = path
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &SQLite{sql: sqlDB, history: history, now: time.Now}
	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	logger.Success("STORE", fmt.Sprintf("Opened %s", path))
	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.sql.Close()
}

func (s *SQLite) migrate() error {
	version := 0
	var hasTable int
	err := s.sql.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`).Scan(&hasTable)
	if err != nil {
		return fmt.Errorf("check schema_version: %w", err)
	}
	if hasTable > 0 {
		err := s.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read schema version: %w", err)
		}
	}

	if version < 1 {
		_, err := s.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS result_batches (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id           TEXT NOT NULL UNIQUE,
				created_at       INTEGER NOT NULL,
				route_count      INTEGER NOT NULL,
				profitable       INTEGER NOT NULL,
				top_net_pct      REAL NOT NULL,
				summary_json     TEXT NOT NULL,
				diagnostics_json TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_batches_created ON result_batches(created_at);

			CREATE TABLE IF NOT EXISTS route_results (
				run_id                  TEXT NOT NULL REFERENCES result_batches(run_id),
				position                INTEGER NOT NULL,
				type_id                 INTEGER,
				type_name               TEXT,
				category                TEXT,
				unit_volume             REAL,
				origin_id               INTEGER,
				origin_name             TEXT,
				origin_system           TEXT,
				destination_id          INTEGER,
				destination_name        TEXT,
				destination_system      TEXT,
				buy_price               REAL,
				sell_price              REAL,
				volume_available        INTEGER,
				market_volume           INTEGER,
				cargo_volume            REAL,
				gross_profit_per_unit   REAL,
				transport_cost          REAL,
				transport_cost_per_unit REAL,
				net_profit_per_unit     REAL,
				net_profit_pct          REAL,
				total_net_profit        REAL,
				profitable              INTEGER,
				carrier                 TEXT,
				hops                    INTEGER,
				travel_time_ns          INTEGER,
				risk                    TEXT,
				confidence              REAL,
				competitors             INTEGER,
				order_age_ns            INTEGER,
				origin_snapshot_age_ns  INTEGER,
				dest_snapshot_age_ns    INTEGER,
				PRIMARY KEY (run_id, position)
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		logger.Info("STORE", "Applied migration v1")
	}
	return nil
}

func (s *SQLite) PutBatch(ctx context.Context, b *ResultBatch) error {
	if err := validate(b); err != nil {
		return err
	}
	summary, err := json.Marshal(b.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	diag, err := json.Marshal(b.Diagnostics)
	if err != nil {
		return fmt.Errorf("encode diagnostics: %w", err)
	}

	tx, err := s.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	h := b.Header()
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO result_batches
		(run_id, created_at, route_count, profitable, top_net_pct, summary_json, diagnostics_json)
		VALUES (?,?,?,?,?,?,?)`,
		b.RunID, b.CreatedAt.UnixNano(), h.Routes, h.Profitable, h.TopNetPct, string(summary), string(diag))
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil // already published
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO route_results (
		run_id, position, type_id, type_name, category, unit_volume,
		origin_id, origin_name, origin_system,
		destination_id, destination_name, destination_system,
		buy_price, sell_price, volume_available, market_volume, cargo_volume,
		gross_profit_per_unit, transport_cost, transport_cost_per_unit,
		net_profit_per_unit, net_profit_pct, total_net_profit, profitable,
		carrier, hops, travel_time_ns, risk, confidence, competitors,
		order_age_ns, origin_snapshot_age_ns, dest_snapshot_age_ns
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare routes: %w", err)
	}
	defer stmt.Close()

	for i, r := range b.Routes {
		if _, err := stmt.ExecContext(ctx,
			b.RunID, i, r.TypeID, r.TypeName, string(r.Category), r.UnitVolume,
			r.OriginID, r.OriginName, r.OriginSystem,
			r.DestinationID, r.DestinationName, r.DestinationSystem,
			r.BuyPrice, r.SellPrice, r.VolumeAvailable, r.MarketVolume, r.CargoVolume,
			r.GrossProfitPerUnit, r.TransportCost, r.TransportCostPerUnit,
			r.NetProfitPerUnit, r.NetProfitPct, r.TotalNetProfit, r.Profitable,
			r.Carrier, r.Hops, int64(r.TravelTime), r.Risk.String(), r.Confidence, r.Competitors,
			int64(r.OrderAge), int64(r.OriginSnapshotAge), int64(r.DestSnapshotAge),
		); err != nil {
			return fmt.Errorf("insert route %d: %w", i, err)
		}
	}

	if err := s.prune(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	logger.Info("STORE", fmt.Sprintf("Stored batch %s (%d routes)", b.RunID, len(b.Routes)))
	return nil
}

// prune keeps the newest history batches.
func (s *SQLite) prune(ctx context.Context, tx *sql.Tx) error {
	keep := `SELECT run_id FROM result_batches ORDER BY created_at DESC, id DESC LIMIT ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM route_results WHERE run_id NOT IN (`+keep+`)`, s.history); err != nil {
		return fmt.Errorf("prune routes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM result_batches WHERE run_id NOT IN (`+keep+`)`, s.history); err != nil {
		return fmt.Errorf("prune batches: %w", err)
	}
	return nil
}

// ErrTornBatch is returned when a batch row and its route rows disagree.
var ErrTornBatch = errors.New("batch route count mismatch")

// GetLatestBatch reads the batch row and its routes in one transaction, so a
// concurrent PutBatch and its prune cannot remove the routes between the two reads.
func (s *SQLite) GetLatestBatch(ctx context.Context, maxAge time.Duration) (*ResultBatch, error) {
	tx, err := s.sql.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var (
		b          ResultBatch
		createdNs  int64
		routeCount int
		summary    string
		diag       string
	)
	err = tx.QueryRowContext(ctx, `SELECT run_id, created_at, route_count, summary_json, diagnostics_json
		FROM result_batches ORDER BY created_at DESC, id DESC LIMIT 1`).
		Scan(&b.RunID, &createdNs, &routeCount, &summary, &diag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest batch: %w", err)
	}
	b.CreatedAt = time.Unix(0, createdNs).UTC()
	if !fresh(&b, maxAge, s.now()) {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(summary), &b.Summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	if err := json.Unmarshal([]byte(diag), &b.Diagnostics); err != nil {
		return nil, fmt.Errorf("decode diagnostics: %w", err)
	}
	routes, err := routesOf(ctx, tx, b.RunID)
	if err != nil {
		return nil, err
	}
	if len(routes) != routeCount {
		return nil, fmt.Errorf("%w: %s has %d of %d routes", ErrTornBatch, b.RunID, len(routes), routeCount)
	}
	b.Routes = routes
	return &b, nil
}

func routesOf(ctx context.Context, tx *sql.Tx, runID string) ([]engine.RouteCandidate, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT type_id, type_name, category, unit_volume,
			origin_id, origin_name, origin_system,
			destination_id, destination_name, destination_system,
			buy_price, sell_price, volume_available, market_volume, cargo_volume,
			gross_profit_per_unit, transport_cost, transport_cost_per_unit,
			net_profit_per_unit, net_profit_pct, total_net_profit, profitable,
			carrier, hops, travel_time_ns, risk, confidence, competitors,
			order_age_ns, origin_snapshot_age_ns, dest_snapshot_age_ns
		FROM route_results WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()

	routes := []engine.RouteCandidate{}
	for rows.Next() {
		var (
			r                               engine.RouteCandidate
			category, risk                  string
			travel, age, originAge, destAge int64
		)
		if err := rows.Scan(
			&r.TypeID, &r.TypeName, &category, &r.UnitVolume,
			&r.OriginID, &r.OriginName, &r.OriginSystem,
			&r.DestinationID, &r.DestinationName, &r.DestinationSystem,
			&r.BuyPrice, &r.SellPrice, &r.VolumeAvailable, &r.MarketVolume, &r.CargoVolume,
			&r.GrossProfitPerUnit, &r.TransportCost, &r.TransportCostPerUnit,
			&r.NetProfitPerUnit, &r.NetProfitPct, &r.TotalNetProfit, &r.Profitable,
			&r.Carrier, &r.Hops, &travel, &risk, &r.Confidence, &r.Competitors,
			&age, &originAge, &destAge,
		); err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		if err := r.Risk.UnmarshalText([]byte(risk)); err != nil {
			return nil, err
		}
		r.Category = sde.Category(category)
		r.TravelTime = time.Duration(travel)
		r.OrderAge = time.Duration(age)
		r.OriginSnapshotAge = time.Duration(originAge)
		r.DestSnapshotAge = time.Duration(destAge)
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

func (s *SQLite) History(ctx context.Context, limit int) ([]Header, error) {
	if limit <= 0 {
		limit = s.history
	}
	rows, err := s.sql.QueryContext(ctx, `SELECT run_id, created_at, route_count, profitable, top_net_pct
		FROM result_batches ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := []Header{}
	for rows.Next() {
		var h Header
		var createdNs int64
		if err := rows.Scan(&h.RunID, &createdNs, &h.Routes, &h.Profitable, &h.TopNetPct); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.CreatedAt = time.Unix(0, createdNs).UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}
