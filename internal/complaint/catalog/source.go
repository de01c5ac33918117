package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"

	"github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"civicdesk/internal/complaint/models"
	"civicdesk/internal/platform/postgres"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// Source loads raw catalog entries.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
}

type fileLayout struct {
	Types []models.ComplaintType `yaml:"types"`
	Units []models.MunicipalUnit `yaml:"units"`
}

// YAMLSource reads a catalog file on every Load. An empty path serves the
// embedded default catalog.
type YAMLSource struct {
	path string
}

func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

func (s *YAMLSource) Load(_ context.Context) (*Snapshot, error) {
	raw := defaultCatalogYAML
	if s.path != "" {
		b, err := os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", s.path, err)
		}
		raw = b
	}
	return ParseYAML(raw)
}

// ParseYAML decodes and builds a snapshot from catalog YAML.
func ParseYAML(raw []byte) (*Snapshot, error) {
	var layout fileLayout
	if err := yaml.Unmarshal(raw, &layout); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return Build(layout.Types, layout.Units)
}

// PostgresSource reads complaint_types and municipal_units.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Load(ctx context.Context) (*Snapshot, error) {
	types, err := s.loadTypes(ctx)
	if err != nil {
		return nil, err
	}
	units, err := s.loadUnits(ctx)
	if err != nil {
		return nil, err
	}
	return Build(types, units)
}

func (s *PostgresSource) loadTypes(ctx context.Context) ([]models.ComplaintType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, severity_weight FROM complaint_types ORDER BY id`)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("load complaint types: %w", err))
	}
	defer rows.Close()

	var types []models.ComplaintType
	for rows.Next() {
		var t models.ComplaintType
		if err := rows.Scan(&t.ID, &t.Name, &t.SeverityWeight); err != nil {
			return nil, fmt.Errorf("scan complaint type: %w", err)
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Classify(fmt.Errorf("iterate complaint types: %w", err))
	}
	return types, nil
}

func (s *PostgresSource) loadUnits(ctx context.Context) ([]models.MunicipalUnit, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, accepted_types FROM municipal_units ORDER BY id`)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("load municipal units: %w", err))
	}
	defer rows.Close()

	var units []models.MunicipalUnit
	for rows.Next() {
		var u models.MunicipalUnit
		if err := rows.Scan(&u.ID, &u.Name, pq.Array(&u.AcceptedTypes)); err != nil {
			return nil, fmt.Errorf("scan municipal unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Classify(fmt.Errorf("iterate municipal units: %w", err))
	}
	return units, nil
}

// Seed upserts a snapshot's entries into Postgres. Used to bootstrap an empty
// database from YAML.
func Seed(ctx context.Context, db *sql.DB, snap *Snapshot) error {
	return postgres.NewTx(db, 0).RunInTx(ctx, func(txCtx context.Context) error {
		conn := postgres.Conn(txCtx, db)
		for _, t := range snap.types {
			_, err := conn.ExecContext(txCtx, `
				INSERT INTO complaint_types (id, name, severity_weight)
				VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					severity_weight = EXCLUDED.severity_weight
			`, t.ID, t.Name, t.SeverityWeight)
			if err != nil {
				return postgres.Classify(fmt.Errorf("seed complaint type %s: %w", t.ID, err))
			}
		}
		for _, u := range snap.units {
			_, err := conn.ExecContext(txCtx, `
				INSERT INTO municipal_units (id, name, accepted_types)
				VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					accepted_types = EXCLUDED.accepted_types
			`, u.ID, u.Name, pq.Array(u.AcceptedTypes))
			if err != nil {
				return postgres.Classify(fmt.Errorf("seed municipal unit %s: %w", u.ID, err))
			}
		}
		return nil
	})
}
