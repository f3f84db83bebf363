package postgres

import (
	"context"
	"fmt"

	"github.com/giygas/ppu-savings/logging"
	"github.com/giygas/ppu-savings/matrixstore"
	"github.com/giygas/ppu-savings/orgs"
	"github.com/jackc/pgx/v5"
)

const (
	prescribingDatesQuery = `SELECT DISTINCT to_char(month, 'YYYY-MM-DD') FROM prescribing ORDER BY 1`

	prescribingPracticesQuery = `SELECT DISTINCT practice_id FROM prescribing ORDER BY 1`

	prescribingQuery = `
SELECT bnf_code, practice_id, to_char(month, 'YYYY-MM-DD'), quantity, net_cost
FROM prescribing`

	presentationNamesQuery = `SELECT bnf_code, name FROM presentation WHERE name IS NOT NULL`

	practicesQuery = `
SELECT
  code,
  COALESCE(name, ''),
  setting,
  COALESCE(ccg_id, ''),
  COALESCE(status_code, ''),
  COALESCE(postcode, ''),
  COALESCE(to_char(open_date, 'YYYY-MM-DD'), ''),
  COALESCE(to_char(close_date, 'YYYY-MM-DD'), '')
FROM frontend_practice
ORDER BY code`

	knownCCGsQuery = `SELECT code FROM frontend_pct`

	upsertPracticeQuery = `
INSERT INTO frontend_practice
  (code, name, setting, ccg_id, status_code, postcode, open_date, close_date)
VALUES
  ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, '')::date, NULLIF($8, '')::date)
ON CONFLICT (code) DO UPDATE SET
  name = EXCLUDED.name,
  setting = EXCLUDED.setting,
  ccg_id = EXCLUDED.ccg_id,
  status_code = EXCLUDED.status_code,
  postcode = EXCLUDED.postcode,
  open_date = EXCLUDED.open_date,
  close_date = EXCLUDED.close_date`
)

// LoadMatrixStore reads every prescribing row into a new store
func (c *Client) LoadMatrixStore(ctx context.Context) (*matrixstore.Store, error) {
	return execute(c.breaker, func() (*matrixstore.Store, error) {
		dates, err := c.strings(ctx, prescribingDatesQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to read prescribing dates: %w", err)
		}
		practices, err := c.strings(ctx, prescribingPracticesQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to read prescribing practices: %w", err)
		}

		builder, err := matrixstore.NewBuilder(dates, practices)
		if err != nil {
			return nil, err
		}

		rows, err := c.db.Query(ctx, prescribingQuery)
		if err != nil {
			return nil, fmt.Errorf("prescribing query failed: %w", err)
		}
		count := 0
		for rows.Next() {
			var row matrixstore.PrescribingRow
			if err := rows.Scan(&row.BNFCode, &row.Practice, &row.Date, &row.Quantity, &row.NetCost); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to read prescribing row: %w", err)
			}
			if err := builder.Add(row); err != nil {
				rows.Close()
				return nil, err
			}
			count++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		names, err := c.db.Query(ctx, presentationNamesQuery)
		if err != nil {
			return nil, fmt.Errorf("presentation names query failed: %w", err)
		}
		defer names.Close()
		for names.Next() {
			var code, name string
			if err := names.Scan(&code, &name); err != nil {
				return nil, fmt.Errorf("failed to read presentation name: %w", err)
			}
			builder.SetName(code, name)
		}
		if err := names.Err(); err != nil {
			return nil, err
		}

		store := builder.Build()
		logging.Info("Loaded prescribing", "rows", count, "dates", len(dates), "practices", len(practices))
		return store, nil
	})
}

// Practices returns the practice register
func (c *Client) Practices(ctx context.Context) ([]orgs.Practice, error) {
	return execute(c.breaker, func() ([]orgs.Practice, error) {
		rows, err := c.db.Query(ctx, practicesQuery)
		if err != nil {
			return nil, fmt.Errorf("practices query failed: %w", err)
		}
		defer rows.Close()

		var practices []orgs.Practice
		for rows.Next() {
			var p orgs.Practice
			var setting int32
			if err := rows.Scan(&p.Code, &p.Name, &setting, &p.CCG, &p.StatusCode, &p.Postcode, &p.OpenDate, &p.CloseDate); err != nil {
				return nil, fmt.Errorf("failed to read practice: %w", err)
			}
			p.Setting = int(setting)
			practices = append(practices, p)
		}
		return practices, rows.Err()
	})
}

// KnownCCGs returns the codes of every CCG in the database
func (c *Client) KnownCCGs(ctx context.Context) (map[string]struct{}, error) {
	return execute(c.breaker, func() (map[string]struct{}, error) {
		codes, err := c.strings(ctx, knownCCGsQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to read CCGs: %w", err)
		}
		known := make(map[string]struct{}, len(codes))
		for _, code := range codes {
			known[code] = struct{}{}
		}
		return known, nil
	})
}

// UpsertPractices creates or updates practices in a single batch
func (c *Client) UpsertPractices(ctx context.Context, practices []orgs.Practice) (int, error) {
	if len(practices) == 0 {
		return 0, nil
	}

	return execute(c.breaker, func() (int, error) {
		batch := &pgx.Batch{}
		for _, p := range practices {
			batch.Queue(upsertPracticeQuery, p.Code, p.Name, p.Setting, p.CCG, p.StatusCode, p.Postcode, p.OpenDate, p.CloseDate)
		}

		results := c.db.SendBatch(ctx, batch)
		defer results.Close()
		for _, p := range practices {
			if _, err := results.Exec(); err != nil {
				return 0, fmt.Errorf("failed to upsert practice %s: %w", p.Code, err)
			}
		}
		return len(practices), nil
	})
}

func (c *Client) strings(ctx context.Context, query string) ([]string, error) {
	rows, err := c.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
