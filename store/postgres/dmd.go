package postgres

import (
	"context"
	"fmt"

	"github.com/giygas/ppu-savings/discount"
	"github.com/giygas/ppu-savings/substitution"
)

const tariffFactsQuery = `
SELECT
  vmpp.bnf_code,
  tariff.tariff_category_id,
  ncso.vmpp_id IS NOT NULL
FROM dmd_vmpp AS vmpp
JOIN frontend_tariffprice AS tariff
  ON vmpp.vppid = tariff.vmpp_id AND tariff.date = $1::date
LEFT JOIN frontend_ncsoconcession AS ncso
  ON ncso.vmpp_id = vmpp.vppid AND ncso.date = $1::date
WHERE vmpp.bnf_code = ANY($2)`

// Swaps runs the swaps query. Its columns are found by name, so the query
// may return them in any order and carry extra columns.
func (c *Client) Swaps(ctx context.Context) ([]substitution.RawSwapFact, error) {
	return execute(c.breaker, func() ([]substitution.RawSwapFact, error) {
		rows, err := c.db.Query(ctx, c.swapsSQL)
		if err != nil {
			return nil, fmt.Errorf("swaps query failed: %w", err)
		}
		defer rows.Close()

		fields := rows.FieldDescriptions()
		columns := make([]string, len(fields))
		for i, field := range fields {
			columns[i] = field.Name
		}
		indices, err := substitution.ColumnIndices(columns, substitution.SwapColumns)
		if err != nil {
			return nil, err
		}

		var swaps []substitution.RawSwapFact
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return nil, fmt.Errorf("failed to read swap row: %w", err)
			}
			swaps = append(swaps, substitution.SwapFromRow(textValues(values), indices))
		}
		return swaps, rows.Err()
	})
}

// TariffFacts finds the Drug Tariff category and concession status of each
// code in the month. Only VMPP codes have tariff prices, so AMPP codes are
// absent from the result.
func (c *Client) TariffFacts(ctx context.Context, bnfCodes []string, date string) (map[string]discount.TariffFact, error) {
	facts := make(map[string]discount.TariffFact)
	if len(bnfCodes) == 0 {
		return facts, nil
	}

	return execute(c.breaker, func() (map[string]discount.TariffFact, error) {
		rows, err := c.db.Query(ctx, tariffFactsQuery, date, bnfCodes)
		if err != nil {
			return nil, fmt.Errorf("tariff query failed: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				code       string
				category   *int32
				concession bool
			)
			if err := rows.Scan(&code, &category, &concession); err != nil {
				return nil, fmt.Errorf("failed to read tariff row: %w", err)
			}
			fact := discount.TariffFact{HasConcession: concession}
			if category != nil {
				fact.CategoryID = int(*category)
			}
			facts[code] = fact
		}
		return facts, rows.Err()
	})
}

// textValues renders a row's values as strings. NULL becomes "".
func textValues(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		switch v := v.(type) {
		case nil:
		case string:
			out[i] = v
		case []byte:
			out[i] = string(v)
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}
