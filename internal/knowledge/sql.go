package knowledge

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clinical-risk-fusion/internal/domain"
)

const (
	selectConditions  = `SELECT name, prior FROM kb_conditions ORDER BY position, name`
	selectLikelihoods = `SELECT condition_name, feature, probability FROM kb_likelihoods`
	selectBaseRates   = `SELECT feature, rate FROM kb_base_rates`
)

// LoadSQL reads the knowledge base tables created by the database migrations.
// The tables are read once; the returned Base does not keep the connection.
func LoadSQL(ctx context.Context, db *sql.DB) (*Base, error) {
	def := Definition{BaseRates: make(map[domain.Feature]float64)}
	index := make(map[domain.Condition]int)

	rows, err := db.QueryContext(ctx, selectConditions)
	if err != nil {
		return nil, fmt.Errorf("querying conditions: %w", err)
	}
	for rows.Next() {
		var cond ConditionDefinition
		if err := rows.Scan(&cond.Name, &cond.Prior); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning condition: %w", err)
		}
		cond.Likelihoods = make(map[domain.Feature]float64)
		index[cond.Name] = len(def.Conditions)
		def.Conditions = append(def.Conditions, cond)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("reading conditions: %w", err)
	}

	rows, err = db.QueryContext(ctx, selectLikelihoods)
	if err != nil {
		return nil, fmt.Errorf("querying likelihoods: %w", err)
	}
	for rows.Next() {
		var (
			name    domain.Condition
			feature domain.Feature
			p       float64
		)
		if err := rows.Scan(&name, &feature, &p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning likelihood: %w", err)
		}
		i, ok := index[name]
		if !ok {
			rows.Close()
			return nil, domain.NewConfigurationError(fmt.Sprintf("likelihood references unregistered condition %q", name))
		}
		def.Conditions[i].Likelihoods[feature] = p
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("reading likelihoods: %w", err)
	}

	rows, err = db.QueryContext(ctx, selectBaseRates)
	if err != nil {
		return nil, fmt.Errorf("querying base rates: %w", err)
	}
	for rows.Next() {
		var (
			feature domain.Feature
			rate    float64
		)
		if err := rows.Scan(&feature, &rate); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning base rate: %w", err)
		}
		def.BaseRates[feature] = rate
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("reading base rates: %w", err)
	}

	return New(def)
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}
