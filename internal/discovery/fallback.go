package discovery

import (
	"time"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/dbclient"
)

// fallbackSnapshot describes the well-known financial tables the agent can
// still reason about when live discovery is impossible. Serving it instead
// of failing keeps downstream query generation working in degraded mode.
func fallbackSnapshot() *Snapshot {
	str := func(s string) *string { return &s }

	return &Snapshot{
		DiscoveredAt: time.Now(),
		Complete:     false,
		Fallback:     true,
		Databases: []Database{
			{
				Name: "finance",
				Tables: []Table{
					{
						Name:          "financial_overview",
						SchemaFetched: true,
						PrimaryKeys:   []string{"id"},
						Columns: []dbclient.ColumnSchema{
							{Name: "id", DataType: "bigint", IsPrimaryKey: true},
							{Name: "period", DataType: "date"},
							{Name: "revenue", DataType: "decimal"},
							{Name: "expenses", DataType: "decimal"},
							{Name: "net_income", DataType: "decimal"},
							{Name: "currency", DataType: "varchar", IsNullable: true, DefaultValue: str("USD")},
						},
					},
					{
						Name:          "cash_flow",
						SchemaFetched: true,
						PrimaryKeys:   []string{"id"},
						Columns: []dbclient.ColumnSchema{
							{Name: "id", DataType: "bigint", IsPrimaryKey: true},
							{Name: "period", DataType: "date"},
							{Name: "operating_cash_flow", DataType: "decimal"},
							{Name: "investing_cash_flow", DataType: "decimal"},
							{Name: "financing_cash_flow", DataType: "decimal"},
							{Name: "net_cash_flow", DataType: "decimal"},
						},
					},
					{
						Name:          "budget_tracking",
						SchemaFetched: true,
						PrimaryKeys:   []string{"id"},
						Columns: []dbclient.ColumnSchema{
							{Name: "id", DataType: "bigint", IsPrimaryKey: true},
							{Name: "department", DataType: "varchar"},
							{Name: "period", DataType: "date"},
							{Name: "budget_amount", DataType: "decimal"},
							{Name: "actual_amount", DataType: "decimal"},
						},
					},
				},
			},
		},
	}
}
