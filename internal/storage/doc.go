// Package storage exports compiled investor records for analytics.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│  Assembly   │────▶│   Parquet   │────▶│    Query    │
//	│  (records)  │     │   Export    │     │  (DuckDB)   │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	                           │
//	                           ▼
//	                    ┌─────────────┐
//	                    │  Retention  │
//	                    └─────────────┘
//
// Each export run writes one file per kind, named after the export date:
// charts/YYYY-MM-DD.parquet and summaries/YYYY-MM-DD.parquet. Queries read
// the newest file of each kind; retention removes files past their kind's
// retention but always keeps the newest.
package storage
