// Package parquet implements Parquet export of compiled investor records.
//
// The package provides:
//   - Writer/Reader, generic over the row type
//   - ChartRow and SummaryRow with conversions from assembly.Investor
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
package parquet
