// Package columnar projects measurement records into an Arrow table and encodes
// it as Parquet.
package columnar

import (
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/breatheroute/airdata-extract/internal/airquality"
)

var (
	// ErrEmptyBatch is returned when there are no records to project.
	ErrEmptyBatch = errors.New("empty record batch")

	// ErrEncode is returned when a table cannot be written as Parquet.
	ErrEncode = errors.New("failed to encode parquet")
)

// Schema is the column layout of a measurement table.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: airquality.FieldEventTime, Type: arrow.BinaryTypes.String},
	{Name: airquality.FieldPM10, Type: arrow.PrimitiveTypes.Float64},
	{Name: airquality.FieldO3, Type: arrow.PrimitiveTypes.Float64},
	{Name: airquality.FieldNO2, Type: arrow.PrimitiveTypes.Float64},
	{Name: airquality.FieldCO, Type: arrow.PrimitiveTypes.Float64},
	{Name: airquality.FieldSO2, Type: arrow.PrimitiveTypes.Float64},
}, nil)

// FromRecords builds a table with one column per field and one row per record,
// in record order. The caller must Release the table.
func FromRecords(records []airquality.Record) (arrow.Table, error) {
	if len(records) == 0 {
		return nil, ErrEmptyBatch
	}

	b := array.NewRecordBuilder(memory.DefaultAllocator, Schema)
	defer b.Release()
	b.Reserve(len(records))

	eventTime := b.Field(0).(*array.StringBuilder)
	pm10 := b.Field(1).(*array.Float64Builder)
	o3 := b.Field(2).(*array.Float64Builder)
	no2 := b.Field(3).(*array.Float64Builder)
	co := b.Field(4).(*array.Float64Builder)
	so2 := b.Field(5).(*array.Float64Builder)

	for _, r := range records {
		eventTime.Append(r.EventTime)
		pm10.Append(r.PM10)
		o3.Append(r.O3)
		no2.Append(r.NO2)
		co.Append(r.CO)
		so2.Append(r.SO2)
	}

	rec := b.NewRecord()
	defer rec.Release()

	return array.NewTableFromRecords(Schema, []arrow.Record{rec}), nil
}

// WriteParquet writes the table to w as a single snappy-compressed Parquet file.
func WriteParquet(w io.Writer, table arrow.Table) error {
	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithCreatedBy("airdata-extract"),
	)
	chunkSize := table.NumRows()
	if chunkSize == 0 {
		chunkSize = 1
	}
	if err := pqarrow.WriteTable(table, w, chunkSize, props, pqarrow.DefaultWriterProps()); err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return nil
}
