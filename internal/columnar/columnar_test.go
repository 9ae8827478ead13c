package columnar_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/airdata-extract/internal/airquality"
	"github.com/breatheroute/airdata-extract/internal/columnar"
)

func testRecords(n int) []airquality.Record {
	records := make([]airquality.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, airquality.Record{
			EventTime: fmt.Sprintf("2023-09-09T%02d:00:00", i),
			PM10:      float64(30 + i),
			O3:        0.02,
			NO2:       0.03,
			CO:        0.4,
			SO2:       0.01,
		})
	}
	return records
}

func TestFromRecords_Columns(t *testing.T) {
	table, err := columnar.FromRecords(testRecords(3))
	require.NoError(t, err)
	defer table.Release()

	assert.Equal(t, int64(3), table.NumRows())
	require.Equal(t, int64(6), table.NumCols())

	var names []string
	for _, f := range table.Schema().Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"event_time", "pm_10", "o3", "no2", "co", "so2"}, names)
	assert.Equal(t, airquality.Fields, names)
}

func TestFromRecords_PreservesRowOrder(t *testing.T) {
	records := testRecords(5)
	table, err := columnar.FromRecords(records)
	require.NoError(t, err)
	defer table.Release()

	eventTimes := table.Column(0).Data().Chunk(0).(*array.String)
	pm10 := table.Column(1).Data().Chunk(0).(*array.Float64)

	for i, r := range records {
		assert.Equal(t, r.EventTime, eventTimes.Value(i))
		assert.Equal(t, r.PM10, pm10.Value(i))
	}
}

func TestFromRecords_Empty(t *testing.T) {
	table, err := columnar.FromRecords(nil)
	assert.Nil(t, table)
	assert.ErrorIs(t, err, columnar.ErrEmptyBatch)
}

func TestWriteParquet_RoundTrip(t *testing.T) {
	table, err := columnar.FromRecords([]airquality.Record{{
		EventTime: "2023-09-09T10:00:00",
		PM10:      30,
		O3:        0.02,
		NO2:       0.03,
		CO:        0.4,
		SO2:       0.01,
	}})
	require.NoError(t, err)
	defer table.Release()

	var buf bytes.Buffer
	require.NoError(t, columnar.WriteParquet(&buf, table))
	require.NotZero(t, buf.Len())
	assert.Equal(t, []byte("PAR1"), buf.Bytes()[:4])

	got, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(buf.Bytes()),
		parquet.NewReaderProperties(memory.DefaultAllocator), pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	require.NoError(t, err)
	defer got.Release()

	assert.Equal(t, int64(1), got.NumRows())
	assert.Equal(t, "event_time", got.Schema().Field(0).Name)
	assert.Equal(t, "so2", got.Schema().Field(5).Name)

	no2 := got.Column(3).Data().Chunk(0).(*array.Float64)
	assert.Equal(t, 0.03, no2.Value(0))
}
