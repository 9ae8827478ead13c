package airquality

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventTimeLayout is the canonical event_time format.
const EventTimeLayout = "2006-01-02T15:04:05"

// airKoreaTimeLayout is how the API reports dataTime.
const airKoreaTimeLayout = "2006-01-02 15:04"

// Upstream item keys for each canonical field.
var sourceKeys = map[string]string{
	FieldEventTime: "dataTime",
	FieldPM10:      "pm10Value",
	FieldO3:        "o3Value",
	FieldNO2:       "no2Value",
	FieldCO:        "coValue",
	FieldSO2:       "so2Value",
}

type envelope struct {
	Response *struct {
		Body *struct {
			Items []map[string]json.RawMessage `json:"items"`
		} `json:"body"`
	} `json:"response"`
}

// Parse decodes an AirKorea response body into canonical records, in the order
// the items were received. Any item missing one of the canonical fields fails
// the whole batch.
func Parse(body []byte) ([]Record, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
	if env.Response == nil || env.Response.Body == nil || env.Response.Body.Items == nil {
		return nil, fmt.Errorf("%w: response.body.items not found", ErrMalformedBody)
	}

	items := env.Response.Body.Items
	records := make([]Record, 0, len(items))
	for i, item := range items {
		rec, err := parseItem(i, item)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseItem(index int, item map[string]json.RawMessage) (Record, error) {
	var rec Record
	var err error

	if rec.EventTime, err = eventTime(index, item); err != nil {
		return Record{}, err
	}

	values := []struct {
		field string
		dst   *float64
	}{
		{FieldPM10, &rec.PM10},
		{FieldO3, &rec.O3},
		{FieldNO2, &rec.NO2},
		{FieldCO, &rec.CO},
		{FieldSO2, &rec.SO2},
	}
	for _, v := range values {
		if *v.dst, err = number(index, v.field, item); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

func lookup(index int, field string, item map[string]json.RawMessage) (json.RawMessage, error) {
	raw, ok := item[sourceKeys[field]]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, &FieldError{Index: index, Field: field, Err: ErrMissingField}
	}
	return raw, nil
}

func eventTime(index int, item map[string]json.RawMessage) (string, error) {
	raw, err := lookup(index, FieldEventTime, item)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &FieldError{Index: index, Field: FieldEventTime, Err: fmt.Errorf("%w: %s", ErrInvalidField, raw)}
	}
	t, err := NormalizeEventTime(s)
	if err != nil {
		return "", &FieldError{Index: index, Field: FieldEventTime, Err: err}
	}
	return t, nil
}

// number accepts both JSON numbers and numeric strings, which is how the API
// reports concentrations. AirKorea marks an unavailable reading as "-"; that
// fails with ErrInvalidField, so a single gap anywhere in the page (common with
// dataTerm=MONTH) fails the whole run.
func number(index int, field string, item map[string]json.RawMessage) (float64, error) {
	raw, err := lookup(index, field, item)
	if err != nil {
		return 0, err
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, &FieldError{Index: index, Field: field, Err: fmt.Errorf("%w: %s", ErrInvalidField, raw)}
	}
	f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, &FieldError{Index: index, Field: field, Err: fmt.Errorf("%w: %q", ErrInvalidField, s)}
	}
	return f, nil
}

// NormalizeEventTime converts an AirKorea dataTime ("2023-09-09 10:00") into
// EventTimeLayout. The API reports midnight as hour 24 of the previous day.
func NormalizeEventTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(EventTimeLayout, s); err == nil {
		return t.Format(EventTimeLayout), nil
	}

	if date, ok := strings.CutSuffix(s, " 24:00"); ok {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidField, s)
		}
		return t.AddDate(0, 0, 1).Format(EventTimeLayout), nil
	}

	t, err := time.Parse(airKoreaTimeLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidField, s)
	}
	return t.Format(EventTimeLayout), nil
}
