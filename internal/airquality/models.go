// Package airquality holds the canonical measurement record and the parser that
// flattens AirKorea responses into it.
package airquality

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Parser errors.
var (
	ErrMissingField  = errors.New("missing field")
	ErrInvalidField  = errors.New("invalid field value")
	ErrMalformedBody = errors.New("malformed response body")
)

// Record field names, in column order.
const (
	FieldEventTime = "event_time"
	FieldPM10      = "pm_10"
	FieldO3        = "o3"
	FieldNO2       = "no2"
	FieldCO        = "co"
	FieldSO2       = "so2"
)

// Fields lists the canonical record fields in column order.
var Fields = []string{FieldEventTime, FieldPM10, FieldO3, FieldNO2, FieldCO, FieldSO2}

// Query identifies which measurements to request from the upstream API.
type Query struct {
	// StationName is the monitoring station (e.g. "마포구").
	StationName string

	// PageNo is the 1-based result page.
	PageNo int

	// DataTerm is the time span code (e.g. "MONTH").
	DataTerm string

	// NumOfRows is the page size requested.
	NumOfRows int

	// Version selects the response layout of the endpoint.
	Version string
}

// DefaultQuery returns the query the extractor has always used.
func DefaultQuery() Query {
	return Query{
		StationName: "마포구",
		PageNo:      1,
		DataTerm:    "MONTH",
		NumOfRows:   100,
		Version:     "1.0",
	}
}

// RawResponse is the unparsed result of one API call.
type RawResponse struct {
	StatusCode int         `json:"status_code"`
	Status     string      `json:"status,omitempty"`
	URL        string      `json:"url,omitempty"`
	Header     http.Header `json:"header,omitempty"`
	Body       []byte      `json:"-"`
}

// MarshalJSON renders the body as text so a rejected response can be logged
// or printed verbatim.
func (r RawResponse) MarshalJSON() ([]byte, error) {
	type plain RawResponse
	return json.Marshal(struct {
		plain
		Body string `json:"body"`
	}{plain(r), string(r.Body)})
}

// Record is one canonical measurement.
type Record struct {
	EventTime string  `json:"event_time"`
	PM10      float64 `json:"pm_10"`
	O3        float64 `json:"o3"`
	NO2       float64 `json:"no2"`
	CO        float64 `json:"co"`
	SO2       float64 `json:"so2"`
}

// FieldError reports which item and field of a response could not be parsed.
type FieldError struct {
	Index int
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("item %d: %s: %v", e.Index, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
