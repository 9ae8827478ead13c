// Package datalake names buckets and object keys in the data lake.
package datalake

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// LayerRaw is the landing layer for unmodified source extracts.
const LayerRaw = "raw"

// BucketCoordinates identify a data lake bucket.
type BucketCoordinates struct {
	Layer   string
	Company string
	Region  string
	Account string
	Env     string
}

// PathCoordinates identify a partition inside the raw layer.
type PathCoordinates struct {
	Source       string
	SourceRegion string
	Table        string
	Time         time.Time
}

// BucketName returns "<company>-<layer>-<region>-<account>-<env>", lowercased.
func BucketName(c BucketCoordinates) string {
	return strings.ToLower(strings.Join([]string{c.Company, c.Layer, c.Region, c.Account, c.Env}, "-"))
}

// RawLayerPath returns "<source>/<source_region>/YYYY/MM/DD/HH/<table>".
// The partition is taken from c.Time truncated to the hour.
func RawLayerPath(c PathCoordinates) string {
	t := c.Time
	return path.Join(
		c.Source,
		c.SourceRegion,
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		fmt.Sprintf("%02d", t.Day()),
		fmt.Sprintf("%02d", t.Hour()),
		c.Table,
	)
}

// ObjectKey joins a raw layer path and a file name.
func ObjectKey(c PathCoordinates, fileName string) string {
	return RawLayerPath(c) + "/" + fileName
}
