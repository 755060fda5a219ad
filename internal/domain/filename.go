package domain

import "time"

// SnapshotTimeLayout formats fetch times at minute resolution.
const SnapshotTimeLayout = "2006_01_02_15_04"

// SnapshotFilename returns "<YYYY_MM_DD_HH_MM>_<id>.xml" for the UTC minute of t.
func SnapshotFilename(t time.Time, id string) string {
	return t.UTC().Format(SnapshotTimeLayout) + "_" + id + ".xml"
}
