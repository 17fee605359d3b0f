// Package domain models the two coordinate systems of the flood overlay and
// the static flood survey they are combined with.
//
// # Coordinate Systems
//
// Geodetic positions (GeoPoint) come from the device's satellite receiver:
// longitude and latitude in decimal degrees, altitude in meters and a
// horizontal accuracy radius in meters. Fixes arrive at a low rate, are noisy
// and drift.
//
// Local positions (LocalPoint) come from the visual-inertial tracker. They are
// precise over short ranges but the origin is arbitrary and changes whenever
// tracking is lost and re-established. Y is the vertical axis; X and Z span
// the horizontal plane.
//
// A CalibrationRecord pairs one geodetic fix with the local camera position
// observed at the same instant. Records are kept in RecordSets, which are
// immutable values: Add returns a new set.
//
// # Record Admission
//
//	Accuracy:  a fix with Accuracy > min accuracy (default 10 m) is dropped.
//	Novelty:   a record whose planar (x/z) local distance to the previous
//	           record is <= 0.02 or identical is dropped (stationary device).
//	Capacity:  once a set exceeds its maximum the oldest record is evicted.
//
// # Flood Survey
//
// The survey is a table of FloodSamples loaded once at startup:
//
//	lon, lat, building(0|1), ground_m, water_cm, nn_ground_m, nn_water_cm
//
// Water heights are converted to meters on load. A nearest-neighbor ground
// height of -9999 (NoNeighborHeight) means no neighbor was recorded.
//
// # Relative Height
//
//	relative = ground_at_point - ground_at_camera + water_at_point + offset
//
// Samples outside buildings use their own ground/water pair. Samples inside a
// building use the neighbor pair when one exists; otherwise the
// BuildingFallback policy decides (zero, own pair, or exclude).
//
// Distances between geodetic points are haversine great-circle distances on
// longitude and latitude only.
package domain
