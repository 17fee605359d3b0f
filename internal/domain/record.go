package domain

import "time"

// CalibrationRecord pairs a geodetic fix with the local camera position
// observed at the same instant.
type CalibrationRecord struct {
	GPS       GeoPoint   `json:"gps"`
	Local     LocalPoint `json:"local"`
	Timestamp time.Time  `json:"timestamp"`
}

// Observation is one location reading already paired with the tracking-space
// camera position. It is the unit of input to the calibration pipeline.
type Observation = CalibrationRecord

// LocationReading is a single fix delivered by a location provider.
type LocationReading struct {
	Position  GeoPoint  `json:"position"`
	Timestamp time.Time `json:"timestamp"`
}

// TrackingState is the state reported by the visual-inertial tracking subsystem.
type TrackingState string

const (
	TrackingStarted  TrackingState = "started"
	TrackingLost     TrackingState = "lost"
	TrackingRestored TrackingState = "restored"
	TrackingReset    TrackingState = "reset"
)

// InvalidatesCalibration reports whether the tracking origin may have moved,
// making every recorded local position incomparable with new ones.
func (s TrackingState) InvalidatesCalibration() bool {
	return s == TrackingLost || s == TrackingRestored || s == TrackingReset
}

// Tracking reports whether local positions are currently meaningful.
func (s TrackingState) Tracking() bool {
	return s != TrackingLost
}

// TrackingEvent is a tracking state change.
type TrackingEvent struct {
	State     TrackingState `json:"state"`
	Timestamp time.Time     `json:"timestamp"`
}

// RecordSet is an ordered, capacity-bounded sequence of calibration records.
// Values are immutable: Add returns a new set and never touches the backing
// array of the receiver, so a set handed to a reader stays stable.
type RecordSet struct {
	records []CalibrationRecord
	maxSize int
	minDist float64
}

// NewRecordSet returns an empty set holding at most maxSize records. A record
// is only appended when its planar local position is farther than minDist
// from the most recent record.
func NewRecordSet(maxSize int, minDist float64) RecordSet {
	return RecordSet{maxSize: maxSize, minDist: minDist}
}

// Add returns the set with r appended and reports whether r was accepted.
// When the capacity is exceeded the oldest record is evicted.
func (s RecordSet) Add(r CalibrationRecord) (RecordSet, bool) {
	if last, ok := s.Last(); ok {
		if samePlanarPosition(last.Local, r.Local) || PlanarDistance(last.Local, r.Local) <= s.minDist {
			return s, false
		}
	}

	next := make([]CalibrationRecord, 0, len(s.records)+1)
	next = append(next, s.records...)
	next = append(next, r)
	if s.maxSize > 0 && len(next) > s.maxSize {
		next = next[len(next)-s.maxSize:]
	}

	s.records = next
	return s, true
}

// Len returns the number of records in the set.
func (s RecordSet) Len() int { return len(s.records) }

// Last returns the most recently appended record.
func (s RecordSet) Last() (CalibrationRecord, bool) {
	if len(s.records) == 0 {
		return CalibrationRecord{}, false
	}
	return s.records[len(s.records)-1], true
}

// Records returns a copy of the records in arrival order.
func (s RecordSet) Records() []CalibrationRecord {
	out := make([]CalibrationRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Tail returns up to n of the most recent records in arrival order.
func (s RecordSet) Tail(n int) []CalibrationRecord {
	if n <= 0 {
		return nil
	}
	if n > len(s.records) {
		n = len(s.records)
	}
	out := make([]CalibrationRecord, n)
	copy(out, s.records[len(s.records)-n:])
	return out
}

// GeoPoints returns the GPS positions of the records in arrival order.
func (s RecordSet) GeoPoints() []GeoPoint {
	out := make([]GeoPoint, len(s.records))
	for i, r := range s.records {
		out[i] = r.GPS
	}
	return out
}

// LocalPoints returns the local positions of the records in arrival order.
func (s RecordSet) LocalPoints() []LocalPoint {
	out := make([]LocalPoint, len(s.records))
	for i, r := range s.records {
		out[i] = r.Local
	}
	return out
}
