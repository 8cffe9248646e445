package export

import "time"

// Record is the exported shape of one activity. Every field is always
// serialized; nil pointers become JSON null.
type Record struct {
	ID                       *int64      `json:"id"`
	Name                     *string     `json:"name"`
	Type                     *string     `json:"type"`
	StartDate                *time.Time  `json:"start_date"`
	DistanceMeters           *float64    `json:"distance_meters"`
	MovingTimeSeconds        *int64      `json:"moving_time_seconds"`
	ElapsedTimeSeconds       *int64      `json:"elapsed_time_seconds"`
	TotalElevationGainMeters *float64    `json:"total_elevation_gain_meters"`
	AverageSpeedMPS          *float64    `json:"average_speed_mps"`
	MaxSpeedMPS              *float64    `json:"max_speed_mps"`
	AverageWatts             *float64    `json:"average_watts"`
	AverageHeartrate         *float64    `json:"average_heartrate"`
	MaxHeartrate             *float64    `json:"max_heartrate"`
	AverageCadence           *float64    `json:"average_cadence"`
	KudosCount               *int64      `json:"kudos_count"`
	CommentCount             *int64      `json:"comment_count"`
	PhotoCount               *int64      `json:"photo_count"`
	StartLatLng              *[2]float64 `json:"start_latlng"`
	EndLatLng                *[2]float64 `json:"end_latlng"`
	GearID                   *string     `json:"gear_id"`
	DeviceName               *string     `json:"device_name"`
	Description              *string     `json:"description"`
	RelativeEffort           *float64    `json:"relative_effort"`
	Splits                   []Split     `json:"splits"`

	// Defaulted names the fields that were present in the source but could
	// not be coerced, and were left null.
	Defaulted []string `json:"-"`
}

type Split struct {
	Split      *int64   `json:"split"`
	Distance   *float64 `json:"distance"`
	Time       *int64   `json:"time"`
	MovingTime *int64   `json:"moving_time"`
	Speed      *float64 `json:"speed"`

	AverageHeartrate *float64 `json:"average_heartrate"`
	MaxHeartrate     *float64 `json:"max_heartrate"`
	AverageWatts     *float64 `json:"average_watts"`
}
