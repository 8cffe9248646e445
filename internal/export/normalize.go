package export

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nmiodice/strava-drive-export/internal/strava/sdk"
)

// Normalize maps a listing entry and its optional detail fetch onto a Record.
// It never fails: values that cannot be coerced are left nil and named in
// Record.Defaulted.
func Normalize(summary *sdk.ActivitySummary, detail *sdk.ActivityDetail) *Record {
	src := &source{}
	if summary != nil {
		src.summary = summary.Fields
	}
	if detail != nil {
		src.detail = detail.Fields
	}

	r := &Record{
		ID:                       src.integer("id"),
		Name:                     src.str("name"),
		Type:                     src.str("type", "sport_type"),
		StartDate:                src.timestamp("start_date"),
		DistanceMeters:           src.number("distance"),
		MovingTimeSeconds:        src.integer("moving_time"),
		ElapsedTimeSeconds:       src.integer("elapsed_time"),
		TotalElevationGainMeters: src.number("total_elevation_gain"),
		AverageSpeedMPS:          src.number("average_speed"),
		MaxSpeedMPS:              src.number("max_speed"),
		AverageWatts:             src.number("average_watts"),
		AverageHeartrate:         src.number("average_heartrate"),
		MaxHeartrate:             src.number("max_heartrate"),
		AverageCadence:           src.number("average_cadence"),
		KudosCount:               src.integer("kudos_count"),
		CommentCount:             src.integer("comment_count"),
		PhotoCount:               src.integer("photo_count", "total_photo_count"),
		StartLatLng:              src.latlng("start_latlng"),
		EndLatLng:                src.latlng("end_latlng"),
		GearID:                   src.str("gear_id"),
		DeviceName:               src.str("device_name"),
		Description:              src.str("description"),
		RelativeEffort:           src.number("suffer_score"),
		Splits:                   src.splits(),
	}
	r.Defaulted = src.defaulted
	return r
}

type source struct {
	summary   map[string]interface{}
	detail    map[string]interface{}
	defaulted []string
}

// lookup returns the first non-null value for any of keys, detail first.
func (s *source) lookup(keys ...string) (string, interface{}) {
	for _, key := range keys {
		if v, ok := s.detail[key]; ok && v != nil {
			return key, v
		}
		if v, ok := s.summary[key]; ok && v != nil {
			return key, v
		}
	}
	return "", nil
}

func (s *source) fail(key string) {
	s.defaulted = append(s.defaulted, key)
}

func (s *source) number(keys ...string) *float64 {
	key, v := s.lookup(keys...)
	if v == nil {
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		s.fail(key)
		return nil
	}
	return &f
}

func (s *source) integer(keys ...string) *int64 {
	key, v := s.lookup(keys...)
	if v == nil {
		return nil
	}
	i, ok := toInt(v)
	if !ok {
		s.fail(key)
		return nil
	}
	return &i
}

func (s *source) str(keys ...string) *string {
	key, v := s.lookup(keys...)
	if v == nil {
		return nil
	}
	str, ok := v.(string)
	if !ok {
		s.fail(key)
		return nil
	}
	if str == "" {
		return nil
	}
	return &str
}

func (s *source) timestamp(key string) *time.Time {
	_, v := s.lookup(key)
	if v == nil {
		return nil
	}
	str, ok := v.(string)
	if !ok {
		s.fail(key)
		return nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(str))
	if err != nil {
		s.fail(key)
		return nil
	}
	t = t.UTC()
	return &t
}

func (s *source) latlng(key string) *[2]float64 {
	_, v := s.lookup(key)
	if v == nil {
		return nil
	}
	ll, ok := toLatLng(v)
	if !ok {
		s.fail(key)
		return nil
	}
	return ll
}

// splits come from splits_metric, or from laps when the activity has none.
// Only the detail fetch carries either.
func (s *source) splits() []Split {
	out := []Split{}
	if s.detail == nil {
		return out
	}

	key := "splits_metric"
	raw, ok := s.detail[key].([]interface{})
	if !ok || len(raw) == 0 {
		if v := s.detail[key]; v != nil && !ok {
			s.fail(key)
		}
		key = "laps"
		raw, ok = s.detail[key].([]interface{})
		if !ok {
			if v := s.detail[key]; v != nil {
				s.fail(key)
			}
			return out
		}
	}

	for i, item := range raw {
		fields, ok := item.(map[string]interface{})
		if !ok {
			s.fail(fmt.Sprintf("%s[%d]", key, i))
			continue
		}
		// splits are not merged with the summary
		split := &source{summary: fields}
		out = append(out, Split{
			Split:            split.integer("split", "lap_index"),
			Distance:         split.number("distance"),
			Time:             split.integer("elapsed_time"),
			MovingTime:       split.integer("moving_time"),
			Speed:            split.number("average_speed"),
			AverageHeartrate: split.number("average_heartrate"),
			MaxHeartrate:     split.number("max_heartrate"),
			AverageWatts:     split.number("average_watts"),
		})
		for _, f := range split.defaulted {
			s.fail(fmt.Sprintf("%s[%d].%s", key, i, f))
		}
	}
	return out
}

func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(n), 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, true
		}
	}

	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

func toLatLng(v interface{}) (*[2]float64, bool) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	if len(arr) == 0 {
		return nil, true
	}
	if len(arr) != 2 {
		return nil, false
	}
	var ll [2]float64
	for i := range arr {
		f, ok := toFloat(arr[i])
		if !ok {
			return nil, false
		}
		ll[i] = f
	}
	return &ll, true
}
