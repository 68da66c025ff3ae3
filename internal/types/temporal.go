package types

import (
	"fmt"
	"time"
)

// coerceTemporal implements spec.md §4.A's rule that timezone-aware
// datetimes coerce to/from naive only when the caller supplies an
// explicit tz — here, "supplies" means the target DataType itself names
// the zone (DateTimeWithTZ.Encoding) for the naive→aware direction.
func coerceTemporal(v DataValue, target DataType) (DataValue, error) {
	switch target.Kind {
	case KindDate:
		switch t := v.(type) {
		case DateValue:
			return t, nil
		case DateTimeValue:
			days := int32(t.Time().Unix() / 86400)
			return DateValue(days), nil
		case StringValue:
			tm, err := time.Parse("2006-01-02", t.Value)
			if err != nil {
				return nil, fmt.Errorf("parsing date %q: %w", t.Value, err)
			}
			return DateValue(tm.Unix() / 86400), nil
		}
	case KindTime:
		switch t := v.(type) {
		case TimeValue:
			return t, nil
		case StringValue:
			tm, err := time.Parse("15:04:05.999999", t.Value)
			if err != nil {
				return nil, fmt.Errorf("parsing time %q: %w", t.Value, err)
			}
			micros := int64(tm.Hour())*3600e6 + int64(tm.Minute())*60e6 + int64(tm.Second())*1e6 + int64(tm.Nanosecond()/1000)
			return TimeValue(micros), nil
		}
	case KindDateTime:
		switch t := v.(type) {
		case DateTimeValue:
			return t, nil
		case DateValue:
			return DateTimeValue(int64(t) * 86400 * 1_000_000), nil
		case DateTimeWithTZValue:
			// naive→aware is allowed only with an explicit zone on the
			// source; aware→naive here drops the zone, which is always a
			// lossless conversion of the same instant.
			return DateTimeValue(t.Micros), nil
		case StringValue:
			tm, err := time.Parse("2006-01-02T15:04:05.999999", t.Value)
			if err != nil {
				return nil, fmt.Errorf("parsing datetime %q: %w", t.Value, err)
			}
			return DateTimeValue(tm.UnixMicro()), nil
		}
	case KindDateTimeWithTZ:
		if target.Encoding == "" {
			return nil, fmt.Errorf("coercing to datetime_tz requires an explicit IANA zone")
		}
		switch t := v.(type) {
		case DateTimeWithTZValue:
			return t, nil
		case DateTimeValue:
			return DateTimeWithTZValue{Micros: int64(t), Zone: target.Encoding}, nil
		case StringValue:
			loc, err := time.LoadLocation(target.Encoding)
			if err != nil {
				return nil, fmt.Errorf("loading zone %q: %w", target.Encoding, err)
			}
			tm, err := time.ParseInLocation("2006-01-02T15:04:05.999999", t.Value, loc)
			if err != nil {
				return nil, fmt.Errorf("parsing datetime_tz %q: %w", t.Value, err)
			}
			return DateTimeWithTZValue{Micros: tm.UnixMicro(), Zone: target.Encoding}, nil
		}
	}
	return nil, coercionError(v, target)
}
