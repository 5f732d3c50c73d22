package docstore

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	boolTrueLiteral  = "1"
	boolFalseLiteral = "0"
)

// FormatBool encodes a bool literal as "1" or "0".
func FormatBool(v bool) string {
	if v {
		return boolTrueLiteral
	}

	return boolFalseLiteral
}

func FormatLong(v int64) string {
	return strconv.FormatInt(v, 10)
}

func FormatDouble(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FormatTime encodes a timestamp literal as RFC 3339 with nanoseconds, in UTC.
func FormatTime(v time.Time) string {
	return v.UTC().Format(time.RFC3339Nano)
}

// ParseLiteral parses a string-encoded literal according to dataType and returns
// a string, bool, int64, float64 or time.Time.
func ParseLiteral(dataType DataType, literal string) (any, error) {
	switch dataType {
	case DataTypeString:
		return literal, nil

	case DataTypeBool:
		return parseBoolLiteral(literal), nil

	case DataTypeLong:
		v, err := strconv.ParseInt(strings.TrimSpace(literal), 10, 64)
		if err != nil {
			return nil, errors.Join(ErrInvalidLiteral, err)
		}

		return v, nil

	case DataTypeDouble:
		v, err := strconv.ParseFloat(strings.TrimSpace(literal), 64)
		if err != nil {
			return nil, errors.Join(ErrInvalidLiteral, err)
		}

		return v, nil

	case DataTypeTimestamp:
		v, err := ParseTime(literal)
		if err != nil {
			return nil, errors.Join(ErrInvalidLiteral, err)
		}

		return v, nil

	default:
		return nil, ErrUnknownDataType
	}
}

// parseBoolLiteral treats "1" and "true" (any case) as true and everything else as false.
func parseBoolLiteral(literal string) bool {
	switch strings.ToLower(strings.TrimSpace(literal)) {
	case boolTrueLiteral, "true":
		return true
	default:
		return false
	}
}

// ParseTime accepts RFC 3339 timestamps with or without fractional seconds.
func ParseTime(literal string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(literal))
	if err != nil {
		return time.Time{}, err
	}

	return t, nil
}
