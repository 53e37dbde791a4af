package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	errNonNegativeIntegerValue = errors.New("value must be a non-negative integer")
	errBoolValue               = errors.New("value must be a boolean")
	errStringValue             = errors.New("value must be a string")
)

// ValidateValue checks that raw has the shape expected for key.
func ValidateValue(key string, raw json.RawMessage) error {
	switch key {
	case RateLimitKey, RateLimitPerHelperKey, RateLimitRedisDBKey:
		if _, ok := ParseNonNegativeInt(raw); !ok {
			return errNonNegativeIntegerValue
		}
	case RateLimitRedisEnabledKey:
		if _, ok := ParseBool(raw); !ok {
			return errBoolValue
		}
	case RateLimitRedisAddrKey, RateLimitRedisPasswordKey, RateLimitRedisPrefixKey:
		if _, ok := ParseString(raw); !ok {
			return errStringValue
		}
	}
	return nil
}

// ParseBool accepts JSON booleans, 0/1 and the usual yes/no strings.
func ParseBool(raw json.RawMessage) (bool, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false, false
	}
	var parsedBool bool
	if errUnmarshalBool := json.Unmarshal(raw, &parsedBool); errUnmarshalBool == nil {
		return parsedBool, true
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		switch strings.ToLower(strings.TrimSpace(parsedString)) {
		case "1", "true", "yes", "y", "on":
			return true, true
		case "0", "false", "no", "n", "off":
			return false, true
		default:
			return false, false
		}
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		if parsedFloat == 1 {
			return true, true
		}
		if parsedFloat == 0 {
			return false, true
		}
	}
	return false, false
}

// ParseString accepts a JSON string and trims it.
func ParseString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	var parsedString string
	if errUnmarshal := json.Unmarshal(raw, &parsedString); errUnmarshal == nil {
		return strings.TrimSpace(parsedString), true
	}
	return "", false
}

// ParseNonNegativeInt accepts integers encoded as numbers or strings.
func ParseNonNegativeInt(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var parsedInt int
	if errUnmarshalInt := json.Unmarshal(raw, &parsedInt); errUnmarshalInt == nil {
		return parsedInt, parsedInt >= 0
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(parsedString))
		if errParse != nil {
			return 0, false
		}
		return parsed, parsed >= 0
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		if math.IsNaN(parsedFloat) || math.IsInf(parsedFloat, 0) {
			return 0, false
		}
		if parsedFloat < 0 || parsedFloat != math.Trunc(parsedFloat) {
			return 0, false
		}
		return int(parsedFloat), true
	}
	return 0, false
}
