package parser

import (
	"math"
	"strconv"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

// Payloads are schema-less, so each tracking field carries an explicit
// ordered candidate key list, evaluated left to right against the
// top-level object first and a nested `data` object second. The first
// successful coercion wins.
var trackingCandidates = []struct {
	keys []string
	set  func(*models.TrackingFields, string)
}{
	{[]string{"device_sn", "deviceSn", "sn"}, func(t *models.TrackingFields, v string) { t.DeviceSN = v }},
	{[]string{"device_mac", "deviceMac", "mac"}, func(t *models.TrackingFields, v string) { t.DeviceMac = v }},
	{[]string{"link_code", "linkCode"}, func(t *models.TrackingFields, v string) { t.LinkCode = v }},
	{[]string{"request_id", "requestId", "reqId"}, func(t *models.TrackingFields, v string) { t.RequestID = v }},
	{[]string{"attempt_id", "attemptId"}, func(t *models.TrackingFields, v string) { t.AttemptID = v }},
	{[]string{"error_code", "errorCode"}, func(t *models.TrackingFields, v string) { t.ErrorCode = v }},
	{[]string{"reason_code", "reasonCode", "reason"}, func(t *models.TrackingFields, v string) { t.ReasonCode = v }},
	{[]string{"stage"}, func(t *models.TrackingFields, v string) { t.Stage = v }},
	{[]string{"op", "operation"}, func(t *models.TrackingFields, v string) { t.Op = v }},
	{[]string{"result"}, func(t *models.TrackingFields, v string) { t.Result = v }},
}

// ExtractTrackingFields pulls correlation identifiers out of a normalized
// payload value. Total for any JSON-serializable input: non-object
// payloads yield the zero value. Pure function, no I/O.
func ExtractTrackingFields(payload interface{}) models.TrackingFields {
	var tf models.TrackingFields

	root, ok := payload.(map[string]interface{})
	if !ok {
		return tf
	}

	data, _ := root["data"].(map[string]interface{})

	for _, c := range trackingCandidates {
		if v, ok := lookup(root, c.keys); ok {
			c.set(&tf, v)
			continue
		}
		if data != nil {
			if v, ok := lookup(data, c.keys); ok {
				c.set(&tf, v)
			}
		}
	}

	return tf
}

// lookup tries each candidate key in order; the first value that coerces
// to a non-empty string wins.
func lookup(obj map[string]interface{}, keys []string) (string, bool) {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		if v, ok := coerce(raw); ok {
			return v, true
		}
	}
	return "", false
}

// coerce accepts non-empty strings and finite numbers/booleans
func coerce(raw interface{}) (string, bool) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", false
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}
