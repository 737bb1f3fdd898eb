package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractFromTopLevel(t *testing.T) {
	tf := ExtractTrackingFields(map[string]interface{}{
		"link_code":  "LC-1",
		"device_mac": "AA:BB:CC:DD:EE:FF",
		"stage":      "ble",
		"op":         "connect",
		"result":     "start",
	})

	require.Equal(t, "LC-1", tf.LinkCode)
	require.Equal(t, "AA:BB:CC:DD:EE:FF", tf.DeviceMac)
	require.Equal(t, "ble", tf.Stage)
	require.Equal(t, "connect", tf.Op)
	require.Equal(t, "start", tf.Result)
	require.Empty(t, tf.RequestID)
}

func TestExtractFromNestedData(t *testing.T) {
	tf := ExtractTrackingFields(map[string]interface{}{
		"data": map[string]interface{}{
			"requestId":  "req-9",
			"error_code": "E-CONN",
		},
	})

	require.Equal(t, "req-9", tf.RequestID)
	require.Equal(t, "E-CONN", tf.ErrorCode)
}

func TestExtractTopLevelWinsOverData(t *testing.T) {
	tf := ExtractTrackingFields(map[string]interface{}{
		"link_code": "top",
		"data": map[string]interface{}{
			"link_code": "nested",
		},
	})

	require.Equal(t, "top", tf.LinkCode)
}

func TestExtractCoercesNumbersAndBools(t *testing.T) {
	tf := ExtractTrackingFields(map[string]interface{}{
		"request_id": float64(12345),
		"attempt_id": float64(2),
		"result":     true,
	})

	require.Equal(t, "12345", tf.RequestID)
	require.Equal(t, "2", tf.AttemptID)
	require.Equal(t, "true", tf.Result)
}

func TestExtractEmptyStringIsAbsent(t *testing.T) {
	tf := ExtractTrackingFields(map[string]interface{}{
		"link_code": "",
		"data": map[string]interface{}{
			"linkCode": "fallback",
		},
	})

	// an empty top-level value must not shadow the nested candidate
	require.Equal(t, "fallback", tf.LinkCode)
}

func TestExtractTotalOnNonObjects(t *testing.T) {
	for _, payload := range []interface{}{
		nil,
		"free text message",
		float64(42),
		true,
		[]interface{}{"a", "b"},
		map[string]interface{}{"data": "not an object"},
		map[string]interface{}{"data": map[string]interface{}{"deep": map[string]interface{}{"link_code": "x"}}},
	} {
		tf := ExtractTrackingFields(payload)
		require.True(t, tf.IsZero(), "payload %v should extract nothing", payload)
	}
}

func TestExtractCandidateOrder(t *testing.T) {
	// device_sn is listed before sn; first hit wins
	tf := ExtractTrackingFields(map[string]interface{}{
		"device_sn": "primary",
		"sn":        "secondary",
	})
	require.Equal(t, "primary", tf.DeviceSN)
}
