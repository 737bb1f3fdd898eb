package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

var (
	testFileID    = uuid.MustParse("31e39aa4-8c1a-4e0c-b43b-0a2b84f2a001")
	testProjectID = uuid.MustParse("31e39aa4-8c1a-4e0c-b43b-0a2b84f2a002")
)

func TestParseHeaderAndEvent(t *testing.T) {
	text := `{"c":"{\"event\":\"SDK init start\",\"msg\":{}}","f":1,"l":1000,"n":"main"}` + "\n" +
		`{"c":"clogan header","f":0,"l":0,"n":"clogan"}` + "\n"

	res := ParseText(text, testFileID, testProjectID)

	require.Len(t, res.Events, 1)
	require.Equal(t, 1, res.EventCount)
	require.Equal(t, 0, res.InvalidLines)
	require.Equal(t, 1, res.HeaderLines)

	ev := res.Events[0]
	require.Equal(t, "SDK init start", ev.EventName)
	require.Equal(t, int64(1000), ev.TimestampMs)
	require.Equal(t, 1, ev.Level)
	require.Equal(t, testFileID, ev.LogFileID)
	require.Equal(t, testProjectID, ev.ProjectID)
}

func TestParseDropsLinesMissingRequiredFields(t *testing.T) {
	lines := []string{
		`not json at all`,
		`{"f":2,"l":1000,"n":"main"}`,                               // missing c
		`{"c":"{\"event\":\"x\"}","f":0,"l":1000,"n":"main"}`,       // zero f
		`{"c":"{\"event\":\"x\"}","f":2,"l":0,"n":"main"}`,          // zero l
		`{"c":"{\"msg\":\"no event\"}","f":2,"l":1000,"n":"main"}`,  // missing inner event
		`{"c":"{not inner json","f":2,"l":1000,"n":"main"}`,         // bad inner json
		`{"c":"{\"event\":\"ok\"}","f":2,"l":1000,"n":"main"}`,      // survives
	}

	res := ParseText(strings.Join(lines, "\n"), testFileID, testProjectID)

	require.Equal(t, 1, res.EventCount)
	require.Equal(t, 6, res.InvalidLines)
	// survivors = input lines - dropped lines
	require.Equal(t, len(lines)-res.InvalidLines, res.EventCount)
}

func TestParseStableSortByTimestamp(t *testing.T) {
	line := func(event string, ts int64) string {
		return fmt.Sprintf(`{"c":"{\"event\":\"%s\"}","f":1,"l":%d,"n":"main"}`, event, ts)
	}
	text := strings.Join([]string{
		line("third", 3000),
		line("first-a", 1000),
		line("first-b", 1000),
		line("second", 2000),
	}, "\n")

	res := ParseText(text, testFileID, testProjectID)
	require.Equal(t, 4, res.EventCount)

	names := make([]string, 0, 4)
	for _, ev := range res.Events {
		names = append(names, ev.EventName)
	}
	require.Equal(t, []string{"first-a", "first-b", "second", "third"}, names)
}

func TestParseDeepParsesJSONStringMsg(t *testing.T) {
	// msg is a JSON-encoded string that itself encodes an object
	text := `{"c":"{\"event\":\"BLE_CONNECT\",\"msg\":\"{\\\"stage\\\":\\\"ble\\\",\\\"op\\\":\\\"connect\\\",\\\"result\\\":\\\"start\\\",\\\"link_code\\\":\\\"L1\\\"}\"}","f":2,"l":5000,"n":"ble"}`

	res := ParseText(text, testFileID, testProjectID)
	require.Equal(t, 1, res.EventCount)

	ev := res.Events[0]
	require.Equal(t, "ble", ev.Tracking.Stage)
	require.Equal(t, "connect", ev.Tracking.Op)
	require.Equal(t, "start", ev.Tracking.Result)
	require.Equal(t, "L1", ev.Tracking.LinkCode)

	obj, ok := ev.Payload.V.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "ble", obj["stage"])
}

func TestParseMsgFallbackToRawString(t *testing.T) {
	// looks like an object but is not valid JSON; must fall back, not drop
	text := `{"c":"{\"event\":\"NOTE\",\"msg\":\"{broken json\"}","f":1,"l":100,"n":"main"}`

	res := ParseText(text, testFileID, testProjectID)
	require.Equal(t, 1, res.EventCount)
	require.Equal(t, "{broken json", res.Events[0].Payload.V)
}

func TestParseErrorCountAndMarker(t *testing.T) {
	text := strings.Join([]string{
		`{"c":"{\"event\":\"warn event\"}","f":3,"l":1000,"n":"main"}`,
		`{"c":"{\"event\":\"error event\"}","f":4,"l":2000,"n":"main"}`,
		`{"c":"{\"event\":\"debug event\"}","f":1,"l":3000,"n":"main"}`,
		`garbage line`,
	}, "\n")

	res := ParseText(text, testFileID, testProjectID)

	require.Equal(t, 3, res.EventCount)
	require.Equal(t, 2, res.ErrorCount)
	require.Equal(t, 1, res.InvalidLines)

	// marker event is appended after the sorted stream
	require.Len(t, res.Events, 4)
	marker := res.Events[3]
	require.Equal(t, models.EventParserError, marker.EventName)
	require.Equal(t, int64(3000), marker.TimestampMs)
}

func TestParseOversizedLineDroppedRestSurvives(t *testing.T) {
	huge := `{"c":"` + strings.Repeat("x", maxLineSize) + `","f":2,"l":1500,"n":"main"}`
	text := strings.Join([]string{
		`{"c":"{\"event\":\"before dump\"}","f":2,"l":1000,"n":"main"}`,
		huge,
		`{"c":"{\"event\":\"after dump\"}","f":2,"l":2000,"n":"main"}`,
	}, "\n")

	res := ParseText(text, testFileID, testProjectID)

	require.Equal(t, 2, res.EventCount)
	require.Equal(t, 1, res.InvalidLines)
	require.Equal(t, "before dump", res.Events[0].EventName)
	require.Equal(t, "after dump", res.Events[1].EventName)
}

func TestParseEmptyInput(t *testing.T) {
	res := ParseText("", testFileID, testProjectID)
	require.Empty(t, res.Events)
	require.Equal(t, 0, res.InvalidLines)
}
