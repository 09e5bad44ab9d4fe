package directoryb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"MeetingSync/internal/config"
	"MeetingSync/internal/interfaces"

	"github.com/sirupsen/logrus"
)

const dayPage = `<html><body>
<table class="meetings">
  <tr><th>Time</th><th>Name</th><th>Location</th><th>Address</th><th>Types</th><th>Notes</th></tr>
  <tr data-id="b-%[1]d">
    <td>7:00 pm</td><td>Day %[1]d Group</td><td>St. Mark's</td><td>12 Elm St,<br>Springfield</td><td>O, D</td><td>Use   rear
    entrance</td>
  </tr>
</table>
</body></html>`

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := &config.SourceConfig{Enabled: true, BaseURL: srv.URL + "/meetings", DayParam: "d", Timeout: 5 * time.Second}
	return NewDirectoryBAdapter(cfg, quietLogger()).(*Adapter)
}

func TestFetchMeetingsAllDays(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, dayPage, mustDay(t, r))
	})

	res, err := a.FetchMeetings(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(res.Meetings) != 7 || len(res.FailedWeekdays) != 0 {
		t.Fatalf("expected 7 meetings and no failed days, got %d/%v", len(res.Meetings), res.FailedWeekdays)
	}
	m := res.Meetings[3]
	if m.ExternalID != "b-3" || m.Weekday != 3 || m.StartTime != "19:00" || m.Name != "Day 3 Group" {
		t.Fatalf("unexpected meeting: %+v", m)
	}
	if m.Location.FormattedAddress != "12 Elm St, Springfield" {
		t.Fatalf("unexpected address %q", m.Location.FormattedAddress)
	}
	if m.Notes != "Use rear entrance" {
		t.Fatalf("unexpected notes %q", m.Notes)
	}
	if len(m.Formats) != 2 || m.Formats[0] != "O" || m.Formats[1] != "D" {
		t.Fatalf("unexpected formats %v", m.Formats)
	}
}

func TestFetchMeetingsIsolatesFailedDay(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		day := mustDay(t, r)
		switch day {
		case 2:
			w.WriteHeader(http.StatusInternalServerError)
			return
		case 5:
			_, _ = io.WriteString(w, `<html><body><p>maintenance</p></body></html>`)
			return
		}
		_, _ = fmt.Fprintf(w, dayPage, day)
	})

	res, err := a.FetchMeetings(context.Background())
	if err != nil {
		t.Fatalf("a single failed day must not fail the source: %v", err)
	}
	if len(res.Meetings) != 5 {
		t.Fatalf("expected 5 meetings from healthy days, got %d", len(res.Meetings))
	}
	if len(res.FailedWeekdays) != 2 || res.FailedWeekdays[0] != 2 || res.FailedWeekdays[1] != 5 {
		t.Fatalf("expected failed weekdays [2 5], got %v", res.FailedWeekdays)
	}
}

func TestFetchMeetingsAllDaysFailed(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := a.FetchMeetings(context.Background())
	var fe *interfaces.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}

func TestFetchMeetingsAllRowsInvalidFailsSource(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<table><tr><td>sometime</td><td>Broken</td></tr></table>`)
	})

	_, err := a.FetchMeetings(context.Background())
	var fe *interfaces.FetchError
	if !errors.As(err, &fe) || !errors.Is(err, errNoValidRows) {
		t.Fatalf("expected FetchError for all-invalid days, got %v", err)
	}
}

func TestFetchMeetingsDayWithOnlyInvalidRowsIsFailed(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		day := mustDay(t, r)
		if day == 1 {
			_, _ = io.WriteString(w, `<table><tr data-id="b-1"><td>TBD</td><td>Unscheduled</td></tr></table>`)
			return
		}
		_, _ = fmt.Fprintf(w, dayPage, day)
	})

	res, err := a.FetchMeetings(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(res.Meetings) != 6 || res.Skipped != 1 {
		t.Fatalf("expected 6 meetings and 1 skipped row, got %d/%d", len(res.Meetings), res.Skipped)
	}
	if len(res.FailedWeekdays) != 1 || res.FailedWeekdays[0] != 1 {
		t.Fatalf("day with no valid rows must be reported failed, got %v", res.FailedWeekdays)
	}
}

func mustDay(t *testing.T, r *http.Request) int {
	t.Helper()
	var day int
	if _, err := fmt.Sscanf(r.URL.Query().Get("d"), "%d", &day); err != nil {
		t.Errorf("missing day parameter in %q", r.URL.RawQuery)
	}
	return day
}

func TestParseScheduleClassColumnsAndDerivedID(t *testing.T) {
	page := `<table>
	<tr>
	  <td class="name">Lunch Bunch</td>
	  <td class="time">noon</td>
	  <td class="address">5 Oak Ave</td>
	  <td class="types">ONL</td>
	  <td class="location"><a href="https://us02web.zoom.us/j/999">Join</a></td>
	</tr></table>`
	got, err := ParseSchedule(strings.NewReader(page), 4)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	m := got[0]
	if m.Name != "Lunch Bunch" || m.StartTime != "12:00" || m.Weekday != 4 {
		t.Fatalf("unexpected meeting %+v", m)
	}
	if !m.IsVirtual || m.ConferenceURL != "https://us02web.zoom.us/j/999" {
		t.Fatalf("expected virtual meeting with conference link, got %+v", m)
	}
	want := MeetingID(4, "12:00", "Lunch Bunch", "5 Oak Ave")
	if m.ExternalID != want {
		t.Fatalf("expected derived id %s, got %s", want, m.ExternalID)
	}
	if MeetingID(4, "12:00", "lunch   bunch", "5 oak ave") != want {
		t.Fatalf("derived id should ignore case and whitespace")
	}
	if MeetingID(5, "12:00", "Lunch Bunch", "5 Oak Ave") == want {
		t.Fatalf("derived id must change with weekday")
	}
}

func TestParseClock(t *testing.T) {
	cases := map[string]string{
		"7:00 pm":   "19:00",
		"7:30 P.M.": "19:30",
		"12:15am":   "00:15",
		"12 pm":     "12:00",
		"6am":       "06:00",
		"18:45":     "18:45",
		"midnight":  "00:00",
		"13:00 pm":  "13:00 pm",
		"later":     "later",
	}
	for in, want := range cases {
		if got := ParseClock(in); got != want {
			t.Errorf("ParseClock(%q) = %q, want %q", in, got, want)
		}
	}
}
