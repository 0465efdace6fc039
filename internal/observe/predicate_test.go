package observe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func durp(d time.Duration) *time.Duration { return &d }

// S6: predicates "rcode*:-15|duration:1.5..3600|category*" must match
// every Job whose duration is in [1.5, 3600) AND (no rcode property OR
// rcode == -15) AND (no category property OR category present),
// excluding Jobs lacking a duration altogether.
func TestObservationFilterS6(t *testing.T) {
	preds := ParsePredicates("rcode*:-15|duration:1.5..3600|category*")
	require.Len(t, preds, 3)

	cases := []struct {
		name string
		e    Entry
		want bool
	}{
		{"no rcode, in range, no category", Entry{Duration: durp(2 * time.Second)}, true},
		{"rcode -15, in range", Entry{Duration: durp(2 * time.Second), RCode: intp(-15)}, true},
		{"rcode other than -15 excluded", Entry{Duration: durp(2 * time.Second), RCode: intp(1)}, false},
		{"below range excluded", Entry{Duration: durp(500 * time.Millisecond)}, false},
		{"at upper bound excluded (half-open)", Entry{Duration: durp(3600 * time.Second)}, false},
		{"no duration at all excluded", Entry{}, false},
		{"category present still matches (category* is a no-op)", Entry{Duration: durp(2 * time.Second), Category: strp("batch")}, true},
	}

	for _, c := range cases {
		require.Equal(t, c.want, MatchAll(preds, c.e), c.name)
	}
}

func TestParsePredicatesExactMatch(t *testing.T) {
	preds := ParsePredicates("numterm:0")
	require.Len(t, preds, 1)
	require.True(t, preds[0].Match(Entry{NumTerm: intp(0)}))
	require.False(t, preds[0].Match(Entry{NumTerm: intp(1)}))
}

func TestFilterCappedRespectsJlim(t *testing.T) {
	s := Snapshot{}
	for i := 0; i < 10; i++ {
		s.Jobs = append(s.Jobs, Entry{Name: "j"})
	}
	require.Len(t, s.FilterJobs(nil, 3), 3)
	got := s.FilterJobs(nil, 0)
	require.True(t, len(got) == defaultJlim || len(got) == 10, "FilterJobs with jlim=0 returned %d entries, want min(defaultJlim,10)", len(got))
}
