package feed

import "testing"

func recs(callsigns ...string) []Record {
	out := make([]Record, 0, len(callsigns))
	for _, cs := range callsigns {
		out = append(out, Record{"callsign": cs})
	}
	return out
}

func ids(t *testing.T, rs []Record) []string {
	t.Helper()
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		id, ok := r.Identifier()
		if !ok {
			t.Fatalf("record without identifier in diff output: %v", r)
		}
		out = append(out, id)
	}
	return out
}

func TestDifferFirstSnapshotIsBaseline(t *testing.T) {
	t.Parallel()
	d := NewDiffer()
	if fresh := d.Diff("main", recs("DAL123", "UAL456")); len(fresh) != 0 {
		t.Fatalf("first snapshot yielded %v, want nothing", ids(t, fresh))
	}
}

func TestDifferYieldsOnlyNewEntities(t *testing.T) {
	t.Parallel()
	d := NewDiffer()
	d.Diff("main", recs("DAL123", "UAL456"))

	fresh := d.Diff("main", recs("UAL456", "SWA789"))
	got := ids(t, fresh)
	if len(got) != 1 || got[0] != "SWA789" {
		t.Fatalf("diff = %v, want [SWA789]", got)
	}

	// A departed entity that returns counts as new again.
	fresh = d.Diff("main", recs("DAL123", "UAL456", "SWA789"))
	got = ids(t, fresh)
	if len(got) != 1 || got[0] != "DAL123" {
		t.Fatalf("diff = %v, want [DAL123]", got)
	}
}

func TestDifferFeedsAreIndependent(t *testing.T) {
	t.Parallel()
	d := NewDiffer()
	d.Diff("main", recs("DAL123"))

	// The same callsign in another feed gets its own baseline pass.
	if fresh := d.Diff("event", recs("DAL123")); len(fresh) != 0 {
		t.Fatalf("event feed baseline yielded %v", ids(t, fresh))
	}
	if fresh := d.Diff("event", recs("DAL123", "UAL456")); len(fresh) != 1 {
		t.Fatalf("event feed diff = %v, want one entry", ids(t, fresh))
	}
}

func TestDifferSkipsDuplicateAndAnonymousRecords(t *testing.T) {
	t.Parallel()
	d := NewDiffer()
	d.Diff("main", nil)

	snapshot := []Record{
		{"callsign": "DAL123"},
		{"callsign": "DAL123"},
		{"aircraft": "B738"}, // no identifier at all
	}
	fresh := d.Diff("main", snapshot)
	if got := ids(t, fresh); len(got) != 1 || got[0] != "DAL123" {
		t.Fatalf("diff = %v, want [DAL123]", got)
	}
}
