package feed

// Differ tracks the previous full snapshot per feed identity and yields the
// set of newly-appeared entities between consecutive snapshots. Feeds never
// share baselines: "main" and "event" diff independently.
//
// Not safe for concurrent use; the pipeline serializes access.
type Differ struct {
	prev map[string]map[string]struct{} // feed identity -> entity set
}

func NewDiffer() *Differ {
	return &Differ{prev: make(map[string]map[string]struct{})}
}

// Diff stores the current snapshot for feedID and returns the records whose
// identifiers were absent from the previous one. The first snapshot for a
// feed establishes the baseline and returns nothing, so startup never floods
// notifications with the already-present population.
func (d *Differ) Diff(feedID string, recs []Record) []Record {
	current := make(map[string]struct{}, len(recs))
	var fresh []Record

	prev, known := d.prev[feedID]
	for _, rec := range recs {
		id, ok := rec.Identifier()
		if !ok {
			continue
		}
		if _, dup := current[id]; dup {
			continue
		}
		current[id] = struct{}{}
		if !known {
			continue
		}
		if _, seen := prev[id]; !seen {
			fresh = append(fresh, rec)
		}
	}

	d.prev[feedID] = current
	return fresh
}
