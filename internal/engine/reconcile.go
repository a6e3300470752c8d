package engine

import (
	"sort"

	"github.com/scriptstash/scriptstash/internal/inventory"
)

// MergeOutcome is the result of reconciling local state against a fetched
// remote baseline.
type MergeOutcome struct {
	Merged *inventory.Record
	// ToCreate lists never-published local entries slated for document
	// creation, in sorted order.
	ToCreate []string
	Actions  []EntryAction
	// ChangedFromRemote reports whether the merged record differs from
	// the fetched remote record, i.e. whether a push is needed.
	ChangedFromRemote bool
}

// Reconcile merges local and remote mapping state at entry granularity.
//
// Rules:
//   - present only locally, never published: kept and slated for creation
//   - present only locally, published: kept in sync/push mode; dropped in
//     pull mode (pull discards local-only advantage)
//   - present only remotely: adopted as-is
//   - present in both: the later UpdatedAt wins outright; equal timestamps
//     resolve to the remote copy, since local clocks are not synchronized
//     across devices and the remote is the shared source of truth
//
// The merged record's revision is the remote's fetched revision. A nil
// remote is an empty baseline (first-time local-only state).
func Reconcile(local, remoteRec *inventory.Record, mode Mode) MergeOutcome {
	if remoteRec == nil {
		remoteRec = inventory.NewRecord()
	}

	out := MergeOutcome{Merged: inventory.NewRecord()}
	out.Merged.Revision = remoteRec.Revision

	names := make(map[string]bool)
	for name := range local.Entries {
		names[name] = true
	}
	for name := range remoteRec.Entries {
		names[name] = true
	}
	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	for _, name := range ordered {
		le, inLocal := local.Entries[name]
		re, inRemote := remoteRec.Entries[name]

		switch {
		case inLocal && !inRemote:
			if !le.Published() {
				out.Merged.Entries[name] = le
				out.ToCreate = append(out.ToCreate, name)
				out.Actions = append(out.Actions, EntryAction{Name: name, Action: "pending"})
			} else if mode == ModePull {
				out.Actions = append(out.Actions, EntryAction{Name: name, Action: "dropped"})
			} else {
				out.Merged.Entries[name] = le
				out.Actions = append(out.Actions, EntryAction{Name: name, Action: "kept"})
			}

		case !inLocal && inRemote:
			out.Merged.Entries[name] = re
			out.Actions = append(out.Actions, EntryAction{Name: name, Action: "adopted"})

		default:
			if le.UpdatedAt.After(re.UpdatedAt) {
				out.Merged.Entries[name] = le
				out.Actions = append(out.Actions, EntryAction{Name: name, Action: "kept"})
			} else {
				out.Merged.Entries[name] = re
				if !re.UpdatedAt.Equal(le.UpdatedAt) || !inventoryEntryEqualForAction(le, re) {
					out.Actions = append(out.Actions, EntryAction{Name: name, Action: "updated"})
				} else {
					out.Actions = append(out.Actions, EntryAction{Name: name, Action: "kept"})
				}
			}
		}
	}

	out.ChangedFromRemote = !inventory.EntriesEqual(out.Merged, remoteRec)
	return out
}

func inventoryEntryEqualForAction(a, b inventory.Entry) bool {
	return a.DocumentID == b.DocumentID && a.UpdatedAt.Equal(b.UpdatedAt)
}
