// Package reconcile merges local and remote snapshots of soft-deletable
// entities with last-writer-wins and tombstones.
package reconcile

import (
	"sort"

	"github.com/okian/scoutsync/internal/domain/model"
)

// Entity is a local, soft-deletable entity. Timestamps are ms since epoch;
// zero means absent.
type Entity interface {
	EntityID() string
	UpdatedAtMS() int64
	DeletedAtMS() int64
}

// Row is a remote row carrying ISO-8601 timestamps; empty means absent.
type Row interface {
	RowID() string
	UpdatedAtISO() string
	DeletedAtISO() string
}

// Winner names the side whose state an id converged to.
type Winner string

const (
	WinnerLocal  Winner = "local"
	WinnerRemote Winner = "remote"
)

// Decision records how one id was resolved.
type Decision struct {
	ID     string
	Winner Winner
	// Deletion is set when a tombstone decided the outcome.
	Deletion bool
}

// Result is the outcome of one merge round.
type Result[L Entity] struct {
	// Merged replaces the local snapshot. Sorted by id.
	Merged []L
	// ToUpsert holds locally authoritative entities, tombstones included,
	// to send upstream as one batch keyed by id.
	ToUpsert []L
	// Decisions has one entry per id, in id order.
	Decisions []Decision
	// BadTimestamps counts remote timestamps that could not be parsed and
	// were treated as absent.
	BadTimestamps int
}

// Merge reconciles local against remote. adopt maps a remote row to the
// local entity type. Merge is deterministic and idempotent: merging the
// merged output against the same remote snapshot yields the same Merged.
func Merge[L Entity, R Row](local []L, remote []R, adopt func(R) L) Result[L] {
	localByID := make(map[string]L, len(local))
	for _, l := range local {
		if prev, ok := localByID[l.EntityID()]; ok && prev.UpdatedAtMS() > l.UpdatedAtMS() {
			continue
		}
		localByID[l.EntityID()] = l
	}

	var res Result[L]
	type remoteState struct {
		row              R
		updated, deleted int64
	}
	remoteByID := make(map[string]remoteState, len(remote))
	for _, r := range remote {
		updated, ok := model.ParseISO(r.UpdatedAtISO())
		if !ok {
			res.BadTimestamps++
		}
		deleted, ok := model.ParseISO(r.DeletedAtISO())
		if !ok {
			res.BadTimestamps++
		}
		if prev, ok := remoteByID[r.RowID()]; ok && prev.updated > updated {
			continue
		}
		remoteByID[r.RowID()] = remoteState{row: r, updated: updated, deleted: deleted}
	}

	ids := make([]string, 0, len(localByID)+len(remoteByID))
	for id := range localByID {
		ids = append(ids, id)
	}
	for id := range remoteByID {
		if _, ok := localByID[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	res.Merged = make([]L, 0, len(ids))
	for _, id := range ids {
		l, hasLocal := localByID[id]
		r, hasRemote := remoteByID[id]

		var d Decision
		switch {
		case hasLocal && !hasRemote:
			d = Decision{ID: id, Winner: WinnerLocal}
		case !hasLocal && hasRemote:
			d = Decision{ID: id, Winner: WinnerRemote}
		default:
			d = decide(id, l.UpdatedAtMS(), l.DeletedAtMS(), r.updated, r.deleted)
		}

		res.Decisions = append(res.Decisions, d)
		if d.Winner == WinnerLocal {
			res.Merged = append(res.Merged, l)
			res.ToUpsert = append(res.ToUpsert, l)
			continue
		}
		res.Merged = append(res.Merged, adopt(r.row))
	}
	return res
}

// decide resolves an id present on both sides. Deletions are checked
// before plain recency; equal update times go to the remote.
func decide(id string, localUpdated, localDeleted, remoteUpdated, remoteDeleted int64) Decision {
	switch {
	case localDeleted > 0 && localDeleted == remoteDeleted && localUpdated == remoteUpdated:
		// Same tombstone on both sides is already converged; adopting remote
		// keeps it out of ToUpsert so repeated pulls do not push it back.
		return Decision{ID: id, Winner: WinnerRemote, Deletion: true}
	case localDeleted > 0 && (remoteDeleted == 0 || localDeleted > remoteUpdated):
		return Decision{ID: id, Winner: WinnerLocal, Deletion: true}
	case remoteDeleted > 0 && (localDeleted == 0 || remoteDeleted > localUpdated):
		return Decision{ID: id, Winner: WinnerRemote, Deletion: true}
	case localUpdated > remoteUpdated:
		return Decision{ID: id, Winner: WinnerLocal}
	default:
		return Decision{ID: id, Winner: WinnerRemote}
	}
}
