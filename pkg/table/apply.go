package table

import (
	"fmt"

	"github.com/pixperk/rowlock/pkg/types"
)

// validates a put before it reaches a backend
func ValidatePut(req types.PutRequest) error {
	if req.Value.Key == "" {
		return types.ErrInvalidKey
	}
	if req.Mode != types.PutIfAbsent && req.Mode != types.PutIfPresent {
		return fmt.Errorf("%w: put mode %d", types.ErrInvalidRequest, req.Mode)
	}
	return nil
}

// decides a conditional write against the current state of one row
// current is nil when the row does not exist
// it returns the row to store and whether the write happened; on a miss the
// existing version (and row, if asked for) is reported back
//
// this is the single compare-and-swap rule, all backends call it while holding
// whatever makes the row update atomic for them
func ApplyPut(current *types.VersionedRow, req types.PutRequest, newVersion string) (types.VersionedRow, types.PutResult, bool) {
	miss := func() (types.VersionedRow, types.PutResult, bool) {
		res := types.PutResult{}
		if current != nil {
			res.ExistingVersion = current.Version
			if req.ReturnRow {
				row := current.Row.Clone()
				res.ExistingValue = &row
			}
		}
		return types.VersionedRow{}, res, false
	}

	switch req.Mode {
	case types.PutIfAbsent:
		if current != nil {
			return miss()
		}
		next := types.VersionedRow{Row: req.Value.Clone(), Version: newVersion}
		return next, types.PutResult{Version: newVersion}, true

	case types.PutIfPresent:
		if current == nil {
			return miss()
		}
		if req.MatchVersion != "" && req.MatchVersion != current.Version {
			return miss()
		}
		next := types.VersionedRow{Row: current.Row.Merge(req.Value), Version: newVersion}
		return next, types.PutResult{Version: newVersion}, true
	}

	return miss()
}
