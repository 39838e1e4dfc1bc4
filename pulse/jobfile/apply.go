package jobfile

import (
	"context"
	"time"

	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/pulse/schedule"
)

// Summary reports what Apply did, by job name
type Summary struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
	Skipped []string `json:"skipped"`
}

// Apply creates every spec in store. A name that already exists is skipped,
// or with replace set, updated in place so its run history survives.
func Apply(ctx context.Context, store schedule.JobStore, specs []schedule.JobSpec, replace bool) (Summary, error) {
	var sum Summary
	for _, spec := range specs {
		_, err := store.Create(ctx, spec)
		switch {
		case err == nil:
			sum.Created = append(sum.Created, spec.Name)
		case errors.IsConflictError(err) && replace:
			if _, err := store.Update(ctx, spec.Name, PatchFromSpec(spec)); err != nil {
				return sum, errors.Wrapf(err, "replace job %q", spec.Name)
			}
			sum.Updated = append(sum.Updated, spec.Name)
		case errors.IsConflictError(err):
			sum.Skipped = append(sum.Skipped, spec.Name)
		default:
			return sum, errors.Wrapf(err, "import job %q", spec.Name)
		}
	}
	return sum, nil
}

// PatchFromSpec builds a patch that overwrites every user-owned field.
// Constraints absent from the spec are cleared.
func PatchFromSpec(spec schedule.JobSpec) schedule.JobPatch {
	enabled := !spec.Disabled
	onFailure := spec.OnFailure
	if onFailure == "" {
		onFailure = schedule.OnFailureNotify
	}
	startAt, endAt := spec.StartAt, spec.EndAt
	if startAt == nil {
		startAt = &time.Time{}
	}
	if endAt == nil {
		endAt = &time.Time{}
	}
	return schedule.JobPatch{
		Schedule:       &spec.Schedule,
		Command:        &spec.Command,
		Enabled:        &enabled,
		OnFailure:      &onFailure,
		Retries:        &spec.Retries,
		TimeoutSeconds: &spec.TimeoutSeconds,
		StartAt:        startAt,
		EndAt:          endAt,
		MaxRuns:        &spec.MaxRuns,
	}
}
