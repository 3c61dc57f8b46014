package main

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
	"github.com/kazu-apps/carenote-sync/internal/recurrence"
)

func newOccurrencesCommand(opts *rootOptions) *cobra.Command {
	var (
		id       string
		from, to string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "occurrences",
		Short: "List the occurrences of a calendar event in a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			localID, err := uuid.FromString(id)
			if err != nil {
				return fmt.Errorf("bad --id: %w", err)
			}
			start, err := parseDay(from, false)
			if err != nil {
				return fmt.Errorf("bad --from: %w", err)
			}
			end, err := parseDay(to, true)
			if err != nil {
				return fmt.Errorf("bad --to: %w", err)
			}
			if end.Before(start) {
				return errs.Validationf("--to is before --from")
			}

			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.store.Records().Get(ctx, localID)
			if err != nil {
				return err
			}
			if r.Kind != model.KindCalendarEvent || r.IsTombstone() {
				return errs.Validationf("record is not a live calendar event")
			}
			ev, err := model.DecodeCalendarEvent(r.Payload)
			if err != nil {
				return errs.E(errs.Validation, "decode calendar event", err)
			}
			occ, err := recurrence.ExpandLimit(ev, start, end, limit)
			if err != nil {
				return err
			}
			if occ == nil {
				occ = []model.CalendarEvent{}
			}
			return a.printJSON(occ)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "local id of the calendar event")
	cmd.Flags().StringVar(&from, "from", "", "range start, YYYY-MM-DD or RFC 3339")
	cmd.Flags().StringVar(&to, "to", "", "range end (inclusive), YYYY-MM-DD or RFC 3339")
	cmd.Flags().IntVar(&limit, "limit", recurrence.MaxOccurrences, "maximum occurrences")
	for _, f := range []string{"id", "from", "to"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

// parseDay accepts a date in local time or a full RFC 3339 timestamp.
// A bare date used as a range end covers the whole day.
func parseDay(s string, end bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, err
	}
	if end {
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return d, nil
}
