package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
)

// recordView is the printed form of a record.
type recordView struct {
	LocalID   string          `json:"local_id"`
	RemoteID  string          `json:"remote_id,omitempty"`
	Kind      model.Kind      `json:"kind"`
	SyncKey   string          `json:"sync_key"`
	DeviceID  string          `json:"device_id"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
	Synced    bool            `json:"synced"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func viewOf(r model.SyncableRecord) recordView {
	v := recordView{
		LocalID:   r.LocalID.String(),
		Kind:      r.Kind,
		SyncKey:   r.SyncKey,
		DeviceID:  r.DeviceID,
		UpdatedAt: r.UpdatedAt,
		DeletedAt: r.DeletedAt,
		Synced:    !r.Dirty(),
		Payload:   r.Payload,
	}
	if r.RemoteID != nil {
		v.RemoteID = r.RemoteID.String()
	}
	return v
}

func newRecordCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Manage records in the local store",
	}
	cmd.AddCommand(newRecordAddCommand(opts))
	cmd.AddCommand(newRecordEditCommand(opts))
	cmd.AddCommand(newRecordDeleteCommand(opts))
	cmd.AddCommand(newRecordListCommand(opts))
	return cmd
}

// payloadFlags reads a payload from --json or --file.
type payloadFlags struct {
	inline string
	file   string
}

func (p *payloadFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.inline, "json", "", "payload as inline JSON")
	cmd.Flags().StringVar(&p.file, "file", "", "payload file, - for stdin")
	cmd.MarkFlagsMutuallyExclusive("json", "file")
	cmd.MarkFlagsOneRequired("json", "file")
}

func (p *payloadFlags) read(cmd *cobra.Command) (json.RawMessage, error) {
	if p.inline != "" {
		return json.RawMessage(p.inline), nil
	}
	b, err := readAll(cmd.InOrStdin(), p.file)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func newRecordAddCommand(opts *rootOptions) *cobra.Command {
	var (
		kind    string
		payload payloadFlags
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			raw, err := payload.read(cmd)
			if err != nil {
				return err
			}
			k := model.Kind(kind)
			if err := a.validator.Payload(k, raw); err != nil {
				return err
			}
			id, err := uuid.NewV4()
			if err != nil {
				return err
			}
			r := model.SyncableRecord{
				LocalID:   id,
				Kind:      k,
				SyncKey:   model.SyncKeyFor(a.deviceID, id),
				DeviceID:  a.deviceID,
				UpdatedAt: a.now().UTC().Truncate(time.Millisecond),
				Payload:   raw,
			}
			if err := a.store.Records().Upsert(ctx, r); err != nil {
				return err
			}
			return a.printJSON(viewOf(r))
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "record kind")
	_ = cmd.MarkFlagRequired("kind")
	payload.bind(cmd)
	return cmd
}

func newRecordEditCommand(opts *rootOptions) *cobra.Command {
	var (
		id      string
		payload payloadFlags
	)
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Replace the payload of a record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			localID, err := uuid.FromString(id)
			if err != nil {
				return fmt.Errorf("bad --id: %w", err)
			}
			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			raw, err := payload.read(cmd)
			if err != nil {
				return err
			}
			out, err := a.store.Records().Update(ctx, localID, func(cur *model.SyncableRecord) (*model.SyncableRecord, error) {
				if cur == nil {
					return nil, errs.ErrNotFound
				}
				if cur.IsTombstone() {
					return nil, errors.New("record is deleted")
				}
				if err := a.validator.Payload(cur.Kind, raw); err != nil {
					return nil, err
				}
				next := cur.Clone()
				next.Payload = raw
				next.DeviceID = a.deviceID
				next.UpdatedAt = model.NextUpdatedAt(cur.UpdatedAt, a.now())
				return &next, nil
			})
			if err != nil {
				return err
			}
			return a.printJSON(viewOf(*out))
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "local record id")
	_ = cmd.MarkFlagRequired("id")
	payload.bind(cmd)
	return cmd
}

func newRecordDeleteCommand(opts *rootOptions) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a record; the deletion reaches other devices on the next sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			localID, err := uuid.FromString(id)
			if err != nil {
				return fmt.Errorf("bad --id: %w", err)
			}
			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.store.Records().Update(ctx, localID, func(cur *model.SyncableRecord) (*model.SyncableRecord, error) {
				if cur == nil {
					return nil, errs.ErrNotFound
				}
				if cur.IsTombstone() {
					return nil, nil
				}
				next := cur.Clone()
				ts := model.NextUpdatedAt(cur.UpdatedAt, a.now())
				next.UpdatedAt = ts
				next.DeletedAt = &ts
				next.DeviceID = a.deviceID
				return &next, nil
			})
			if err != nil {
				return err
			}
			return a.printJSON(viewOf(*out))
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "local record id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newRecordListCommand(opts *rootOptions) *cobra.Command {
	var (
		kind string
		all  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			kinds := model.Kinds()
			if kind != "" {
				if !model.Kind(kind).Valid() {
					return fmt.Errorf("unknown kind %q", kind)
				}
				kinds = []model.Kind{model.Kind(kind)}
			}
			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			views := []recordView{}
			for _, k := range kinds {
				recs, err := a.store.Records().List(ctx, k, all)
				if err != nil {
					return err
				}
				for _, r := range recs {
					views = append(views, viewOf(r))
				}
			}
			return a.printJSON(views)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only this kind")
	cmd.Flags().BoolVar(&all, "all", false, "include deleted records")
	return cmd
}
