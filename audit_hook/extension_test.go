package audithook_test

import (
	"context"
	"testing"

	audithook "github.com/xraph/custody/audit_hook"
	"github.com/xraph/custody/record"
)

func collectRecorder(events *[]*audithook.AuditEvent) audithook.RecorderFunc {
	return func(_ context.Context, evt *audithook.AuditEvent) error {
		*events = append(*events, evt)
		return nil
	}
}

func TestRecordLifecycleAudited(t *testing.T) {
	var events []*audithook.AuditEvent
	ext := audithook.New(collectRecorder(&events))
	ctx := context.Background()

	if err := ext.OnRecordCreated(ctx, record.Change{
		RecordID: 7, Kind: record.ChangeCreated, Actor: "alice", ItemType: "Plastic", Status: record.StatusGenerated,
	}); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnOwnerChanged(ctx, record.Change{
		RecordID: 7, Kind: record.ChangeOwnerChanged, Actor: "alice", From: "alice", To: "bob",
	}); err != nil {
		t.Fatal(err)
	}

	if len(events) != 2 {
		t.Fatalf("recorded %d events, want 2", len(events))
	}
	created := events[0]
	if created.Action != audithook.ActionRecordCreated || created.ResourceID != "7" {
		t.Errorf("created event = %+v", created)
	}
	if created.Metadata["item_type"] != "Plastic" {
		t.Errorf("created metadata = %v", created.Metadata)
	}
	transfer := events[1]
	if transfer.Metadata["from"] != "alice" || transfer.Metadata["to"] != "bob" {
		t.Errorf("transfer metadata = %v", transfer.Metadata)
	}
}

func TestDisabledActionsAreSkipped(t *testing.T) {
	var events []*audithook.AuditEvent
	ext := audithook.New(collectRecorder(&events),
		audithook.WithDisabledActions(audithook.ActionStatusChanged),
	)
	ctx := context.Background()

	if err := ext.OnStatusChanged(ctx, record.Change{RecordID: 1, Kind: record.ChangeStatusChanged}); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnRecordCreated(ctx, record.Change{RecordID: 1, Kind: record.ChangeCreated}); err != nil {
		t.Fatal(err)
	}

	if len(events) != 1 || events[0].Action != audithook.ActionRecordCreated {
		t.Errorf("events = %+v, want only record.created", events)
	}
}

func TestEnabledActionsWhitelist(t *testing.T) {
	var events []*audithook.AuditEvent
	ext := audithook.New(collectRecorder(&events),
		audithook.WithEnabledActions(audithook.ActionOwnerChanged),
	)
	ctx := context.Background()

	if err := ext.OnRecordCreated(ctx, record.Change{RecordID: 1, Kind: record.ChangeCreated}); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnOwnerChanged(ctx, record.Change{RecordID: 1, Kind: record.ChangeOwnerChanged, To: "bob"}); err != nil {
		t.Fatal(err)
	}

	if len(events) != 1 || events[0].Action != audithook.ActionOwnerChanged {
		t.Errorf("events = %+v, want only record.owner_changed", events)
	}
}
