package dialog

import (
	"encoding/json"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/flowchat-io/flowchat/flow"
	"github.com/flowchat-io/flowchat/store"
)

// recordFromSnapshot serializes a snapshot into an append-log record. The
// composite fields are stored as JSON text columns.
func recordFromSnapshot(snap Snapshot) (*store.ConversationRecord, error) {
	intent, err := json.Marshal(snap.Intent)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal intent")
	}
	entities, err := json.Marshal(snap.Entities)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal entities")
	}
	slots, err := json.Marshal(snap.Slots)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal slots")
	}
	events, err := json.Marshal(snap.Events)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal events")
	}

	record := &store.ConversationRecord{
		UID:       shortuuid.New(),
		UserID:    snap.UserID,
		UserName:  snap.UserName,
		Version:   snap.Version,
		Intent:    string(intent),
		Entities:  string(entities),
		Slots:     string(slots),
		Events:    string(events),
		LoopStack: snap.LoopStack,
	}
	if snap.Button != nil {
		button, err := json.Marshal(snap.Button)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal button")
		}
		record.Button = stringPtr(string(button))
	}
	if snap.Synonyms != nil {
		synonyms, err := json.Marshal(snap.Synonyms)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal synonyms")
		}
		record.Synonyms = stringPtr(string(synonyms))
	}
	if snap.Response != nil {
		response, err := json.Marshal(snap.Response)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal response")
		}
		record.Response = stringPtr(string(response))
	}
	return record, nil
}

// snapshotFromRecord parses an append-log record back into a snapshot.
func snapshotFromRecord(record *store.ConversationRecord) (Snapshot, error) {
	snap := Snapshot{
		UserID:    record.UserID,
		UserName:  record.UserName,
		Version:   record.Version,
		LoopStack: record.LoopStack,
	}
	if err := json.Unmarshal([]byte(record.Intent), &snap.Intent); err != nil {
		return Snapshot{}, errors.Wrapf(err, "failed to unmarshal intent of record %s", record.UID)
	}
	if err := json.Unmarshal([]byte(record.Entities), &snap.Entities); err != nil {
		return Snapshot{}, errors.Wrapf(err, "failed to unmarshal entities of record %s", record.UID)
	}
	if err := json.Unmarshal([]byte(record.Slots), &snap.Slots); err != nil {
		return Snapshot{}, errors.Wrapf(err, "failed to unmarshal slots of record %s", record.UID)
	}
	if err := json.Unmarshal([]byte(record.Events), &snap.Events); err != nil {
		return Snapshot{}, errors.Wrapf(err, "failed to unmarshal events of record %s", record.UID)
	}
	if record.Button != nil {
		snap.Button = make(map[string]flow.TriggerSpec)
		if err := json.Unmarshal([]byte(*record.Button), &snap.Button); err != nil {
			return Snapshot{}, errors.Wrapf(err, "failed to unmarshal button of record %s", record.UID)
		}
	}
	if record.Synonyms != nil {
		if err := json.Unmarshal([]byte(*record.Synonyms), &snap.Synonyms); err != nil {
			return Snapshot{}, errors.Wrapf(err, "failed to unmarshal synonyms of record %s", record.UID)
		}
	}
	if record.Response != nil {
		snap.Response = &MessageOutput{}
		if err := json.Unmarshal([]byte(*record.Response), snap.Response); err != nil {
			return Snapshot{}, errors.Wrapf(err, "failed to unmarshal response of record %s", record.UID)
		}
	}
	return snap, nil
}

func stringPtr(s string) *string {
	return &s
}
