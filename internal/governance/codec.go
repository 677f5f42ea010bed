package governance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spigell/prefcanon/internal/utils"
)

type record struct {
	ID          string     `json:"id"`
	ActionType  ActionType `json:"action_type"`
	OldCategory string     `json:"old_category"`
	NewCategory string     `json:"new_category"`
	OldValue    string     `json:"old_value"`
	NewValue    string     `json:"new_value"`
	Score       float64    `json:"score"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toRecord(a PendingAction) record {
	f := a.Proposal.Fields()
	return record{
		ID:          a.ID,
		ActionType:  a.Type(),
		OldCategory: f.OldCategory,
		NewCategory: f.NewCategory,
		OldValue:    f.OldValue,
		NewValue:    f.NewValue,
		Score:       a.Score,
		CreatedAt:   a.CreatedAt.UTC(),
	}
}

func fromRecord(r record) (PendingAction, error) {
	if r.ID == "" {
		return PendingAction{}, fmt.Errorf("%w: missing id", ErrInvalidAction)
	}

	p, err := NewProposal(r.ActionType, Fields{
		OldCategory: r.OldCategory,
		NewCategory: r.NewCategory,
		OldValue:    r.OldValue,
		NewValue:    r.NewValue,
	})
	if err != nil {
		return PendingAction{}, fmt.Errorf("action %s: %w", r.ID, err)
	}

	return PendingAction{ID: r.ID, Proposal: p, Score: r.Score, CreatedAt: r.CreatedAt}, nil
}

func marshal(actions []PendingAction) ([]byte, error) {
	records := make([]record, 0, len(actions))
	for _, a := range actions {
		records = append(records, toRecord(a))
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func unmarshal(data []byte) ([]PendingAction, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var records []record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}

	seen := make(map[string]struct{}, len(records))
	actions := make([]PendingAction, 0, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidAction, r.ID)
		}
		seen[r.ID] = struct{}{}

		a, err := fromRecord(r)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// load reads the queue file. A missing file is an empty queue.
func load(path string) ([]PendingAction, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	actions, err := unmarshal(data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return actions, nil
}

func save(path string, actions []PendingAction) error {
	data, err := marshal(actions)
	if err != nil {
		return &SaveError{Path: path, Err: err}
	}

	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return &SaveError{Path: path, Err: err}
	}
	return nil
}
