package sync

import (
	"encoding/json"
	"fmt"
	"time"

	"practice-sync-client/internal/store"
)

type Strategy string

const (
	StrategyManual Strategy = "manual"
	StrategyAuto   Strategy = "auto"
)

// Resolution is the outcome of resolving a version conflict.
type Resolution struct {
	RequiresUserInput bool
	MergedData        json.RawMessage
}

// defaultMergeFields is the allow-list of fields merged from the local
// version. Everything else is taken verbatim from the remote record: remote
// wins by default outside the allow-list.
var defaultMergeFields = []string{"updatedAt", "lastAccessedAt", "metadata"}

// Resolver produces a merged record or a manual-resolution flag from the
// local and remote versions. Pure and side-effect-free.
type Resolver struct {
	mergeFields []string
}

func NewResolver() *Resolver {
	return &Resolver{mergeFields: defaultMergeFields}
}

// Resolve applies the given strategy. Manual always requires user input and
// never touches the operation data. Auto merges the allow-list: timestamp
// fields take the later value, metadata takes the remote map with local
// keys overlaid on top.
func (r *Resolver) Resolve(op *store.SyncOperation, remote json.RawMessage, strategy Strategy) (*Resolution, error) {
	if strategy == StrategyManual {
		return &Resolution{RequiresUserInput: true}, nil
	}

	var local map[string]any
	if err := json.Unmarshal(op.Data, &local); err != nil {
		return nil, fmt.Errorf("failed to decode local data: %w", err)
	}
	var remoteMap map[string]any
	if err := json.Unmarshal(remote, &remoteMap); err != nil {
		return nil, fmt.Errorf("failed to decode remote data: %w", err)
	}

	merged := make(map[string]any, len(remoteMap))
	for k, v := range remoteMap {
		merged[k] = v
	}

	for _, field := range r.mergeFields {
		localVal, haveLocal := local[field]
		if !haveLocal {
			continue
		}
		remoteVal, haveRemote := merged[field]

		if field == "metadata" {
			merged[field] = mergeMetadata(remoteVal, localVal)
			continue
		}

		if !haveRemote {
			merged[field] = localVal
			continue
		}
		localTime, lok := parseTimestamp(localVal)
		remoteTime, rok := parseTimestamp(remoteVal)
		if lok && rok && localTime.After(remoteTime) {
			merged[field] = localVal
		}
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged data: %w", err)
	}
	return &Resolution{MergedData: data}, nil
}

// mergeMetadata overlays local keys on top of the remote map. Local wins
// only within metadata.
func mergeMetadata(remoteVal, localVal any) any {
	remoteMap, rok := remoteVal.(map[string]any)
	localMap, lok := localVal.(map[string]any)
	if !lok {
		return remoteVal
	}
	if !rok {
		return localVal
	}

	merged := make(map[string]any, len(remoteMap)+len(localMap))
	for k, v := range remoteMap {
		merged[k] = v
	}
	for k, v := range localMap {
		merged[k] = v
	}
	return merged
}

func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts, true
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, true
		}
	case float64:
		// Epoch milliseconds.
		return time.UnixMilli(int64(t)), true
	}
	return time.Time{}, false
}
