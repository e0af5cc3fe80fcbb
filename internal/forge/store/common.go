package store

import (
	"encoding/json"
	"fmt"

	"github.com/knowledgeforge/forge/internal/forge"
)

// marshalSessionBlobs encodes the two opaque JSON columns every backend
// stores a session row with: the message history and the last ForgeState
// snapshot.
func marshalSessionBlobs(sess *forge.Session) (history, snapshot []byte, err error) {
	history, err = json.Marshal(sess.MessageHistory)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal message history: %w", err)
	}
	snapshot, err = json.Marshal(sess.StateSnapshot)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal state snapshot: %w", err)
	}
	return history, snapshot, nil
}

// unmarshalSessionBlobs is the inverse of marshalSessionBlobs, applied
// after a row scan populates the raw column bytes.
func unmarshalSessionBlobs(sess *forge.Session, history, snapshot []byte) error {
	if len(history) > 0 {
		if err := json.Unmarshal(history, &sess.MessageHistory); err != nil {
			return fmt.Errorf("unmarshal message history: %w", err)
		}
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &sess.StateSnapshot); err != nil {
			return fmt.Errorf("unmarshal state snapshot: %w", err)
		}
	}
	return nil
}
