package transport

import "encoding/json"

// legacySyncResult is the array-of-objects shape some older servers emit
// instead of the canonical keyed object.
type legacySyncResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

// ParseSyncResults decodes raw into the canonical map[string]SyncResult,
// accepting either the canonical keyed-object shape
// (`{"id1": {"status": "success"}}`) or the legacy array shape
// (`[{"id": "id1", "status": "success"}]`). Both are valid JSON the wire
// format may emit per the documented Open Question resolution.
func ParseSyncResults(raw json.RawMessage) (map[string]SyncResult, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var keyed map[string]SyncResult
	if err := json.Unmarshal(raw, &keyed); err == nil {
		return keyed, nil
	}

	var list []legacySyncResult
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	out := make(map[string]SyncResult, len(list))
	for _, item := range list {
		out[item.ID] = SyncResult{Status: item.Status, Error: item.Error}
	}
	return out, nil
}
