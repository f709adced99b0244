package sqlite

// JSON record structures that mirror the JSONL file format.

// workItemJSON is one line of work_items.jsonl.
type workItemJSON struct {
	ID        int            `json:"id"`
	Project   string         `json:"project"`
	Type      string         `json:"type"`
	Fields    map[string]any `json:"fields"`
	Rev       int            `json:"rev"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// suiteMemberJSON is one line of suite_members.jsonl.
type suiteMemberJSON struct {
	Project    string `json:"project"`
	PlanID     int    `json:"plan_id"`
	SuiteID    int    `json:"suite_id"`
	WorkItemID int    `json:"work_item_id"`
}
