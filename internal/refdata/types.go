package refdata

import "context"

// Task describes the correction task. CorrectionEnd is a unix timestamp in
// server seconds; zero means the correction window never closes.
type Task struct {
	Title                string `json:"title"`
	Instructions         string `json:"instructions"`
	CorrectionEnd        int64  `json:"correction_end"`
	CorrectionAllowed    bool   `json:"correction_allowed"`
	AuthorizationAllowed bool   `json:"authorization_allowed"`
}

// Settings holds the correction settings of the task.
type Settings struct {
	MutualVisibility    bool    `json:"mutual_visibility"`
	MultiColorHighlight bool    `json:"multi_color_highlight"`
	MaxPoints           float64 `json:"max_points"`
	MaxAutoDistance     float64 `json:"max_auto_distance"`
	StitchWhenDistance  bool    `json:"stitch_when_distance"`
	StitchWhenDecimals  bool    `json:"stitch_when_decimals"`
}

// Level is one entry of the ordered grade level table.
type Level struct {
	Key       string  `json:"key"`
	MinPoints float64 `json:"min_points"`
	Title     string  `json:"title"`
}

// Item is one correction unit within the session context.
type Item struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// Corrector is one entry of the corrector roster.
type Corrector struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// Essay is the text under correction. Started and Ended are unix
// timestamps in server seconds.
type Essay struct {
	Text       string `json:"text"`
	Started    int64  `json:"started"`
	Ended      int64  `json:"ended"`
	Authorized bool   `json:"authorized"`
}

// Resource is a file or link resource attached to the task.
type Resource struct {
	Key    string `json:"key"`
	Title  string `json:"title"`
	Type   string `json:"type"`
	Source string `json:"source"`
}

// Storage is the slice of the durable local store the reference stores
// need. Implemented by *store.Namespace.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context) error
}
