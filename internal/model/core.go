package model

import "encoding/json"

// Source formats
const (
	SourceJSON  = "json"
	SourceJSONL = "jsonl"
)

// Export formats
const (
	ExportCSV    = "csv"
	ExportSQLite = "sqlite"
)

// JobSpec is the body of POST /api/v1/jobs
type JobSpec struct {
	// Mapping is the mapping document, in the same format as mapping files.
	Mapping json.RawMessage `json:"mapping" swaggertype:"object"`
	// Records are mapped as they are when set; Source is read otherwise.
	Records  json.RawMessage        `json:"records,omitempty" swaggertype:"array,object"`
	Source   *Source                `json:"source,omitempty"`
	UserData map[string]interface{} `json:"userData,omitempty"`
	Export   Export                 `json:"export"`
	// TableName names the root table, "root" by default.
	TableName string `json:"tableName,omitempty"`
	Timeout   string `json:"timeout,omitempty"` // e.g., "5m"
}

// Source represents where the records of a job are read from
type Source struct {
	Type string `json:"type"` // json, jsonl
	URL  string `json:"url"`  // http(s) URL, or a file path from the command line
	// DataPath points at the record array inside the document, e.g. "data.items".
	DataPath string `json:"dataPath,omitempty"`
}

// Export defines how the tables of a job are written
type Export struct {
	Format      string `json:"format"` // csv, sqlite
	WriteHeader *bool  `json:"writeHeader,omitempty"`
	Manifest    bool   `json:"manifest"`
}

// Header reports whether CSV tables start with a header row. It defaults to true.
func (e Export) Header() bool {
	return e.WriteHeader == nil || *e.WriteHeader
}
