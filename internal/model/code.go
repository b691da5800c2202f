package model

import (
	"time"
)

const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusError   = "error"
)

// Code is the root of the hierarchy. It owns zero or more Names.
type Code struct {
	ID        int64     `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	URL       string    `db:"url" json:"url"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

var codeSchema = Schema{
	Table: "codes",
	Columns: []Column{
		{Name: "code", Kind: KindString},
		{Name: "url", Kind: KindString},
		{Name: "status", Kind: KindString},
	},
	Relations: []string{"names"},
	Unique: map[string][]string{
		"codes_code_key": {"code"},
		"codes_url_key":  {"url"},
	},
}

func (Code) Schema() Schema    { return codeSchema }
func (c Code) EntityID() int64 { return c.ID }
