package model

import (
	"time"
)

// Name belongs to a Code. Deleting a Name removes its Rawdata and Images
// through ON DELETE CASCADE.
type Name struct {
	ID        int64     `db:"id" json:"id"`
	CodeID    int64     `db:"code_id" json:"code_id"`
	Name      string    `db:"name" json:"name"`
	URL       string    `db:"url" json:"url"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

var nameSchema = Schema{
	Table: "names",
	Columns: []Column{
		{Name: "code_id", Kind: KindInt},
		{Name: "name", Kind: KindString},
		{Name: "url", Kind: KindString},
		{Name: "status", Kind: KindString},
	},
	Relations: []string{"code", "codes", "rawdata", "images"},
	Unique: map[string][]string{
		"names_name_key": {"name"},
		"names_url_key":  {"url"},
	},
}

func (Name) Schema() Schema    { return nameSchema }
func (n Name) EntityID() int64 { return n.ID }
