package model

import (
	"time"
)

// Rawdata is one-to-one with Name.
type Rawdata struct {
	ID        int64     `db:"id" json:"id"`
	NameID    int64     `db:"name_id" json:"name_id"`
	BodyHTML  *string   `db:"body_html" json:"body_html"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

var rawdataSchema = Schema{
	Table: "rawdata",
	Columns: []Column{
		{Name: "name_id", Kind: KindInt},
		{Name: "body_html", Kind: KindNullableString},
	},
	Relations: []string{"name", "names"},
	Unique: map[string][]string{
		"rawdata_name_id_key": {"name_id"},
	},
}

func (Rawdata) Schema() Schema    { return rawdataSchema }
func (r Rawdata) EntityID() int64 { return r.ID }
