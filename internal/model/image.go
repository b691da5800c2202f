package model

import (
	"time"
)

// Image links a Name to a document in the document store. FileID is the
// only backward link from a document to the relational side.
type Image struct {
	ID        int64     `db:"id" json:"id"`
	NameID    int64     `db:"name_id" json:"name_id"`
	FileID    *string   `db:"file_id" json:"file_id"`   // Document store id
	FileURL   *string   `db:"file_url" json:"file_url"` // Original or generated content URL
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

var imageSchema = Schema{
	Table: "images",
	Columns: []Column{
		{Name: "name_id", Kind: KindInt},
		{Name: "file_id", Kind: KindNullableString},
		{Name: "file_url", Kind: KindNullableString},
	},
	Relations: []string{"name", "names"},
}

func (Image) Schema() Schema    { return imageSchema }
func (i Image) EntityID() int64 { return i.ID }
