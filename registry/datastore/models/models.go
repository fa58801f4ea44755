package models

import (
	"database/sql"
	"time"
)

// Item is an indexed file of a repository.
type Item struct {
	ID       int64
	Repo     string
	Path     string
	Name     string
	Type     string
	Depth    int
	Size     int64
	SHA256   sql.NullString
	Created  time.Time
	Modified time.Time
	Updated  time.Time
}

// Items is a slice of Item pointers.
type Items []*Item

// Property is a key/value pair attached to an item. Keys may repeat with
// different values.
type Property struct {
	ID     int64
	ItemID int64
	Key    string
	Value  string
}

// Properties is a slice of Property pointers.
type Properties []*Property

// DownloadStat tracks the downloads of an item.
type DownloadStat struct {
	ItemID         int64
	DownloadCount  int64
	LastDownloaded time.Time
}
