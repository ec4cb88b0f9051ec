package files

import (
	"time"

	"github.com/dmitrymomot/teamfiles/svc/files"
)

type pathQuery struct {
	Path string `query:"path"`
}

type listQuery struct {
	Path          string `query:"path"`
	Query         string `query:"q"`
	Sort          string `query:"sort"`
	Desc          bool   `query:"desc"`
	Cursor        string `query:"cursor"`
	Before        int    `query:"before"`
	After         int    `query:"after"`
	InDepth       bool   `query:"in_depth"`
	IgnoreFolders bool   `query:"ignore_folders"`
	Type          string `query:"type"`
}

type uploadQuery struct {
	Path    string `query:"path"`
	Name    string `query:"name"`
	Offset  int64  `query:"offset"`
	Final   *bool  `query:"final"`
	Session string `query:"session"`
}

type downloadQuery struct {
	Path    string `query:"path"`
	Version string `query:"version"`
	Inline  bool   `query:"inline"`
}

type thumbQuery struct {
	Path    string `query:"path"`
	Width   int    `query:"w"`
	Height  int    `query:"h"`
	Session string `query:"session"`
}

type transferBody struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type folderBody struct {
	Parent string `json:"parent"`
	Name   string `json:"name"`
}

// Object is the JSON form of files.Object.
type Object struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Path        string     `json:"path"`
	DisplayPath string     `json:"display_path"`
	IsFolder    bool       `json:"is_folder"`
	Size        int64      `json:"size"`
	Extension   string     `json:"extension,omitempty"`
	MIMEType    string     `json:"mime_type,omitempty"`
	ModTime     time.Time  `json:"modified_at"`
	VersionID   string     `json:"version_id,omitempty"`
	VersionTime *time.Time `json:"version_time,omitempty"`
	System      bool       `json:"system,omitempty"`
}

func toObject(o files.Object) Object {
	out := Object{
		ID:          o.ID,
		Name:        o.Name,
		Path:        o.Path,
		DisplayPath: o.DisplayPath,
		IsFolder:    o.IsFolder,
		Size:        o.Size,
		Extension:   o.Extension,
		MIMEType:    o.MIMEType,
		ModTime:     o.ModTime,
		VersionID:   o.VersionID,
		System:      o.HasFlag(files.FlagSystem),
	}
	if !o.VersionTime.IsZero() {
		t := o.VersionTime
		out.VersionTime = &t
	}
	return out
}

func toObjects(in []files.Object) []Object {
	out := make([]Object, 0, len(in))
	for _, o := range in {
		out = append(out, toObject(o))
	}
	return out
}

// UploadResponse is the body of POST /upload.
type UploadResponse struct {
	Complete bool    `json:"complete"`
	Received int64   `json:"received"`
	Object   *Object `json:"object,omitempty"`
}

// StockResponse describes a stock thumbnail when no StockURL is configured.
type StockResponse struct {
	Category string `json:"category"`
	Name     string `json:"name"`
}

type teamHookRequest struct {
	TeamID int64 `path:"teamID" json:"-"`
	UserID int64 `json:"user_id"`
}

type channelHookRequest struct {
	ChannelID int64 `path:"channelID" json:"-"`
	SourceID  int64 `json:"source_id"`
	UserID    int64 `json:"user_id"`
}

// ChannelPath is the JSON form of a channel path created by a hook.
type ChannelPath struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type RenameResponse struct {
	Renamed bool `json:"renamed"`
}

func toChannelPaths(paths []files.ChannelPath) []ChannelPath {
	out := make([]ChannelPath, 0, len(paths))
	for _, p := range paths {
		out = append(out, ChannelPath{ID: p.ID, Type: string(p.Type)})
	}
	return out
}
