package files

import (
	"strconv"
	"strings"
)

// PathType is the channel-scoped path discriminator.
type PathType string

const (
	PathTypeNone  PathType = ""
	PathTypeFiles PathType = "files"
	PathTypeWiki  PathType = "wiki"
)

// TranslatedPath is the result of translating a logical path. It is never
// modified after Translate returns it; cached values are shared.
type TranslatedPath struct {
	PhysicalPath string
	DisplayPath  string
	Team         *Team
	// RelativePath is the logical path as supplied, set for channel paths.
	RelativePath string
	// SubPath is the part below the mapped root, "" or "/a/b".
	SubPath       string
	Channel       *Channel
	ChannelPathID int64
	Type          PathType
}

// IsChannelScoped reports whether the path resolved through a ChannelPath.
func (p *TranslatedPath) IsChannelScoped() bool { return p.Channel != nil }

// PhysicalRoot is the physical path of the mapped root.
func (p *TranslatedPath) PhysicalRoot() string {
	return strings.TrimSuffix(p.PhysicalPath, p.SubPath)
}

// DisplayRoot is the display path of the mapped root.
func (p *TranslatedPath) DisplayRoot() string {
	return strings.TrimSuffix(p.DisplayPath, p.SubPath)
}

// LogicalRoot is the logical path of the mapped root: /f/<team>, /cf/<id>
// or /wf/<id>.
func (p *TranslatedPath) LogicalRoot() string {
	switch p.Type {
	case PathTypeFiles:
		return "/cf/" + strconv.FormatInt(p.ChannelPathID, 10)
	case PathTypeWiki:
		return "/wf/" + strconv.FormatInt(p.ChannelPathID, 10)
	default:
		return "/f/" + strconv.FormatInt(p.Team.ID, 10)
	}
}

// LogicalPath is the logical form of the translated path.
func (p *TranslatedPath) LogicalPath() string { return p.LogicalRoot() + p.SubPath }

// Rewrite maps a physical path under the mapped root to its logical and
// display forms by literal prefix substitution.
func (p *TranslatedPath) Rewrite(physical string) (logical, display string, ok bool) {
	root := p.PhysicalRoot()
	if physical != root && !strings.HasPrefix(physical, root+"/") {
		return "", "", false
	}
	rest := physical[len(root):]
	return p.LogicalRoot() + rest, p.DisplayRoot() + rest, true
}

// Child returns the translated path of name directly below p.
func (p *TranslatedPath) Child(name string) *TranslatedPath {
	c := *p
	c.PhysicalPath += "/" + name
	c.DisplayPath += "/" + name
	c.SubPath += "/" + name
	if c.RelativePath != "" {
		c.RelativePath += "/" + name
	}
	return &c
}

// Name is the last segment of the logical path.
func (p *TranslatedPath) Name() string {
	if p.SubPath == "" {
		return ""
	}
	return p.SubPath[strings.LastIndexByte(p.SubPath, '/')+1:]
}

// channelID returns 0 for team paths.
func (p *TranslatedPath) channelID() int64 {
	if p.Channel == nil {
		return 0
	}
	return p.Channel.ID
}
