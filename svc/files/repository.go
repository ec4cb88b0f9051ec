package files

import (
	"context"
	"errors"
)

// ChannelPathType discriminates the three mapped roots of a channel.
type ChannelPathType string

const (
	ChannelPathFile    ChannelPathType = "FILE"
	ChannelPathWiki    ChannelPathType = "WIKI"
	ChannelPathDeleted ChannelPathType = "DELETED"
)

// Team owns one physical root, /f/<ID>.
type Team struct {
	ID       int64
	Name     string
	OwnerID  int64
	Personal bool // the user's own "My Files" team
}

type Channel struct {
	ID      int64
	TeamID  int64
	Name    string
	OwnerID int64
}

// ChannelPath maps a channel and path type to a physical subtree.
type ChannelPath struct {
	ID        int64
	ChannelID int64
	Type      ChannelPathType
	Path      string
	CreatedBy int64
}

// SharedChannel is a channel visible to a user together with the id of its
// FILE path, which addresses it as /cf/<FilesPathID>.
type SharedChannel struct {
	Channel     Channel
	FilesPathID int64
}

// ErrRecordNotFound is returned by repositories for missing rows.
var ErrRecordNotFound = errors.New("files: record not found")

// Repository is the relational store behind translation and lifecycle hooks.
type Repository interface {
	GetTeam(ctx context.Context, id int64) (*Team, error)
	GetChannel(ctx context.Context, id int64) (*Channel, error)
	GetChannelPath(ctx context.Context, id int64) (*ChannelPath, error)
	ListChannelPaths(ctx context.Context, channelID int64) ([]ChannelPath, error)
	// ListChannelPathsWithin returns the paths equal to physical or below it.
	ListChannelPathsWithin(ctx context.Context, physical string) ([]ChannelPath, error)

	// CreateChannelPaths inserts all rows or none and fills in their IDs.
	CreateChannelPaths(ctx context.Context, paths []ChannelPath) ([]ChannelPath, error)
	// RewriteChannelPathPrefix replaces oldPrefix with newPrefix in every
	// path of the channel, atomically.
	RewriteChannelPathPrefix(ctx context.Context, channelID int64, oldPrefix, newPrefix string) error
	DeleteChannelPaths(ctx context.Context, channelID int64) error
	DeleteTeamChannelPaths(ctx context.Context, teamID int64) error

	// ListManagedTeams returns the teams whose root the user may browse.
	ListManagedTeams(ctx context.Context, userID int64) ([]Team, error)
	// ListSharedChannels returns the channels the user belongs to, excluding
	// channels of teams the user owns.
	ListSharedChannels(ctx context.Context, userID int64) ([]SharedChannel, error)
}

// MembershipSource resolves the role a user holds. An empty role with a nil
// error means no membership.
type MembershipSource interface {
	TeamRole(ctx context.Context, userID, teamID int64) (string, error)
	ChannelRole(ctx context.Context, userID, channelID int64) (string, error)
}

func findPath(paths []ChannelPath, typ ChannelPathType) (ChannelPath, bool) {
	for _, p := range paths {
		if p.Type == typ {
			return p, true
		}
	}
	return ChannelPath{}, false
}
