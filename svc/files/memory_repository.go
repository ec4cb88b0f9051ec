package files

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryRepository is an in-process Repository and MembershipSource for
// tests and single-node setups.
type MemoryRepository struct {
	mu          sync.RWMutex
	teams       map[int64]Team
	channels    map[int64]Channel
	paths       map[int64]ChannelPath
	teamRoles   map[[2]int64]string
	channelRole map[[2]int64]string
	nextPathID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		teams:       make(map[int64]Team),
		channels:    make(map[int64]Channel),
		paths:       make(map[int64]ChannelPath),
		teamRoles:   make(map[[2]int64]string),
		channelRole: make(map[[2]int64]string),
	}
}

func (r *MemoryRepository) PutTeam(t Team) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams[t.ID] = t
}

func (r *MemoryRepository) PutChannel(c Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[c.ID] = c
}

// PutChannelPath stores p as is. Callers that need generated IDs use
// CreateChannelPaths.
func (r *MemoryRepository) PutChannelPath(p ChannelPath) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[p.ID] = p
	r.nextPathID = max(r.nextPathID, p.ID)
}

func (r *MemoryRepository) SetTeamRole(userID, teamID int64, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teamRoles[[2]int64{userID, teamID}] = role
}

func (r *MemoryRepository) SetChannelRole(userID, channelID int64, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channelRole[[2]int64{userID, channelID}] = role
}

func (r *MemoryRepository) GetTeam(_ context.Context, id int64) (*Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.teams[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &t, nil
}

func (r *MemoryRepository) GetChannel(_ context.Context, id int64) (*Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) GetChannelPath(_ context.Context, id int64) (*ChannelPath, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.paths[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) ListChannelPaths(_ context.Context, channelID int64) ([]ChannelPath, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ChannelPath
	for _, p := range r.paths {
		if p.ChannelID == channelID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b ChannelPath) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *MemoryRepository) ListChannelPathsWithin(_ context.Context, physical string) ([]ChannelPath, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ChannelPath
	for _, p := range r.paths {
		if p.Path == physical || strings.HasPrefix(p.Path, physical+"/") {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b ChannelPath) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *MemoryRepository) CreateChannelPaths(_ context.Context, paths []ChannelPath) ([]ChannelPath, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChannelPath, len(paths))
	for i, p := range paths {
		r.nextPathID++
		p.ID = r.nextPathID
		out[i] = p
	}
	for _, p := range out {
		r.paths[p.ID] = p
	}
	return out, nil
}

func (r *MemoryRepository) RewriteChannelPathPrefix(_ context.Context, channelID int64, oldPrefix, newPrefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.paths {
		if p.ChannelID == channelID && strings.HasPrefix(p.Path, oldPrefix) {
			p.Path = newPrefix + strings.TrimPrefix(p.Path, oldPrefix)
			r.paths[id] = p
		}
	}
	return nil
}

func (r *MemoryRepository) DeleteChannelPaths(_ context.Context, channelID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.paths {
		if p.ChannelID == channelID {
			delete(r.paths, id)
		}
	}
	return nil
}

func (r *MemoryRepository) DeleteTeamChannelPaths(_ context.Context, teamID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.paths {
		if c, ok := r.channels[p.ChannelID]; ok && c.TeamID == teamID {
			delete(r.paths, id)
		}
	}
	return nil
}

func (r *MemoryRepository) ListManagedTeams(_ context.Context, userID int64) ([]Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Team
	for _, t := range r.teams {
		role := r.teamRoles[[2]int64{userID, t.ID}]
		if t.OwnerID == userID || role == RoleOwner || role == RoleManager {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b Team) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *MemoryRepository) ListSharedChannels(_ context.Context, userID int64) ([]SharedChannel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []SharedChannel
	for _, c := range r.channels {
		if r.channelRole[[2]int64{userID, c.ID}] == "" {
			continue
		}
		if t, ok := r.teams[c.TeamID]; ok && t.OwnerID == userID {
			continue
		}
		for _, p := range r.paths {
			if p.ChannelID == c.ID && p.Type == ChannelPathFile {
				out = append(out, SharedChannel{Channel: c, FilesPathID: p.ID})
				break
			}
		}
	}
	slices.SortFunc(out, func(a, b SharedChannel) int {
		return strings.Compare(a.Channel.Name, b.Channel.Name)
	})
	return out, nil
}

func (r *MemoryRepository) TeamRole(_ context.Context, userID, teamID int64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if role, ok := r.teamRoles[[2]int64{userID, teamID}]; ok {
		return role, nil
	}
	if t, ok := r.teams[teamID]; ok && t.OwnerID == userID {
		return RoleOwner, nil
	}
	return "", nil
}

func (r *MemoryRepository) ChannelRole(_ context.Context, userID, channelID int64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if role, ok := r.channelRole[[2]int64{userID, channelID}]; ok {
		return role, nil
	}
	if c, ok := r.channels[channelID]; ok && c.OwnerID == userID {
		return RoleOwner, nil
	}
	return "", nil
}
