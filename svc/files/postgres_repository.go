package files

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/teamfiles/pkg/pg"
)

// DB is the subset of *pgxpool.Pool used by PostgresRepository.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository and MembershipSource on the
// schema in internal/db/migrations.
type PostgresRepository struct {
	db DB
}

func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func notFoundOr(err error, what string) error {
	if pg.IsNotFoundError(err) {
		return ErrRecordNotFound
	}
	return fmt.Errorf("files: %s: %w", what, err)
}

func (r *PostgresRepository) GetTeam(ctx context.Context, id int64) (*Team, error) {
	var t Team
	err := r.db.QueryRow(ctx,
		`SELECT id, name, owner_id, personal FROM teams WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.OwnerID, &t.Personal)
	if err != nil {
		return nil, notFoundOr(err, "get team")
	}
	return &t, nil
}

func (r *PostgresRepository) GetChannel(ctx context.Context, id int64) (*Channel, error) {
	var c Channel
	err := r.db.QueryRow(ctx,
		`SELECT id, team_id, name, owner_id FROM channels WHERE id = $1`, id,
	).Scan(&c.ID, &c.TeamID, &c.Name, &c.OwnerID)
	if err != nil {
		return nil, notFoundOr(err, "get channel")
	}
	return &c, nil
}

func (r *PostgresRepository) GetChannelPath(ctx context.Context, id int64) (*ChannelPath, error) {
	var p ChannelPath
	err := r.db.QueryRow(ctx,
		`SELECT id, channel_id, path_type, path, created_by FROM channel_paths WHERE id = $1`, id,
	).Scan(&p.ID, &p.ChannelID, &p.Type, &p.Path, &p.CreatedBy)
	if err != nil {
		return nil, notFoundOr(err, "get channel path")
	}
	return &p, nil
}

func (r *PostgresRepository) ListChannelPaths(ctx context.Context, channelID int64) ([]ChannelPath, error) {
	return r.channelPaths(ctx,
		`SELECT id, channel_id, path_type, path, created_by
		   FROM channel_paths WHERE channel_id = $1 ORDER BY id`, channelID)
}

func (r *PostgresRepository) ListChannelPathsWithin(ctx context.Context, physical string) ([]ChannelPath, error) {
	return r.channelPaths(ctx,
		`SELECT id, channel_id, path_type, path, created_by
		   FROM channel_paths
		  WHERE path = $1 OR starts_with(path, $1 || '/')
		  ORDER BY id`, physical)
}

func (r *PostgresRepository) channelPaths(ctx context.Context, sql string, arg any) ([]ChannelPath, error) {
	rows, err := r.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("files: list channel paths: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ChannelPath, error) {
		var p ChannelPath
		err := row.Scan(&p.ID, &p.ChannelID, &p.Type, &p.Path, &p.CreatedBy)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("files: list channel paths: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) CreateChannelPaths(ctx context.Context, paths []ChannelPath) ([]ChannelPath, error) {
	out := make([]ChannelPath, len(paths))
	err := pg.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		for i, p := range paths {
			if err := tx.QueryRow(ctx,
				`INSERT INTO channel_paths (channel_id, path_type, path, created_by)
				 VALUES ($1, $2, $3, $4) RETURNING id`,
				p.ChannelID, p.Type, p.Path, p.CreatedBy,
			).Scan(&p.ID); err != nil {
				return err
			}
			out[i] = p
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("files: create channel paths: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) RewriteChannelPathPrefix(ctx context.Context, channelID int64, oldPrefix, newPrefix string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE channel_paths
		    SET path = $3 || substr(path, length($2) + 1)
		  WHERE channel_id = $1 AND starts_with(path, $2)`,
		channelID, oldPrefix, newPrefix)
	if err != nil {
		return fmt.Errorf("files: rewrite channel paths: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteChannelPaths(ctx context.Context, channelID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM channel_paths WHERE channel_id = $1`, channelID); err != nil {
		return fmt.Errorf("files: delete channel paths: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteTeamChannelPaths(ctx context.Context, teamID int64) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM channel_paths
		  WHERE channel_id IN (SELECT id FROM channels WHERE team_id = $1)`, teamID)
	if err != nil {
		return fmt.Errorf("files: delete team channel paths: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListManagedTeams(ctx context.Context, userID int64) ([]Team, error) {
	rows, err := r.db.Query(ctx,
		`SELECT t.id, t.name, t.owner_id, t.personal
		   FROM teams t
		  WHERE t.owner_id = $1
		     OR EXISTS (SELECT 1 FROM team_members m
		                 WHERE m.team_id = t.id AND m.user_id = $1 AND m.role IN ('owner', 'manager'))
		  ORDER BY t.personal DESC, t.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("files: list managed teams: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Team, error) {
		var t Team
		err := row.Scan(&t.ID, &t.Name, &t.OwnerID, &t.Personal)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("files: list managed teams: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) ListSharedChannels(ctx context.Context, userID int64) ([]SharedChannel, error) {
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.team_id, c.name, c.owner_id, p.id
		   FROM channels c
		   JOIN channel_members m ON m.channel_id = c.id AND m.user_id = $1
		   JOIN teams t ON t.id = c.team_id AND t.owner_id <> $1
		   JOIN channel_paths p ON p.channel_id = c.id AND p.path_type = 'FILE'
		  ORDER BY c.name, c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("files: list shared channels: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SharedChannel, error) {
		var sc SharedChannel
		err := row.Scan(&sc.Channel.ID, &sc.Channel.TeamID, &sc.Channel.Name, &sc.Channel.OwnerID, &sc.FilesPathID)
		return sc, err
	})
	if err != nil {
		return nil, fmt.Errorf("files: list shared channels: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) TeamRole(ctx context.Context, userID, teamID int64) (string, error) {
	return r.role(ctx,
		`SELECT COALESCE(
		        (SELECT role FROM team_members WHERE team_id = t.id AND user_id = $1),
		        CASE WHEN t.owner_id = $1 THEN 'owner' ELSE '' END)
		   FROM teams t WHERE t.id = $2`, userID, teamID)
}

func (r *PostgresRepository) ChannelRole(ctx context.Context, userID, channelID int64) (string, error) {
	return r.role(ctx,
		`SELECT COALESCE(
		        (SELECT role FROM channel_members WHERE channel_id = c.id AND user_id = $1),
		        CASE WHEN c.owner_id = $1 THEN 'owner' ELSE '' END)
		   FROM channels c WHERE c.id = $2`, userID, channelID)
}

func (r *PostgresRepository) role(ctx context.Context, sql string, userID, id int64) (string, error) {
	var role string
	if err := r.db.QueryRow(ctx, sql, userID, id).Scan(&role); err != nil {
		if pg.IsNotFoundError(err) {
			return "", nil
		}
		return "", fmt.Errorf("files: load role: %w", err)
	}
	return role, nil
}
