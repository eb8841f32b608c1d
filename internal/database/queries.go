package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const (
	userColumns    = "id, username, email, password_hash, display_name, avatar, verified, is_admin, bio, skills, last_active, created_at, updated_at"
	messageColumns = "m.id, m.user_id, m.text, m.room, m.type, m.code_language, m.code, m.file_name, m.file_url, m.created_at, " +
		"a.username, a.display_name, a.avatar, a.verified"
	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (User, error) {
	var (
		u          User
		lastActive sql.NullTime
	)
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.DisplayName,
		&u.Avatar,
		&u.Verified,
		&u.IsAdmin,
		&u.Bio,
		pq.Array(&u.Skills),
		&lastActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	u.LastActive = lastActive.Time

	return u, err
}

func scanMessage(row scanner) (MessageWithAuthor, error) {
	var msg MessageWithAuthor
	err := row.Scan(
		&msg.Id,
		&msg.UserId,
		&msg.Text,
		&msg.Room,
		&msg.Type,
		&msg.CodeLanguage,
		&msg.Code,
		&msg.FileName,
		&msg.FileUrl,
		&msg.CreatedAt,
		&msg.Username,
		&msg.DisplayName,
		&msg.Avatar,
		&msg.Verified,
	)

	return msg, err
}

func (db *PgCommunityRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO accounts (username, email, password_hash, display_name, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING "+userColumns,
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		params.DisplayName,
		now,
	)

	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicate
		}
		return User{}, err
	}

	return u, nil
}

func (db *PgCommunityRepository) GetUserById(ctx context.Context, userId int) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM accounts WHERE id = $1 LIMIT 1",
		userId,
	)

	return scanUser(row)
}

func (db *PgCommunityRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	return scanUser(row)
}

func (db *PgCommunityRepository) TouchLastActive(ctx context.Context, userId int) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE accounts SET last_active = $2 WHERE id = $1",
		userId,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (db *PgCommunityRepository) ListRecentUsers(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+userColumns+" FROM accounts ORDER BY created_at DESC LIMIT $1",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgCommunityRepository) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT p.id, p.title, p.description, p.repo_url, p.demo_url, p.tags, p.owner_id, "+
			"a.display_name, a.avatar, p.created_at FROM projects p "+
			"JOIN accounts a ON a.id = p.owner_id ORDER BY p.created_at DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		var p Project
		err := rows.Scan(
			&p.Id,
			&p.Title,
			&p.Description,
			&p.RepoUrl,
			&p.DemoUrl,
			pq.Array(&p.Tags),
			&p.OwnerId,
			&p.OwnerName,
			&p.OwnerAvatar,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}

	return projects, rows.Err()
}

func (db *PgCommunityRepository) CreateProject(ctx context.Context, params CreateProjectParams) (Project, error) {
	tags := params.Tags
	if tags == nil {
		tags = []string{}
	}

	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO projects (title, description, repo_url, demo_url, tags, owner_id, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) "+
			"RETURNING id, title, description, repo_url, demo_url, tags, owner_id, created_at",
		params.Title,
		params.Description,
		params.RepoUrl,
		params.DemoUrl,
		pq.Array(tags),
		params.OwnerId,
		time.Now().UTC(),
	)

	var p Project
	err := row.Scan(
		&p.Id,
		&p.Title,
		&p.Description,
		&p.RepoUrl,
		&p.DemoUrl,
		pq.Array(&p.Tags),
		&p.OwnerId,
		&p.CreatedAt,
	)

	return p, err
}

func (db *PgCommunityRepository) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages (user_id, text, room, type, code_language, code, file_name, file_url, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at",
		msg.UserId,
		msg.Text,
		msg.Room,
		msg.Type,
		msg.CodeLanguage,
		msg.Code,
		msg.FileName,
		msg.FileUrl,
		msg.CreatedAt,
	)

	if err := row.Scan(&msg.Id, &msg.CreatedAt); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgCommunityRepository) GetMessageWithAuthor(ctx context.Context, messageId int) (MessageWithAuthor, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages m "+
			"JOIN accounts a ON a.id = m.user_id WHERE m.id = $1 LIMIT 1",
		messageId,
	)

	return scanMessage(row)
}

// ListMessages returns the most recent messages in a room, oldest first.
func (db *PgCommunityRepository) ListMessages(ctx context.Context, room string, limit int) ([]MessageWithAuthor, error) {
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT * FROM (SELECT "+messageColumns+" FROM messages m "+
			"JOIN accounts a ON a.id = m.user_id WHERE m.room = $1 "+
			"ORDER BY m.created_at DESC LIMIT $2) recent ORDER BY created_at ASC",
		room,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]MessageWithAuthor, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func scanApi(row scanner) (ApiEntry, error) {
	var api ApiEntry
	err := row.Scan(
		&api.Id,
		&api.Name,
		&api.Description,
		&api.BaseUrl,
		&api.Category,
		&api.AuthType,
		&api.SubmittedBy,
		&api.Approved,
		&api.CreatedAt,
	)

	return api, err
}

const apiColumns = "id, name, description, base_url, category, auth_type, submitted_by, approved, created_at"

func (db *PgCommunityRepository) ListApis(ctx context.Context) ([]ApiEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+apiColumns+" FROM apis ORDER BY name ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apis := make([]ApiEntry, 0)
	for rows.Next() {
		api, err := scanApi(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api: %w", err)
		}
		apis = append(apis, api)
	}

	return apis, rows.Err()
}

func (db *PgCommunityRepository) CreateApi(ctx context.Context, params CreateApiParams) (ApiEntry, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO apis (name, description, base_url, category, auth_type, submitted_by, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+apiColumns,
		params.Name,
		params.Description,
		params.BaseUrl,
		params.Category,
		params.AuthType,
		params.SubmittedBy,
		time.Now().UTC(),
	)

	return scanApi(row)
}

func (db *PgCommunityRepository) GetApiById(ctx context.Context, apiId int) (ApiEntry, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+apiColumns+" FROM apis WHERE id = $1 LIMIT 1",
		apiId,
	)

	return scanApi(row)
}

func (db *PgCommunityRepository) ListLessons(ctx context.Context) ([]Lesson, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, title, summary, content, level, position FROM lessons ORDER BY position ASC, id ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lessons := make([]Lesson, 0)
	for rows.Next() {
		var l Lesson
		if err := rows.Scan(&l.Id, &l.Title, &l.Summary, &l.Content, &l.Level, &l.Position); err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		lessons = append(lessons, l)
	}

	return lessons, rows.Err()
}

func (db *PgCommunityRepository) ListBadges(ctx context.Context, userId int) ([]Badge, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, user_id, name, icon, awarded_at FROM badges WHERE user_id = $1 ORDER BY awarded_at ASC",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	badges := make([]Badge, 0)
	for rows.Next() {
		var b Badge
		if err := rows.Scan(&b.Id, &b.UserId, &b.Name, &b.Icon, &b.AwardedAt); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, b)
	}

	return badges, rows.Err()
}

func (db *PgCommunityRepository) ListHackathons(ctx context.Context) ([]Hackathon, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, title, description, prize, starts_at, ends_at FROM hackathons ORDER BY starts_at ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hackathons := make([]Hackathon, 0)
	for rows.Next() {
		var h Hackathon
		if err := rows.Scan(&h.Id, &h.Title, &h.Description, &h.Prize, &h.StartsAt, &h.EndsAt); err != nil {
			return nil, fmt.Errorf("scan hackathon: %w", err)
		}
		hackathons = append(hackathons, h)
	}

	return hackathons, rows.Err()
}

func (db *PgCommunityRepository) CountStats(ctx context.Context) (Counts, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM accounts), (SELECT COUNT(*) FROM projects), "+
			"(SELECT COUNT(*) FROM messages), (SELECT COUNT(*) FROM apis)",
	)

	var c Counts
	err := row.Scan(&c.Users, &c.Projects, &c.Messages, &c.Apis)

	return c, err
}
