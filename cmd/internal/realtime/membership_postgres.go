package realtime

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotAMember is returned by RoleOf when the user has no row for the room.
var ErrNotAMember = errors.New("realtime: not a member")

// PostgresMembershipSource reads room membership from <schema>.room_members.
type PostgresMembershipSource struct {
	pool   *pgxpool.Pool
	schema string
}

// MembershipOption configures PostgresMembershipSource behavior.
type MembershipOption func(*PostgresMembershipSource) error

// WithMembershipSchema sets the DB schema used by the membership source (default: "ripple").
func WithMembershipSchema(schema string) MembershipOption {
	return func(s *PostgresMembershipSource) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("realtime: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("realtime: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresMembershipSource constructs a membership source backed by PostgreSQL.
func NewPostgresMembershipSource(pool *pgxpool.Pool, opts ...MembershipOption) (*PostgresMembershipSource, error) {
	st := &PostgresMembershipSource{
		pool:   pool,
		schema: "ripple",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("realtime: nil pool")
	}
	return st, nil
}

// IsMember checks if userID is a member of roomID.
func (s *PostgresMembershipSource) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	roomID = strings.TrimSpace(roomID)
	userID = strings.TrimSpace(userID)
	if roomID == "" || userID == "" {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	members := pgIdent(s.schema, "room_members")

	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM `+members+` WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemberIDsOf returns every member id of roomID.
func (s *PostgresMembershipSource) MemberIDsOf(ctx context.Context, roomID string) ([]string, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	members := pgIdent(s.schema, "room_members")

	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM `+members+` WHERE room_id = $1 ORDER BY user_id`,
		roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RoleOf returns the user's role within the room, or ErrNotAMember.
func (s *PostgresMembershipSource) RoleOf(ctx context.Context, roomID, userID string) (string, error) {
	roomID = strings.TrimSpace(roomID)
	userID = strings.TrimSpace(userID)
	if roomID == "" || userID == "" {
		return "", ErrNotAMember
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	members := pgIdent(s.schema, "room_members")

	var role string
	err := s.pool.QueryRow(ctx,
		`SELECT role FROM `+members+` WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotAMember
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
