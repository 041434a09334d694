package influxline

import (
	"context"
	"fmt"
)

// Privilege is a database-scoped access level for GrantPrivilege and
// RevokePrivilege.
type Privilege string

// Privileges recognised by the v1 API.
const (
	PrivilegeRead  Privilege = "READ"
	PrivilegeWrite Privilege = "WRITE"
	PrivilegeAll   Privilege = "ALL"
)

// Management statements. Each builds InfluxQL with identifiers and string
// literals quoted, and dispatches through Query; their leading keywords
// select POST. Methods taking a db parameter treat an empty value as the
// client's database.

// CreateDatabase creates a database.
func (c *Client) CreateDatabase(ctx context.Context, name string) error {
	return c.exec(ctx, "CREATE DATABASE "+quoteIdent(name))
}

// DropDatabase deletes a database and all its data.
func (c *Client) DropDatabase(ctx context.Context, name string) error {
	return c.exec(ctx, "DROP DATABASE "+quoteIdent(name))
}

// DropMeasurement deletes all data for a measurement in the client's
// database.
func (c *Client) DropMeasurement(ctx context.Context, name string) error {
	return c.exec(ctx, "DROP MEASUREMENT "+quoteIdent(name))
}

// CreateUser creates a user. admin grants cluster administration
// privileges at creation time.
func (c *Client) CreateUser(ctx context.Context, name, password string, admin bool) error {
	stmt := fmt.Sprintf("CREATE USER %s WITH PASSWORD %s", quoteIdent(name), quoteLiteral(password))
	if admin {
		stmt += " WITH ALL PRIVILEGES"
	}
	return c.exec(ctx, stmt)
}

// DropUser removes a user.
func (c *Client) DropUser(ctx context.Context, name string) error {
	return c.exec(ctx, "DROP USER "+quoteIdent(name))
}

// SetUserPassword changes a user's password.
func (c *Client) SetUserPassword(ctx context.Context, name, password string) error {
	return c.exec(ctx, fmt.Sprintf("SET PASSWORD FOR %s = %s", quoteIdent(name), quoteLiteral(password)))
}

// GrantAdminPrivileges grants cluster administration to a user.
func (c *Client) GrantAdminPrivileges(ctx context.Context, name string) error {
	return c.exec(ctx, "GRANT ALL PRIVILEGES TO "+quoteIdent(name))
}

// RevokeAdminPrivileges revokes cluster administration from a user.
func (c *Client) RevokeAdminPrivileges(ctx context.Context, name string) error {
	return c.exec(ctx, "REVOKE ALL PRIVILEGES FROM "+quoteIdent(name))
}

// GrantPrivilege grants a privilege on a database to a user.
func (c *Client) GrantPrivilege(ctx context.Context, name, db string, p Privilege) error {
	if db == "" {
		db = c.database
	}
	return c.exec(ctx, fmt.Sprintf("GRANT %s ON %s TO %s", p, quoteIdent(db), quoteIdent(name)))
}

// RevokePrivilege revokes a privilege on a database from a user.
func (c *Client) RevokePrivilege(ctx context.Context, name, db string, p Privilege) error {
	if db == "" {
		db = c.database
	}
	return c.exec(ctx, fmt.Sprintf("REVOKE %s ON %s FROM %s", p, quoteIdent(db), quoteIdent(name)))
}

// CreateRetentionPolicy creates a retention policy on a database.
//
// duration uses InfluxQL duration syntax (e.g. "30d", "8w", "INF"),
// replication is the cluster copy count (1 on single nodes), and
// asDefault makes the policy the database default.
func (c *Client) CreateRetentionPolicy(ctx context.Context, name, db, duration string, replication int, asDefault bool) error {
	if db == "" {
		db = c.database
	}
	stmt := fmt.Sprintf("CREATE RETENTION POLICY %s ON %s DURATION %s REPLICATION %d",
		quoteIdent(name), quoteIdent(db), duration, replication)
	if asDefault {
		stmt += " DEFAULT"
	}
	return c.exec(ctx, stmt)
}

// DropRetentionPolicy removes a retention policy from a database.
func (c *Client) DropRetentionPolicy(ctx context.Context, name, db string) error {
	if db == "" {
		db = c.database
	}
	return c.exec(ctx, fmt.Sprintf("DROP RETENTION POLICY %s ON %s", quoteIdent(name), quoteIdent(db)))
}

// exec runs a management statement, discarding any result rows.
func (c *Client) exec(ctx context.Context, statement string) error {
	_, err := c.Query(ctx, statement, "")
	return err
}
