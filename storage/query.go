// File: storage/query.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Predicates over connection attributes. The operators mirror a small
// document-query vocabulary: equality, $ne, $in and $regex.

package storage

import (
	"regexp"

	"github.com/momentics/hioload-rws/session"
)

// Query selects connections. A nil Query matches everything.
type Query func(c *session.Conn) bool

// All matches every connection.
func All() Query {
	return func(*session.Conn) bool { return true }
}

// ByID matches the connection with the given id.
func ByID(id int64) Query {
	return func(c *session.Conn) bool { return c.ID == id }
}

// ByIP matches connections from ip.
func ByIP(ip string) Query {
	return func(c *session.Conn) bool { return c.IP == ip }
}

// IDIn matches connections whose id is in ids.
func IDIn(ids ...int64) Query {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(c *session.Conn) bool {
		_, ok := set[c.ID]
		return ok
	}
}

// Eq matches connections whose named field equals value.
func Eq(field, value string) Query {
	return func(c *session.Conn) bool {
		v, ok := c.Field(field)
		return ok && v == value
	}
}

// In matches connections whose named field is one of values.
func In(field string, values ...string) Query {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return func(c *session.Conn) bool {
		v, ok := c.Field(field)
		if !ok {
			return false
		}
		_, hit := set[v]
		return hit
	}
}

// Match matches connections whose named field matches re.
func Match(field string, re *regexp.Regexp) Query {
	return func(c *session.Conn) bool {
		v, ok := c.Field(field)
		return ok && re.MatchString(v)
	}
}

// Not negates q.
func Not(q Query) Query {
	return func(c *session.Conn) bool { return !q.match(c) }
}

// And matches when every query matches.
func And(qs ...Query) Query {
	return func(c *session.Conn) bool {
		for _, q := range qs {
			if !q.match(c) {
				return false
			}
		}
		return true
	}
}

func (q Query) match(c *session.Conn) bool {
	return q == nil || q(c)
}
