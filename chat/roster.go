package chat

import "strings"

// MaxUsers is the number of non-server users that can be registered at once.
const MaxUsers = 2

// JoinResult is the outcome of Roster.Join.
type JoinResult int

const (
	Accepted JoinResult = iota
	RejectedDuplicate
	RejectedCapacity
	RejectedInvalidName
)

func (r JoinResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectedDuplicate:
		return "rejected: duplicate username"
	case RejectedCapacity:
		return "rejected: capacity"
	case RejectedInvalidName:
		return "rejected: invalid username"
	default:
		return "unknown"
	}
}

// Roster maps registered usernames to their connections, in join order.
// It is not safe for concurrent use; the Room goroutine owns it.
type Roster struct {
	order   []string
	members map[string]*handle
}

func NewRoster() *Roster {
	return &Roster{members: make(map[string]*handle)}
}

// Join registers username for h. Usernames are case-sensitive keys and
// must not be blank.
func (r *Roster) Join(username string, h *handle) JoinResult {
	if strings.TrimSpace(username) == "" {
		return RejectedInvalidName
	}
	if _, ok := r.members[username]; ok {
		return RejectedDuplicate
	}
	if len(r.members) >= MaxUsers {
		return RejectedCapacity
	}
	r.members[username] = h
	r.order = append(r.order, username)
	return Accepted
}

// Leave removes username if present.
func (r *Roster) Leave(username string) {
	if _, ok := r.members[username]; !ok {
		return
	}
	delete(r.members, username)
	for i, name := range r.order {
		if name == username {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// LeaveHandle removes username only while it is still bound to h.
func (r *Roster) LeaveHandle(username string, h *handle) bool {
	if cur, ok := r.members[username]; !ok || cur != h {
		return false
	}
	r.Leave(username)
	return true
}

// Contains reports exact membership.
func (r *Roster) Contains(username string) bool {
	_, ok := r.members[username]
	return ok
}

// ContainsFold reports membership ignoring case.
func (r *Roster) ContainsFold(username string) bool {
	for _, name := range r.order {
		if strings.EqualFold(name, username) {
			return true
		}
	}
	return false
}

func (r *Roster) Len() int {
	return len(r.members)
}

// Usernames returns registered names in join order.
func (r *Roster) Usernames() []string {
	return append([]string(nil), r.order...)
}

// Handles returns registered connections in join order.
func (r *Roster) Handles() []*handle {
	out := make([]*handle, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.members[name])
	}
	return out
}
