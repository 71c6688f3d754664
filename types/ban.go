// Package types holds records shared between the chat core and its frontends.
package types

import "time"

// Ban is one banned IP address.
type Ban struct {
	IP       string
	BannedBy string // operator flag or automatic guard
	Reason   string
	At       time.Time
}
