// internal/model/stats.go
package model

import "time"

// TimelineBucket is one hour of the campaign's send timeline.
type TimelineBucket struct {
	Hour time.Time `json:"hour"`
	Sent int       `json:"sent"`
}
