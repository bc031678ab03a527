// Package reportjob coordinates long-running report generation jobs from the
// client side: it polls the backend for in-flight jobs, keeps a persisted
// marker of what it believes is running, reflects that onto a view-model and
// reconciles finished reports once the backend confirms nothing is left.
package reportjob

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Scope selects which jobs a controller watches.
type Scope int

const (
	// ScopeSelf watches the viewer's own projects.
	ScopeSelf Scope = iota
	// ScopeAdmin watches every project of every user.
	ScopeAdmin
)

func (s Scope) String() string {
	if s == ScopeAdmin {
		return "admin"
	}
	return "self"
}

// JobID identifies one report generation job. A project name is unique only
// within its owner, so both parts form the key.
type JobID struct {
	Owner   string
	Project string
}

func (j JobID) String() string {
	if j.Owner == "" {
		return j.Project
	}
	return j.Owner + "/" + j.Project
}

// MarshalJSON encodes the canonical [owner, project] pair.
func (j JobID) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{j.Owner, j.Project})
}

// UnmarshalJSON accepts the canonical pair and a bare project name.
func (j *JobID) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err == nil {
		switch len(pair) {
		case 1:
			*j = JobID{Project: pair[0]}
			return nil
		case 2:
			*j = JobID{Owner: pair[0], Project: pair[1]}
			return nil
		default:
			return fmt.Errorf("job id: expected [owner, project], got %d elements", len(pair))
		}
	}

	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("job id: %w", err)
	}
	*j = JobID{Project: name}
	return nil
}

// Codec converts the identifiers returned by the generation status endpoint
// into JobIDs. The user endpoint returns project names, the admin endpoint
// returns [email, project] pairs.
type Codec interface {
	Decode(raw json.RawMessage) (JobID, error)
}

// NewCodec returns the codec for a scope. viewer fills the owner of bare
// project names in ScopeSelf.
func NewCodec(scope Scope, viewer string) Codec {
	if scope == ScopeAdmin {
		return pairCodec{}
	}
	return nameCodec{owner: viewer}
}

type nameCodec struct {
	owner string
}

func (c nameCodec) Decode(raw json.RawMessage) (JobID, error) {
	var id JobID
	if err := id.UnmarshalJSON(raw); err != nil {
		return JobID{}, err
	}
	if id.Owner == "" {
		id.Owner = c.owner
	}
	if id.Project == "" {
		return JobID{}, fmt.Errorf("job id: empty project name")
	}
	return id, nil
}

type pairCodec struct{}

func (pairCodec) Decode(raw json.RawMessage) (JobID, error) {
	var id JobID
	if err := id.UnmarshalJSON(raw); err != nil {
		return JobID{}, err
	}
	if id.Owner == "" || id.Project == "" {
		return JobID{}, fmt.Errorf("job id: admin scope needs [email, project], got %s", string(raw))
	}
	return id, nil
}

// EncodeJobs renders jobs in the canonical persisted form: a JSON array of
// [owner, project] pairs.
func EncodeJobs(jobs []JobID) (string, error) {
	if jobs == nil {
		jobs = []JobID{}
	}
	data, err := json.Marshal(jobs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeJobs parses a persisted marker value. Besides the canonical form it
// reads the older shapes still found in long-lived stores: a bare project
// name and a comma-joined "owner,project" pair.
func DecodeJobs(value string) ([]JobID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if strings.HasPrefix(value, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(value), &items); err != nil {
			return nil, fmt.Errorf("marker: unreadable value %q: %w", value, err)
		}

		var names []string
		if err := json.Unmarshal([]byte(value), &names); err == nil {
			// A single ["owner", "project"] pair stored without the outer list.
			if len(names) == 2 && strings.Contains(names[0], "@") {
				return []JobID{{Owner: names[0], Project: names[1]}}, nil
			}
			jobs := make([]JobID, 0, len(names))
			for _, n := range names {
				jobs = append(jobs, JobID{Project: n})
			}
			return jobs, nil
		}

		jobs := make([]JobID, 0, len(items))
		for _, raw := range items {
			var id JobID
			if err := id.UnmarshalJSON(raw); err != nil {
				return nil, fmt.Errorf("marker: %w", err)
			}
			jobs = append(jobs, id)
		}
		return jobs, nil
	}

	if owner, project, ok := strings.Cut(value, ","); ok && strings.Contains(owner, "@") {
		return []JobID{{Owner: owner, Project: project}}, nil
	}
	return []JobID{{Project: value}}, nil
}
