package effect

import "github.com/udisondev/la2go-effects/internal/data"

// conditionSubjects carries the three snapshots a begin condition may inspect.
// A zero-ID snapshot means the actor could not be resolved.
type conditionSubjects struct {
	caster ActorSnapshot
	owner  ActorSnapshot
	target ActorSnapshot
}

// evaluateBegin reports whether every condition holds.
// Pure function of the snapshots; nothing is cached on the instance.
func evaluateBegin(conds []data.Condition, s conditionSubjects) bool {
	for i := range conds {
		if !evaluateCondition(&conds[i], s) {
			return false
		}
	}
	return true
}

func evaluateCondition(c *data.Condition, s conditionSubjects) bool {
	var subject ActorSnapshot
	switch c.Subject {
	case data.SubjectCaster:
		subject = s.caster
	case data.SubjectTarget:
		subject = s.target
	default:
		subject = s.owner
	}
	if subject.ID == 0 {
		return false
	}

	if c.RequireAlive && subject.Dead {
		return false
	}
	if c.RequireDead && !subject.Dead {
		return false
	}
	if c.MinLevel > 0 && subject.Level < c.MinLevel {
		return false
	}
	if c.MaxLevel > 0 && subject.Level > c.MaxLevel {
		return false
	}
	if c.MinHPRate > 0 && subject.HPRate() < c.MinHPRate {
		return false
	}
	if c.MaxHPRate > 0 && subject.HPRate() > c.MaxHPRate {
		return false
	}
	if c.NotRiding && subject.RideID != 0 {
		return false
	}
	if len(c.Jobs) > 0 {
		found := false
		for _, j := range c.Jobs {
			if j == subject.Job {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
