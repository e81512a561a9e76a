package prompt

import "github.com/Davincible/toolbridge/internal/schema"

// unit is a run of messages dropped together: a single message, or an
// assistant tool-call message with the tool messages directly answering it.
// Tool messages separated from their call form their own unit, linked to
// the call's unit so the two are kept or dropped together.
type unit struct {
	start, end int
	linked     []int
	protected  bool
	dropped    bool
}

func splitUnits(messages []schema.Message) []unit {
	var units []unit
	issuer := make(map[string]int)

	for i := 0; i < len(messages); {
		m := messages[i]
		u := unit{start: i, end: i + 1, protected: m.Role == schema.RoleSystem}

		if m.Role == schema.RoleAssistant && len(m.ToolCalls) > 0 {
			ids := make(map[string]bool, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				ids[tc.ID] = true
				issuer[tc.ID] = len(units)
			}
			for u.end < len(messages) && messages[u.end].Role == schema.RoleTool && ids[messages[u.end].ToolCallID] {
				u.end++
			}
		}
		if m.Role == schema.RoleTool {
			if j, ok := issuer[m.ToolCallID]; ok {
				u.linked = append(u.linked, j)
				units[j].linked = append(units[j].linked, len(units))
			}
		}
		units = append(units, u)
		i = u.end
	}

	latestUser := lastIndexOfRole(messages, schema.RoleUser)
	for i := range units {
		u := &units[i]
		if (latestUser >= u.start && latestUser < u.end) || u.end == len(messages) {
			u.protected = true
		}
	}

	// Protection spreads along links until stable.
	for changed := true; changed; {
		changed = false
		for i := range units {
			if !units[i].protected {
				continue
			}
			for _, j := range units[i].linked {
				if !units[j].protected {
					units[j].protected = true
					changed = true
				}
			}
		}
	}
	return units
}

func oldestDroppable(units []unit) int {
	for i, u := range units {
		if !u.protected && !u.dropped {
			return i
		}
	}
	return -1
}

// drop marks unit i and everything linked to it as dropped and returns the
// number of messages removed.
func drop(units []unit, i int) int {
	if units[i].dropped {
		return 0
	}
	units[i].dropped = true
	n := units[i].end - units[i].start
	for _, j := range units[i].linked {
		n += drop(units, j)
	}
	return n
}

func keep(messages []schema.Message, units []unit) []schema.Message {
	kept := make([]schema.Message, 0, len(messages))
	for _, u := range units {
		if !u.dropped {
			kept = append(kept, messages[u.start:u.end]...)
		}
	}
	return kept
}
