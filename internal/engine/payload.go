package engine

// JobData is the semi-structured payload that flows through a pipeline.
// Stage-specific fields get merged in as actions complete.
type JobData map[string]any

// well-known payload keys

const (
	KeyNoteID   = "noteId"
	KeyImportID = "importId"
)

func (d JobData) NoteID() string {
	s, _ := d[KeyNoteID].(string)
	return s
}

func (d JobData) ImportID() string {
	s, _ := d[KeyImportID].(string)
	return s
}

// Clone returns a shallow copy. Pipelines merge into a copy so the raw
// queue payload is never mutated in place.
func (d JobData) Clone() JobData {
	if d == nil {
		return JobData{}
	}

	out := make(JobData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// MergeData shallow-merges an action result into the current payload;
// later writes win. A nil result leaves current untouched. This is the
// one merge helper the whole pipeline uses: downstream actions must not
// rely on deep-merge semantics.
func MergeData(current, result JobData) JobData {
	if result == nil {
		return current
	}
	if current == nil {
		return result.Clone()
	}

	out := current.Clone()
	for k, v := range result {
		out[k] = v
	}
	return out
}
