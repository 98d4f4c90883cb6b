package quizstream

// NewSkeletons creates one loading placeholder per requested question, in order
func NewSkeletons(req GenerationRequest) []QuestionSkeleton {
	if req.Total < 1 {
		return nil
	}
	list := make([]QuestionSkeleton, req.Total)
	for i := range list {
		list[i] = QuestionSkeleton{
			Prompt:       req.Prompt,
			Difficulty:   req.Difficulty,
			Type:         req.Type,
			Topic:        req.Topic,
			Grade:        req.Grade,
			IsLoading:    true,
			LoadingIndex: i,
			SourceIndex:  -1,
		}
	}
	return list
}

// Reconcile fills the skeleton at found.GlobalIndex with the generated question. If that
// slot is no longer loading, the first loading slot is filled instead so no question is
// dropped. A replay of an event that already filled a slot, identified by its chunk and
// arrival position, is ignored. The returned bool reports whether the list changed.
func Reconcile(list []QuestionSkeleton, found QuestionFound) ([]QuestionSkeleton, bool) {
	for _, q := range list {
		if !q.IsLoading && q.SourceChunk == found.ChunkIndex && q.SourcePosition == found.ChunkPosition {
			return list, false
		}
	}

	slot := -1
	if found.GlobalIndex >= 0 && found.GlobalIndex < len(list) && list[found.GlobalIndex].IsLoading {
		slot = found.GlobalIndex
	} else {
		for i, q := range list {
			if q.IsLoading {
				slot = i
				break
			}
		}
	}
	if slot < 0 {
		return list, false
	}

	out := make([]QuestionSkeleton, len(list))
	copy(out, list)

	q := out[slot]
	q.Prompt = found.Question.Prompt
	q.Difficulty = found.Question.Difficulty
	q.Type = found.Question.Type
	q.IsLoading = false
	q.SourceIndex = found.GlobalIndex
	q.SourceChunk = found.ChunkIndex
	q.SourcePosition = found.ChunkPosition
	out[slot] = q

	return out, true
}

// SweepLoading drops every skeleton still loading; those questions were never generated
func SweepLoading(list []QuestionSkeleton) []QuestionSkeleton {
	out := make([]QuestionSkeleton, 0, len(list))
	for _, q := range list {
		if !q.IsLoading {
			out = append(out, q)
		}
	}
	return out
}

// ApplyDetail copies a generated detail into the populated question at position i
func ApplyDetail(list []QuestionSkeleton, i int, detail QuestionDetail) ([]QuestionSkeleton, bool) {
	if i < 0 || i >= len(list) || list[i].IsLoading {
		return list, false
	}

	out := make([]QuestionSkeleton, len(list))
	copy(out, list)

	out[i].Title = detail.Title
	out[i].Description = detail.Description
	out[i].Answer = detail.Answer
	if detail.Topic != "" && out[i].Topic == "" {
		out[i].Topic = detail.Topic
	}
	return out, true
}
